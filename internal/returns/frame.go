package returns

import (
	"math"
	"sort"
	"time"
)

// Frame 是多条序列按日期外连接后的宽表；缺失值为 NaN。
type Frame struct {
	dates   []time.Time
	ids     []string
	columns map[string][]float64
}

// Join 将多条序列按日期外连接，列顺序按 id 排序。
func Join(series ...Series) Frame {
	dateSet := make(map[time.Time]struct{})
	for _, s := range series {
		for _, p := range s.Points {
			dateSet[p.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	pos := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		pos[d] = i
	}

	f := Frame{dates: dates, columns: make(map[string][]float64, len(series))}
	for _, s := range series {
		col, ok := f.columns[s.ID]
		if !ok {
			col = nanColumn(len(dates))
			f.columns[s.ID] = col
			f.ids = append(f.ids, s.ID)
		}
		for _, p := range s.Points {
			col[pos[p.Date]] = p.Value
		}
	}
	sort.Strings(f.ids)
	return f
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

// IDs 返回列 id（已排序）。
func (f Frame) IDs() []string {
	return append([]string(nil), f.ids...)
}

func (f Frame) Has(id string) bool {
	_, ok := f.columns[id]
	return ok
}

// Dates 返回行日期（升序）。
func (f Frame) Dates() []time.Time {
	return append([]time.Time(nil), f.dates...)
}

func (f Frame) Empty() bool {
	return len(f.dates) == 0 || len(f.ids) == 0
}

// LastDate 返回宽表中最后一个日期。
func (f Frame) LastDate() (time.Time, bool) {
	if len(f.dates) == 0 {
		return time.Time{}, false
	}
	return f.dates[len(f.dates)-1], true
}

// Select 只保留给定的列；不存在的 id 被忽略。全为 NaN 的行随之删除。
func (f Frame) Select(ids []string) Frame {
	kept := make([]Series, 0, len(ids))
	for _, id := range ids {
		if f.Has(id) {
			kept = append(kept, f.Column(id))
		}
	}
	return Join(kept...)
}

// Column 返回某列的非缺失点。
func (f Frame) Column(id string) Series {
	col, ok := f.columns[id]
	if !ok {
		return Series{ID: id}
	}
	points := make([]Point, 0, len(col))
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		points = append(points, Point{Date: f.dates[i], Value: v})
	}
	return Series{ID: id, Points: points}
}

// Trim 保留 date >= cutoff 的行。
func (f Frame) Trim(cutoff time.Time) Frame {
	idx := sort.Search(len(f.dates), func(i int) bool {
		return !f.dates[i].Before(cutoff)
	})
	out := Frame{dates: f.dates[idx:], ids: f.ids, columns: make(map[string][]float64, len(f.columns))}
	for id, col := range f.columns {
		out.columns[id] = col[idx:]
	}
	return out
}

// Overlap 返回候选序列与宽表共有的日期数。
func (f Frame) Overlap(candidate Series) int {
	values := candidate.Values()
	n := 0
	for _, d := range f.dates {
		if _, ok := values[d]; ok {
			n++
		}
	}
	return n
}

// CorrWith 在共有日期上计算候选序列与每一列的 Pearson 相关系数，
// 每列只使用两侧都有值的日期；结果可能含 NaN。
func (f Frame) CorrWith(candidate Series) map[string]float64 {
	values := candidate.Values()
	rows := make([]int, 0, len(f.dates))
	x := make([]float64, 0, len(f.dates))
	for i, d := range f.dates {
		if v, ok := values[d]; ok {
			rows = append(rows, i)
			x = append(x, v)
		}
	}

	out := make(map[string]float64, len(f.ids))
	y := make([]float64, len(rows))
	for _, id := range f.ids {
		col := f.columns[id]
		for k, row := range rows {
			y[k] = col[row]
		}
		out[id] = Pearson(x, y)
	}
	return out
}

// Corr 计算所有列两两之间的 Pearson 相关矩阵，顺序与 IDs 一致。
func (f Frame) Corr() [][]float64 {
	n := len(f.ids)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := Pearson(f.columns[f.ids[i]], f.columns[f.ids[j]])
			out[i][j] = c
			out[j][i] = c
		}
	}
	return out
}
