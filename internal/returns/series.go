package returns

import (
	"sort"
	"time"
)

// DateLayout 是序列文件中日期列的格式。
const DateLayout = "2006-01-02"

// Point 表示某一交易日的收益值。
type Point struct {
	Date  time.Time
	Value float64
}

// Series 是按日期升序排列、日期唯一的收益序列。
type Series struct {
	ID     string
	Points []Point
}

// NewSeries 复制并整理输入点：日期归一到 UTC 零点，升序排列，重复日期保留最后一次出现的值。
func NewSeries(id string, points []Point) Series {
	byDate := make(map[time.Time]float64, len(points))
	for _, p := range points {
		byDate[normalizeDate(p.Date)] = p.Value
	}
	out := make([]Point, 0, len(byDate))
	for d, v := range byDate {
		out = append(out, Point{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return Series{ID: id, Points: out}
}

func (s Series) Len() int {
	return len(s.Points)
}

func (s Series) Empty() bool {
	return len(s.Points) == 0
}

// Last 返回最后一个观测日。
func (s Series) Last() (time.Time, bool) {
	if len(s.Points) == 0 {
		return time.Time{}, false
	}
	return s.Points[len(s.Points)-1].Date, true
}

// Trim 保留 date >= cutoff 的点。
func (s Series) Trim(cutoff time.Time) Series {
	idx := sort.Search(len(s.Points), func(i int) bool {
		return !s.Points[i].Date.Before(cutoff)
	})
	return Series{ID: s.ID, Points: s.Points[idx:]}
}

// Values 以 date -> value 的形式返回序列。
func (s Series) Values() map[time.Time]float64 {
	out := make(map[time.Time]float64, len(s.Points))
	for _, p := range s.Points {
		out[p.Date] = p.Value
	}
	return out
}

// Cutoff 计算以年为边界的窗口起点：最后观测月份 >= 7 时锚定到下一年，
// 起点为 (anchor - years) 年的 1 月 1 日。
func Cutoff(last time.Time, years int) time.Time {
	anchor := last.Year()
	if last.Month() >= time.July {
		anchor++
	}
	return time.Date(anchor-years, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 YYYY-MM-DD，也接受带时间部分的 ISO 时间戳。
func ParseDate(raw string) (time.Time, error) {
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func normalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
