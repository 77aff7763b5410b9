package cluster

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Recommendation 取值 SUBMIT 或 SKIP。
type Recommendation string

const (
	Submit Recommendation = "SUBMIT"
	Skip   Recommendation = "SKIP"
)

// Matrix 是候选之间的相关矩阵，Values[i][j] 对应 IDs[i] 与 IDs[j]。
type Matrix struct {
	IDs    []string    `json:"ids"`
	Values [][]float64 `json:"values"`
}

// At 返回 a 与 b 的相关系数，任一不存在时返回 NaN。
func (m Matrix) At(a, b string) float64 {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 {
		return math.NaN()
	}
	return m.Values[i][j]
}

// MarshalJSON 将 NaN（样本不足或零方差）输出为 null。
func (m Matrix) MarshalJSON() ([]byte, error) {
	values := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = make([]*float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			v := v
			values[i][j] = &v
		}
	}
	return json.Marshal(struct {
		IDs    []string     `json:"ids"`
		Values [][]*float64 `json:"values"`
	}{m.IDs, values})
}

func (m Matrix) index(id string) int {
	for i, v := range m.IDs {
		if v == id {
			return i
		}
	}
	return -1
}

// Partner 是与成员高度相关的另一个候选。
type Partner struct {
	ID          string  `json:"id"`
	Correlation float64 `json:"correlation"`
}

// Member 是簇中的一个候选。
type Member struct {
	ID             string         `json:"id"`
	Sharpe         float64        `json:"sharpe"`
	Recommendation Recommendation `json:"recommendation"`
	Partners       []Partner      `json:"partners"`
}

// Cluster 是一个连通分量，成员按 Sharpe 降序排列。
type Cluster struct {
	Label   string   `json:"label"`
	Members []Member `json:"members"`
}

// Recommend 将 |corr| >= threshold 的候选对合并（NaN 不合并），每个簇中 Sharpe 最高者推荐 SUBMIT，
// 其余为 SKIP。簇按最佳 Sharpe 降序标记为 C1、C2 ...。
func Recommend(m Matrix, sharpe map[string]float64, threshold float64) []Cluster {
	n := len(m.IDs)
	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if linked(m.Values[i][j], threshold) {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	clusters := make([]Cluster, 0, len(groups))
	for _, idx := range groups {
		members := make([]Member, 0, len(idx))
		for _, i := range idx {
			members = append(members, Member{
				ID:       m.IDs[i],
				Sharpe:   sharpe[m.IDs[i]],
				Partners: partners(m, i, idx, threshold),
			})
		}
		sort.Slice(members, func(a, b int) bool {
			return bySharpe(members[a].ID, members[a].Sharpe, members[b].ID, members[b].Sharpe)
		})
		for k := range members {
			members[k].Recommendation = Skip
		}
		members[0].Recommendation = Submit
		clusters = append(clusters, Cluster{Members: members})
	}

	sort.Slice(clusters, func(a, b int) bool {
		ma, mb := clusters[a].Members[0], clusters[b].Members[0]
		return bySharpe(ma.ID, ma.Sharpe, mb.ID, mb.Sharpe)
	})
	for k := range clusters {
		clusters[k].Label = fmt.Sprintf("C%d", k+1)
	}
	return clusters
}

func linked(corr, threshold float64) bool {
	return !math.IsNaN(corr) && math.Abs(corr) >= threshold
}

func bySharpe(idA string, a float64, idB string, b float64) bool {
	if a != b {
		return a > b
	}
	return idA < idB
}

// partners 列出同簇内与 i 直接相关的成员，按 |corr| 降序。
func partners(m Matrix, i int, group []int, threshold float64) []Partner {
	var out []Partner
	for _, j := range group {
		if j == i {
			continue
		}
		c := m.Values[i][j]
		if !linked(c, threshold) {
			continue
		}
		out = append(out, Partner{ID: m.IDs[j], Correlation: math.Round(c*100) / 100})
	}
	sort.Slice(out, func(a, b int) bool {
		ca, cb := math.Abs(out[a].Correlation), math.Abs(out[b].Correlation)
		if ca != cb {
			return ca > cb
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// unionFind 使用路径压缩与按大小合并。
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}
