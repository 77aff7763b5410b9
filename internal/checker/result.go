package checker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jordane95/wqb-hub/internal/cluster"
	"github.com/jordane95/wqb-hub/internal/correlation"
)

const topCorrelations = 3

// Correlated 是一个与候选高度相关的实体。
type Correlated struct {
	ID          string  `json:"id"`
	Correlation float64 `json:"correlation"`
}

// CheckResult 是单个相关性类型的判定结果；MaxCorrelation 为 nil 表示没有数据，自动通过。
type CheckResult struct {
	MaxCorrelation  *float64     `json:"max_correlation"`
	PassesCheck     bool         `json:"passes_check"`
	Count           *int         `json:"count,omitempty"`
	TopCorrelations []Correlated `json:"top_correlations,omitempty"`
}

func (r CheckResult) String() string {
	status := "FAIL"
	if r.PassesCheck {
		status = "PASS"
	}
	var parts []string
	if r.MaxCorrelation == nil {
		parts = append(parts, "no data, "+status)
	} else {
		parts = append(parts, fmt.Sprintf("max=%s, %s", formatFloat(*r.MaxCorrelation), status))
	}
	if r.Count != nil {
		parts = append(parts, fmt.Sprintf("%d correlated", *r.Count))
	}
	if len(r.TopCorrelations) > 0 {
		top := make([]string, 0, len(r.TopCorrelations))
		for _, c := range r.TopCorrelations {
			top = append(top, fmt.Sprintf("%s(%s)", c.ID, formatFloat(c.Correlation)))
		}
		parts = append(parts, "top: "+strings.Join(top, ", "))
	}
	return strings.Join(parts, " | ")
}

// CheckResponse 汇总一次检查中所有类型的结果。
type CheckResponse struct {
	EntityID   string                                  `json:"entity_id"`
	Threshold  float64                                 `json:"threshold"`
	CheckTypes []correlation.Type                      `json:"check_types"`
	Checks     map[correlation.Type]CheckResult        `json:"checks"`
	AllPassed  bool                                    `json:"all_passed"`
	// Results 保留每个类型的原始相关性结果，只在本地模式下填充。
	Results    map[correlation.Type]correlation.Result `json:"-"`
}

func (r CheckResponse) String() string {
	status := "FAIL"
	if r.AllPassed {
		status = "PASS"
	}
	lines := []string{fmt.Sprintf("Correlation check for %s (threshold=%s): %s", r.EntityID, formatFloat(r.Threshold), status)}
	for _, t := range r.CheckTypes {
		result, ok := r.Checks[t]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", t, result))
	}
	return strings.Join(lines, "\n")
}

// BatchResponse 是批量检查的结果。
type BatchResponse struct {
	// Intra 是候选之间的相关矩阵。
	Intra    cluster.Matrix           `json:"intra_correlation"`
	// Inter 是每个候选与基线的检查结果。
	Inter    map[string]CheckResponse `json:"inter_correlation"`
	Clusters []cluster.Cluster        `json:"clusters"`
}

// classify 按 max < threshold 判定；selfCorrelation 形状的结果附带数量与前三个相关实体。
func classify(res correlation.Result, threshold float64) CheckResult {
	if res.NoData() {
		return CheckResult{PassesCheck: true}
	}
	out := CheckResult{
		MaxCorrelation: res.Max,
		PassesCheck:    *res.Max < threshold,
	}
	if res.Kind() == correlation.SchemaSelf && len(res.Self) > 0 {
		count := len(res.Self)
		out.Count = &count
		for _, rec := range res.Self {
			if len(out.TopCorrelations) == topCorrelations {
				break
			}
			out.TopCorrelations = append(out.TopCorrelations, Correlated{ID: rec.ID, Correlation: rec.Correlation})
		}
	}
	return out
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEN") {
		s += ".0"
	}
	return s
}
