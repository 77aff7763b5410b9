package correlation

import (
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/returns"
)

const (
	// DefaultMinOverlap 是计算相关性所需的最少共同交易日数。
	DefaultMinOverlap = 30
	// DefaultYears 是默认回看年数。
	DefaultYears = 4

	correlationPlaces = 4
)

// Baseline 是引擎读取的基线视图，*baseline.Cache 实现了该接口。
type Baseline interface {
	Partition(tag baseline.Tag, region string) []string
	AllSeries() returns.Frame
	Entry(id string) (baseline.Entry, bool)
}

// Engine 在本地基线上计算 self / power-pool 相关性。
type Engine struct {
	baseline   Baseline
	minOverlap int
	logger     logrus.FieldLogger
}

// NewEngine 创建引擎；minOverlap <= 0 时使用 DefaultMinOverlap。
func NewEngine(b Baseline, minOverlap int, logger logrus.FieldLogger) *Engine {
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}
	return &Engine{baseline: b, minOverlap: minOverlap, logger: logger}
}

// Compute 计算候选序列与同分区、同 region 基线实体的 Pearson 相关性。
// 没有基线、候选为空、region 缺失或共同日期不足时返回空结果（Max 为 nil），不视为错误。
func (e *Engine) Compute(candidateID string, candidate returns.Series, region string, t Type, years int) (Result, error) {
	tag, ok := t.Tag()
	if !ok {
		return Result{}, ErrUnsupportedType
	}
	if years <= 0 {
		years = DefaultYears
	}

	fields := logrus.Fields{"action": "correlation_compute", "entity_id": candidateID, "type": string(t), "region": region}
	if candidate.Empty() || region == "" {
		e.logger.WithFields(fields).Debug("no candidate data or region")
		return Result{}, nil
	}

	all := e.baseline.AllSeries()
	var ids []string
	for _, id := range e.baseline.Partition(tag, region) {
		if all.Has(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		e.logger.WithFields(fields).Debug("no baseline entities")
		return Result{}, nil
	}

	last, _ := candidate.Last()
	cutoff := returns.Cutoff(last, years)
	cand := candidate.Trim(cutoff)
	base := all.Select(ids).Trim(cutoff)

	overlap := base.Overlap(cand)
	if overlap < e.minOverlap {
		e.logger.WithFields(fields).WithField("overlap", overlap).Debug("insufficient overlapping dates")
		return Result{}, nil
	}

	type scored struct {
		id   string
		corr float64
	}
	var ranked []scored
	for id, c := range base.CorrWith(cand) {
		if returns.Finite(c) {
			ranked = append(ranked, scored{id: id, corr: c})
		}
	}
	if len(ranked) == 0 {
		return Result{}, nil
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].corr != ranked[j].corr {
			return ranked[i].corr > ranked[j].corr
		}
		return ranked[i].id < ranked[j].id
	})

	records := make([]SelfRecord, 0, len(ranked))
	for _, r := range ranked {
		entry, _ := e.baseline.Entry(r.id)
		records = append(records, SelfRecord{
			ID:             r.id,
			Name:           entry.Name,
			InstrumentType: entry.InstrumentType,
			Region:         entry.Region,
			Universe:       entry.Universe,
			Correlation:    returns.Round(r.corr, correlationPlaces),
			Sharpe:         entry.Sharpe,
			Returns:        entry.Returns,
			Turnover:       entry.Turnover,
			Fitness:        entry.Fitness,
			Margin:         entry.Margin,
		})
	}
	maxCorr := returns.Round(ranked[0].corr, correlationPlaces)
	minCorr := returns.Round(ranked[len(ranked)-1].corr, correlationPlaces)

	e.logger.WithFields(fields).WithFields(logrus.Fields{"overlap": overlap, "records": len(records), "max": maxCorr}).Debug("correlation computed")
	return Result{Schema: SelfSchema(), Max: &maxCorr, Min: &minCorr, Self: records}, nil
}
