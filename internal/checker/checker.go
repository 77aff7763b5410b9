package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/cluster"
	"github.com/jordane95/wqb-hub/internal/correlation"
	"github.com/jordane95/wqb-hub/internal/logging"
	"github.com/jordane95/wqb-hub/internal/metrics"
	"github.com/jordane95/wqb-hub/internal/platform"
	"github.com/jordane95/wqb-hub/internal/returns"
)

// 检查模式，同时用作指标标签。
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeBatch  = "batch"
)

const defaultFetchConcurrency = 3

// ErrNoCandidates 表示批量检查没有给出任何候选。
var ErrNoCandidates = errors.New("at least one entity id is required")

// Options 控制 checker 的行为，零值字段使用默认值。
type Options struct {
	RosterStage      string
	PageSize         int
	MinOverlap       int
	FetchConcurrency int
	Logger           logrus.FieldLogger
}

// Checker 组合基线同步、本地相关性引擎与远端接口。
type Checker struct {
	platform    Platform
	cache       *baseline.Cache
	sync        *baseline.Synchronizer
	engine      *correlation.Engine
	concurrency int
	logger      logrus.FieldLogger
}

// New 基于已打开的基线缓存构建 checker。
func New(p Platform, cache *baseline.Cache, opts Options) *Checker {
	logger := opts.Logger
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}
	stage := opts.RosterStage
	if stage == "" {
		stage = "OS"
	}
	concurrency := opts.FetchConcurrency
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	source := rosterSource{platform: p, stage: stage}
	return &Checker{
		platform:    p,
		cache:       cache,
		sync:        baseline.NewSynchronizer(cache, source, opts.PageSize, logger),
		engine:      correlation.NewEngine(cache, opts.MinOverlap, logger),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Baseline 返回 checker 使用的基线缓存。
func (c *Checker) Baseline() *baseline.Cache {
	return c.cache
}

// Sync 将基线与平台名册对齐。
func (c *Checker) Sync(ctx context.Context) (baseline.SyncReport, error) {
	return c.sync.Sync(ctx)
}

// candidate 是一个待检查实体的收益序列与元数据。
type candidate struct {
	id     string
	series returns.Series
	entity platform.Entity
}

// Check 在本地基线上检查候选。PROD 在任何网络请求之前被拒绝；
// 名册拉取失败时返回错误，单个基线实体失败只会让基线变小。
func (c *Checker) Check(ctx context.Context, id string, types []correlation.Type, threshold float64, years int) (CheckResponse, error) {
	types = localDefaults(types)
	if err := correlation.RejectNonLocal(types); err != nil {
		return CheckResponse{}, err
	}
	started := time.Now()
	defer metrics.ObserveCheck(ModeLocal, started)
	c.logger.WithFields(logging.CheckFields(id, ModeLocal, threshold)).Info("correlation check")

	if _, err := c.sync.Sync(ctx); err != nil {
		return CheckResponse{}, fmt.Errorf("sync baseline: %w", err)
	}
	cand, err := c.fetchCandidate(ctx, id)
	if err != nil {
		return CheckResponse{}, err
	}
	return c.evaluate(cand, types, threshold, years)
}

// BatchCheck 对每个候选做与 Check 相同的基线检查，并在候选之间计算相关矩阵与分簇推荐。
func (c *Checker) BatchCheck(ctx context.Context, ids []string, types []correlation.Type, threshold float64, years int) (BatchResponse, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return BatchResponse{}, ErrNoCandidates
	}
	types = localDefaults(types)
	if err := correlation.RejectNonLocal(types); err != nil {
		return BatchResponse{}, err
	}
	started := time.Now()
	defer metrics.ObserveCheck(ModeBatch, started)
	c.logger.WithFields(logging.CheckFields(strings.Join(ids, ","), ModeBatch, threshold)).Info("batch correlation check")

	if _, err := c.sync.Sync(ctx); err != nil {
		return BatchResponse{}, fmt.Errorf("sync baseline: %w", err)
	}

	candidates := make([]candidate, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			cand, err := c.fetchCandidate(gctx, id)
			if err != nil {
				return err
			}
			candidates[i] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResponse{}, err
	}

	out := BatchResponse{Inter: make(map[string]CheckResponse, len(candidates))}
	series := make([]returns.Series, 0, len(candidates))
	sharpe := make(map[string]float64, len(candidates))
	for _, cand := range candidates {
		resp, err := c.evaluate(cand, types, threshold, years)
		if err != nil {
			return BatchResponse{}, err
		}
		out.Inter[cand.id] = resp
		series = append(series, cand.series)
		sharpe[cand.id] = entryFromEntity(cand.entity).SharpeValue()
	}

	out.Intra = intraMatrix(series, years)
	out.Clusters = cluster.Recommend(out.Intra, sharpe, threshold)
	return out, nil
}

// CheckRemote 使用平台计算的相关性（支持 PROD），判定规则与本地检查一致。
func (c *Checker) CheckRemote(ctx context.Context, id string, types []correlation.Type, threshold float64) (CheckResponse, error) {
	if len(types) == 0 {
		types = []correlation.Type{correlation.TypeProd, correlation.TypeSelf}
	}
	started := time.Now()
	defer metrics.ObserveCheck(ModeRemote, started)
	c.logger.WithFields(logging.CheckFields(id, ModeRemote, threshold)).Info("correlation check")

	resp := newResponse(id, types, threshold)
	for _, t := range types {
		res, err := c.platform.Correlation(ctx, id, t)
		if err != nil {
			return CheckResponse{}, fmt.Errorf("fetch %s correlation for %s: %w", t, id, err)
		}
		resp.add(t, classify(res, threshold))
	}
	return resp, nil
}

// fetchCandidate 并发拉取候选的收益序列与元数据，两者都完成后才返回。
func (c *Checker) fetchCandidate(ctx context.Context, id string) (candidate, error) {
	cand := candidate{id: id}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, err := c.platform.DailyPnL(gctx, id)
		if err != nil {
			return fmt.Errorf("fetch daily-pnl for %s: %w", id, err)
		}
		cand.series = series
		return nil
	})
	g.Go(func() error {
		entity, err := c.platform.EntityDetails(gctx, id)
		if err != nil {
			return fmt.Errorf("fetch details for %s: %w", id, err)
		}
		cand.entity = entity
		return nil
	})
	if err := g.Wait(); err != nil {
		return candidate{}, err
	}
	cand.series.ID = id
	return cand, nil
}

func (c *Checker) evaluate(cand candidate, types []correlation.Type, threshold float64, years int) (CheckResponse, error) {
	resp := newResponse(cand.id, types, threshold)
	resp.Results = make(map[correlation.Type]correlation.Result, len(types))
	for _, t := range types {
		res, err := c.engine.Compute(cand.id, cand.series, cand.entity.Settings.Region, t, years)
		if err != nil {
			return CheckResponse{}, err
		}
		resp.Results[t] = res
		resp.add(t, classify(res, threshold))
	}
	return resp, nil
}

func newResponse(id string, types []correlation.Type, threshold float64) CheckResponse {
	return CheckResponse{
		EntityID:   id,
		Threshold:  threshold,
		CheckTypes: types,
		Checks:     make(map[correlation.Type]CheckResult, len(types)),
		AllPassed:  true,
	}
}

func (r *CheckResponse) add(t correlation.Type, result CheckResult) {
	r.Checks[t] = result
	if !result.PassesCheck {
		r.AllPassed = false
	}
}

// intraMatrix 只在候选之间计算相关矩阵，窗口起点取自所有候选中最晚的观测日。
func intraMatrix(series []returns.Series, years int) cluster.Matrix {
	if years <= 0 {
		years = correlation.DefaultYears
	}
	frame := returns.Join(series...)
	if last, ok := frame.LastDate(); ok {
		frame = frame.Trim(returns.Cutoff(last, years))
	}
	return cluster.Matrix{IDs: frame.IDs(), Values: frame.Corr()}
}

func localDefaults(types []correlation.Type) []correlation.Type {
	if len(types) == 0 {
		return []correlation.Type{correlation.TypeSelf}
	}
	return types
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
