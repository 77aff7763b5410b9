package baseline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/logging"
	"github.com/jordane95/wqb-hub/internal/metrics"
	"github.com/jordane95/wqb-hub/internal/returns"
)

// DefaultPageSize 是名册分页大小。
const DefaultPageSize = 100

// Summary 是名册中一条实体摘要，已转换为缓存使用的元数据。
type Summary struct {
	ID    string
	Entry Entry
}

// Page 是一次名册分页结果；Total 为平台报告的总数。
type Page struct {
	Total int
	Items []Summary
}

// Source 是同步器依赖的远端接口。
type Source interface {
	ListEntities(ctx context.Context, offset, limit int) (Page, error)
	DailyPnL(ctx context.Context, id string) (returns.Series, error)
}

// SyncReport 汇总一次同步的结果。
type SyncReport struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
	// Initial 表示同步前磁盘上没有名册。
	Initial bool `json:"initial"`
}

// Changed 表示同步是否修改了名册。
func (r SyncReport) Changed() bool {
	return r.Added > 0 || r.Removed > 0
}

// Synchronizer 将本地名册与远端名册对齐。同一实例上的 Sync 调用串行执行。
type Synchronizer struct {
	cache    *Cache
	source   Source
	pageSize int
	logger   logrus.FieldLogger

	mu sync.Mutex
}

// NewSynchronizer 创建同步器；pageSize <= 0 时使用 DefaultPageSize。
func NewSynchronizer(c *Cache, source Source, pageSize int, logger logrus.FieldLogger) *Synchronizer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}
	return &Synchronizer{cache: c, source: source, pageSize: pageSize, logger: logger}
}

// Cache 返回同步器维护的基线缓存。
func (s *Synchronizer) Cache() *Cache {
	return s.cache
}

// Sync 拉取完整名册，删除已不在名册中的实体，逐个下载新增实体的序列。
// 单个实体失败只记录并跳过；名册本身拉取失败时返回错误。
func (s *Synchronizer) Sync(ctx context.Context) (SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := SyncReport{Initial: !s.cache.Loaded()}
	cached := s.cache.IDs()
	if report.Initial {
		s.logger.WithField("action", "baseline_sync").Info("no baseline cache found, downloading full roster")
	} else {
		s.logger.WithField("action", "baseline_sync").WithField("cached", len(cached)).Debug("loaded cached baseline")
	}

	current, err := s.fetchRoster(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch roster: %w", err)
	}
	currentIDs := make(map[string]struct{}, len(current))
	for _, item := range current {
		currentIDs[item.ID] = struct{}{}
	}
	cachedIDs := make(map[string]struct{}, len(cached))
	for _, id := range cached {
		cachedIDs[id] = struct{}{}
	}

	for _, id := range cached {
		if _, ok := currentIDs[id]; ok {
			continue
		}
		if err := s.cache.Remove(id); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"action": "baseline_sync", "entity_id": id}).Warn("remove stale entity failed")
		}
		report.Removed++
	}

	var ctxErr error
	for _, item := range current {
		if _, ok := cachedIDs[item.ID]; ok {
			continue
		}
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		if err := s.add(ctx, item); err != nil {
			report.Failed++
			s.logger.WithError(err).WithFields(logrus.Fields{"action": "baseline_sync", "entity_id": item.ID}).Warn("sync entity failed")
			continue
		}
		report.Added++
	}

	if report.Changed() {
		if err := s.cache.SaveIndex(); err != nil {
			return report, err
		}
	} else if report.Initial && len(current) == 0 {
		s.logger.WithField("action", "baseline_sync").Warn("remote roster is empty")
	}

	report.Total = s.cache.Len()
	metrics.SyncEntities(metrics.SyncAdded, report.Added)
	metrics.SyncEntities(metrics.SyncRemoved, report.Removed)
	metrics.SyncEntities(metrics.SyncFailed, report.Failed)
	s.logger.WithFields(logging.SyncFields(report.Added, report.Removed, report.Failed, report.Total)).Info("baseline sync finished")

	if ctxErr != nil {
		return report, fmt.Errorf("baseline sync interrupted: %w", ctxErr)
	}
	return report, nil
}

func (s *Synchronizer) add(ctx context.Context, item Summary) error {
	series, err := s.source.DailyPnL(ctx, item.ID)
	if err != nil {
		return err
	}
	if series.Empty() {
		return errors.New("empty daily-pnl series")
	}
	if err := s.cache.SaveSeries(item.ID, series); err != nil {
		return err
	}
	s.cache.Register(item.ID, item.Entry)
	return nil
}

// fetchRoster 分页直到收集数量达到报告总数，或遇到短页。
func (s *Synchronizer) fetchRoster(ctx context.Context) ([]Summary, error) {
	var (
		fetched []Summary
		total   = -1
		offset  int
	)
	for total < 0 || len(fetched) < total {
		page, err := s.source.ListEntities(ctx, offset, s.pageSize)
		if err != nil {
			return nil, err
		}
		if total < 0 {
			total = page.Total
		}
		fetched = append(fetched, page.Items...)
		if len(page.Items) < s.pageSize {
			break
		}
		offset += s.pageSize
	}
	if total >= 0 && len(fetched) > total {
		fetched = fetched[:total]
	}
	return fetched, nil
}
