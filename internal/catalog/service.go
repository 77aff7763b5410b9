package catalog

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/jordane95/wqb-hub/internal/cache"
	"github.com/jordane95/wqb-hub/internal/platform"
)

// Fetcher 是目录数据的远端来源，*platform.Client 实现了该接口。
type Fetcher interface {
	Operators(ctx context.Context) ([]map[string]any, error)
	Datasets(ctx context.Context, q platform.DatasetQuery) (platform.DatasetPage, error)
	SettingOptions(ctx context.Context) (platform.SettingOptions, error)
}

// Service 以 CacheStore 为后端提供目录数据；force 为 true 时跳过缓存读取但仍写回。
// 同一缓存键的并发回源经 singleflight 合并为一次平台请求。
type Service struct {
	store    cache.Store
	registry *Registry
	fetcher  Fetcher
	logger   logrus.FieldLogger
	flight   singleflight.Group
}

// NewService 组装目录服务。
func NewService(store cache.Store, registry *Registry, fetcher Fetcher, logger logrus.FieldLogger) *Service {
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}
	return &Service{store: store, registry: registry, fetcher: fetcher, logger: logger}
}

// Registry 返回分类注册表。
func (s *Service) Registry() *Registry {
	return s.registry
}

const operatorsKey = "operators"

// Operators 返回平台算子列表。
func (s *Service) Operators(ctx context.Context, force bool) ([]map[string]any, error) {
	if !force {
		if rows, ok := s.store.ReadTable(operatorsKey); ok {
			return fromRows(rows), nil
		}
	}
	v, err, _ := s.flight.Do(operatorsKey, func() (any, error) {
		ops, err := s.fetcher.Operators(ctx)
		if err != nil {
			return nil, err
		}
		s.writeTable(CategoryOperators, operatorsKey, "operators/operators.csv", toRows(ops))
		return ops, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]map[string]any), nil
}

// DatasetsKey 返回某个设置组合下数据集列表的缓存键。
func DatasetsKey(q platform.DatasetQuery) string {
	return fmt.Sprintf("data:%s:%s:%s:D%d:datasets", q.InstrumentType, q.Region, q.Universe, q.Delay)
}

func datasetsPath(q platform.DatasetQuery) string {
	return path.Join("data", q.InstrumentType, q.Region, q.Universe, fmt.Sprintf("D%d", q.Delay), "datasets.csv")
}

// Datasets 返回某个设置组合下的数据集；带 search 的查询结果不缓存。
// 缓存路径只保存结果行，Count 统一取返回的行数，命中与回源一致。
func (s *Service) Datasets(ctx context.Context, q platform.DatasetQuery, force bool) (platform.DatasetPage, error) {
	if q.Search != "" {
		return s.fetcher.Datasets(ctx, q)
	}
	key := DatasetsKey(q)
	if !force {
		if rows, ok := s.store.ReadTable(key); ok {
			return platform.DatasetPage{Count: len(rows), Results: fromRows(rows)}, nil
		}
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		page, err := s.fetcher.Datasets(ctx, q)
		if err != nil {
			return nil, err
		}
		s.writeTable(CategoryDatasets, key, datasetsPath(q), toRows(page.Results))
		page.Count = len(page.Results)
		return page, nil
	})
	if err != nil {
		return platform.DatasetPage{}, err
	}
	return v.(platform.DatasetPage), nil
}

const platformSettingsKey = "platform_settings"

// PlatformSettings 返回模拟设置的全部可选组合。
func (s *Service) PlatformSettings(ctx context.Context, force bool) (platform.SettingOptions, error) {
	if !force {
		if raw, ok := s.store.ReadDict(platformSettingsKey); ok {
			settings, err := decodeSettings(raw)
			if err == nil {
				return settings, nil
			}
			s.logger.WithError(err).WithField("cache_key", platformSettingsKey).Warn("cached platform settings unreadable, refetching")
		}
	}
	v, err, _ := s.flight.Do(platformSettingsKey, func() (any, error) {
		settings, err := s.fetcher.SettingOptions(ctx)
		if err != nil {
			return nil, err
		}
		ttl, err := s.registry.TTLDays(CategoryPlatformSettings)
		if err != nil {
			return nil, err
		}
		if err := s.store.WriteDict(platformSettingsKey, settings, ttl, "platform_settings/platform_settings.json"); err != nil {
			s.logger.WithError(err).WithField("cache_key", platformSettingsKey).Warn("cache write failed")
		}
		return settings, nil
	})
	if err != nil {
		return platform.SettingOptions{}, err
	}
	return v.(platform.SettingOptions), nil
}

// writeTable 写回表格缓存；写入失败只记录日志，不影响本次返回。
func (s *Service) writeTable(category, key, relPath string, rows []cache.Row) {
	ttl, err := s.registry.TTLDays(category)
	if err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("cache write skipped")
		return
	}
	if err := s.store.WriteTable(key, rows, ttl, relPath); err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("cache write failed")
	}
}

func decodeSettings(raw any) (platform.SettingOptions, error) {
	var out platform.SettingOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(raw); err != nil {
		return platform.SettingOptions{}, fmt.Errorf("decode platform settings: %w", err)
	}
	return out, nil
}

func toRows(items []map[string]any) []cache.Row {
	rows := make([]cache.Row, len(items))
	for i, item := range items {
		rows[i] = cache.Row(item)
	}
	return rows
}

func fromRows(rows []cache.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = map[string]any(row)
	}
	return out
}
