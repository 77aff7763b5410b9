package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/cache"
	"github.com/jordane95/wqb-hub/internal/catalog"
	"github.com/jordane95/wqb-hub/internal/checker"
	"github.com/jordane95/wqb-hub/internal/config"
	"github.com/jordane95/wqb-hub/internal/platform"
)

// services 持有进程内共享的组件实例。
type services struct {
	store   cache.Store
	roster  *baseline.Cache
	checker *checker.Checker
	catalog *catalog.Service
}

func buildServices(cfg *config.Config, logger *logrus.Logger) (*services, error) {
	g := cfg.Global

	store, err := cache.NewStore(g.CacheRoot, cache.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	roster, err := baseline.Open(g.CacheRoot, baseline.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("打开基线缓存失败: %w", err)
	}

	client, err := platform.New(platform.Options{
		BaseURL:           g.PlatformURL,
		Email:             g.Email,
		Password:          g.Password,
		MaxRetries:        g.MaxRetries,
		InitialBackoff:    g.InitialBackoff.DurationValue(),
		Timeout:           g.UpstreamTimeout.DurationValue(),
		RequestsPerSecond: g.RequestsPerSecond,
		Burst:             g.RequestBurst,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化平台客户端失败: %w", err)
	}

	registry, err := catalog.NewRegistry(cfg.CategoryTTLOverrides())
	if err != nil {
		return nil, fmt.Errorf("构建缓存类别失败: %w", err)
	}

	return &services{
		store:  store,
		roster: roster,
		checker: checker.New(client, roster, checker.Options{
			RosterStage:      g.RosterStage,
			PageSize:         g.RosterPageSize,
			MinOverlap:       g.MinOverlap,
			FetchConcurrency: g.FetchConcurrency,
			Logger:           logger,
		}),
		catalog: catalog.NewService(store, registry, client, logger),
	}, nil
}
