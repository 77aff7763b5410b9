package catalog

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/platform"
)

// WarmupReport 汇总一次预热。
type WarmupReport struct {
	Combinations int `json:"combinations"`
	Datasets     int `json:"datasets"`
	Failed       int `json:"failed"`
}

// Warmup 先拉取模拟设置，再逐个 (instrument, region, universe, delay) 组合预取数据集。
// 单个组合失败只计数并继续；ctx 取消时返回已完成部分的报告与错误。
func (s *Service) Warmup(ctx context.Context, force bool) (WarmupReport, error) {
	var report WarmupReport
	settings, err := s.PlatformSettings(ctx, force)
	if err != nil {
		return report, fmt.Errorf("fetch platform settings: %w", err)
	}
	report.Combinations = settings.TotalCombinations

	for _, combo := range settings.InstrumentOptions {
		for _, universe := range combo.Universe {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			q := platform.DatasetQuery{
				InstrumentType: combo.InstrumentType,
				Region:         combo.Region,
				Universe:       universe,
				Delay:          combo.Delay,
			}
			fields := logrus.Fields{"action": "catalog_warmup", "cache_key": DatasetsKey(q)}
			page, err := s.Datasets(ctx, q, force)
			if err != nil {
				report.Failed++
				s.logger.WithFields(fields).WithError(err).Warn("warmup datasets failed")
				continue
			}
			report.Datasets += len(page.Results)
			s.logger.WithFields(fields).WithField("count", len(page.Results)).Debug("warmup datasets")
		}
	}
	s.logger.WithFields(logrus.Fields{
		"action":       "catalog_warmup",
		"combinations": report.Combinations,
		"datasets":     report.Datasets,
		"failed":       report.Failed,
	}).Info("catalog warmup finished")
	return report, nil
}
