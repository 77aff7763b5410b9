package checker

import (
	"context"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/correlation"
	"github.com/jordane95/wqb-hub/internal/platform"
	"github.com/jordane95/wqb-hub/internal/returns"
)

// rosterOrder 让名册按提交时间倒序分页，与平台默认排序无关。
const rosterOrder = "-dateSubmitted"

// Platform 是 checker 依赖的远端能力，*platform.Client 实现了该接口。
type Platform interface {
	ListEntities(ctx context.Context, opts platform.ListOptions) (platform.EntityPage, error)
	EntityDetails(ctx context.Context, id string) (platform.Entity, error)
	DailyPnL(ctx context.Context, id string) (returns.Series, error)
	Correlation(ctx context.Context, id string, t correlation.Type) (correlation.Result, error)
}

// rosterSource 把平台客户端适配为基线同步器的数据源。
type rosterSource struct {
	platform Platform
	stage    string
}

func (s rosterSource) ListEntities(ctx context.Context, offset, limit int) (baseline.Page, error) {
	page, err := s.platform.ListEntities(ctx, platform.ListOptions{
		Stage:  s.stage,
		Limit:  limit,
		Offset: offset,
		Order:  rosterOrder,
	})
	if err != nil {
		return baseline.Page{}, err
	}
	items := make([]baseline.Summary, 0, len(page.Results))
	for _, e := range page.Results {
		items = append(items, baseline.Summary{ID: e.ID, Entry: entryFromEntity(e)})
	}
	return baseline.Page{Total: page.Count, Items: items}, nil
}

func (s rosterSource) DailyPnL(ctx context.Context, id string) (returns.Series, error) {
	return s.platform.DailyPnL(ctx, id)
}

func entryFromEntity(e platform.Entity) baseline.Entry {
	return baseline.Entry{
		Name:           e.Name,
		InstrumentType: e.Settings.InstrumentType,
		Region:         e.Settings.Region,
		Universe:       e.Settings.Universe,
		IsPowerPool:    e.IsPowerPool(),
		Sharpe:         e.IS.Sharpe,
		Returns:        e.IS.Returns,
		Turnover:       e.IS.Turnover,
		Fitness:        e.IS.Fitness,
		Margin:         e.IS.Margin,
	}
}
