package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jordane95/wqb-hub/internal/correlation"
	"github.com/jordane95/wqb-hub/internal/returns"
)

// DailyPnLRecordSet 是日收益 record set 的名字。
const DailyPnLRecordSet = "daily-pnl"

// ListEntities 查询当前用户的实体名册（/users/self/alphas）。
func (c *Client) ListEntities(ctx context.Context, opts ListOptions) (EntityPage, error) {
	query := url.Values{}
	if opts.Stage != "" {
		query.Set("stage", opts.Stage)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	query.Set("offset", strconv.Itoa(opts.Offset))
	if opts.Order != "" {
		query.Set("order", opts.Order)
	}

	var page EntityPage
	if err := c.getJSON(ctx, call{name: "roster", path: "/users/self/alphas", query: query}, &page); err != nil {
		return EntityPage{}, err
	}
	return page, nil
}

// EntityDetails 查询单个实体（/alphas/{id}）。
func (c *Client) EntityDetails(ctx context.Context, id string) (Entity, error) {
	var entity Entity
	if err := c.getJSON(ctx, call{name: "entity", path: "/alphas/" + url.PathEscape(id)}, &entity); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

// RecordSet 拉取实体的命名 record set，数据未就绪时按 Retry-After 轮询。
func (c *Client) RecordSet(ctx context.Context, id, name string) (RecordSet, error) {
	var rs RecordSet
	path := "/alphas/" + url.PathEscape(id) + "/recordsets/" + url.PathEscape(name)
	if err := c.poll(ctx, call{name: "recordset", path: path}, &rs); err != nil {
		return RecordSet{}, err
	}
	return rs, nil
}

// DailyPnL 拉取 daily-pnl record set 并转换为收益序列；pnl 为空的行被跳过。
func (c *Client) DailyPnL(ctx context.Context, id string) (returns.Series, error) {
	rs, err := c.RecordSet(ctx, id, DailyPnLRecordSet)
	if err != nil {
		return returns.Series{}, err
	}
	points := make([]returns.Point, 0, len(rs.Records))
	for i, row := range rs.Rows() {
		rawDate, _ := row["date"].(string)
		if rawDate == "" {
			return returns.Series{}, fmt.Errorf("daily-pnl %s row %d: missing date", id, i)
		}
		date, err := returns.ParseDate(rawDate)
		if err != nil {
			return returns.Series{}, fmt.Errorf("daily-pnl %s row %d: %w", id, i, err)
		}
		value, ok, err := toFloat(row["pnl"])
		if err != nil {
			return returns.Series{}, fmt.Errorf("daily-pnl %s row %d: %w", id, i, err)
		}
		if !ok {
			continue
		}
		points = append(points, returns.Point{Date: date, Value: value})
	}
	return returns.NewSeries(id, points), nil
}

// Correlation 查询平台侧计算的相关性（/alphas/{id}/correlations/{type}）。
func (c *Client) Correlation(ctx context.Context, id string, t correlation.Type) (correlation.Result, error) {
	var res correlation.Result
	path := "/alphas/" + url.PathEscape(id) + "/correlations/" + string(t)
	if err := c.poll(ctx, call{name: "correlation", path: path}, &res); err != nil {
		return correlation.Result{}, err
	}
	return res, nil
}

func toFloat(v any) (float64, bool, error) {
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return val, true, nil
	case string:
		if val == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false, err
		}
		return f, true, nil
	}
	return 0, false, errors.New("unexpected pnl type")
}
