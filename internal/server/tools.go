package server

import (
	"context"

	"github.com/creasty/defaults"
	"github.com/gofiber/fiber/v3"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/checker"
	"github.com/jordane95/wqb-hub/internal/correlation"
	"github.com/jordane95/wqb-hub/internal/platform"
)

// Checker 是工具路由依赖的相关性检查能力，由 *checker.Checker 实现。
type Checker interface {
	Check(ctx context.Context, id string, types []correlation.Type, threshold float64, years int) (checker.CheckResponse, error)
	CheckRemote(ctx context.Context, id string, types []correlation.Type, threshold float64) (checker.CheckResponse, error)
	BatchCheck(ctx context.Context, ids []string, types []correlation.Type, threshold float64, years int) (checker.BatchResponse, error)
	Sync(ctx context.Context) (baseline.SyncReport, error)
}

// Catalog 是目录类数据的读取能力，由 *catalog.Service 实现。
type Catalog interface {
	Operators(ctx context.Context, force bool) ([]map[string]any, error)
	Datasets(ctx context.Context, q platform.DatasetQuery, force bool) (platform.DatasetPage, error)
	PlatformSettings(ctx context.Context, force bool) (platform.SettingOptions, error)
}

const (
	modeLocal  = "local"
	modeRemote = "remote"
)

type checkRequest struct {
	EntityID   string   `json:"entity_id" validate:"required"`
	CheckTypes []string `json:"check_types" default:"[\"self\"]"`
	Threshold  float64  `json:"threshold" default:"0.7" validate:"gt=0,lte=1"`
	Years      int      `json:"years" default:"4" validate:"gt=0,lte=20"`
	Mode       string   `json:"mode" default:"local" validate:"oneof=local remote"`
}

type batchRequest struct {
	EntityIDs  []string `json:"entity_ids" validate:"required,min=2,dive,required"`
	CheckTypes []string `json:"check_types" default:"[\"self\"]"`
	Threshold  float64  `json:"threshold" default:"0.7" validate:"gt=0,lte=1"`
	Years      int      `json:"years" default:"4" validate:"gt=0,lte=20"`
}

type datasetsQuery struct {
	InstrumentType string `query:"instrument_type" default:"EQUITY" validate:"required"`
	Region         string `query:"region" default:"USA" validate:"required"`
	Universe       string `query:"universe" default:"TOP3000" validate:"required"`
	Delay          int    `query:"delay" default:"1" validate:"oneof=0 1"`
	Search         string `query:"search"`
	Force          bool   `query:"force"`
}

type forceQuery struct {
	Force bool `query:"force"`
}

func registerToolRoutes(app *fiber.App, opts AppOptions) {
	h := &toolHandlers{
		checker:   opts.Checker,
		catalog:   opts.Catalog,
		threshold: opts.Threshold,
		years:     opts.Years,
	}

	v1 := app.Group("/v1")
	v1.Post("/correlation/check", h.check)
	v1.Post("/correlation/batch", h.batch)
	v1.Post("/baseline/sync", h.sync)
	v1.Get("/catalog/operators", h.operators)
	v1.Get("/catalog/datasets", h.datasets)
	v1.Get("/catalog/platform-settings", h.platformSettings)
}

type toolHandlers struct {
	checker   Checker
	catalog   Catalog
	threshold float64
	years     int
}

func (h *toolHandlers) check(c fiber.Ctx) error {
	var req checkRequest
	if err := bindJSON(c, &req, func() { h.applyDefaults(&req.Threshold, &req.Years) }); err != nil {
		return err
	}
	types, err := parseTypes(req.CheckTypes)
	if err != nil {
		return err
	}

	var resp checker.CheckResponse
	if req.Mode == modeRemote {
		resp, err = h.checker.CheckRemote(requestContext(c), req.EntityID, types, req.Threshold)
	} else {
		resp, err = h.checker.Check(requestContext(c), req.EntityID, types, req.Threshold, req.Years)
	}
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *toolHandlers) batch(c fiber.Ctx) error {
	var req batchRequest
	if err := bindJSON(c, &req, func() { h.applyDefaults(&req.Threshold, &req.Years) }); err != nil {
		return err
	}
	types, err := parseTypes(req.CheckTypes)
	if err != nil {
		return err
	}
	resp, err := h.checker.BatchCheck(requestContext(c), req.EntityIDs, types, req.Threshold, req.Years)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *toolHandlers) sync(c fiber.Ctx) error {
	report, err := h.checker.Sync(requestContext(c))
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (h *toolHandlers) operators(c fiber.Ctx) error {
	var q forceQuery
	if err := c.Bind().Query(&q); err != nil {
		return badRequest(err)
	}
	ops, err := h.catalog.Operators(requestContext(c), q.Force)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": len(ops), "results": ops})
}

func (h *toolHandlers) datasets(c fiber.Ctx) error {
	var q datasetsQuery
	if err := defaults.Set(&q); err != nil {
		return err
	}
	if err := c.Bind().Query(&q); err != nil {
		return badRequest(err)
	}
	page, err := h.catalog.Datasets(requestContext(c), platform.DatasetQuery{
		InstrumentType: q.InstrumentType,
		Region:         q.Region,
		Universe:       q.Universe,
		Delay:          q.Delay,
		Search:         q.Search,
	}, q.Force)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *toolHandlers) platformSettings(c fiber.Ctx) error {
	var q forceQuery
	if err := c.Bind().Query(&q); err != nil {
		return badRequest(err)
	}
	settings, err := h.catalog.PlatformSettings(requestContext(c), q.Force)
	if err != nil {
		return err
	}
	return c.JSON(settings)
}

func (h *toolHandlers) applyDefaults(threshold *float64, years *int) {
	if h.threshold > 0 {
		*threshold = h.threshold
	}
	if h.years > 0 {
		*years = h.years
	}
}

// bindJSON 先填充 default 标签与配置默认值，再解码请求体，缺省字段保留默认值。
func bindJSON(c fiber.Ctx, out any, prepare func()) error {
	if err := defaults.Set(out); err != nil {
		return err
	}
	prepare()
	if err := c.Bind().JSON(out); err != nil {
		return badRequest(err)
	}
	return nil
}

func parseTypes(raw []string) ([]correlation.Type, error) {
	types, err := correlation.ParseTypes(raw)
	if err != nil {
		return nil, badRequest(err)
	}
	return types, nil
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
