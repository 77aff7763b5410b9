package routes

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/cache"
	"github.com/jordane95/wqb-hub/internal/catalog"
)

// Diagnostics 汇集诊断接口需要读取的组件，任一字段为空时跳过对应路由。
type Diagnostics struct {
	Store      cache.Store
	Categories *catalog.Registry
	Baseline   *baseline.Cache
}

// RegisterDiagnosticsRoutes 暴露 /-/ 前缀的诊断接口与 /metrics。
func RegisterDiagnosticsRoutes(app *fiber.App, d Diagnostics) {
	if app == nil {
		return
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if d.Store != nil {
		registerCacheRoutes(app, d.Store, d.Baseline)
	}
	if d.Categories != nil {
		registerCategoryRoutes(app, d.Categories)
	}
	if d.Baseline != nil {
		app.Get("/-/baseline", func(c fiber.Ctx) error {
			return c.JSON(encodeBaseline(d.Baseline))
		})
	}
}

func registerCacheRoutes(app *fiber.App, store cache.Store, roster *baseline.Cache) {
	app.Get("/-/cache", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"root":    store.Root(),
			"entries": encodeEntries(store),
		})
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		if err := store.InvalidateAll(); err != nil {
			return err
		}
		// entities/ 与缓存共用根目录，清空后同步清空内存名册，下次同步全量重建
		if roster != nil {
			if err := resetBaseline(roster); err != nil {
				return err
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Delete("/-/cache/:key", func(c fiber.Ctx) error {
		key, err := url.PathUnescape(c.Params("key"))
		if err != nil || strings.TrimSpace(key) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cache_key_required"})
		}
		if _, ok := store.Entries()[key]; !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cache_key_not_found"})
		}
		if err := store.Invalidate(key); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "ok", "key": key})
	})
}

func registerCategoryRoutes(app *fiber.App, registry *catalog.Registry) {
	app.Get("/-/categories", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"categories": registry.List()})
	})

	app.Get("/-/categories/:name", func(c fiber.Ctx) error {
		category, ok := registry.Resolve(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "category_not_found"})
		}
		return c.JSON(category)
	})
}

func resetBaseline(roster *baseline.Cache) error {
	for _, id := range roster.IDs() {
		if err := roster.Remove(id); err != nil {
			return err
		}
	}
	return roster.SaveIndex()
}

type cacheEntryPayload struct {
	Key         string          `json:"key"`
	Path        string          `json:"path"`
	CachedAt    cache.Timestamp `json:"cached_at"`
	TTLDays     int             `json:"ttl_days"`
	RecordCount *int            `json:"record_count,omitempty"`
	Valid       bool            `json:"valid"`
}

func encodeEntries(store cache.Store) []cacheEntryPayload {
	entries := store.Entries()
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]cacheEntryPayload, 0, len(keys))
	for _, key := range keys {
		entry := entries[key]
		result = append(result, cacheEntryPayload{
			Key:         key,
			Path:        entry.Path,
			CachedAt:    entry.CachedAt,
			TTLDays:     entry.TTLDays,
			RecordCount: entry.RecordCount,
			Valid:       store.IsValid(key),
		})
	}
	return result
}

type baselinePayload struct {
	Loaded     bool                            `json:"loaded"`
	Entities   int                             `json:"entities"`
	UpdatedAt  *time.Time                      `json:"updated_at,omitempty"`
	Partitions map[baseline.Tag]map[string]int `json:"partitions"`
}

func encodeBaseline(c *baseline.Cache) baselinePayload {
	payload := baselinePayload{
		Loaded:     c.Loaded(),
		Entities:   c.Len(),
		Partitions: make(map[baseline.Tag]map[string]int, 2),
	}
	if updated, ok := c.UpdatedAt(); ok {
		payload.UpdatedAt = &updated
	}
	for _, tag := range []baseline.Tag{baseline.TagSelf, baseline.TagPowerPool} {
		counts := make(map[string]int)
		for region, ids := range c.ByRegion(tag) {
			counts[region] = len(ids)
		}
		payload.Partitions[tag] = counts
	}
	return payload
}
