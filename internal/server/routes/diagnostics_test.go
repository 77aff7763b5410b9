package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/cache"
	"github.com/jordane95/wqb-hub/internal/catalog"
)

func TestCacheRoutesListAndInvalidate(t *testing.T) {
	app, store, _ := newDiagnosticsApp(t)

	if err := store.WriteTable("data:EQUITY:USA:TOP3000:D1:datasets", []cache.Row{{"id": "pv1"}}, 7, "data/EQUITY/USA/TOP3000/D1/datasets.csv"); err != nil {
		t.Fatalf("write table: %v", err)
	}
	if err := store.WriteDict("platform_settings", map[string]any{"total_combinations": 1}, 30, "platform_settings/platform_settings.json"); err != nil {
		t.Fatalf("write dict: %v", err)
	}

	var listing struct {
		Root    string `json:"root"`
		Entries []struct {
			Key         string `json:"key"`
			RecordCount *int   `json:"record_count"`
			Valid       bool   `json:"valid"`
		} `json:"entries"`
	}
	status := getJSON(t, app, "GET", "/-/cache", &listing)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if listing.Root != store.Root() || len(listing.Entries) != 2 {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	if listing.Entries[0].Key != "data:EQUITY:USA:TOP3000:D1:datasets" || listing.Entries[0].RecordCount == nil || *listing.Entries[0].RecordCount != 1 {
		t.Fatalf("entries should be sorted with record counts: %+v", listing.Entries)
	}
	if !listing.Entries[1].Valid {
		t.Fatalf("fresh entry should be valid")
	}

	status = getJSON(t, app, "DELETE", "/-/cache/data:EQUITY:USA:TOP3000:D1:datasets", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if store.IsValid("data:EQUITY:USA:TOP3000:D1:datasets") {
		t.Fatalf("entry should be invalidated")
	}

	status = getJSON(t, app, "DELETE", "/-/cache/missing", nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown key, got %d", status)
	}
}

func TestInvalidateAllResetsBaseline(t *testing.T) {
	app, store, roster := newDiagnosticsApp(t)

	roster.Register("A", baseline.Entry{Region: "USA"})
	if err := roster.SaveIndex(); err != nil {
		t.Fatalf("save roster: %v", err)
	}
	if err := store.WriteDict("platform_settings", map[string]any{}, 30, "platform_settings/platform_settings.json"); err != nil {
		t.Fatalf("write dict: %v", err)
	}

	status := getJSON(t, app, "DELETE", "/-/cache", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(store.Entries()) != 0 {
		t.Fatalf("index should be empty")
	}
	if roster.Len() != 0 {
		t.Fatalf("roster should be reset, still has %d", roster.Len())
	}
}

func TestBaselineAndCategoryRoutes(t *testing.T) {
	app, _, roster := newDiagnosticsApp(t)

	roster.Register("A", baseline.Entry{Region: "USA"})
	roster.Register("B", baseline.Entry{Region: "USA"})
	roster.Register("C", baseline.Entry{Region: "CHN", IsPowerPool: true})
	roster.Register("D", baseline.Entry{})
	if err := roster.SaveIndex(); err != nil {
		t.Fatalf("save roster: %v", err)
	}

	var snapshot struct {
		Loaded     bool                      `json:"loaded"`
		Entities   int                       `json:"entities"`
		UpdatedAt  string                    `json:"updated_at"`
		Partitions map[string]map[string]int `json:"partitions"`
	}
	if status := getJSON(t, app, "GET", "/-/baseline", &snapshot); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !snapshot.Loaded || snapshot.Entities != 4 || snapshot.UpdatedAt == "" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.Partitions["SelfCorr"]["USA"] != 2 || snapshot.Partitions["PPAC"]["CHN"] != 1 {
		t.Fatalf("unexpected partitions: %v", snapshot.Partitions)
	}

	var categories struct {
		Categories []catalog.Category `json:"categories"`
	}
	if status := getJSON(t, app, "GET", "/-/categories", &categories); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(categories.Categories) != 3 {
		t.Fatalf("expected builtin categories, got %+v", categories.Categories)
	}

	var category catalog.Category
	if status := getJSON(t, app, "GET", "/-/categories/DATASETS", &category); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if category.Name != catalog.CategoryDatasets || category.TTLDays != 7 {
		t.Fatalf("unexpected category: %+v", category)
	}
	if status := getJSON(t, app, "GET", "/-/categories/unknown", nil); status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app, _, _ := newDiagnosticsApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("unexpected metrics response: %d", resp.StatusCode)
	}
}

func newDiagnosticsApp(t *testing.T) (*fiber.App, cache.Store, *baseline.Cache) {
	t.Helper()

	root := t.TempDir()
	store, err := cache.NewStore(root, cache.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	roster, err := baseline.Open(root, baseline.Options{})
	if err != nil {
		t.Fatalf("open baseline: %v", err)
	}
	registry, err := catalog.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	app := fiber.New()
	RegisterDiagnosticsRoutes(app, Diagnostics{Store: store, Categories: registry, Baseline: roster})
	return app, store, roster
}

func getJSON(t *testing.T, app *fiber.App, method, target string, out any) int {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return resp.StatusCode
}
