package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/jordane95/wqb-hub/internal/baseline"
	"github.com/jordane95/wqb-hub/internal/checker"
	"github.com/jordane95/wqb-hub/internal/correlation"
	"github.com/jordane95/wqb-hub/internal/logging"
	"github.com/jordane95/wqb-hub/internal/platform"
)

func TestCheckAppliesDefaults(t *testing.T) {
	fake := &fakeChecker{}
	app := newTestApp(t, fake, &fakeCatalog{})

	resp := doJSON(t, app, "POST", "/v1/correlation/check", `{"entity_id":"A"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", resp.StatusCode, readBody(t, resp.Body))
	}
	if fake.lastID != "A" || fake.lastThreshold != 0.7 || fake.lastYears != 4 {
		t.Fatalf("defaults not applied: id=%s threshold=%v years=%d", fake.lastID, fake.lastThreshold, fake.lastYears)
	}
	if len(fake.lastTypes) != 1 || fake.lastTypes[0] != correlation.TypeSelf {
		t.Fatalf("expected default self type, got %v", fake.lastTypes)
	}
	if fake.remoteCalls != 0 {
		t.Fatalf("local mode should not call remote")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(readBody(t, resp.Body)), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["entity_id"] != "A" || payload["all_passed"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestCheckRemoteMode(t *testing.T) {
	fake := &fakeChecker{}
	app := newTestApp(t, fake, &fakeCatalog{})

	resp := doJSON(t, app, "POST", "/v1/correlation/check",
		`{"entity_id":"A","mode":"remote","check_types":["prod","self"],"threshold":0.5}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", resp.StatusCode, readBody(t, resp.Body))
	}
	if fake.remoteCalls != 1 || fake.lastThreshold != 0.5 {
		t.Fatalf("expected remote call with threshold 0.5, got calls=%d threshold=%v", fake.remoteCalls, fake.lastThreshold)
	}
	if len(fake.lastTypes) != 2 || fake.lastTypes[0] != correlation.TypeProd {
		t.Fatalf("unexpected types: %v", fake.lastTypes)
	}
}

func TestCheckRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		body string
		code string
	}{
		{name: "missing id", body: `{}`, code: "invalid_request"},
		{name: "threshold out of range", body: `{"entity_id":"A","threshold":1.5}`, code: "invalid_request"},
		{name: "unknown mode", body: `{"entity_id":"A","mode":"both"}`, code: "invalid_request"},
		{name: "unknown type", body: `{"entity_id":"A","check_types":["global"]}`, code: "invalid_request"},
		{name: "malformed json", body: `{"entity_id":`, code: "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeChecker{}
			app := newTestApp(t, fake, &fakeCatalog{})

			resp := doJSON(t, app, "POST", "/v1/correlation/check", tc.body)
			body := readBody(t, resp.Body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("expected 400, got %d (body=%s)", resp.StatusCode, body)
			}
			if !strings.Contains(body, `"`+tc.code+`"`) {
				t.Fatalf("expected %s error, got %s", tc.code, body)
			}
			if fake.checkCalls != 0 {
				t.Fatalf("checker should not be called on invalid input")
			}
		})
	}
}

func TestCheckMapsCheckerErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "prod locally", err: fmt.Errorf("%w (requested %q)", correlation.ErrUnsupportedType, "prod"), status: fiber.StatusBadRequest, code: "unsupported_check_type"},
		{name: "missing entity", err: fmt.Errorf("fetch candidate: %w", platform.ErrNotFound), status: fiber.StatusNotFound, code: "not_found"},
		{name: "upstream failure", err: fmt.Errorf("sync baseline: %w", &platform.StatusError{Endpoint: "/users/self/alphas", StatusCode: 503}), status: fiber.StatusBadGateway, code: "upstream_error"},
		{name: "auth failure", err: platform.ErrUnauthorized, status: fiber.StatusBadGateway, code: "upstream_error"},
		{name: "internal", err: fmt.Errorf("disk full"), status: fiber.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, &fakeChecker{err: tc.err}, &fakeCatalog{})

			resp := doJSON(t, app, "POST", "/v1/correlation/check", `{"entity_id":"A"}`)
			body := readBody(t, resp.Body)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d (body=%s)", tc.status, resp.StatusCode, body)
			}
			var payload map[string]string
			if err := json.Unmarshal([]byte(body), &payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload["error"] != tc.code || payload["message"] != tc.err.Error() {
				t.Fatalf("unexpected error payload: %v", payload)
			}
		})
	}
}

func TestBatchRequiresTwoIDs(t *testing.T) {
	fake := &fakeChecker{}
	app := newTestApp(t, fake, &fakeCatalog{})

	resp := doJSON(t, app, "POST", "/v1/correlation/batch", `{"entity_ids":["A"]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "POST", "/v1/correlation/batch", `{"entity_ids":["A","B"],"years":2}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", resp.StatusCode, readBody(t, resp.Body))
	}
	if fake.batchCalls != 1 || fake.lastYears != 2 || len(fake.lastIDs) != 2 {
		t.Fatalf("unexpected batch call: calls=%d years=%d ids=%v", fake.batchCalls, fake.lastYears, fake.lastIDs)
	}
}

func TestBaselineSyncReturnsReport(t *testing.T) {
	fake := &fakeChecker{report: baseline.SyncReport{Added: 2, Total: 5}}
	app := newTestApp(t, fake, &fakeCatalog{})

	resp := doJSON(t, app, "POST", "/v1/baseline/sync", "")
	body := readBody(t, resp.Body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"added":2`) || !strings.Contains(body, `"total":5`) {
		t.Fatalf("unexpected report: %s", body)
	}
}

func TestDatasetsQueryDefaults(t *testing.T) {
	cat := &fakeCatalog{}
	app := newTestApp(t, &fakeChecker{}, cat)

	resp := doJSON(t, app, "GET", "/v1/catalog/datasets?region=CHN&force=true", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", resp.StatusCode, readBody(t, resp.Body))
	}
	want := platform.DatasetQuery{InstrumentType: "EQUITY", Region: "CHN", Universe: "TOP3000", Delay: 1}
	if cat.lastQuery != want || !cat.lastForce {
		t.Fatalf("unexpected dataset query: %+v force=%v", cat.lastQuery, cat.lastForce)
	}

	resp = doJSON(t, app, "GET", "/v1/catalog/datasets?delay=3", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for invalid delay, got %d", resp.StatusCode)
	}
}

func TestOperatorsAndSettings(t *testing.T) {
	cat := &fakeCatalog{operators: []map[string]any{{"name": "ts_mean"}, {"name": "rank"}}}
	app := newTestApp(t, &fakeChecker{}, cat)

	resp := doJSON(t, app, "GET", "/v1/catalog/operators", "")
	body := readBody(t, resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(body, `"count":2`) {
		t.Fatalf("unexpected operators response: %d %s", resp.StatusCode, body)
	}
	if cat.lastForce {
		t.Fatalf("force should default to false")
	}

	resp = doJSON(t, app, "GET", "/v1/catalog/platform-settings?force=true", "")
	body = readBody(t, resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(body, `"total_combinations":1`) {
		t.Fatalf("unexpected settings response: %d %s", resp.StatusCode, body)
	}
	if !cat.lastForce {
		t.Fatalf("force flag not forwarded")
	}
}

func TestUnknownRouteRendersJSONError(t *testing.T) {
	app := newTestApp(t, &fakeChecker{}, &fakeCatalog{})

	resp := doJSON(t, app, "GET", "/v1/unknown", "")
	body := readBody(t, resp.Body)
	if resp.StatusCode != fiber.StatusNotFound || !strings.Contains(body, `"not_found"`) {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, body)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	app := newTestApp(t, &fakeChecker{}, &fakeCatalog{})

	req := httptest.NewRequest("POST", "/v1/baseline/sync", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{Logger: logging.NewNop(), Checker: &fakeChecker{}, Catalog: &fakeCatalog{}}); err == nil {
		t.Fatalf("expected error for missing listen port")
	}
	if _, err := NewApp(AppOptions{Logger: logging.NewNop(), Catalog: &fakeCatalog{}, ListenPort: 5000}); err == nil {
		t.Fatalf("expected error for missing checker")
	}
}

func newTestApp(t *testing.T, c Checker, cat Catalog) *fiber.App {
	t.Helper()

	app, err := NewApp(AppOptions{
		Logger:     logging.NewNop(),
		Checker:    c,
		Catalog:    cat,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func readBody(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

type fakeChecker struct {
	err    error
	report baseline.SyncReport

	checkCalls  int
	remoteCalls int
	batchCalls  int

	lastID        string
	lastIDs       []string
	lastTypes     []correlation.Type
	lastThreshold float64
	lastYears     int
}

func (f *fakeChecker) Check(_ context.Context, id string, types []correlation.Type, threshold float64, years int) (checker.CheckResponse, error) {
	f.checkCalls++
	f.lastID, f.lastTypes, f.lastThreshold, f.lastYears = id, types, threshold, years
	if f.err != nil {
		return checker.CheckResponse{}, f.err
	}
	return passing(id, types, threshold), nil
}

func (f *fakeChecker) CheckRemote(_ context.Context, id string, types []correlation.Type, threshold float64) (checker.CheckResponse, error) {
	f.remoteCalls++
	f.lastID, f.lastTypes, f.lastThreshold = id, types, threshold
	if f.err != nil {
		return checker.CheckResponse{}, f.err
	}
	return passing(id, types, threshold), nil
}

func (f *fakeChecker) BatchCheck(_ context.Context, ids []string, types []correlation.Type, threshold float64, years int) (checker.BatchResponse, error) {
	f.batchCalls++
	f.lastIDs, f.lastTypes, f.lastThreshold, f.lastYears = ids, types, threshold, years
	if f.err != nil {
		return checker.BatchResponse{}, f.err
	}
	inter := make(map[string]checker.CheckResponse, len(ids))
	for _, id := range ids {
		inter[id] = passing(id, types, threshold)
	}
	return checker.BatchResponse{Inter: inter}, nil
}

func (f *fakeChecker) Sync(context.Context) (baseline.SyncReport, error) {
	return f.report, f.err
}

func passing(id string, types []correlation.Type, threshold float64) checker.CheckResponse {
	checks := make(map[correlation.Type]checker.CheckResult, len(types))
	for _, typ := range types {
		checks[typ] = checker.CheckResult{PassesCheck: true}
	}
	return checker.CheckResponse{
		EntityID:   id,
		Threshold:  threshold,
		CheckTypes: types,
		Checks:     checks,
		AllPassed:  true,
	}
}

type fakeCatalog struct {
	operators []map[string]any

	lastQuery platform.DatasetQuery
	lastForce bool
}

func (f *fakeCatalog) Operators(_ context.Context, force bool) ([]map[string]any, error) {
	f.lastForce = force
	return f.operators, nil
}

func (f *fakeCatalog) Datasets(_ context.Context, q platform.DatasetQuery, force bool) (platform.DatasetPage, error) {
	f.lastQuery, f.lastForce = q, force
	return platform.DatasetPage{Count: 1, Results: []map[string]any{{"id": "pv1"}}}, nil
}

func (f *fakeCatalog) PlatformSettings(_ context.Context, force bool) (platform.SettingOptions, error) {
	f.lastForce = force
	return platform.SettingOptions{
		InstrumentOptions: []platform.InstrumentOption{{InstrumentType: "EQUITY", Region: "USA", Delay: 1, Universe: []string{"TOP3000"}}},
		TotalCombinations: 1,
	}, nil
}

func TestConfiguredDefaultsApply(t *testing.T) {
	fake := &fakeChecker{}
	app, err := NewApp(AppOptions{
		Logger:     logging.NewNop(),
		Checker:    fake,
		Catalog:    &fakeCatalog{},
		ListenPort: 5000,
		Threshold:  0.6,
		Years:      2,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	resp := doJSON(t, app, "POST", "/v1/correlation/check", `{"entity_id":"A"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if fake.lastThreshold != 0.6 || fake.lastYears != 2 {
		t.Fatalf("configured defaults not applied: threshold=%v years=%d", fake.lastThreshold, fake.lastYears)
	}

	resp = doJSON(t, app, "POST", "/v1/correlation/check", `{"entity_id":"A","threshold":0.9}`)
	if resp.StatusCode != fiber.StatusOK || fake.lastThreshold != 0.9 {
		t.Fatalf("request threshold should win, got %v", fake.lastThreshold)
	}
}
