package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordane95/wqb-hub/internal/cache"
	"github.com/jordane95/wqb-hub/internal/platform"
)

type fakeFetcher struct {
	operators     []map[string]any
	datasets      map[string]platform.DatasetPage
	settings      platform.SettingOptions
	failDatasets  map[string]bool
	operatorCalls int
	datasetCalls  int
	settingsCalls int
}

func (f *fakeFetcher) Operators(context.Context) ([]map[string]any, error) {
	f.operatorCalls++
	return f.operators, nil
}

func (f *fakeFetcher) Datasets(_ context.Context, q platform.DatasetQuery) (platform.DatasetPage, error) {
	f.datasetCalls++
	if f.failDatasets[q.Universe] {
		return platform.DatasetPage{}, errors.New("upstream down")
	}
	return f.datasets[q.Universe], nil
}

func (f *fakeFetcher) SettingOptions(context.Context) (platform.SettingOptions, error) {
	f.settingsCalls++
	return f.settings, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T, f Fetcher, overrides map[string]int) (*Service, cache.Store, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	store, err := cache.NewStore(t.TempDir(), cache.Options{Clock: clk.Now})
	require.NoError(t, err)
	registry, err := NewRegistry(overrides)
	require.NoError(t, err)
	return NewService(store, registry, f, nil), store, clk
}

func TestRegistryDefaultsAndOverrides(t *testing.T) {
	registry, err := NewRegistry(map[string]int{"Datasets": 3})
	require.NoError(t, err)

	ttl, err := registry.TTLDays("datasets")
	require.NoError(t, err)
	assert.Equal(t, 3, ttl)

	c, ok := registry.Resolve("DATASETS")
	require.True(t, ok)
	assert.Equal(t, 7, c.DefaultTTLDays)

	names := make([]string, 0)
	for _, c := range registry.List() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"datasets", "operators", "platform_settings"}, names)

	_, err = registry.TTLDays("glossary")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRegistryRejectsUnknownOverride(t *testing.T) {
	_, err := NewRegistry(map[string]int{"glossary": 3})
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	registry, err := NewRegistry(nil)
	require.NoError(t, err)
	require.Error(t, registry.Register(Category{Name: "Operators", TTLDays: 1}))
	require.NoError(t, registry.Register(Category{Name: "glossary", TTLDays: 30, Kind: KindDict}))
}

func TestOperatorsReadThroughCache(t *testing.T) {
	f := &fakeFetcher{operators: []map[string]any{
		{"name": "rank", "category": "Cross Sectional", "scope": []any{"REGULAR"}},
		{"name": "ts_mean", "category": "Time Series", "scope": []any{"REGULAR", "COMBO"}},
	}}
	svc, store, clk := newService(t, f, nil)

	ops, err := svc.Operators(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.FileExists(t, filepath.Join(store.Root(), "operators", "operators.csv"))

	cached, err := svc.Operators(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.operatorCalls)
	assert.Equal(t, "ts_mean", cached[1]["name"])
	assert.Equal(t, []any{"REGULAR", "COMBO"}, cached[1]["scope"])

	_, err = svc.Operators(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.operatorCalls)

	clk.now = clk.now.AddDate(0, 0, 31)
	_, err = svc.Operators(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, f.operatorCalls)
}

func TestDatasetsCachedPerCombination(t *testing.T) {
	f := &fakeFetcher{datasets: map[string]platform.DatasetPage{
		"TOP3000": {Count: 1, Results: []map[string]any{{"id": "fundamental6", "name": "Company Fundamental Data"}}},
	}}
	svc, store, _ := newService(t, f, map[string]int{"datasets": 2})
	q := platform.DatasetQuery{InstrumentType: "EQUITY", Region: "USA", Universe: "TOP3000", Delay: 1}

	_, err := svc.Datasets(context.Background(), q, false)
	require.NoError(t, err)
	page, err := svc.Datasets(context.Background(), q, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.datasetCalls)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, "fundamental6", page.Results[0]["id"])

	entry, ok := store.Get("data:EQUITY:USA:TOP3000:D1:datasets")
	require.True(t, ok)
	assert.Equal(t, 2, entry.TTLDays)
	assert.Equal(t, "data/EQUITY/USA/TOP3000/D1/datasets.csv", entry.Path)

	q.Search = "fundamental"
	_, err = svc.Datasets(context.Background(), q, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.datasetCalls)
}

func TestDatasetsCountStableAcrossHit(t *testing.T) {
	f := &fakeFetcher{datasets: map[string]platform.DatasetPage{
		"TOP500": {Count: 120, Results: []map[string]any{{"id": "pv1"}, {"id": "analyst4"}}},
	}}
	svc, _, _ := newService(t, f, nil)
	q := platform.DatasetQuery{InstrumentType: "EQUITY", Region: "USA", Universe: "TOP500", Delay: 1}

	miss, err := svc.Datasets(context.Background(), q, false)
	require.NoError(t, err)
	hit, err := svc.Datasets(context.Background(), q, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.datasetCalls)
	assert.Equal(t, 2, miss.Count)
	assert.Equal(t, miss.Count, hit.Count)
	assert.Len(t, hit.Results, hit.Count)

	forced, err := svc.Datasets(context.Background(), q, true)
	require.NoError(t, err)
	assert.Equal(t, 2, forced.Count)
}

func TestPlatformSettingsRoundTripThroughDict(t *testing.T) {
	settings := platform.SettingOptions{
		InstrumentOptions: []platform.InstrumentOption{
			{InstrumentType: "EQUITY", Region: "USA", Delay: 1, Universe: []string{"TOP3000", "TOP500"}, Neutralization: []string{"MARKET"}},
		},
		TotalCombinations: 1,
		InstrumentTypes:   []string{"EQUITY"},
		RegionsByType:     map[string][]string{"EQUITY": {"USA"}},
	}
	f := &fakeFetcher{settings: settings}
	svc, store, _ := newService(t, f, nil)

	_, err := svc.PlatformSettings(context.Background(), false)
	require.NoError(t, err)
	got, err := svc.PlatformSettings(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.settingsCalls)
	assert.Equal(t, settings, got)

	_, err = os.Stat(filepath.Join(store.Root(), "platform_settings", "platform_settings.json"))
	require.NoError(t, err)
}

func TestWarmupPrefetchesEveryUniverse(t *testing.T) {
	f := &fakeFetcher{
		settings: platform.SettingOptions{
			InstrumentOptions: []platform.InstrumentOption{
				{InstrumentType: "EQUITY", Region: "USA", Delay: 1, Universe: []string{"TOP3000", "TOP500"}},
				{InstrumentType: "EQUITY", Region: "USA", Delay: 0, Universe: []string{"TOP200"}},
			},
			TotalCombinations: 2,
		},
		datasets: map[string]platform.DatasetPage{
			"TOP3000": {Count: 2, Results: []map[string]any{{"id": "a"}, {"id": "b"}}},
			"TOP500":  {Count: 1, Results: []map[string]any{{"id": "c"}}},
		},
		failDatasets: map[string]bool{"TOP200": true},
	}
	svc, _, _ := newService(t, f, nil)

	report, err := svc.Warmup(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, WarmupReport{Combinations: 2, Datasets: 3, Failed: 1}, report)
	assert.Equal(t, 3, f.datasetCalls)
}

func TestWarmupStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{settings: platform.SettingOptions{
		InstrumentOptions: []platform.InstrumentOption{{InstrumentType: "EQUITY", Region: "USA", Delay: 1, Universe: []string{"TOP3000"}}},
	}}
	svc, _, _ := newService(t, f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Warmup(ctx, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.datasetCalls)
}

type blockingFetcher struct {
	fakeFetcher
	release chan struct{}
	calls   atomic.Int32
}

func (f *blockingFetcher) Operators(context.Context) ([]map[string]any, error) {
	f.calls.Add(1)
	<-f.release
	return []map[string]any{{"name": "rank"}}, nil
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	f := &blockingFetcher{release: make(chan struct{})}
	svc, _, _ := newService(t, f, nil)

	const callers = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
	)
	results := make([][]map[string]any, callers)
	errs := make([]error, callers)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = svc.Operators(context.Background(), true)
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "rank", results[i][0]["name"])
	}
}
