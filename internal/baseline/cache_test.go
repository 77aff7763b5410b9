package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordane95/wqb-hub/internal/returns"
)

func seriesOf(id string, start string, values ...float64) returns.Series {
	first, err := time.Parse(returns.DateLayout, start)
	if err != nil {
		panic(err)
	}
	points := make([]returns.Point, len(values))
	for i, v := range values {
		points[i] = returns.Point{Date: first.AddDate(0, 0, i), Value: v}
	}
	return returns.NewSeries(id, points)
}

func sharpe(v float64) *float64 {
	return &v
}

func TestCachePersistsRosterAndSeries(t *testing.T) {
	root := t.TempDir()
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	c, err := Open(root, Options{Clock: func() time.Time { return fixed }})
	require.NoError(t, err)
	assert.False(t, c.Loaded())

	require.NoError(t, c.SaveSeries("A1", seriesOf("ignored", "2024-01-01", 1, 2, 3)))
	c.Register("A1", Entry{Name: "alpha one", Region: "USA", Sharpe: sharpe(1.5)})
	require.NoError(t, c.SaveIndex())

	raw, err := os.ReadFile(filepath.Join(root, Dir, "index.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.EqualValues(t, 1, doc["version"])
	assert.Equal(t, "2024-05-01T08:00:00.000000+00:00", doc["updated_at"])
	entities := doc["entities"].(map[string]any)
	assert.Contains(t, entities, "A1")

	csvRaw, err := os.ReadFile(filepath.Join(root, Dir, "A1", "daily-pnl.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvRaw), "date,A1\n2024-01-01,1.0\n")

	reopened, err := Open(root, Options{})
	require.NoError(t, err)
	assert.True(t, reopened.Loaded())
	entry, ok := reopened.Entry("A1")
	require.True(t, ok)
	assert.Equal(t, 1.5, entry.SharpeValue())

	frame := reopened.AllSeries()
	assert.Equal(t, []string{"A1"}, frame.IDs())
	assert.Equal(t, 3, frame.Column("A1").Len())
}

func TestPartitionFiltersByTagAndRegion(t *testing.T) {
	c, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	c.Register("S1", Entry{Region: "USA"})
	c.Register("S2", Entry{Region: "CHN"})
	c.Register("P1", Entry{Region: "USA", IsPowerPool: true})
	c.Register("N1", Entry{})

	assert.Equal(t, []string{"S1"}, c.Partition(TagSelf, "USA"))
	assert.Equal(t, []string{"S1", "S2"}, c.Partition(TagSelf, ""))
	assert.Equal(t, []string{"P1"}, c.Partition(TagPowerPool, "USA"))
	assert.Empty(t, c.Partition(TagPowerPool, "CHN"))
	assert.Equal(t, map[string][]string{"USA": {"S1"}, "CHN": {"S2"}}, c.ByRegion(TagSelf))
}

func TestAllSeriesRefreshesAfterMutation(t *testing.T) {
	c, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, c.SaveSeries("A", seriesOf("A", "2024-01-01", 1, 2)))
	c.Register("A", Entry{Region: "USA"})
	assert.Equal(t, []string{"A"}, c.AllSeries().IDs())

	require.NoError(t, c.SaveSeries("B", seriesOf("B", "2024-01-02", 5, 6)))
	c.Register("B", Entry{Region: "USA"})
	assert.Equal(t, []string{"A", "B"}, c.AllSeries().IDs())

	require.NoError(t, c.Remove("A"))
	assert.Equal(t, []string{"B"}, c.AllSeries().IDs())
	_, err = os.Stat(filepath.Join(c.Dir(), "A"))
	assert.True(t, os.IsNotExist(err))
}

func TestAllSeriesNotStaleAfterConcurrentRegister(t *testing.T) {
	c, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("P%02d", i)
		require.NoError(t, c.SaveSeries(id, seriesOf(id, "2024-01-01", 1, 2, 3)))
		c.Register(id, Entry{Region: "USA"})
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.AllSeries()
			}
		}
	}()

	added := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("N%02d", i)
		require.NoError(t, c.SaveSeries(id, seriesOf(id, "2024-01-02", 4, 5)))
		c.Register(id, Entry{Region: "USA"})
		added = append(added, id)
	}
	close(stop)
	wg.Wait()

	frame := c.AllSeries()
	assert.Len(t, frame.IDs(), 50)
	for _, id := range added {
		assert.True(t, frame.Has(id), id)
	}
}

func TestAllSeriesSkipsUnreadableFiles(t *testing.T) {
	c, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	c.Register("ghost", Entry{Region: "USA"})
	require.NoError(t, c.SaveSeries("real", seriesOf("real", "2024-01-01", 1)))
	c.Register("real", Entry{Region: "USA"})

	assert.Equal(t, []string{"real"}, c.AllSeries().IDs())
}

func TestRejectsTraversalIDs(t *testing.T) {
	c, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	assert.Error(t, c.SaveSeries("../escape", seriesOf("x", "2024-01-01", 1)))
	assert.Error(t, c.Remove(".."))
}

func TestOpenIgnoresForeignIndexVersion(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte(`{"version":2,"entities":{"X":{}}}`), 0o644))

	c, err := Open(root, Options{})
	require.NoError(t, err)
	assert.False(t, c.Loaded())
	assert.Zero(t, c.Len())
}
