package ranking_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/ranking"
)

type fakeFeeder struct {
	mu       sync.Mutex
	queried  []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	respond  func(cityID string) (*airquality.Station, error)
}

func (f *fakeFeeder) Feed(_ context.Context, cityID string) (*airquality.Station, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.queried = append(f.queried, cityID)
	f.mu.Unlock()

	time.Sleep(f.delay)
	return f.respond(cityID)
}

func newPool(feeder ranking.Feeder, workers int) *ranking.Pool {
	return ranking.NewPool(ranking.Config{
		Feeder:  feeder,
		Workers: workers,
		Logger:  zerolog.New(io.Discard),
	})
}

func TestPool_RanksWorstFirst(t *testing.T) {
	indexes := map[string]int{"lahore": 180, "london": 40, "paris": 40, "lima": 95}
	feeder := &fakeFeeder{respond: func(id string) (*airquality.Station, error) {
		return &airquality.Station{Name: strings.ToUpper(id), Index: indexes[id]}, nil
	}}

	result := newPool(feeder, 2).Run(context.Background(), []string{"paris", "lima", "london", "lahore"})

	require.Len(t, result.Entries, 4)
	ids := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		ids = append(ids, e.CityID)
	}
	assert.Equal(t, []string{"lahore", "lima", "london", "paris"}, ids)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 4, result.Queried)
}

func TestPool_CaseInsensitiveTargetsQueriedOnce(t *testing.T) {
	feeder := &fakeFeeder{respond: func(id string) (*airquality.Station, error) {
		return &airquality.Station{Name: id, Index: 50}, nil
	}}

	result := newPool(feeder, 5).Run(context.Background(), []string{"London", "london", " LONDON ", "paris", ""})

	assert.Len(t, feeder.queried, 2)
	require.Len(t, result.Entries, 2)
	seen := map[string]bool{}
	for _, e := range result.Entries {
		key := strings.ToLower(e.CityID)
		assert.False(t, seen[key], "duplicate entry for %s", key)
		seen[key] = true
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	feeder := &fakeFeeder{
		delay: 20 * time.Millisecond,
		respond: func(id string) (*airquality.Station, error) {
			return &airquality.Station{Name: id, Index: 10}, nil
		},
	}

	result := newPool(feeder, 3).Run(context.Background(), ranking.DefaultTargets())

	assert.Len(t, result.Entries, len(ranking.DefaultTargets()))
	assert.LessOrEqual(t, feeder.peak.Load(), int32(3))
}

func TestPool_SkipsUnusableAndCollectsErrors(t *testing.T) {
	feeder := &fakeFeeder{respond: func(id string) (*airquality.Station, error) {
		switch id {
		case "atlantis":
			return nil, nil
		case "bad":
			return nil, provider.Errorf("waqi", provider.ProviderRejected, "Over quota")
		default:
			return &airquality.Station{Name: id, Index: 60}, nil
		}
	}}

	result := newPool(feeder, 2).Run(context.Background(), []string{"atlantis", "bad", "hanoi"})

	require.Len(t, result.Entries, 1)
	assert.Equal(t, "hanoi", result.Entries[0].CityID)
	assert.Equal(t, []string{"bad: Over quota"}, result.Errors)

	slot := result.Slot()
	require.True(t, slot.IsOk())
	value, _ := slot.Value()
	assert.Equal(t, "bad: Over quota", value.Warning)
}

func TestResult_Slot(t *testing.T) {
	t.Run("errors only", func(t *testing.T) {
		slot := ranking.Result{Errors: []string{"a: x", "b: y", "c: z"}}.Slot()
		require.Equal(t, provider.Failed, slot.State())
		assert.Equal(t, provider.ProviderRejected, slot.Err().Kind)
		assert.Equal(t, "a: x; b: y...", slot.Err().Message)
	})

	t.Run("nothing at all", func(t *testing.T) {
		slot := ranking.Result{}.Slot()
		require.True(t, slot.IsOk())
		value, _ := slot.Value()
		assert.NotNil(t, value.Entries)
		assert.Empty(t, value.Entries)
		assert.Empty(t, value.Warning)
	})
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "", ranking.Summarize(nil))
	assert.Equal(t, "x", ranking.Summarize([]string{"x", "x"}))
	assert.Equal(t, "a; b", ranking.Summarize([]string{"b", "a", "b"}))
	assert.Equal(t, "a; b...", ranking.Summarize([]string{"c", "b", "a"}))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"Paris", "@1437"}, ranking.Dedupe([]string{"Paris", "paris", "", "@1437", "PARIS"}))
}

func TestPool_CancelledContext(t *testing.T) {
	feeder := &fakeFeeder{respond: func(id string) (*airquality.Station, error) {
		return &airquality.Station{Name: id, Index: 1}, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newPool(feeder, 2).Run(ctx, []string{"a", "b", "c"})

	assert.Empty(t, result.Entries)
	assert.Len(t, result.Errors, 3)
	assert.Empty(t, feeder.queried)
}
