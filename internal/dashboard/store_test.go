package dashboard_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/air13x/air13x/internal/dashboard"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(clock *fakeClock) *dashboard.Store {
	return dashboard.NewStore(dashboard.StoreConfig{
		TTL:    10 * time.Minute,
		Now:    clock.Now,
		Logger: zerolog.Nop(),
	})
}

func TestStore_CreateGetDelete(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clock)

	s := store.Create()
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, store.Delete(s.ID()))
	assert.Equal(t, 0, store.Len())

	_, err = store.Get(s.ID())
	assert.ErrorIs(t, err, dashboard.ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(s.ID()), dashboard.ErrSessionNotFound)
}

func TestStore_DeleteDropsInFlightFetch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clock)

	s := store.Create()
	version := s.Trigger(lima, "")

	require.NoError(t, store.Delete(s.ID()))
	assert.NotEqual(t, version, s.Version())
	assert.Equal(t, dashboard.Idle, s.State())
}

func TestStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clock)

	idle := store.Create()
	active := store.Create()
	fetching := store.Create()
	fetching.Trigger(lima, "")

	clock.Advance(8 * time.Minute)
	_, err := store.Get(active.ID())
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, store.Sweep(clock.Now()))

	_, err = store.Get(idle.ID())
	assert.ErrorIs(t, err, dashboard.ErrSessionNotFound)
	_, err = store.Get(active.ID())
	assert.NoError(t, err)
	_, err = store.Get(fetching.ID())
	assert.NoError(t, err, "sessions still fetching are kept")
}
