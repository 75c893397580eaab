// Package dashboard owns the per-session dashboard state: a versioned set of
// write-once result slots filled by the aggregator, and the views derived
// from a snapshot of them.
package dashboard

import (
	"errors"
	"sync"
	"time"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/ranking"
	"github.com/air13x/air13x/internal/weather"
)

// ErrSessionNotFound is returned for an unknown or expired session id.
var ErrSessionNotFound = errors.New("session not found")

// State is the lifecycle stage of a session.
type State int

const (
	Idle State = iota
	Fetching
	Settled
)

var stateNames = map[State]string{
	Idle:     "idle",
	Fetching: "fetching",
	Settled:  "settled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Slot names, also used as metric and log labels.
const (
	SlotLocation = "location"
	SlotAQI      = "aqi"
	SlotWeather  = "weather"
	SlotHistory  = "history"
	SlotNearby   = "nearby"
	SlotForecast = "forecast"
	SlotMap      = "map"
	SlotRanking  = "ranking"
)

// SlotNames lists every slot in display order.
func SlotNames() []string {
	return []string{SlotLocation, SlotAQI, SlotWeather, SlotHistory, SlotNearby, SlotForecast, SlotMap, SlotRanking}
}

// Slots holds one result per data kind. The zero value is all Pending.
type Slots struct {
	Location provider.Result[weather.Coordinates]       `json:"location"`
	AQI      provider.Result[airquality.Reading]        `json:"aqi"`
	Weather  provider.Result[weather.Reading]           `json:"weather"`
	History  provider.Result[[]airquality.HistoryPoint] `json:"history"`
	Nearby   provider.Result[[]airquality.Station]      `json:"nearby"`
	Forecast provider.Result[[]ForecastRow]             `json:"forecast"`
	Map      provider.Result[[]airquality.Station]      `json:"map"`
	Ranking  provider.Result[ranking.Ranking]           `json:"ranking"`
}

func (s *Slots) pending() int {
	n := 0
	for _, p := range []bool{
		s.Location.IsPending(), s.AQI.IsPending(), s.Weather.IsPending(), s.History.IsPending(),
		s.Nearby.IsPending(), s.Forecast.IsPending(), s.Map.IsPending(), s.Ranking.IsPending(),
	} {
		if p {
			n++
		}
	}
	return n
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Version   uint64    `json:"version"`
	Location  *Location `json:"location,omitempty"`
	Slots     Slots     `json:"slots"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// MapboxToken is handed to the map renderer; never serialized with the snapshot.
	MapboxToken string `json:"-"`
}

// Session is one user's dashboard. It moves Idle -> Fetching -> Settled and
// back to Fetching on each trigger. Every trigger bumps the version; writes
// tagged with an older version are dropped.
type Session struct {
	id string

	mu        sync.Mutex
	state     State
	version   uint64
	location  *Location
	mapbox    string
	slots     Slots
	createdAt time.Time
	updatedAt time.Time
	lastSeen  time.Time
	now       func() time.Time
}

// NewSession creates an idle session.
func NewSession(id string, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Session{id: id, createdAt: t, updatedAt: t, lastSeen: t, now: now}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Trigger starts a new fetch for loc and returns its version. All slots are
// cleared to Pending. A fetch still running for an earlier version keeps
// running, but none of its writes are applied.
func (s *Session) Trigger(loc Location, mapboxToken string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	s.state = Fetching
	s.slots = Slots{}
	l := loc
	s.location = &l
	s.mapbox = mapboxToken
	s.updatedAt = s.now()
	s.lastSeen = s.updatedAt
	return s.version
}

// Reset returns the session to Idle and discards every slot. Writes from a
// fetch still in flight are dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	s.state = Idle
	s.slots = Slots{}
	s.location = nil
	s.mapbox = ""
	s.updatedAt = s.now()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version returns the current version.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Touch marks the session as in use.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
}

// LastActive returns when the session was last triggered or read.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Snapshot returns a copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		State:       s.state,
		Version:     s.version,
		Slots:       s.slots,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
		MapboxToken: s.mapbox,
	}
	if s.location != nil {
		l := *s.location
		snap.Location = &l
	}
	return snap
}

// setSlot stores r in the slot chosen by pick when version is current and the
// slot is still Pending. The session settles once no slot is pending.
func setSlot[T any](s *Session, version uint64, pick func(*Slots) *provider.Result[T], r provider.Result[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version != s.version || s.state != Fetching {
		return false
	}
	slot := pick(&s.slots)
	if !slot.IsPending() || r.IsPending() {
		return false
	}

	*slot = r
	s.updatedAt = s.now()
	if s.slots.pending() == 0 {
		s.state = Settled
	}
	return true
}

// Slot writers. Each reports whether the write was applied.

func (s *Session) SetLocation(version uint64, r provider.Result[weather.Coordinates]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[weather.Coordinates] { return &sl.Location }, r)
}

func (s *Session) SetAQI(version uint64, r provider.Result[airquality.Reading]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[airquality.Reading] { return &sl.AQI }, r)
}

func (s *Session) SetWeather(version uint64, r provider.Result[weather.Reading]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[weather.Reading] { return &sl.Weather }, r)
}

func (s *Session) SetHistory(version uint64, r provider.Result[[]airquality.HistoryPoint]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[[]airquality.HistoryPoint] { return &sl.History }, r)
}

func (s *Session) SetNearby(version uint64, r provider.Result[[]airquality.Station]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[[]airquality.Station] { return &sl.Nearby }, r)
}

func (s *Session) SetForecast(version uint64, r provider.Result[[]ForecastRow]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[[]ForecastRow] { return &sl.Forecast }, r)
}

func (s *Session) SetMap(version uint64, r provider.Result[[]airquality.Station]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[[]airquality.Station] { return &sl.Map }, r)
}

func (s *Session) SetRanking(version uint64, r provider.Result[ranking.Ranking]) bool {
	return setSlot(s, version, func(sl *Slots) *provider.Result[ranking.Ranking] { return &sl.Ranking }, r)
}
