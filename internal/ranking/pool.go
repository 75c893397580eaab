// Package ranking builds the global city ranking by querying many single-city
// feeds on a bounded pool of workers.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 5

// maxSummarized is how many distinct errors a summary spells out.
const maxSummarized = 2

// DefaultTargets are the city identifiers ranked when no list is configured.
func DefaultTargets() []string {
	return []string{
		"@1437", "@3362", "@990",
		"lahore", "karachi", "kolkata", "mumbai", "kathmandu", "hanoi",
		"jakarta/central", "bangkok", "shanghai", "wuhan",
		"london", "paris", "los angeles", "new york", "mexico city",
		"sao paulo", "lima",
	}
}

// Feeder fetches the current station for one city identifier. A nil station
// with a nil error means there is nothing to rank for that identifier.
type Feeder interface {
	Feed(ctx context.Context, cityID string) (*airquality.Station, error)
}

// Ranking is the settled ranking slot value.
type Ranking struct {
	Entries []airquality.Station `json:"entries"`
	// Warning summarizes per-city failures when some entries did load.
	Warning string `json:"warning,omitempty"`
}

// Result is the outcome of one ranking run.
type Result struct {
	Entries  []airquality.Station
	Errors   []string
	Queried  int
	Duration time.Duration
}

// Config holds configuration for a Pool.
type Config struct {
	// Feeder answers single-city queries.
	Feeder Feeder

	// Workers bounds concurrent queries (default: DefaultWorkers).
	Workers int

	// Logger for pool operations.
	Logger zerolog.Logger
}

// Pool runs ranking fan-outs.
type Pool struct {
	feeder  Feeder
	workers int
	logger  zerolog.Logger
}

// NewPool creates a ranking pool.
func NewPool(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		feeder:  cfg.Feeder,
		workers: workers,
		logger:  cfg.Logger,
	}
}

// WithFeeder returns a copy of the pool that queries feeder.
func (p *Pool) WithFeeder(feeder Feeder) *Pool {
	clone := *p
	clone.feeder = feeder
	return &clone
}

type outcome struct {
	cityID  string
	station *airquality.Station
	err     error
}

// Run queries every target and ranks the stations found, worst first.
// Identifiers that differ only in case are queried once.
func (p *Pool) Run(ctx context.Context, targets []string) Result {
	start := time.Now()
	ids := Dedupe(targets)

	p.logger.Debug().
		Int("targets", len(ids)).
		Int("workers", p.workers).
		Msg("starting ranking fan-out")

	jobs := make(chan string, len(ids))
	results := make(chan outcome, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, jobs, results)
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	result := Result{Queried: len(ids)}
	for o := range results {
		if o.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", o.cityID, errorMessage(o.err)))
			continue
		}
		if o.station != nil {
			result.Entries = append(result.Entries, *o.station)
		}
	}

	result.Entries = airquality.DedupeByCity(result.Entries)
	Sort(result.Entries)
	result.Duration = time.Since(start)

	p.logger.Info().
		Dur("duration", result.Duration).
		Int("entries", len(result.Entries)).
		Int("errors", len(result.Errors)).
		Msg("ranking fan-out completed")

	return result
}

func (p *Pool) worker(ctx context.Context, jobs <-chan string, results chan<- outcome) {
	for id := range jobs {
		select {
		case <-ctx.Done():
			results <- outcome{cityID: id, err: provider.Wrap("", provider.Transport, ctx.Err())}
		default:
			station, err := p.feeder.Feed(ctx, id)
			if station != nil && station.CityID == "" {
				station.CityID = id
			}
			results <- outcome{cityID: id, station: station, err: err}
		}
	}
}

// Slot turns a run into the ranking slot value:
//   - any entries: Ok, with the error summary as warning
//   - no entries but errors: ProviderRejected carrying the summary
//   - neither: Ok with an empty ranking
func (r Result) Slot() provider.Result[Ranking] {
	summary := Summarize(r.Errors)
	switch {
	case len(r.Entries) > 0:
		return provider.OkResult(Ranking{Entries: r.Entries, Warning: summary})
	case len(r.Errors) > 0:
		return provider.ErrResult[Ranking](provider.Errorf("", provider.ProviderRejected, "%s", summary))
	default:
		return provider.OkResult(Ranking{Entries: []airquality.Station{}})
	}
}

// Dedupe trims identifiers and drops empty ones and case-insensitive
// repeats, keeping the first spelling.
func Dedupe(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Sort orders entries by index descending, breaking ties by identifier.
func Sort(entries []airquality.Station) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Index != entries[j].Index {
			return entries[i].Index > entries[j].Index
		}
		return entries[i].CityID < entries[j].CityID
	})
}

// Summarize collapses errors to their unique values, sorted, spelling out the
// first two joined by "; " and appending "..." when more remain.
func Summarize(errs []string) string {
	if len(errs) == 0 {
		return ""
	}

	unique := make(map[string]struct{}, len(errs))
	for _, e := range errs {
		unique[e] = struct{}{}
	}
	list := make([]string, 0, len(unique))
	for e := range unique {
		list = append(list, e)
	}
	sort.Strings(list)

	if len(list) <= maxSummarized {
		return strings.Join(list, "; ")
	}
	return strings.Join(list[:maxSummarized], "; ") + "..."
}

func errorMessage(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}
