package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/air13x/air13x/internal/provider/resilience"
	"github.com/air13x/air13x/internal/ranking"
)

// ErrUnknownJob is returned by Dispatch for a job type it does not run.
// Such messages should be acknowledged, not retried.
var ErrUnknownJob = errors.New("unknown job type")

// Message is a scheduler job message.
type Message struct {
	JobType string `json:"jobType"`

	// Targets overrides the configured probe targets for one run.
	Targets []string `json:"targets,omitempty"`
}

// HealthSource reports the health of every provider client.
type HealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// Stats are cumulative job statistics.
type Stats struct {
	Probes          int64         `json:"probes"`
	FailedProbes    int64         `json:"failedProbes"`
	HealthChecks    int64         `json:"healthChecks"`
	FailedChecks    int64         `json:"failedHealthChecks"`
	LastProbeAt     *time.Time    `json:"lastProbeAt,omitempty"`
	LastProbeTook   time.Duration `json:"-"`
	LastProbeMillis int64         `json:"lastProbeDurationMs"`
	LastProbeErrors []string      `json:"lastProbeErrors,omitempty"`
}

// Jobs runs the worker jobs.
type Jobs struct {
	config JobConfig
	pool   *ranking.Pool
	health HealthSource
	logger zerolog.Logger

	mu    sync.RWMutex
	stats Stats
}

// JobsConfig holds the dependencies of Jobs.
type JobsConfig struct {
	Config JobConfig

	// Pool feeds the ranking probe and the health check.
	Pool *ranking.Pool

	// Health, when set, makes the health check fail while a provider
	// circuit is open.
	Health HealthSource

	Logger zerolog.Logger
}

// NewJobs creates the job runner.
func NewJobs(cfg JobsConfig) *Jobs {
	return &Jobs{
		config: cfg.Config.withDefaults(),
		pool:   cfg.Pool,
		health: cfg.Health,
		logger: cfg.Logger,
	}
}

// Dispatch decodes a job message and runs it.
func (j *Jobs) Dispatch(ctx context.Context, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode job message: %w", err)
	}

	switch msg.JobType {
	case JobRankingProbe:
		_, err := j.RankingProbe(ctx, msg.Targets)
		return err
	case JobHealthCheck:
		return j.HealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// RankingProbe runs the ranking fan-out over targets, or the configured
// targets when none are given. It fails when too few targets produce a
// station.
func (j *Jobs) RankingProbe(ctx context.Context, targets []string) (ranking.Result, error) {
	if len(targets) == 0 {
		targets = j.config.Targets
	}

	ctx, cancel := context.WithTimeout(ctx, j.config.ProbeTimeout)
	defer cancel()

	result := j.pool.Run(ctx, targets)

	var err error
	if result.Queried > 0 && float64(len(result.Entries)) < j.config.MinEntryRatio*float64(result.Queried) {
		err = fmt.Errorf("ranking probe: %d/%d targets ranked: %s",
			len(result.Entries), result.Queried, ranking.Summarize(result.Errors))
	}

	event := j.logger.Info()
	if err != nil {
		event = j.logger.Warn()
	}
	event.
		Dur("duration", result.Duration).
		Int("queried", result.Queried).
		Int("entries", len(result.Entries)).
		Int("errors", len(result.Errors)).
		Str("warning", ranking.Summarize(result.Errors)).
		Msg("ranking probe finished")

	j.mu.Lock()
	j.stats.Probes++
	if err != nil {
		j.stats.FailedProbes++
	}
	now := time.Now()
	j.stats.LastProbeAt = &now
	j.stats.LastProbeTook = result.Duration
	j.stats.LastProbeMillis = result.Duration.Milliseconds()
	j.stats.LastProbeErrors = append([]string(nil), result.Errors...)
	j.mu.Unlock()

	return result, err
}

// HealthCheck feeds one city and checks that no provider circuit is open.
func (j *Jobs) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.HealthCheckTimeout)
	defer cancel()

	var problems []string

	result := j.pool.Run(ctx, []string{j.config.HealthCheckTarget})
	if len(result.Entries) == 0 {
		reason := ranking.Summarize(result.Errors)
		if reason == "" {
			reason = "no station"
		}
		problems = append(problems, "feed "+j.config.HealthCheckTarget+": "+reason)
	}

	if j.health != nil {
		for _, h := range j.health.GetAllHealth() {
			if h.IsUnhealthy() {
				problems = append(problems, "circuit open: "+h.Name)
			}
		}
	}

	j.mu.Lock()
	j.stats.HealthChecks++
	if len(problems) > 0 {
		j.stats.FailedChecks++
	}
	j.mu.Unlock()

	if len(problems) > 0 {
		j.logger.Warn().Strs("problems", problems).Msg("health check failed")
		return fmt.Errorf("health check: %s", strings.Join(problems, "; "))
	}

	j.logger.Debug().Msg("health check passed")
	return nil
}

// Stats returns a copy of the cumulative statistics.
func (j *Jobs) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := j.stats
	s.LastProbeErrors = append([]string(nil), j.stats.LastProbeErrors...)
	return s
}
