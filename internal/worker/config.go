// Package worker runs scheduled provider jobs for air13x: a ranking probe
// that exercises the WAQI fan-out and a provider health check.
package worker

import (
	"time"

	"github.com/air13x/air13x/internal/ranking"
)

// Job types carried in scheduler messages.
const (
	JobRankingProbe = "ranking_probe"
	JobHealthCheck  = "health_check"
)

// DefaultHealthCheckTarget is the single city fed by the health check.
const DefaultHealthCheckTarget = "lima"

// JobConfig holds configuration for the worker jobs.
type JobConfig struct {
	// Targets are the ranking identifiers probed (default: ranking.DefaultTargets).
	Targets []string

	// HealthCheckTarget is fed once per health check (default: DefaultHealthCheckTarget).
	HealthCheckTarget string

	// ProbeTimeout bounds one ranking probe (default: 2 minutes).
	ProbeTimeout time.Duration

	// HealthCheckTimeout bounds one health check (default: 20 seconds).
	HealthCheckTimeout time.Duration

	// MinEntryRatio fails a probe when fewer targets than this share produce
	// a station (default: 0.5).
	MinEntryRatio float64
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Targets:            ranking.DefaultTargets(),
		HealthCheckTarget:  DefaultHealthCheckTarget,
		ProbeTimeout:       2 * time.Minute,
		HealthCheckTimeout: 20 * time.Second,
		MinEntryRatio:      0.5,
	}
}

// withDefaults fills every zero field from DefaultJobConfig.
func (c JobConfig) withDefaults() JobConfig {
	d := DefaultJobConfig()
	if len(c.Targets) == 0 {
		c.Targets = d.Targets
	}
	if c.HealthCheckTarget == "" {
		c.HealthCheckTarget = d.HealthCheckTarget
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = d.HealthCheckTimeout
	}
	if c.MinEntryRatio <= 0 {
		c.MinEntryRatio = d.MinEntryRatio
	}
	return c
}
