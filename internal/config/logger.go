package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger for a service: human readable on a local
// machine, JSON everywhere else.
func (c *Config) NewLogger(service, version string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if c.IsLocal() {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(c.LogLevel).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}
