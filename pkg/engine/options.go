package engine

import (
	"io"
	"log/slog"
	"time"
)

// Config holds the tunables shared by every session of an engine.
type Config struct {
	// Pacing is the fixed delay between pushes during ResyncAll.
	Pacing time.Duration
	// PushTimeout bounds every gateway call.
	PushTimeout time.Duration
	// EventBuffer is the capacity of each session's event channel.
	EventBuffer int
	// RefreshOnActivate starts a background remote fetch + merge on Activate.
	RefreshOnActivate bool
	Logger            *slog.Logger
	Clock             func() time.Time
	NewID             func(kind string, now time.Time) string
}

// Option defines a functional option for configuring an Engine.
type Option func(*Config)

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Pacing:            250 * time.Millisecond,
		PushTimeout:       10 * time.Second,
		EventBuffer:       100,
		RefreshOnActivate: true,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:             time.Now,
		NewID:             NewID,
	}
}

// WithLogger sets the logger. A nil logger keeps the default (discard).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithPacing sets the delay between pushes during a bulk resync.
func WithPacing(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.Pacing = d
		}
	}
}

// WithPushTimeout bounds each gateway call. Zero or negative keeps the default.
func WithPushTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PushTimeout = d
		}
	}
}

// WithEventBuffer sets the size of the per-session event buffer.
func WithEventBuffer(size int) Option {
	return func(c *Config) {
		if size >= 0 {
			c.EventBuffer = size
		}
	}
}

// WithRefreshOnActivate controls the background merge started by Activate.
func WithRefreshOnActivate(enabled bool) Option {
	return func(c *Config) {
		c.RefreshOnActivate = enabled
	}
}

// WithClock replaces time.Now (useful for testing).
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithIDGenerator replaces the entity id generator.
func WithIDGenerator(fn func(kind string, now time.Time) string) Option {
	return func(c *Config) {
		if fn != nil {
			c.NewID = fn
		}
	}
}
