package prefetch

import "sync/atomic"

// Flags is the plain form of Config, suitable for loading from the
// environment.
type Flags struct {
	// Heuristics lets callers collect results opportunistically (for example
	// every row returned by a list query) instead of only explicit lookups.
	Heuristics bool `envconfig:"HEURISTICS" default:"false"`

	// Training asks callers to record hit and miss statistics.
	Training bool `envconfig:"TRAINING" default:"false"`
}

// Config carries the caller-side flags that decide when the store is worth
// using. One Config is usually shared by every store of a Registry, so the
// flags are atomic. The store toggles them through its setters but never reads
// them itself.
//
// A Config must not be copied after first use.
type Config struct {
	heuristics atomic.Bool
	training   atomic.Bool
}

// DefaultConfig returns a Config with both flags off.
func DefaultConfig() *Config {
	return &Config{}
}

// NewConfig returns a Config initialized from flags.
func NewConfig(flags Flags) *Config {
	c := &Config{}
	c.heuristics.Store(flags.Heuristics)
	c.training.Store(flags.Training)
	return c
}

// Heuristics reports whether opportunistic collection is on.
func (c *Config) Heuristics() bool { return c.heuristics.Load() }

// Training reports whether hit and miss statistics are wanted.
func (c *Config) Training() bool { return c.training.Load() }

// SetHeuristics sets the heuristics flag.
func (c *Config) SetHeuristics(on bool) { c.heuristics.Store(on) }

// SetTraining sets the training flag.
func (c *Config) SetTraining(on bool) { c.training.Store(on) }

// Flags returns a snapshot of both flags.
func (c *Config) Flags() Flags {
	return Flags{Heuristics: c.Heuristics(), Training: c.Training()}
}
