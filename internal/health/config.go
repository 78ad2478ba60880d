package health

import (
	"fmt"
	"time"
)

// Default thresholds.
const (
	DefaultHealthyThreshold = 60 * time.Second
	DefaultFailureThreshold = 3
	DefaultBaseBackoff      = 30 * time.Second
	DefaultMaxBackoff       = 10 * time.Minute
	DefaultMaxRestarts      = 3
	DefaultRestartWindow    = time.Hour
	DefaultCheckInterval    = 15 * time.Second
)

// Config holds supervision thresholds. Zero fields take defaults.
type Config struct {
	// HealthyThreshold is the heartbeat age below which a collector is healthy.
	HealthyThreshold time.Duration
	// FailedThreshold is the heartbeat age at which a collector is failed.
	// Defaults to three times HealthyThreshold.
	FailedThreshold time.Duration
	// FailureThreshold is the number of consecutive reported failures that
	// marks a collector failed. One failure marks it degraded.
	FailureThreshold int
	// BaseBackoff is the wait after the first restart. The nth restart in
	// the window waits BaseBackoff × 2^(n−1), capped at MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// MaxRestarts within RestartWindow disables the collector.
	MaxRestarts   int
	RestartWindow time.Duration
	// CheckInterval is the Run ticker period.
	CheckInterval time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.HealthyThreshold <= 0 {
		c.HealthyThreshold = DefaultHealthyThreshold
	}
	if c.FailedThreshold <= 0 {
		c.FailedThreshold = 3 * c.HealthyThreshold
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
	if c.RestartWindow <= 0 {
		c.RestartWindow = DefaultRestartWindow
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	return c
}

// Validate reports inconsistent thresholds after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.FailedThreshold <= c.HealthyThreshold {
		return fmt.Errorf("failed threshold %s must exceed healthy threshold %s", c.FailedThreshold, c.HealthyThreshold)
	}
	if c.MaxBackoff < c.BaseBackoff {
		return fmt.Errorf("max backoff %s is below base backoff %s", c.MaxBackoff, c.BaseBackoff)
	}
	return nil
}

// Backoff returns the wait after the nth restart in the window (n ≥ 1).
func (c Config) Backoff(n int) time.Duration {
	c = c.withDefaults()
	d := c.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}
