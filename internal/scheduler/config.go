package scheduler

import "time"

// MinCallDelay is the smallest gap allowed between payment provider calls.
const MinCallDelay = 500 * time.Millisecond

// Config controls the reconciliation loop.
type Config struct {
	Interval        time.Duration
	CallDelay       time.Duration
	RecoveryEnabled bool
	RecoveryGrace   time.Duration
	LockKey         string
	LockTTL         time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:        time.Minute,
		CallDelay:       MinCallDelay,
		RecoveryEnabled: true,
		RecoveryGrace:   10 * time.Minute,
		LockKey:         "cryptopay-fulfillment:sweep",
		LockTTL:         5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.CallDelay < MinCallDelay {
		c.CallDelay = MinCallDelay
	}
	if c.RecoveryGrace <= 0 {
		c.RecoveryGrace = defaults.RecoveryGrace
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
