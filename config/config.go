// Package config provides server-side tuning for the reply-polling engine.
package config

import (
	"errors"
	"time"
)

// Config holds the poll-loop knobs. Attempt budget times interval (plus the
// initial delay) bounds worst-case turn latency; keep the product below the
// HTTP server's write timeout.
type Config struct {
	// PollAttempts is the fixed attempt budget per turn.
	PollAttempts int `json:"poll_attempts"`
	// PollIntervalMS is the fixed delay between attempts, in milliseconds.
	// No exponential backoff: the bot is expected to answer quickly once
	// ready, so a short fixed interval keeps worst-case latency predictable.
	PollIntervalMS int `json:"poll_interval_ms"`
	// InitialDelayMS is the grace period between posting the user message
	// and the first poll, in milliseconds.
	InitialDelayMS int `json:"initial_delay_ms"`
}

func Default() Config {
	return Config{
		PollAttempts:   3,
		PollIntervalMS: 1000,
		InitialDelayMS: 1500,
	}
}

func (c Config) Validate() error {
	if c.PollAttempts < 1 {
		return errors.New("poll_attempts must be at least 1")
	}
	if c.PollIntervalMS < 0 {
		return errors.New("poll_interval_ms must not be negative")
	}
	if c.InitialDelayMS < 0 {
		return errors.New("initial_delay_ms must not be negative")
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMS) * time.Millisecond
}
