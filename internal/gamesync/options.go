package gamesync

import (
	"time"

	"github.com/kwizz/kwizz-go/internal/telemetry"
)

const (
	DefaultPollInterval = 2500 * time.Millisecond
	DefaultBackoffBase  = time.Second
	DefaultMaxRetries   = 5
)

type Options struct {
	// PollInterval is how often the game is re-fetched while the change
	// feed is not connected.
	PollInterval time.Duration
	// BackoffBase scales the reconnect delay, BackoffBase * 2^retry.
	BackoffBase time.Duration
	// MaxRetries is the number of consecutive failed reconnects tolerated
	// before the handle gives up.
	MaxRetries int
	Telemetry  telemetry.Sink
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Telemetry == nil {
		o.Telemetry = telemetry.Nop
	}
	return o
}

func (o Options) backoff(retry int) time.Duration {
	return o.BackoffBase << uint(retry)
}
