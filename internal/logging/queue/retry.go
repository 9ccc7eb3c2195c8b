package queue

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrQueueFull = errors.New("channel queue is full")

type OverflowAction string

const (
	// OverflowDropOldest evicts the oldest pending entry to make room.
	OverflowDropOldest OverflowAction = "drop-oldest"
	// OverflowRejectNew refuses the incoming entry with ErrQueueFull.
	OverflowRejectNew OverflowAction = "reject-new"
)

// RetryPolicy controls what happens to a batch the writer rejected.
type RetryPolicy struct {
	// MaxAttempts is the number of consecutive failed writes after which the
	// failing batch is dropped. 0 retries forever.
	MaxAttempts     int            `koanf:"max_attempts" validate:"gte=0"`
	InitialInterval time.Duration  `koanf:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration  `koanf:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64        `koanf:"multiplier" validate:"gte=1"`
	// MaxPending bounds the pending entries of one channel. 0 is unbounded.
	MaxPending      int            `koanf:"max_pending" validate:"gte=0"`
	Overflow        OverflowAction `koanf:"overflow" validate:"oneof=drop-oldest reject-new"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     10,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		MaxPending:      100000,
		Overflow:        OverflowDropOldest,
	}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p RetryPolicy) exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}
