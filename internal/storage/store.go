package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
)

// Store persists the whole waitlist collection as one unit.
type Store interface {
	// Load returns the full collection in stored order.
	Load(ctx context.Context) ([]model.WaitlistRecord, error)
	// Save replaces the full collection atomically.
	Save(ctx context.Context, records []model.WaitlistRecord) error
	// WithLock runs fn while holding the writer lock. Load and Save calls made
	// with the context passed to fn take part in the locked section.
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// OnTimeout decides what WithLock does when the lock cannot be acquired in time.
type OnTimeout string

const (
	// OnTimeoutProceed enters the critical section without the lock (fail-open).
	OnTimeoutProceed OnTimeout = "proceed"
	// OnTimeoutReject returns apperrors.ErrTimeout without running the critical section.
	OnTimeoutReject OnTimeout = "reject"
)

const (
	DefaultLockTimeout       = 2500 * time.Millisecond
	DefaultLockRetryInterval = 60 * time.Millisecond
)

// LockPolicy bounds how long a writer waits for the lock.
type LockPolicy struct {
	Timeout       time.Duration
	RetryInterval time.Duration
	OnTimeout     OnTimeout
}

// DefaultLockPolicy waits 2.5s polling every 60ms, then proceeds anyway.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		Timeout:       DefaultLockTimeout,
		RetryInterval: DefaultLockRetryInterval,
		OnTimeout:     OnTimeoutProceed,
	}
}

// withDefaults fills zero values from DefaultLockPolicy.
func (p LockPolicy) withDefaults() LockPolicy {
	def := DefaultLockPolicy()
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.RetryInterval <= 0 {
		p.RetryInterval = def.RetryInterval
	}
	if p.OnTimeout != OnTimeoutReject {
		p.OnTimeout = OnTimeoutProceed
	}
	return p
}
