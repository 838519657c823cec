package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

var errLockHeld = errors.New("lock held by another writer")

// newLockBackoff polls at a fixed interval until the policy timeout elapses.
func newLockBackoff(ctx context.Context, policy LockPolicy) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.RetryInterval
	b.MaxInterval = policy.RetryInterval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = policy.Timeout
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// acquireLock calls try until it reports success or the policy runs out.
// It returns acquired=false with a nil error when the policy fails open.
func acquireLock(ctx context.Context, policy LockPolicy, backend string, try func() (bool, error)) (bool, error) {
	start := time.Now()
	err := backoff.Retry(func() error {
		ok, err := try()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, newLockBackoff(ctx, policy))
	observer.ObserveLockWait(backend, time.Since(start))

	if err == nil {
		return true, nil
	}
	if !errors.Is(err, errLockHeld) {
		return false, err
	}

	observer.IncLockTimeout(backend, string(policy.OnTimeout))
	log := logger.FromContext(ctx).With(
		zap.String("backend", backend),
		zap.Duration("timeout", policy.Timeout),
	)
	if policy.OnTimeout == OnTimeoutReject {
		log.Warn("Lock not acquired in time, rejecting")
		return false, fmt.Errorf("%w: lock not acquired within %s", apperrors.ErrTimeout, policy.Timeout)
	}
	log.Warn("Lock not acquired in time, proceeding without it")
	return false, nil
}
