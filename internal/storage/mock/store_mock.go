package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
)

// StoreMock mocks storage.Store. WithLock runs the critical section unless
// the expectation returns an error, so callers can assert on Load/Save calls
// made inside it.
type StoreMock struct {
	mock.Mock
}

// Load mocks the Load method
func (m *StoreMock) Load(ctx context.Context) ([]model.WaitlistRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.WaitlistRecord), args.Error(1)
}

// Save mocks the Save method
func (m *StoreMock) Save(ctx context.Context, records []model.WaitlistRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

// WithLock mocks the WithLock method
func (m *StoreMock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
