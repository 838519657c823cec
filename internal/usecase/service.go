package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/storage"
	"gitlab.com/timkado/api/waitlist-ops/pkg/utils"
)

// WaitlistService implements intake and ops mutations on top of a Store.
// Every write is one load-modify-save cycle under the store lock.
type WaitlistService struct {
	store storage.Store
	now   func() time.Time
	newID func() string
}

// Option configures a WaitlistService
type Option func(*WaitlistService)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *WaitlistService) { s.now = now }
}

// WithIDGenerator overrides record ID generation
func WithIDGenerator(newID func() string) Option {
	return func(s *WaitlistService) { s.newID = newID }
}

// NewWaitlistService creates a new waitlist service
func NewWaitlistService(store storage.Store, opts ...Option) *WaitlistService {
	s := &WaitlistService{
		store: store,
		now:   utils.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the full collection. Reads take no lock.
func (s *WaitlistService) List(ctx context.Context) ([]model.WaitlistRecord, error) {
	return s.store.Load(ctx)
}

// timestamp returns a fresh pointer to the current time.
func (s *WaitlistService) timestamp() *time.Time {
	t := s.now().UTC()
	return &t
}
