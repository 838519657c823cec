package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/waitlist-ops/internal/storage"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

// fakeClock advances one second per reading.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("rec-%d", n)
	}
}

// newFileBackedService wires the service to a FileStore in a temp dir.
func newFileBackedService(t *testing.T) (*WaitlistService, *storage.FileStore, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(filepath.Join(dir, "waitlist.json"), filepath.Join(dir, "waitlist.lock"), storage.DefaultLockPolicy())
	require.NoError(t, err)

	clock := newFakeClock()
	svc := NewWaitlistService(store, WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
	return svc, store, clock
}

func testContext(t *testing.T) context.Context {
	return logger.WithLogger(context.Background(), zaptest.NewLogger(t))
}
