package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
	"gitlab.com/timkado/api/waitlist-ops/pkg/utils"
)

const fileBackend = "file"

// FileStore keeps the collection in a single JSON document guarded by a marker-file lock.
// The lock is advisory and only coordinates writers on one host.
type FileStore struct {
	path       string
	lockPath   string
	lockPolicy LockPolicy
}

// NewFileStore creates a FileStore and makes sure the parent directories exist.
func NewFileStore(path, lockPath string, policy LockPolicy) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: store path is empty", apperrors.ErrValidation)
	}
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create store directory %s: %w", apperrors.ErrStorage, dir, err)
		}
	}
	return &FileStore{
		path:       path,
		lockPath:   lockPath,
		lockPolicy: policy.withDefaults(),
	}, nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Load reads the document. Missing, unreadable or malformed documents yield an
// empty collection. Elements that cannot be normalized are skipped.
func (s *FileStore) Load(ctx context.Context) ([]model.WaitlistRecord, error) {
	start := time.Now()
	records := s.read(ctx)
	observer.ObserveStoreOperation(fileBackend, "load", time.Since(start), nil)
	return records, nil
}

func (s *FileStore) read(ctx context.Context) []model.WaitlistRecord {
	log := logger.FromContext(ctx).With(zap.String("path", s.path))
	records := []model.WaitlistRecord{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Failed to read waitlist document, treating as empty", zap.Error(err))
		}
		return records
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn("Malformed waitlist document, treating as empty", zap.Error(err))
		return records
	}

	skipped := 0
	for _, elem := range raw {
		obj, _ := elem.(map[string]interface{})
		rec, err := model.NormalizeRecord(obj)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		log.Warn("Skipped unusable waitlist records", zap.Int("skipped", skipped), zap.Int("loaded", len(records)))
	}
	return records
}

// Save writes the collection as 2-space indented JSON to a temp file in the
// document's directory, then renames it over the document.
func (s *FileStore) Save(ctx context.Context, records []model.WaitlistRecord) error {
	start := time.Now()
	err := s.write(records)
	observer.ObserveStoreOperation(fileBackend, "save", time.Since(start), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save waitlist document", zap.String("path", s.path), zap.Error(err))
		return err
	}
	return nil
}

func (s *FileStore) write(records []model.WaitlistRecord) error {
	if records == nil {
		records = []model.WaitlistRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode waitlist: %w", apperrors.ErrStorage, err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", apperrors.ErrStorage, s.path, err)
	}
	logger.Log.Debug("Saved waitlist document",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
		zap.String("size", utils.ByteCountSI(int64(len(data)))),
	)
	return nil
}

// WithLock runs fn holding the marker-file lock. The marker is removed when fn
// returns, including after a fail-open entry, which clears a marker left by a
// crashed holder.
func (s *FileStore) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	acquired, err := acquireLock(ctx, s.lockPolicy, fileBackend, s.tryCreateMarker)
	if err != nil {
		return err
	}
	defer s.removeMarker(ctx, acquired)
	return fn(ctx)
}

func (s *FileStore) tryCreateMarker() (bool, error) {
	f, err := os.OpenFile(s.lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: create lock marker: %w", apperrors.ErrStorage, err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()
	return true, nil
}

func (s *FileStore) removeMarker(ctx context.Context, acquired bool) {
	if err := os.Remove(s.lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.FromContext(ctx).Warn("Failed to remove lock marker",
			zap.String("lock_path", s.lockPath),
			zap.Bool("acquired", acquired),
			zap.Error(err),
		)
	}
}
