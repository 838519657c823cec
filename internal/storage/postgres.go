package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

// --- Retry Logic Configuration ---
const (
	defaultRetryInitialInterval = 50 * time.Millisecond
	defaultRetryMaxInterval     = 2 * time.Second
	readRetryMaxElapsedTime     = 5 * time.Second
	writeRetryMaxElapsedTime    = 15 * time.Second

	postgresBackend = "postgres"
	saveBatchSize   = 200

	// advisoryLockKey identifies the waitlist writer lock in pg_try_advisory_xact_lock.
	advisoryLockKey int64 = 0x5741_4954_4c53 // "WAITLS"
)

// waitlistRow is the relational shape of a WaitlistRecord. Position keeps collection order.
type waitlistRow struct {
	Position        int        `gorm:"column:position;primaryKey;autoIncrement:false"`
	ID              string     `gorm:"column:id;type:text;index"`
	CreatedAt       *time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt       *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	ReviewedAt      *time.Time `gorm:"column:reviewed_at"`
	ReviewedBy      string     `gorm:"column:reviewed_by;type:text"`
	ReviewNote      string     `gorm:"column:review_note;type:text"`
	LastContactedAt *time.Time `gorm:"column:last_contacted_at"`
	Source          string     `gorm:"column:source;type:text"`
	Intent          string     `gorm:"column:intent;type:text"`
	LastSource      string     `gorm:"column:last_source;type:text"`
	LastIntent      string     `gorm:"column:last_intent;type:text"`
	Email           string     `gorm:"column:email;type:text;not null;index"`
	FullName        string     `gorm:"column:full_name;type:text"`
	Company         string     `gorm:"column:company;type:text"`
	Role            string     `gorm:"column:role;type:text"`
	Location        string     `gorm:"column:location;type:text"`
	Module          string     `gorm:"column:module;type:text"`
	Volume          string     `gorm:"column:volume;type:text"`
	Notes           string     `gorm:"column:notes;type:text"`
	UserAgent       string     `gorm:"column:user_agent;type:text"`
	IP              string     `gorm:"column:ip;type:text"`
}

// TableName implements gorm's Tabler.
func (waitlistRow) TableName() string { return "waitlist_records" }

func toRow(position int, r model.WaitlistRecord) waitlistRow {
	return waitlistRow{
		Position:        position,
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ReviewedAt:      r.ReviewedAt,
		ReviewedBy:      r.ReviewedBy,
		ReviewNote:      r.ReviewNote,
		LastContactedAt: r.LastContactedAt,
		Source:          string(r.Source),
		Intent:          string(r.Intent),
		LastSource:      string(r.LastSource),
		LastIntent:      string(r.LastIntent),
		Email:           r.Email,
		FullName:        r.FullName,
		Company:         r.Company,
		Role:            r.Role,
		Location:        r.Location,
		Module:          r.Module,
		Volume:          r.Volume,
		Notes:           r.Notes,
		UserAgent:       r.UserAgent,
		IP:              r.IP,
	}
}

func (row waitlistRow) toRecord() model.WaitlistRecord {
	return model.WaitlistRecord{
		ID:              row.ID,
		CreatedAt:       utcPtr(row.CreatedAt),
		UpdatedAt:       utcPtr(row.UpdatedAt),
		ReviewedAt:      utcPtr(row.ReviewedAt),
		ReviewedBy:      row.ReviewedBy,
		ReviewNote:      row.ReviewNote,
		LastContactedAt: utcPtr(row.LastContactedAt),
		Source:          model.Source(row.Source),
		Intent:          model.Intent(row.Intent),
		LastSource:      model.Source(row.LastSource),
		LastIntent:      model.Intent(row.LastIntent),
		Email:           row.Email,
		FullName:        row.FullName,
		Company:         row.Company,
		Role:            row.Role,
		Location:        row.Location,
		Module:          row.Module,
		Volume:          row.Volume,
		Notes:           row.Notes,
		UserAgent:       row.UserAgent,
		IP:              row.IP,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// newRetryPolicy creates a new exponential backoff policy with context awareness.
func newRetryPolicy(ctx context.Context, maxElapsedTime time.Duration) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitialInterval
	b.MaxInterval = defaultRetryMaxInterval
	b.MaxElapsedTime = maxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// retryableOperation wraps a database operation with retry logic.
func retryableOperation(ctx context.Context, policy backoff.BackOffContext, opName string, operation func() error) error {
	notify := func(err error, d time.Duration) {
		logger.FromContext(ctx).Warn("Retrying DB operation",
			zap.String("operation", opName),
			zap.Error(err),
			zap.Duration("after", d),
		)
	}

	return backoff.RetryNotify(func() error {
		err := classifyDBError(operation(), opName)
		if err == nil || apperrors.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, notify)
}

// classifyDBError wraps err as retryable when it looks transient and as fatal
// otherwise. Errors already classified are returned as is.
func classifyDBError(err error, opName string) error {
	if err == nil || apperrors.IsRetryable(err) || apperrors.IsFatal(err) {
		return err
	}
	if !errors.Is(err, gorm.ErrInvalidTransaction) && isTransientError(err) {
		return apperrors.NewRetryable(err, "postgres %s", opName)
	}
	return apperrors.NewFatal(err, "postgres %s", opName)
}

// isTransientError checks if the error suggests a temporary issue like a network problem.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 connection exception, class 53 insufficient resources,
		// 40P01 deadlock, 40001 serialization failure.
		if strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			pgErr.Code == "40P01" ||
			pgErr.Code == "40001" {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	transientIndicators := []string{
		"connection refused",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"connection reset by peer",
		"could not translate host name",
		"no route to host",
		"database system is starting up",
		"connection timed out",
		"connection reset",
	}
	for _, indicator := range transientIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

type txKey struct{}

// PostgresStore keeps the collection in the waitlist_records table. Save replaces
// every row in one transaction; WithLock serializes writers with a transaction
// scoped advisory lock.
type PostgresStore struct {
	db         *gorm.DB
	lockPolicy LockPolicy
}

// NewPostgresStore connects with retries and optionally migrates the table.
func NewPostgresStore(dsn string, autoMigrate bool, policy LockPolicy) (*PostgresStore, error) {
	connect := func() (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			err = classifyDBError(fmt.Errorf("%w: failed to connect to postgres: %w", apperrors.ErrDatabase, err), "connect")
			if apperrors.IsRetryable(err) {
				logger.Log.Warn("Failed to connect to postgres (transient), retrying...", zap.Error(err))
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return db, nil
	}

	notify := func(err error, d time.Duration) {
		logger.Log.Warn("Retrying DB connection", zap.Error(err), zap.Duration("after", d))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 1 * time.Minute

	db, err := backoff.RetryNotifyWithData(connect, b, notify)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after retries: %w", err)
	}

	store := NewPostgresStoreWithDB(db, policy)
	if autoMigrate {
		if err := store.Migrate(context.Background()); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing gorm handle.
func NewPostgresStoreWithDB(db *gorm.DB, policy LockPolicy) *PostgresStore {
	return &PostgresStore{db: db, lockPolicy: policy.withDefaults()}
}

// Migrate creates or updates the waitlist_records table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	logger.FromContext(ctx).Info("Running auto-migration", zap.String("table", waitlistRow{}.TableName()))
	if err := s.db.WithContext(ctx).AutoMigrate(&waitlistRow{}); err != nil {
		return fmt.Errorf("%w: auto-migrate waitlist_records: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// conn returns the locked transaction bound to ctx, or the pool.
func (s *PostgresStore) conn(ctx context.Context) (*gorm.DB, bool) {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx, true
	}
	return s.db.WithContext(ctx), false
}

// run retries op outside a transaction. Inside one a failed statement aborts
// the transaction, so op runs once.
func (s *PostgresStore) run(ctx context.Context, inTx bool, opName string, maxElapsed time.Duration, op func() error) error {
	if inTx {
		return op()
	}
	return retryableOperation(ctx, newRetryPolicy(ctx, maxElapsed), opName, op)
}

// Load returns every row ordered by position. Unlike FileStore, errors are
// returned rather than treated as an empty collection.
func (s *PostgresStore) Load(ctx context.Context) ([]model.WaitlistRecord, error) {
	start := time.Now()
	db, inTx := s.conn(ctx)

	var rows []waitlistRow
	err := s.run(ctx, inTx, "load", readRetryMaxElapsedTime, func() error {
		rows = rows[:0]
		return db.Order("position ASC").Find(&rows).Error
	})
	observer.ObserveStoreOperation(postgresBackend, "load", time.Since(start), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to load waitlist records", zap.Error(err))
		return nil, fmt.Errorf("%w: load waitlist records: %w", apperrors.ErrDatabase, err)
	}

	records := make([]model.WaitlistRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// Save deletes every row and inserts the collection in one transaction.
func (s *PostgresStore) Save(ctx context.Context, records []model.WaitlistRecord) error {
	start := time.Now()
	rows := make([]waitlistRow, 0, len(records))
	for i, r := range records {
		rows = append(rows, toRow(i+1, r))
	}

	replace := func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM waitlist_records").Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, saveBatchSize).Error
	}

	db, inTx := s.conn(ctx)
	err := s.run(ctx, inTx, "save", writeRetryMaxElapsedTime, func() error {
		if inTx {
			return replace(db)
		}
		return db.Transaction(replace)
	})
	observer.ObserveStoreOperation(postgresBackend, "save", time.Since(start), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save waitlist records", zap.Int("records", len(rows)), zap.Error(err))
		return fmt.Errorf("%w: save waitlist records: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

// WithLock opens a transaction, takes the advisory lock under the lock policy
// and runs fn with the transaction bound to its context. The lock is released
// when the transaction ends. Nested calls reuse the outer transaction.
func (s *PostgresStore) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, inTx := s.conn(ctx); inTx {
		return fn(ctx)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := acquireLock(ctx, s.lockPolicy, postgresBackend, func() (bool, error) {
			var locked bool
			if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", advisoryLockKey).Row().Scan(&locked); err != nil {
				return false, classifyDBError(fmt.Errorf("%w: advisory lock: %w", apperrors.ErrDatabase, err), "advisory lock")
			}
			return locked, nil
		})
		if err != nil {
			return err
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
