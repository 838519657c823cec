package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for fixtures
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/waitlist-ops/internal/storage"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

// PostgresDSNEnv points the Postgres suites at a disposable database.
const PostgresDSNEnv = "WAITLIST_TEST_POSTGRES_DSN"

// --- Postgres Suite ---

// BasePostgresSuite connects to the database named by PostgresDSNEnv and
// empties the waitlist table before every test. Without the variable the
// suite is skipped.
type BasePostgresSuite struct {
	suite.Suite
	PostgresDSN string
	Store       *storage.PostgresStore
	DB          *sql.DB
	Ctx         context.Context
	cancel      context.CancelFunc
}

// SetupSuite runs once before the tests in the suite.
func (s *BasePostgresSuite) SetupSuite() {
	s.PostgresDSN = os.Getenv(PostgresDSNEnv)
	if s.PostgresDSN == "" {
		s.T().Skipf("%s not set, skipping postgres integration tests", PostgresDSNEnv)
	}

	s.Ctx, s.cancel = context.WithCancel(context.Background())
	logger.Log = zaptest.NewLogger(s.T()).Named("BasePostgresSuite")
	startTime := time.Now()

	var err error
	s.Store, err = storage.NewPostgresStore(s.PostgresDSN, true, fastLockPolicy())
	s.Require().NoError(err, "Failed to initialize postgres store")

	s.DB, err = connectDB(s.PostgresDSN)
	s.Require().NoError(err, "Failed to open fixture connection")

	log.Printf("BasePostgresSuite setup complete in %v", time.Since(startTime))
}

// TearDownSuite runs once after all tests in the suite.
func (s *BasePostgresSuite) TearDownSuite() {
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.T().Logf("Error closing postgres store: %v", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// SetupTest truncates the waitlist table.
func (s *BasePostgresSuite) SetupTest() {
	_, err := s.DB.ExecContext(s.Ctx, "TRUNCATE TABLE waitlist_records")
	s.Require().NoError(err, "Failed to truncate waitlist_records")
}

// CountRows returns the number of persisted records.
func (s *BasePostgresSuite) CountRows() int {
	var n int
	err := s.DB.QueryRowContext(s.Ctx, "SELECT COUNT(*) FROM waitlist_records").Scan(&n)
	s.Require().NoError(err)
	return n
}

// --- File Suite ---

// BaseFileSuite gives every test a fresh document store in a temp dir.
type BaseFileSuite struct {
	suite.Suite
	Dir   string
	Store *storage.FileStore
	Ctx   context.Context
}

// SetupTest creates the store for one test.
func (s *BaseFileSuite) SetupTest() {
	logger.Log = zaptest.NewLogger(s.T()).Named("BaseFileSuite")
	s.Ctx = context.Background()
	s.Dir = s.T().TempDir()

	var err error
	s.Store, err = storage.NewFileStore(filepath.Join(s.Dir, "waitlist.json"), filepath.Join(s.Dir, "waitlist.lock"), fastLockPolicy())
	s.Require().NoError(err)
}

// fastLockPolicy rejects instead of failing open so lost updates surface as errors.
func fastLockPolicy() storage.LockPolicy {
	return storage.LockPolicy{
		Timeout:       5 * time.Second,
		RetryInterval: 5 * time.Millisecond,
		OnTimeout:     storage.OnTimeoutReject,
	}
}

func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return db, nil
}
