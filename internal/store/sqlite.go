package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/logging"
	_ "modernc.org/sqlite"
)

// SQLiteStore provides SQLite-backed storage with WAL mode. It is
// thread-safe and supports concurrent access.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *logging.Logger

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

// NewSQLiteStore opens (or creates) the database at dbPath, runs
// migrations and starts the hourly expired-row sweep.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=cache_size(2000)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{
		db:        db,
		logger:    logging.New(logging.WithComponent("store")),
		sweepDone: make(chan struct{}),
	}
	store.startSweep()

	return store, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS xero_connections (
					company_id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL DEFAULT '',
					client_secret TEXT NOT NULL DEFAULT '',
					redirect_uri TEXT NOT NULL DEFAULT '',
					access_token TEXT NOT NULL DEFAULT '',
					refresh_token TEXT NOT NULL DEFAULT '',
					token_expires_at DATETIME,
					tenant_id TEXT NOT NULL DEFAULT '',
					organisation_name TEXT NOT NULL DEFAULT '',
					tenants TEXT NOT NULL DEFAULT '[]',
					status TEXT NOT NULL DEFAULT 'not_configured',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS oauth_states (
					state TEXT PRIMARY KEY,
					company_id TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_oauth_states_created_at ON oauth_states(created_at);
			`,
		},
		{
			version: 2,
			up: `
				CREATE TABLE IF NOT EXISTS api_cache (
					company_id TEXT NOT NULL,
					tenant_id TEXT NOT NULL,
					resource TEXT NOT NULL,
					payload TEXT NOT NULL,
					expires_at DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (company_id, tenant_id, resource)
				);

				CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// startSweep starts the hourly cleanup of expired states and cache rows.
func (s *SQLiteStore) startSweep() {
	s.sweepTicker = time.NewTicker(time.Hour)
	go func() {
		for {
			select {
			case <-s.sweepTicker.C:
				s.sweepExpired()
			case <-s.sweepDone:
				return
			}
		}
	}()
}

func (s *SQLiteStore) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM oauth_states WHERE created_at < ?", time.Now().Add(-StateTTL)); err != nil {
		s.logger.Error("sweep failed", "table", "oauth_states", "error", err.Error())
	}
	if _, err := s.db.Exec("DELETE FROM api_cache WHERE expires_at < ?", time.Now()); err != nil {
		s.logger.Error("sweep failed", "table", "api_cache", "error", err.Error())
	}
}

// Close gracefully shuts down the store. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.sweepTicker != nil {
			s.sweepTicker.Stop()
			close(s.sweepDone)
		}
		if s.db != nil {
			err = s.db.Close()
		}
	})
	return err
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
