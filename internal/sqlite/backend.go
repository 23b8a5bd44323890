// Package sqlite implements the SQLite persistence backend for staged
// records: schema migrations, the record store that reconciles tracked
// collections, and JSONL export and import.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/stage/pkg/types"
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "stage.db"

// Backend owns the SQLite connection. Attach opens the database and applies
// pending migrations; Detach releases it.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	logger   *slog.Logger
	migrator *Migrator
	applied  []string // migrations applied by the last Attach
	records  *RecordStore
}

// NewBackend creates a backend that is not attached. A nil logger discards
// log output.
func NewBackend(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Backend{logger: logger}
	b.records = &RecordStore{backend: b}
	return b
}

// Attach validates config, creates DataDir if needed, opens the database and
// applies pending migrations from MigrationsDir, or from the embedded set
// when MigrationsDir is empty.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(ctx context.Context, config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	source, err := migrationSource(config.MigrationsDir)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	migrator, err := NewMigrator(db, source, b.logger)
	if err != nil {
		db.Close()
		return err
	}
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	b.db = db
	b.config = config
	b.migrator = migrator
	b.applied = applied
	b.attached = true

	b.logger.Info("backend attached", "path", dbPath, "migrations_applied", len(applied))
	return nil
}

// migrationSource returns the directory at dir, or the embedded migrations.
func migrationSource(dir string) (fs.FS, error) {
	if dir == "" {
		return EmbeddedMigrations(), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations dir: %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	b.migrator = nil
	b.applied = nil

	if b.db != nil {
		err := b.db.Close()
		b.db = nil
		if err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}
	b.logger.Info("backend detached")
	return nil
}

// Records returns the record store.
// Returns ErrBackendDetached if the backend is not attached.
func (b *Backend) Records() (*RecordStore, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	return b.records, nil
}

// Migrator returns the migrator bound to the open database.
// Returns ErrBackendDetached if the backend is not attached.
func (b *Backend) Migrator() (*Migrator, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	return b.migrator, nil
}

// Applied returns the migrations applied by the most recent Attach.
func (b *Backend) Applied() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.applied...)
}

// Config returns the configuration passed to Attach.
func (b *Backend) Config() types.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// generateUUID generates a new UUID v7 for record IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}
