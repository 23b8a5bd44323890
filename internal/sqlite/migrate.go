package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/mesh-intelligence/stage/pkg/types"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// EmbeddedMigrations returns the migrations compiled into the binary.
func EmbeddedMigrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	return sub
}

// migrationTimeLayout is the version prefix goose gives new migration files.
const migrationTimeLayout = "20060102150405"

// migrationTemplate is the content of a file written by CreateMigration.
var migrationTemplate = template.Must(template.New("migration").Parse(`-- +goose Up
-- Migration {{.Version}}. Statements run in a single transaction, in file order.

-- +goose Down
`))

var migrationNameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// MigrationStatus is one migration and whether it has been applied.
type MigrationStatus struct {
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Migrator applies goose *.sql migrations from a source directory in version
// order. Applied versions are recorded in goose_db_version.
type Migrator struct {
	provider *goose.Provider
	logger   *slog.Logger
}

// NewMigrator returns a migrator over the *.sql files at the root of source.
// A nil logger discards output. Returns an error if a file name has no
// numeric version prefix or two files share a version.
func NewMigrator(db *sql.DB, source fs.FS, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	provider, err := goose.NewProvider(database.DialectSQLite3, db, source)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Available returns the migration file names in version order.
func (m *Migrator) Available() []string {
	sources := m.provider.ListSources()
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = filepath.Base(s.Path)
	}
	return names
}

// Status returns every available migration in version order with its state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	results, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	statuses := make([]MigrationStatus, len(results))
	for i, r := range results {
		statuses[i] = MigrationStatus{
			Name:    filepath.Base(r.Source.Path),
			Applied: r.State == goose.StateApplied,
		}
		if statuses[i].Applied {
			at := r.AppliedAt
			statuses[i].AppliedAt = &at
		}
	}
	return statuses, nil
}

// Applied returns the names of the applied migrations in version order.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	return m.filter(ctx, true)
}

// Pending returns the names of the migrations not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	return m.filter(ctx, false)
}

func (m *Migrator) filter(ctx context.Context, applied bool) ([]string, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range statuses {
		if s.Applied == applied {
			names = append(names, s.Name)
		}
	}
	return names, nil
}

// Migrate applies every pending migration, each in its own transaction, and
// returns the names applied. It stops at the first failure; migrations
// applied before it stay applied.
func (m *Migrator) Migrate(ctx context.Context) ([]string, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		var partial *goose.PartialError
		if errors.As(err, &partial) && partial.Failed != nil {
			name := filepath.Base(partial.Failed.Source.Path)
			return m.names(partial.Applied), fmt.Errorf("apply migration %s: %w", name, partial.Err)
		}
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m.names(results), nil
}

func (m *Migrator) names(results []*goose.MigrationResult) []string {
	var names []string
	for _, r := range results {
		name := filepath.Base(r.Source.Path)
		m.logger.Debug("migration applied", "name", name, "duration", r.Duration)
		names = append(names, name)
	}
	return names
}

// MigrationName returns name as it appears in a migration file name:
// lowercased, with spaces and dashes turned into underscores. Anything left
// outside [a-z0-9_], or a leading digit, yields ErrMigrationName.
func MigrationName(name string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.NewReplacer(" ", "_", "-", "_").Replace(slug)
	if !migrationNameRE.MatchString(slug) {
		return "", fmt.Errorf("%w: %q", types.ErrMigrationName, name)
	}
	return slug, nil
}

// CreateMigration writes an empty goose migration named
// <timestamp>_<name>.sql into dir and returns its path. name is normalized by
// MigrationName. An existing migration with the same name yields
// ErrMigrationExists.
func CreateMigration(dir, name string) (string, error) {
	slug, err := MigrationName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return "", fmt.Errorf("list migrations: %w", err)
	}
	for _, p := range existing {
		// The prefix must be exactly a timestamp, so "add_x" does not match "x".
		version, rest, ok := strings.Cut(filepath.Base(p), "_")
		if ok && len(version) == len(migrationTimeLayout) && rest == slug+".sql" {
			return "", fmt.Errorf("%w: %s", types.ErrMigrationExists, p)
		}
	}

	// Versions have one-second resolution; wait out a second already taken.
	now := time.Now().UTC()
	taken := now.Format(migrationTimeLayout) + "_"
	if slices.ContainsFunc(existing, func(p string) bool { return strings.HasPrefix(filepath.Base(p), taken) }) {
		time.Sleep(time.Until(now.Truncate(time.Second).Add(time.Second)))
	}

	goose.SetLogger(goose.NopLogger())
	if err := goose.CreateWithTemplate(nil, dir, migrationTemplate, slug, "sql"); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", types.ErrMigrationExists, slug)
		}
		return "", fmt.Errorf("create migration: %w", err)
	}

	created, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return "", fmt.Errorf("list migrations: %w", err)
	}
	for _, p := range created {
		if !slices.Contains(existing, p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("create migration: no file written to %s", dir)
}

// SeedMigrations copies the embedded migrations into dir, skipping files that
// already exist, and returns the names it wrote. A directory seeded this way
// can replace the embedded set without losing the base schema.
func SeedMigrations(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations dir: %w", err)
	}
	source := EmbeddedMigrations()
	names, err := fs.Glob(source, "*.sql")
	if err != nil {
		return nil, err
	}

	var written []string
	for _, name := range names {
		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		data, err := fs.ReadFile(source, name)
		if err != nil {
			return written, fmt.Errorf("read %s: %w", name, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}
