package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stage/pkg/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrator_AppliesInOrderOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	source := fstest.MapFS{
		"002_second.sql": {Data: []byte("-- +goose Up\nALTER TABLE t ADD COLUMN b TEXT;\n")},
		"001_first.sql":  {Data: []byte("-- +goose Up\nCREATE TABLE t (a TEXT);\n")},
		"003_empty.sql":  {Data: []byte("-- +goose Up\n-- nothing yet\n")},
		"README.md":      {Data: []byte("ignored")},
	}
	m, err := NewMigrator(db, source, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "002_second.sql", "003_empty.sql"}, m.Available())

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.Available(), pending)

	applied, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, applied)

	applied, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	names, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 3)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Name)
		assert.NotNil(t, s.AppliedAt, s.Name)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO t (a, b) VALUES ('x', 'y')")
	assert.NoError(t, err)
}

func TestMigrator_FailureRollsBackThatMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	source := fstest.MapFS{
		"001_ok.sql":  {Data: []byte("-- +goose Up\nCREATE TABLE ok (a TEXT);\n")},
		"002_bad.sql": {Data: []byte("-- +goose Up\nCREATE TABLE half (a TEXT);\nNOT SQL;\n")},
	}
	m, err := NewMigrator(db, source, nil)
	require.NoError(t, err)

	applied, err := m.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_bad.sql")
	assert.Equal(t, []string{"001_ok.sql"}, applied)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_bad.sql"}, pending)

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'").Scan(&n))
	assert.Zero(t, n, "partial migration is rolled back")
}

func TestNewMigrator_DuplicateVersion(t *testing.T) {
	source := fstest.MapFS{
		"001_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"001_b.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
	}
	_, err := NewMigrator(openTestDB(t), source, nil)
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	m, err := NewMigrator(openTestDB(t), EmbeddedMigrations(), nil)
	require.NoError(t, err)
	assert.Contains(t, m.Available(), "20240101000000_create_records.sql")
}

func TestMigrationName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "add_tags", want: "add_tags"},
		{in: " Add Tags-Index ", want: "add_tags_index"},
		{in: "v2_schema", want: "v2_schema"},
		{in: "", wantErr: true},
		{in: "1abc", wantErr: true},
		{in: "drop;table", wantErr: true},
		{in: "../escape", wantErr: true},
		{in: "Bad!Name", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := MigrationName(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrMigrationName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	path, err := CreateMigration(dir, "Add Tags-Index")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `^\d{14}_add_tags_index\.sql$`, filepath.Base(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- +goose Up")
	assert.Contains(t, string(content), "-- +goose Down")

	t.Run("duplicate name", func(t *testing.T) {
		_, err := CreateMigration(dir, "add_tags_index")
		assert.ErrorIs(t, err, types.ErrMigrationExists)
	})

	t.Run("suffix of another name is not a duplicate", func(t *testing.T) {
		other, err := CreateMigration(dir, "index")
		require.NoError(t, err)
		assert.NotEqual(t, filepath.Base(path)[:14], filepath.Base(other)[:14], "versions are distinct")
	})

	t.Run("invalid name creates nothing", func(t *testing.T) {
		fresh := filepath.Join(t.TempDir(), "migrations")
		_, err := CreateMigration(fresh, "Bad!Name")
		assert.ErrorIs(t, err, types.ErrMigrationName)
		assert.NoDirExists(t, fresh)
	})

	t.Run("created migration is applied from a directory", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("-- +goose Up\nCREATE TABLE tags (name TEXT);\n"), 0o644))

		b := NewBackend(nil)
		require.NoError(t, b.Attach(context.Background(), types.Config{
			Backend:       types.BackendSQLite,
			DataDir:       t.TempDir(),
			MigrationsDir: dir,
		}))
		defer b.Detach()
		assert.Len(t, b.Applied(), 2)
	})
}

func TestSeedMigrations(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	written, err := SeedMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101000000_create_records.sql"}, written)

	again, err := SeedMigrations(dir)
	require.NoError(t, err)
	assert.Empty(t, again, "existing files are left alone")

	// A seeded directory attaches with the full schema.
	b := NewBackend(nil)
	require.NoError(t, b.Attach(context.Background(), types.Config{
		Backend:       types.BackendSQLite,
		DataDir:       t.TempDir(),
		MigrationsDir: dir,
	}))
	defer b.Detach()
	store, err := b.Records()
	require.NoError(t, err)
	_, err = store.List(context.Background(), "")
	assert.NoError(t, err)
}
