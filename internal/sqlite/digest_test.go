package sqlite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stage/pkg/types"
)

func TestFileDigest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("one\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two\n"), 0o644))

	da, err := FileDigest(a)
	require.NoError(t, err)
	assert.Len(t, da, 64)

	again, err := FileDigest(a)
	require.NoError(t, err)
	assert.Equal(t, da, again)

	db, err := FileDigest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)

	_, err = FileDigest(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestVerifyDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x"}`+"\n"), 0o644))
	digest, err := FileDigest(path)
	require.NoError(t, err)

	assert.NoError(t, VerifyDigest(path, digest))
	assert.NoError(t, VerifyDigest(path, strings.ToUpper(digest)))
	assert.ErrorIs(t, VerifyDigest(path, strings.Repeat("0", 64)), types.ErrDigestMismatch)
}
