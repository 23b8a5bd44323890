package sqlite

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/mesh-intelligence/stage/pkg/types"
)

// FileDigest returns the hex BLAKE2b-256 digest of the file at path, as
// written to disk (after compression).
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyDigest returns ErrDigestMismatch unless the file at path has the
// digest want. Case is ignored.
func VerifyDigest(path, want string) error {
	got, err := FileDigest(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w: %s is %s, want %s", types.ErrDigestMismatch, path, got, want)
	}
	return nil
}
