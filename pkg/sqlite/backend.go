// Package sqlite is the public entry point to the SQLite record backend.
// Implementation details stay in internal/sqlite.
package sqlite

import (
	"context"
	"log/slog"

	"github.com/mesh-intelligence/stage/internal/sqlite"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// Backend is an attached SQLite database holding records.
type Backend = sqlite.Backend

// Open creates a backend and attaches it to config, applying pending
// migrations. The caller must Detach it.
//
// Example:
//
//	b, err := sqlite.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".stage-data",
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer b.Detach()
func Open(ctx context.Context, config types.Config, logger *slog.Logger) (*Backend, error) {
	b := sqlite.NewBackend(logger)
	if err := b.Attach(ctx, config); err != nil {
		return nil, err
	}
	return b, nil
}
