// Package app builds and caches the services a stage process needs.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mesh-intelligence/stage/internal/api"
	"github.com/mesh-intelligence/stage/internal/kernel"
	"github.com/mesh-intelligence/stage/internal/sqlite"
	public "github.com/mesh-intelligence/stage/pkg/sqlite"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// Container constructs each service on first use and returns the same
// instance afterwards.
type Container struct {
	config types.Config
	logOut io.Writer

	mu      sync.Mutex
	logger  *slog.Logger
	backend *sqlite.Backend
	kernel  *kernel.Kernel
}

// New returns a container for config. Log output goes to logOut, or stderr
// when logOut is nil.
func New(config types.Config, logOut io.Writer) *Container {
	if logOut == nil {
		logOut = os.Stderr
	}
	return &Container{config: config, logOut: logOut}
}

// Config returns the configuration the container was built with.
func (c *Container) Config() types.Config { return c.config }

// Logger returns the process logger.
func (c *Container) Logger() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggerLocked()
}

func (c *Container) loggerLocked() *slog.Logger {
	if c.logger == nil {
		c.logger = NewLogger(c.logOut, c.config)
	}
	return c.logger
}

// Backend returns the attached backend, attaching it on the first call. A
// failed attach is not cached; the next call tries again.
func (c *Container) Backend(ctx context.Context) (*sqlite.Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return c.backend, nil
	}
	b, err := public.Open(ctx, c.config, c.loggerLocked())
	if err != nil {
		return nil, err
	}
	c.backend = b
	return b, nil
}

// Records returns the record store of Backend.
func (c *Container) Records(ctx context.Context) (*sqlite.RecordStore, error) {
	b, err := c.Backend(ctx)
	if err != nil {
		return nil, err
	}
	return b.Records()
}

// Kernel returns the HTTP kernel with every route registered. The backend is
// attached by the first request that needs it.
func (c *Container) Kernel() *kernel.Kernel {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kernel == nil {
		logger := c.loggerLocked()
		k := kernel.New(logger)
		store := func(ctx context.Context) (api.Records, error) {
			return c.Records(ctx)
		}
		api.NewHandler(store, logger).Register(k)
		c.kernel = k
	}
	return c.kernel
}

// Close detaches the backend if it was attached.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend == nil {
		return nil
	}
	err := c.backend.Detach()
	c.backend = nil
	return err
}

// NewLogger returns a slog logger writing to w at config's level, as text or
// JSON per LogFormat. An unparsable level falls back to info.
func NewLogger(w io.Writer, config types.Config) *slog.Logger {
	level, _ := config.Level()
	opts := &slog.HandlerOptions{Level: level}
	if config.LogFormat == types.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
