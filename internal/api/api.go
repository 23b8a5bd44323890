// Package api registers the record routes on a kernel.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mesh-intelligence/stage/internal/kernel"
	"github.com/mesh-intelligence/stage/internal/sqlite"
	"github.com/mesh-intelligence/stage/pkg/collection"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// Records is the part of the record store the routes use.
type Records interface {
	Get(ctx context.Context, id string) (*types.Record, error)
	Load(ctx context.Context, kind string) (*collection.Tracked[*types.Record], error)
	Reconcile(ctx context.Context, t *collection.Tracked[*types.Record]) (sqlite.Result, error)
}

// StoreFunc returns the record store for a request. It is called once per
// request so that the backend can be attached lazily.
type StoreFunc func(ctx context.Context) (Records, error)

// Handler serves the record routes.
type Handler struct {
	store  StoreFunc
	logger *slog.Logger
}

// NewHandler returns a Handler reading and writing through store.
func NewHandler(store StoreFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{store: store, logger: logger}
}

// Register adds every route to k.
func (h *Handler) Register(k *kernel.Kernel) {
	k.Handle("GET /records", h.list)
	k.Handle("POST /records", h.change)
	k.Handle("GET /records/{id}", h.get)
	k.Handle("DELETE /records/{id}", h.remove)
}

// NewRecord is one record to add in a ChangeRequest.
type NewRecord struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// ChangeRequest is the body of POST /records.
type ChangeRequest struct {
	Kind   string      `json:"kind"`
	Add    []NewRecord `json:"add"`
	Remove []string    `json:"remove"`
}

// ChangeResponse reports what a POST /records did.
type ChangeResponse struct {
	Result sqlite.Result   `json:"result"`
	Added  []*types.Record `json:"added"`
}

func (h *Handler) list(ctx context.Context, r *http.Request) (kernel.Response, error) {
	store, err := h.store(ctx)
	if err != nil {
		return kernel.Response{}, err
	}
	tracked, err := store.Load(ctx, r.URL.Query().Get("kind"))
	if err != nil {
		return kernel.Response{}, err
	}
	return kernel.JSON(http.StatusOK, tracked), nil
}

func (h *Handler) change(ctx context.Context, r *http.Request) (kernel.Response, error) {
	var req ChangeRequest
	if err := kernel.Decode(r, &req); err != nil {
		return kernel.Response{}, err
	}
	req.Kind = strings.TrimSpace(req.Kind)
	if req.Kind == "" {
		return kernel.Response{}, types.ErrInvalidKind
	}

	store, err := h.store(ctx)
	if err != nil {
		return kernel.Response{}, err
	}
	tracked, err := store.Load(ctx, req.Kind)
	if err != nil {
		return kernel.Response{}, err
	}

	byID := make(map[string]*types.Record, tracked.Len())
	for _, rec := range tracked.Clean() {
		byID[rec.RecordID] = rec
	}
	for _, id := range req.Remove {
		rec, ok := byID[id]
		if !ok {
			// Unknown IDs still reach the store so that they are counted,
			// once each however often they are named.
			rec = &types.Record{RecordID: id, Kind: req.Kind}
			byID[id] = rec
		}
		if err := tracked.Remove(rec); err != nil {
			return kernel.Response{}, err
		}
	}

	added := make([]*types.Record, 0, len(req.Add))
	for _, a := range req.Add {
		rec := types.NewRecord(req.Kind, a.Name, a.Body)
		if err := rec.Validate(); err != nil {
			return kernel.Response{}, err
		}
		if err := tracked.Add(rec); err != nil {
			return kernel.Response{}, err
		}
		added = append(added, rec)
	}

	res, err := store.Reconcile(ctx, tracked)
	if err != nil {
		return kernel.Response{}, err
	}
	if rc, ok := kernel.FromContext(ctx); ok {
		h.logger.InfoContext(ctx, "records changed", "request_id", rc.ID, "kind", req.Kind,
			"inserted", res.Inserted, "deleted", res.Deleted, "missing", res.Missing)
	}
	return kernel.JSON(http.StatusOK, ChangeResponse{Result: res, Added: added}), nil
}

func (h *Handler) get(ctx context.Context, r *http.Request) (kernel.Response, error) {
	store, err := h.store(ctx)
	if err != nil {
		return kernel.Response{}, err
	}
	rec, err := store.Get(ctx, r.PathValue("id"))
	if err != nil {
		return kernel.Response{}, err
	}
	return kernel.JSON(http.StatusOK, rec), nil
}

func (h *Handler) remove(ctx context.Context, r *http.Request) (kernel.Response, error) {
	store, err := h.store(ctx)
	if err != nil {
		return kernel.Response{}, err
	}
	rec, err := store.Get(ctx, r.PathValue("id"))
	if err != nil {
		return kernel.Response{}, err
	}
	tracked, err := store.Load(ctx, rec.Kind)
	if err != nil {
		return kernel.Response{}, err
	}
	for _, candidate := range tracked.Clean() {
		if candidate.RecordID == rec.RecordID {
			rec = candidate
			break
		}
	}
	if err := tracked.Remove(rec); err != nil {
		return kernel.Response{}, err
	}
	if _, err := store.Reconcile(ctx, tracked); err != nil {
		return kernel.Response{}, err
	}
	return kernel.NoContent(), nil
}
