// Package kernel dispatches HTTP requests to handlers and turns their
// failures into JSON error envelopes.
//
// A handler returns a Response or an error; it never writes to the
// connection itself. Every failure, including an unmatched route or a panic,
// reaches the client as
//
//	{"error":{"reason":"...","code":404},"code":404}
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader names the header that carries the request ID in both
// directions.
const RequestIDHeader = "X-Request-ID"

// HandlerFunc serves one request.
type HandlerFunc func(ctx context.Context, r *http.Request) (Response, error)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Kernel routes requests on a net/http ServeMux.
type Kernel struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	middleware []Middleware
	now        func() time.Time
}

// New returns a kernel with no routes. A nil logger discards output.
func New(logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Kernel{
		mux:    http.NewServeMux(),
		logger: logger,
		now:    time.Now,
	}
}

// Use appends middleware applied to every handler registered afterwards.
// The first middleware added is the outermost.
func (k *Kernel) Use(mw ...Middleware) {
	k.middleware = append(k.middleware, mw...)
}

// Handle registers fn for pattern, using ServeMux pattern syntax
// ("GET /records/{id}").
func (k *Kernel) Handle(pattern string, fn HandlerFunc) {
	for i := len(k.middleware) - 1; i >= 0; i-- {
		fn = k.middleware[i](fn)
	}
	k.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k.dispatch(w, r, fn)
	}))
}

// ServeHTTP implements http.Handler.
func (k *Kernel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := &RequestContext{
		ID:      requestID(r),
		Method:  r.Method,
		Path:    r.URL.Path,
		Started: k.now(),
	}
	w.Header().Set(RequestIDHeader, rc.ID)
	r = r.WithContext(WithRequest(r.Context(), rc))

	if _, pattern := k.mux.Handler(r); pattern == "" {
		k.unmatched(w, r)
		return
	}
	k.mux.ServeHTTP(w, r)
}

func (k *Kernel) dispatch(w http.ResponseWriter, r *http.Request, fn HandlerFunc) {
	ctx := r.Context()
	defer func() {
		if v := recover(); v != nil {
			k.logger.ErrorContext(ctx, "handler panicked",
				"method", r.Method, "path", r.URL.Path, "panic", v)
			k.fail(w, r, fmt.Errorf("internal error: %v", v))
		}
	}()

	resp, err := fn(ctx, r)
	if err != nil {
		k.fail(w, r, err)
		return
	}
	if err := write(w, resp); err != nil {
		var enc *encodeError
		if errors.As(err, &enc) {
			k.fail(w, r, err)
			return
		}
		// The status line is already out; the client sees a truncated body.
		k.logger.WarnContext(ctx, "writing response",
			"method", r.Method, "path", r.URL.Path, "status", resp.Status, "error", err)
		return
	}
	k.logDone(r, resp.Status)
}

// fail writes the error envelope for err.
func (k *Kernel) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := StatusOf(err)
	if status >= http.StatusInternalServerError {
		k.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	k.writeEnvelope(w, r, status, reason)
}

// unmatched answers a request no pattern accepts: 404, or 405 with the Allow
// header when the path exists under another method.
func (k *Kernel) unmatched(w http.ResponseWriter, r *http.Request) {
	h, _ := k.mux.Handler(r)
	p := &probe{header: http.Header{}}
	h.ServeHTTP(p, r)

	status := p.status
	if status < 400 {
		status = http.StatusNotFound
	}
	if allow := p.header.Get("Allow"); allow != "" {
		w.Header().Set("Allow", allow)
	}
	k.writeEnvelope(w, r, status, http.StatusText(status))
}

func (k *Kernel) writeEnvelope(w http.ResponseWriter, r *http.Request, status int, reason string) {
	if err := write(w, JSON(status, newEnvelope(status, reason))); err != nil {
		k.logger.ErrorContext(r.Context(), "writing error envelope", "error", err)
	}
	k.logDone(r, status)
}

func (k *Kernel) logDone(r *http.Request, status int) {
	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status}
	if rc, ok := FromContext(r.Context()); ok {
		attrs = append(attrs, "request_id", rc.ID, "duration", rc.Elapsed())
	}
	k.logger.DebugContext(r.Context(), "request served", attrs...)
}

// requestID keeps a client-supplied ID or generates a UUID v7.
func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// probe records the status a fallback ServeMux handler would write.
type probe struct {
	header http.Header
	status int
}

func (p *probe) Header() http.Header { return p.header }

func (p *probe) Write(b []byte) (int, error) {
	if p.status == 0 {
		p.status = http.StatusOK
	}
	return len(b), nil
}

func (p *probe) WriteHeader(status int) {
	if p.status == 0 {
		p.status = status
	}
}
