package kernel

import (
	"context"
	"time"
)

// RequestContext describes the request being served. The kernel creates one
// per request; handlers reach it through FromContext.
type RequestContext struct {
	ID      string
	Method  string
	Path    string
	Started time.Time
}

type requestKey struct{}

// WithRequest returns a copy of ctx carrying rc.
func WithRequest(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestKey{}, rc)
}

// FromContext returns the request context stored in ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// Elapsed returns the time since the request started.
func (rc *RequestContext) Elapsed() time.Duration {
	return time.Since(rc.Started)
}
