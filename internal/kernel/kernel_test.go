package kernel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stage/pkg/collection"
	"github.com/mesh-intelligence/stage/pkg/types"
)

func serve(t *testing.T, k *Kernel, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	k.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestKernel_Success(t *testing.T) {
	k := New(nil)
	k.Handle("GET /hello/{name}", func(ctx context.Context, r *http.Request) (Response, error) {
		return JSON(http.StatusOK, map[string]string{"hello": r.PathValue("name")}), nil
	})

	rec := serve(t, k, http.MethodGet, "/hello/world", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hello":"world"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestKernel_NoContent(t *testing.T) {
	k := New(nil)
	k.Handle("DELETE /thing", func(ctx context.Context, r *http.Request) (Response, error) {
		return NoContent(), nil
	})

	rec := serve(t, k, http.MethodDelete, "/thing", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestKernel_UnmatchedRoute(t *testing.T) {
	k := New(nil)
	k.Handle("GET /records", func(ctx context.Context, r *http.Request) (Response, error) {
		return JSON(http.StatusOK, []string{}), nil
	})

	rec := serve(t, k, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusNotFound, env.Code)
	assert.Equal(t, http.StatusNotFound, env.Error.Code)
	assert.Equal(t, "Not Found", env.Error.Reason)
}

func TestKernel_MethodNotAllowed(t *testing.T) {
	k := New(nil)
	k.Handle("GET /records", func(ctx context.Context, r *http.Request) (Response, error) {
		return JSON(http.StatusOK, []string{}), nil
	})

	rec := serve(t, k, http.MethodPut, "/records", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), http.MethodGet)
	assert.Equal(t, http.StatusMethodNotAllowed, decodeEnvelope(t, rec).Code)
}

func TestKernel_ErrorMapping(t *testing.T) {
	mismatch := &collection.TypeMismatchError{
		Key:      collection.IntKey(0),
		Expected: reflect.TypeFor[int](),
		Actual:   reflect.TypeFor[string](),
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "kernel error keeps its status", err: NewError(http.StatusConflict, "busy"), wantStatus: http.StatusConflict, wantReason: "busy"},
		{name: "wrapped kernel error", err: fmt.Errorf("outer: %w", NewError(http.StatusTeapot, "")), wantStatus: http.StatusTeapot, wantReason: "I'm a teapot"},
		{name: "out of range status is a server error", err: NewError(http.StatusOK, "odd"), wantStatus: http.StatusInternalServerError, wantReason: "odd"},
		{name: "type mismatch", err: mismatch, wantStatus: http.StatusUnprocessableEntity, wantReason: mismatch.Error()},
		{name: "invalid key", err: &collection.InvalidKeyError{Key: -1}, wantStatus: http.StatusUnprocessableEntity},
		{name: "not found", err: fmt.Errorf("get: %w", types.ErrNotFound), wantStatus: http.StatusNotFound, wantReason: "get: record not found"},
		{name: "invalid name", err: types.ErrInvalidName, wantStatus: http.StatusBadRequest, wantReason: "invalid name"},
		{name: "invalid id", err: types.ErrInvalidID, wantStatus: http.StatusBadRequest},
		{name: "anything else", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantReason: "disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := New(nil)
			k.Handle("GET /fail", func(ctx context.Context, r *http.Request) (Response, error) {
				return Response{}, tt.err
			})

			rec := serve(t, k, http.MethodGet, "/fail", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.Equal(t, tt.wantStatus, env.Code)
			assert.Equal(t, tt.wantStatus, env.Error.Code)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, env.Error.Reason)
			}
		})
	}
}

func TestKernel_RecoversPanics(t *testing.T) {
	k := New(nil)
	k.Handle("GET /boom", func(ctx context.Context, r *http.Request) (Response, error) {
		panic("kaboom")
	})

	rec := serve(t, k, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Error.Reason, "kaboom")
}

func TestKernel_UnencodableBody(t *testing.T) {
	k := New(nil)
	k.Handle("GET /chan", func(ctx context.Context, r *http.Request) (Response, error) {
		return JSON(http.StatusOK, make(chan int)), nil
	})

	rec := serve(t, k, http.MethodGet, "/chan", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// brokenConn is a ResponseWriter whose body writes fail.
type brokenConn struct {
	header   http.Header
	statuses []int
}

func (b *brokenConn) Header() http.Header { return b.header }

func (b *brokenConn) WriteHeader(status int) { b.statuses = append(b.statuses, status) }

func (b *brokenConn) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestKernel_WriteFailureSendsOneHeader(t *testing.T) {
	var logs bytes.Buffer
	k := New(slog.New(slog.NewTextHandler(&logs, nil)))
	k.Handle("GET /ok", func(ctx context.Context, r *http.Request) (Response, error) {
		return JSON(http.StatusOK, map[string]string{"ok": "yes"}), nil
	})

	w := &brokenConn{header: http.Header{}}
	k.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, []int{http.StatusOK}, w.statuses)
	assert.Equal(t, "application/json", w.header.Get("Content-Type"))
	assert.Contains(t, logs.String(), "writing response")
	assert.Contains(t, logs.String(), "connection reset")
}

func TestKernel_RequestContext(t *testing.T) {
	k := New(nil)
	var got *RequestContext
	k.Handle("POST /ctx", func(ctx context.Context, r *http.Request) (Response, error) {
		rc, ok := FromContext(ctx)
		require.True(t, ok)
		got = rc
		return NoContent(), nil
	})

	req := httptest.NewRequest(http.MethodPost, "/ctx", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	k.ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, "req-42", got.ID)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/ctx", got.Path)
	assert.False(t, got.Started.IsZero())
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestKernel_RequestContextIsPerRequest(t *testing.T) {
	k := New(nil)
	ids := map[string]bool{}
	k.Handle("GET /id", func(ctx context.Context, r *http.Request) (Response, error) {
		rc, _ := FromContext(ctx)
		ids[rc.ID] = true
		return NoContent(), nil
	})

	for range 3 {
		serve(t, k, http.MethodGet, "/id", "")
	}
	assert.Len(t, ids, 3)
}

func TestFromContext_Missing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestKernel_Middleware(t *testing.T) {
	k := New(nil)
	var order []string
	trace := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, r *http.Request) (Response, error) {
				order = append(order, name)
				return next(ctx, r)
			}
		}
	}
	k.Use(trace("outer"), trace("inner"))
	k.Handle("GET /mw", func(ctx context.Context, r *http.Request) (Response, error) {
		order = append(order, "handler")
		return NoContent(), nil
	})

	serve(t, k, http.MethodGet, "/mw", "")
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		var p payload
		require.NoError(t, Decode(req, &p))
		assert.Equal(t, "x", p.Name)
	})

	for name, body := range map[string]string{
		"malformed":     `{"name":`,
		"unknown field": `{"name":"x","extra":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			var p payload
			err := Decode(req, &p)
			require.Error(t, err)
			status, _ := StatusOf(err)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}
