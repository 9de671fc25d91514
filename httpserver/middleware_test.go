package httpserver

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body)) //nolint:errcheck
	})
}

func TestUse(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	t.Run("no middleware", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Use(okHandler("plain")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "plain", rec.Body.String())
	})

	t.Run("last middleware runs first", func(t *testing.T) {
		order = nil
		rec := httptest.NewRecorder()
		Use(okHandler("ok"), tag("inner"), tag("outer")).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})

	t.Run("handler funcs", func(t *testing.T) {
		order = nil
		mw := func(name string) MiddlewareFunc {
			return func(next http.HandlerFunc) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next(w, r)
				}
			}
		}
		h := UseFunc(okHandler("ok").ServeHTTP, mw("a"), mw("b"))
		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"b", "a"}, order)
	})
}

func TestMiddlewareMaxBodySize(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		_, _ = w.Write(body) //nolint:errcheck
	})
	h := Use(echo, MiddlewareMaxBodySize(8))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "under limit", body: "short", status: http.StatusOK},
		{name: "at limit", body: "12345678", status: http.StatusOK},
		{name: "over limit", body: "123456789", status: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMiddlewareHostIDHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	Use(okHandler("ok"), MiddlewareHostIDHeader("replica-1")).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "replica-1", rec.Header().Get(HeaderXHostID))
}

func TestMiddlewareRequestID(t *testing.T) {
	var seen string
	h := Use(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}), MiddlewareRequestID())

	t.Run("generates an ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get(HeaderXRequestID))
	})

	t.Run("reuses a valid client ID", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderXRequestID, id)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, id, seen)
		assert.Equal(t, id, rec.Header().Get(HeaderXRequestID))
	})

	t.Run("replaces an invalid client ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderXRequestID, "not-a-uuid\n")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.NotEqual(t, "not-a-uuid\n", seen)
		_, err := uuid.Parse(seen)
		require.NoError(t, err)
	})

	t.Run("empty without middleware", func(t *testing.T) {
		assert.Empty(t, RequestIDFromContext(t.Context()))
	})
}

func TestMiddlewareRequestLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := Use(failing, MiddlewareRequestLogger(log), MiddlewareRequestID())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/execute", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "path=/v1/execute")
	assert.Contains(t, out, "status=502")
	assert.Contains(t, out, "requestId="+rec.Header().Get(HeaderXRequestID))
}
