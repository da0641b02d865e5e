package gate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderInjector_SecurityHeaders(t *testing.T) {
	hi := NewHeaderInjector(map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	hi.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("X-Request-ID"))
}

func TestHeaderInjector_RequestID(t *testing.T) {
	hi := NewHeaderInjector(nil, true)

	var ctxID string
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	hi.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID, _ = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	id := rec.Header().Get("X-Request-ID")
	require.Len(t, id, 36)
	assert.Equal(t, 4, strings.Count(id, "-"))
	assert.Equal(t, id, ctxID, "context identifier must match the emitted header")
}

func TestHeaderInjector_UniquePerRequest(t *testing.T) {
	hi := NewHeaderInjector(nil, true)
	handler := hi.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		seen[rec.Header().Get("X-Request-ID")] = struct{}{}
	}
	assert.Len(t, seen, 10)
}

func TestHeaderInjector_HeadersCopiedAtConstruction(t *testing.T) {
	source := map[string]string{"Referrer-Policy": "no-referrer"}
	hi := NewHeaderInjector(source, false)
	source["Referrer-Policy"] = "mutated"

	rec := httptest.NewRecorder()
	hi.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
}
