package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/ws-gateway/internal/auth"
)

// fakeValidator counts calls and returns a scripted outcome.
type fakeValidator struct {
	mu     sync.Mutex
	calls  int
	claims *auth.Claims
	err    error
}

func (v *fakeValidator) Validate(credential string) (*auth.Claims, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func (v *fakeValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// fakeStore counts increments per key and can be scripted to fail.
type fakeStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[string]int64)}
}

func (s *fakeStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *fakeStore) total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.counts {
		n += c
	}
	return n
}

func newTestGate(v auth.Validator, s *fakeStore, opts ...func(*Config)) *Gate {
	cfg := Config{
		Validator:   v,
		Store:       s,
		PublicPaths: map[string]struct{}{"/healthz": {}},
		Quota:       100,
		Window:      time.Minute,
		Logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func serveGated(t *testing.T, g *Gate, path string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:51234"
	rec := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rec, req)
	return rec, req
}

func TestGate_PublicPathSkipsBothChecks(t *testing.T) {
	validator := &fakeValidator{claims: &auth.Claims{UserID: "u1"}}
	store := newFakeStore()
	g := newTestGate(validator, store)

	rec, _ := serveGated(t, g, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, validator.callCount())
	assert.Zero(t, store.total())
}

func TestGate_ForwardsWithIdentity(t *testing.T) {
	validator := &fakeValidator{claims: &auth.Claims{UserID: "u1", Username: "alice"}}
	store := newFakeStore()
	g := newTestGate(validator, store)

	var claims *auth.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ = auth.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	rec := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, 1, validator.callCount())
	assert.Equal(t, int64(1), store.total())
}

func TestGate_AuthRejection(t *testing.T) {
	validator := &fakeValidator{err: auth.ErrInvalidCredential}
	store := newFakeStore()
	g := newTestGate(validator, store)

	rec, _ := serveGated(t, g, "/ws")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["error"])
	assert.NotEmpty(t, body["detail"])

	// The rate counter is charged even for rejected requests: neither check
	// short-circuits the other.
	assert.Equal(t, int64(1), store.total())
}

func TestGate_ValidatorMalfunctionFailsOpen(t *testing.T) {
	validator := &fakeValidator{err: errors.New("keyset fetch timeout")}
	store := newFakeStore()
	g := newTestGate(validator, store)

	rec, _ := serveGated(t, g, "/ws")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), store.total())
}

func TestGate_StoreMalfunctionFailsOpen(t *testing.T) {
	validator := &fakeValidator{claims: &auth.Claims{UserID: "u1"}}
	store := newFakeStore()
	store.err = errors.New("connection refused")
	g := newTestGate(validator, store)

	rec, _ := serveGated(t, g, "/ws")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, validator.callCount())
}

type panicValidator struct{}

func (panicValidator) Validate(string) (*auth.Claims, error) { panic("validator bug") }

func TestGate_ValidatorPanicFailsOpen(t *testing.T) {
	store := newFakeStore()
	g := newTestGate(panicValidator{}, store)

	rec, _ := serveGated(t, g, "/ws")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), store.total())
}

func TestGate_QuotaExhaustion(t *testing.T) {
	validator := &fakeValidator{claims: &auth.Claims{UserID: "u1"}}
	store := newFakeStore()
	g := newTestGate(validator, store, func(cfg *Config) {
		cfg.Quota = 5
		cfg.Window = 60 * time.Second
	})

	for i := 0; i < 5; i++ {
		rec, _ := serveGated(t, g, "/ws")
		require.Equal(t, http.StatusOK, rec.Code, "request %d within quota", i+1)
	}

	rec, _ := serveGated(t, g, "/ws")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.LessOrEqual(t, retryAfter, 60)
	assert.Positive(t, retryAfter)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])
}

func TestGate_KeyByPath(t *testing.T) {
	validator := &fakeValidator{claims: &auth.Claims{UserID: "u1"}}
	store := newFakeStore()
	g := newTestGate(validator, store, func(cfg *Config) {
		cfg.KeyByPath = true
		cfg.Quota = 1
	})

	rec, _ := serveGated(t, g, "/ws")
	require.Equal(t, http.StatusOK, rec.Code)

	// Same path from a different client shares the counter.
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "198.51.100.7:40000"
	rec2 := httptest.NewRecorder()
	g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	assert.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 192.0.2.10")
	assert.Equal(t, "203.0.113.5", ClientIP(req))
}
