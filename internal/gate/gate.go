// Package gate guards the HTTP surface: a request gate running the auth and
// rate-limit checks concurrently with fail-open isolation, and a response
// header injector.
package gate

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ws-gateway/internal/auth"
	"github.com/adred-codev/ws-gateway/internal/limits"
	"github.com/adred-codev/ws-gateway/internal/monitoring"
)

// Gate dispatches the auth check and the rate-limit check as two concurrent
// operations per request and joins both before deciding. A malfunctioning
// collaborator (as opposed to a rejecting one) passes its check fail-open:
// the error is logged and the other check's real outcome governs.
type Gate struct {
	validator   auth.Validator
	store       limits.Store
	publicPaths map[string]struct{}
	quota       int64
	window      time.Duration
	keyByPath   bool
	logger      zerolog.Logger
}

// Config wires a Gate.
type Config struct {
	Validator   auth.Validator
	Store       limits.Store
	PublicPaths map[string]struct{}
	Quota       int64
	Window      time.Duration
	KeyByPath   bool // false = key by client address (default)
	Logger      zerolog.Logger
}

func New(cfg Config) *Gate {
	return &Gate{
		validator:   cfg.Validator,
		store:       cfg.Store,
		publicPaths: cfg.PublicPaths,
		quota:       cfg.Quota,
		window:      cfg.Window,
		keyByPath:   cfg.KeyByPath,
		logger:      cfg.Logger.With().Str("component", "gate").Logger(),
	}
}

type authResult struct {
	ok     bool
	claims *auth.Claims
	detail string
}

type rateResult struct {
	ok bool
}

// Middleware wraps next with the gate. Public paths bypass both collaborators
// entirely; the branch runs before either check is dispatched, so zero
// collaborator calls occur by construction.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, public := g.publicPaths[r.URL.Path]; public {
			monitoring.GateDecisions.WithLabelValues("public").Inc()
			next.ServeHTTP(w, r)
			return
		}

		// Both checks always run to completion; neither short-circuits the
		// other, so the rate counter is incremented even when auth fails.
		authCh := make(chan authResult, 1)
		rateCh := make(chan rateResult, 1)
		go g.runAuthCheck(r, authCh)
		go g.runRateCheck(r, rateCh)
		ar := <-authCh
		rr := <-rateCh

		if !ar.ok {
			monitoring.GateDecisions.WithLabelValues("unauthorized").Inc()
			writeError(w, http.StatusUnauthorized, "unauthorized", ar.detail)
			return
		}
		if !rr.ok {
			monitoring.GateDecisions.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(g.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "request quota exhausted for the current window")
			return
		}

		monitoring.GateDecisions.WithLabelValues("forwarded").Inc()
		if ar.claims != nil {
			r = r.WithContext(auth.WithClaims(r.Context(), ar.claims))
		}
		next.ServeHTTP(w, r)
	})
}

// runAuthCheck validates the request credential. Failures are isolated at
// this boundary: a rejection produces a result, a validator malfunction or
// panic produces a fail-open result, and nothing escapes the goroutine.
func (g *Gate) runAuthCheck(r *http.Request, out chan<- authResult) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error().
				Interface("panic_value", rec).
				Msg("Auth check panicked; failing open")
			monitoring.GateFailOpen.WithLabelValues("auth").Inc()
			out <- authResult{ok: true}
		}
	}()

	claims, err := g.validator.Validate(auth.ExtractCredential(r))
	switch {
	case err == nil:
		out <- authResult{ok: true, claims: claims}
	case errors.Is(err, auth.ErrInvalidCredential):
		out <- authResult{ok: false, detail: "invalid or expired credential"}
	default:
		// Validator malfunction, not a rejection. Fail open for this request.
		g.logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("Auth validator unavailable; failing open")
		monitoring.GateFailOpen.WithLabelValues("auth").Inc()
		out <- authResult{ok: true}
	}
}

// runRateCheck increments the windowed counter for the request's key and
// compares it against the quota. Store malfunction fails open.
func (g *Gate) runRateCheck(r *http.Request, out chan<- rateResult) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error().
				Interface("panic_value", rec).
				Msg("Rate-limit check panicked; failing open")
			monitoring.GateFailOpen.WithLabelValues("rate_limit").Inc()
			out <- rateResult{ok: true}
		}
	}()

	count, err := g.store.Increment(r.Context(), g.key(r), g.window)
	if err != nil {
		g.logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("Rate-limit store unavailable; failing open")
		monitoring.GateFailOpen.WithLabelValues("rate_limit").Inc()
		out <- rateResult{ok: true}
		return
	}
	out <- rateResult{ok: count <= g.quota}
}

// key derives the rate-limit counter key: client address by default, request
// path when configured.
func (g *Gate) key(r *http.Request) string {
	if g.keyByPath {
		return "path:" + r.URL.Path
	}
	return "addr:" + ClientIP(r)
}

// ClientIP extracts the client address, preferring X-Forwarded-For when a
// load balancer is in front.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// writeError sends the stable structured rejection body. No internal
// diagnostic detail goes to the caller.
func writeError(w http.ResponseWriter, status int, errCode, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":  errCode,
		"detail": detail,
	})
}
