package gate

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDFromContext returns the identifier the header injector attached
// for downstream correlation.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// HeaderInjector attaches the configured security headers and, when enabled,
// a freshly generated request identifier to every outgoing response. The two
// are computed as independent concurrent sub-computations and merged before
// the wrapped handler can write the first byte.
type HeaderInjector struct {
	headers   map[string]string
	requestID bool
}

func NewHeaderInjector(headers map[string]string, requestID bool) *HeaderInjector {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &HeaderInjector{headers: copied, requestID: requestID}
}

// Middleware wraps next with header injection.
func (hi *HeaderInjector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secCh := make(chan map[string]string, 1)
		idCh := make(chan string, 1)

		go func() {
			out := make(map[string]string, len(hi.headers))
			for k, v := range hi.headers {
				out[k] = v
			}
			secCh <- out
		}()
		go func() {
			if !hi.requestID {
				idCh <- ""
				return
			}
			idCh <- uuid.NewString()
		}()

		headers := <-secCh
		id := <-idCh

		for k, v := range headers {
			w.Header().Set(k, v)
		}
		if id != "" {
			w.Header().Set("X-Request-ID", id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}
