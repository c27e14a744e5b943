// Package middleware provides the HTTP middleware chain for the waternet API.
//
// Files are organised by concern:
//
//   - recovery.go: panic recovery
//   - request_id.go: request id propagation
//   - logging.go: structured access logging
//   - metrics.go: request metrics keyed by route pattern
//   - ratelimit.go: per-client token buckets
//   - body_limit.go: request body size limit
//   - trusted_proxy.go: client address resolution behind proxies
//
// All middleware has the shape func(http.Handler) http.Handler and is
// chained with Chain:
//
//	handler := middleware.Chain(mux,
//		middleware.PanicRecovery(logger),
//		middleware.RequestID(),
//		middleware.Logging(logger),
//		middleware.Metrics(registry),
//	)
package middleware

import "net/http"

// Chain wraps h so that the first middleware is outermost
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
