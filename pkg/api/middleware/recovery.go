package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// PanicRecovery creates middleware that recovers from panics in HTTP handlers.
// Internal details are logged but not exposed to clients.
func PanicRecovery(logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic in http handler",
						logging.String("method", r.Method),
						logging.Path(r.URL.Path),
						logging.String("request_id", GetRequestID(r)),
						logging.Any("panic", err),
						logging.String("stack", string(debug.Stack())),
					)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
