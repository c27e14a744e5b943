package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// unmatchedRoute labels requests the mux did not route, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

// MetricsRecorder is an interface for recording HTTP metrics
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	RecordResponseSize(method, path string, size float64)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()
}

// statusRecorder wraps http.ResponseWriter to capture status code and bytes written
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// routeLabel returns the matched ServeMux pattern. ServeMux sets Pattern on
// the request it is handed, so it is visible once next has returned.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	return r.Pattern
}

// Metrics creates middleware that tracks HTTP request metrics. It must wrap
// the ServeMux directly or through middleware that passes r unchanged.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder.IncHTTPRequestsInFlight()
			defer recorder.DecHTTPRequestsInFlight()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			recorder.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.statusCode), time.Since(start))
			recorder.RecordResponseSize(r.Method, route, float64(rec.bytesWritten))
		})
	}
}
