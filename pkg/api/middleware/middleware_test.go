package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

func observedLogger(level zapcore.Level) (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return logging.FromZap(zap.New(core)), logs
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

// --- BodySizeLimit Tests ---

func TestBodySizeLimit_AllowsSmallRequest(t *testing.T) {
	handler := BodySizeLimit(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/readings", strings.NewReader(`{"sensor_id":"PS-01"}`)))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestBodySizeLimit_RejectsLargeContentLength(t *testing.T) {
	handler := BodySizeLimit(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called for oversized request")
	}))

	req := httptest.NewRequest("POST", "/readings", strings.NewReader(""))
	req.ContentLength = 1000

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
}

func TestBodySizeLimit_LimitsChunkedBody(t *testing.T) {
	handler := BodySizeLimit(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "Body too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/volumes", strings.NewReader(strings.Repeat("x", 100)))
	req.ContentLength = -1

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
}

func TestBodySizeLimit_Disabled(t *testing.T) {
	next := okHandler("OK")
	if h := BodySizeLimit(0)(next); h == nil {
		t.Fatal("BodySizeLimit(0) returned nil")
	}
}

// --- PanicRecovery Tests ---

func TestPanicRecovery_HandlesNormalRequest(t *testing.T) {
	handler := PanicRecovery(nil)(okHandler("OK"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/dmas", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Errorf("got %d %q, want 200 OK", rr.Code, rr.Body.String())
	}
}

func TestPanicRecovery_RecoversPanic(t *testing.T) {
	logger, logs := observedLogger(zapcore.ErrorLevel)
	handler := PanicRecovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil graph")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/dmas/Zone-A", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if strings.Contains(rr.Body.String(), "nil graph") {
		t.Error("Response should not contain panic message")
	}
	entries := logs.FilterMessage("panic in http handler").All()
	if len(entries) != 1 {
		t.Fatalf("expected one panic log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["path"] != "/dmas/Zone-A" {
		t.Errorf("path field = %v", entries[0].ContextMap()["path"])
	}
}

func TestPanicRecovery_RepanicsAbort(t *testing.T) {
	handler := PanicRecovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if recover() != http.ErrAbortHandler {
			t.Error("ErrAbortHandler should propagate")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

// --- Logging Tests ---

func TestLogging_WritesAccessEntry(t *testing.T) {
	logger, logs := observedLogger(zapcore.DebugLevel)
	handler := RequestID()(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	req := httptest.NewRequest("POST", "/readings", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusAccepted) {
		t.Errorf("status = %v, want 202", fields["status"])
	}
	if fields["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", fields["request_id"])
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", entries[0].Level)
	}
}

func TestLogging_ServerErrorsWarn(t *testing.T) {
	logger, logs := observedLogger(zapcore.InfoLevel)
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/readings", nil))

	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Errorf("expected one warn entry, got %d", logs.Len())
	}
}

// --- RequestID Tests ---

func TestRequestID_GeneratesNew(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if len(seen) != 36 {
		t.Errorf("expected a UUID request id, got %q", seen)
	}
	if rr.Header().Get(RequestIDHeader) != seen {
		t.Error("response header should echo the request id")
	}
}

func TestRequestID_UsesClientProvided(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "scada-gw.7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "scada-gw.7" {
		t.Errorf("request id = %q, want scada-gw.7", seen)
	}
}

func TestRequestID_SanitizesAndTruncates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(string) bool
	}{
		{"strips unsafe characters", "abc<script>\n", func(id string) bool { return id == "abcscript" }},
		{"truncates long ids", strings.Repeat("a", 200), func(id string) bool { return len(id) == maxRequestIDLength }},
		{"falls back when nothing survives", "<<>>", func(id string) bool { return len(id) == 36 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r)
			}))
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set(RequestIDHeader, tt.input)
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if !tt.check(seen) {
				t.Errorf("unexpected request id %q", seen)
			}
		})
	}
}

func TestGetRequestID_NoContext(t *testing.T) {
	if id := GetRequestID(httptest.NewRequest("GET", "/", nil)); id != "" {
		t.Errorf("Expected empty request ID, got %q", id)
	}
}

// --- Metrics Tests ---

type mockMetricsRecorder struct {
	requests      []string
	responseSizes []float64
	inFlight      int
}

func (m *mockMetricsRecorder) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.requests = append(m.requests, method+" "+path+" "+status)
}

func (m *mockMetricsRecorder) RecordResponseSize(method, path string, size float64) {
	m.responseSizes = append(m.responseSizes, size)
}

func (m *mockMetricsRecorder) IncHTTPRequestsInFlight() { m.inFlight++ }
func (m *mockMetricsRecorder) DecHTTPRequestsInFlight() { m.inFlight-- }

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	recorder := &mockMetricsRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /dmas/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello"))
	})
	handler := Metrics(recorder)(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/dmas/Zone-A", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	want := []string{"GET GET /dmas/{id} 200", "GET unmatched 404"}
	if len(recorder.requests) != len(want) {
		t.Fatalf("recorded %v, want %v", recorder.requests, want)
	}
	for i := range want {
		if recorder.requests[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, recorder.requests[i], want[i])
		}
	}
	if recorder.responseSizes[0] != 5 {
		t.Errorf("Expected response size 5, got %v", recorder.responseSizes[0])
	}
}

func TestMetrics_TracksInFlight(t *testing.T) {
	recorder := &mockMetricsRecorder{}
	var inFlightDuringRequest int

	handler := Metrics(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlightDuringRequest = recorder.inFlight
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if inFlightDuringRequest != 1 {
		t.Errorf("Expected in-flight to be 1 during request, got %d", inFlightDuringRequest)
	}
	if recorder.inFlight != 0 {
		t.Errorf("Expected in-flight to be 0 after request, got %d", recorder.inFlight)
	}
}

func TestMetrics_NilRecorder(t *testing.T) {
	handler := Metrics(nil)(okHandler("OK"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestStatusRecorder_FirstWriteHeaderWins(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusOK)

	if rec.statusCode != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rec.statusCode)
	}
}

// --- RateLimiter Tests ---

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, cfg *RateLimitConfig) (*RateLimiter, *fakeClock) {
	t.Helper()
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.ClientExpiration == 0 {
		cfg.ClientExpiration = time.Hour
	}
	rl := NewRateLimiter(cfg, nil)
	t.Cleanup(rl.Stop)
	clock := &fakeClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	rl.now = clock.now
	return rl, clock
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(nil, nil)
	defer rl.Stop()

	if rl.GetConfig().RequestsPerSecond != 100 {
		t.Errorf("Expected default RequestsPerSecond 100, got %f", rl.GetConfig().RequestsPerSecond)
	}
}

func TestRateLimiter_AllowBurst(t *testing.T) {
	rl, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Errorf("Request %d should be allowed within burst", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("Request beyond burst should be denied")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("Other clients have their own bucket")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl, clock := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 10, BurstSize: 1})

	if !rl.Allow("client1") {
		t.Error("First request should be allowed")
	}
	if rl.Allow("client1") {
		t.Error("Second request should be denied")
	}

	clock.advance(100 * time.Millisecond)
	if !rl.Allow("client1") {
		t.Error("Request should be allowed after refill")
	}
}

func TestRateLimiter_MaxClients(t *testing.T) {
	rl, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10, MaxClients: 2})

	if !rl.Allow("client1") || !rl.Allow("client2") {
		t.Fatal("first two clients should be allowed")
	}
	if rl.Allow("client3") {
		t.Error("client3 should be denied (max clients reached)")
	}
	if !rl.Allow("client1") {
		t.Error("client1 should still be allowed")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(t, &RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         10,
		ClientExpiration:  time.Minute,
		MaxClients:        1,
	})

	rl.Allow("client1")
	clock.advance(2 * time.Minute)

	if removed := rl.cleanup(); removed != 1 {
		t.Errorf("cleanup removed %d, want 1", removed)
	}
	if rl.GetStats()["active_clients"].(int) != 0 {
		t.Error("expired client should be dropped")
	}
	if !rl.Allow("client2") {
		t.Error("freed slot should admit a new client")
	}
}

func TestRateLimiter_StopIdempotent(t *testing.T) {
	rl := NewRateLimiter(nil, nil)
	rl.Stop()
	rl.Stop()
}

func TestRateLimit_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 2.5, BurstSize: 1})

	var limited []string
	handler := RateLimit(rl, func(r *http.Request) string { return r.RemoteAddr },
		func(r *http.Request, clientID string) { limited = append(limited, clientID) },
	)(okHandler("OK"))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, httptest.NewRequest("GET", "/alerts", nil))
	if rr1.Code != http.StatusOK {
		t.Errorf("First request: expected %d, got %d", http.StatusOK, rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, httptest.NewRequest("GET", "/alerts", nil))
	if rr2.Code != http.StatusTooManyRequests {
		t.Errorf("Second request: expected %d, got %d", http.StatusTooManyRequests, rr2.Code)
	}
	if rr2.Header().Get("Retry-After") != "1" {
		t.Error("Expected Retry-After header")
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "2.5" {
		t.Errorf("X-RateLimit-Limit = %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if len(limited) != 1 {
		t.Errorf("onLimited called %d times, want 1", len(limited))
	}
}

func TestRateLimit_NilLimiter(t *testing.T) {
	handler := RateLimit(nil, func(r *http.Request) string { return "" }, nil)(okHandler("OK"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected %d with nil limiter, got %d", http.StatusOK, rr.Code)
	}
}

// --- Chain Tests ---

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Chain(okHandler("OK"), mark("outer"), mark("inner")).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("order = %v", order)
	}
}
