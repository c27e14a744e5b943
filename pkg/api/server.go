package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-waternet/pkg/api/middleware"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/graphql"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// NewServer creates a new API server over eng
func NewServer(eng *engine.Engine, opts Options) (*Server, error) {
	opts = opts.withDefaults()

	trusted, err := middleware.ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	schema, err := graphql.NewSchema(eng, opts.GraphQLLimits)
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:         eng,
		health:         opts.Health,
		metrics:        opts.Metrics,
		graphqlHandler: graphql.NewHandler(schema, graphql.DefaultLimits(), opts.Logger),
		trusted:        trusted,
		maxBodyBytes:   opts.MaxBodyBytes,
		logger:         opts.Logger.With(logging.Component("api")),
		version:        opts.Version,
	}
	if opts.RateLimit != nil {
		s.limiter = middleware.NewRateLimiter(opts.RateLimit, s.logger)
	}
	return s, nil
}

// Close stops background work owned by the server
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// Handler assembles the route table and middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("/health", s.health.HTTPHandler())
	mux.HandleFunc("/health/live", s.health.LivenessHandler())
	mux.HandleFunc("/health/ready", s.health.ReadinessHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/version", s.handleVersion)

	// Topology
	mux.HandleFunc("/nodes", s.handleNodes)
	mux.HandleFunc("/nodes/{id}", s.handleNode)
	mux.HandleFunc("/nodes/{id}/status", s.handleNodeStatus)
	mux.HandleFunc("/nodes/{id}/reachable", s.handleReachable)
	mux.HandleFunc("/edges", s.handleEdges)
	mux.HandleFunc("/edges/{id}/status", s.handleEdgeStatus)

	// Zones
	mux.HandleFunc("/dmas", s.handleDMAs)
	mux.HandleFunc("/dmas/{id}", s.handleDMA)
	mux.HandleFunc("/dmas/{id}/members", s.handleMembers)
	mux.HandleFunc("/dmas/{id}/nrw", s.handleZoneNRW)
	mux.HandleFunc("/dmas/{id}/readings/daily", s.handleZoneReadingSummaries)

	// Ingestion
	mux.HandleFunc("/thresholds", s.handleThresholds)
	mux.HandleFunc("/readings", s.handleReadings)
	mux.HandleFunc("/volumes", s.handleVolumes)

	// Alerts and leak cases
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/alerts/{id}/ack", s.handleAlertAck)
	mux.HandleFunc("/leaks", s.handleLeaks)
	mux.HandleFunc("/leaks/{id}", s.handleLeak)
	mux.HandleFunc("/leaks/{id}/advance", s.handleLeakAdvance)
	mux.HandleFunc("/leaks/{id}/resolve", s.handleLeakResolve)
	mux.HandleFunc("/leaks/{id}/ack", s.handleLeakAck)
	mux.HandleFunc("/leaks/{id}/reopen", s.handleLeakReopen)

	// Reports and GraphQL
	mux.HandleFunc("/reports/zones.xlsx", s.handleZoneReport)
	mux.Handle("/graphql", s.graphqlHandler)
	mux.HandleFunc("/graphql/stream", s.graphqlHandler.Stream)

	var onLimited func(*http.Request, string)
	if s.metrics != nil {
		onLimited = func(*http.Request, string) { s.metrics.RecordRateLimited() }
	}

	return middleware.Chain(mux,
		middleware.PanicRecovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.Metrics(s.metrics),
		middleware.RateLimit(s.limiter, middleware.ClientIP(s.trusted), onLimited),
		middleware.BodySizeLimit(s.maxBodyBytes),
	)
}

// VersionResponse identifies the running build
type VersionResponse struct {
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Ready   bool   `json:"ready"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			s.respondJSON(w, http.StatusOK, VersionResponse{
				Version: s.version,
				Uptime:  s.engine.Uptime().Round(time.Second).String(),
				Ready:   s.engine.Ready(),
			})
		}).
		NotAllowed()
}
