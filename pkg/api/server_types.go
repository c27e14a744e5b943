package api

import (
	"net"

	"github.com/dd0wney/cluso-waternet/pkg/api/middleware"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/graphql"
	"github.com/dd0wney/cluso-waternet/pkg/health"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
)

// Server represents the HTTP API server
type Server struct {
	engine         *engine.Engine
	health         *health.HealthChecker
	metrics        *metrics.Registry
	graphqlHandler *graphql.Handler
	limiter        *middleware.RateLimiter // nil when rate limiting is off
	trusted        []*net.IPNet
	maxBodyBytes   int64
	logger         logging.Logger
	version        string
}

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Logger         logging.Logger
	Metrics        *metrics.Registry
	Health         *health.HealthChecker
	RateLimit      *middleware.RateLimitConfig // nil disables rate limiting
	TrustedProxies []string
	MaxBodyBytes   int64
	GraphQLLimits  graphql.LimitConfig
	Version        string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewRegistry()
	}
	if o.Health == nil {
		o.Health = health.NewHealthChecker()
	}
	if o.GraphQLLimits == (graphql.LimitConfig{}) {
		o.GraphQLLimits = graphql.DefaultLimitConfig()
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	return o
}
