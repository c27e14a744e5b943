package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables. The bare LOG_LEVEL,
// DATABASE_URL and REDIS_ADDR names are honoured for container platforms
// that inject them; WATERNET_ prefixed names win when both are set.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(dst *string, names ...string) {
		for _, n := range names {
			if v, ok := lookup(n); ok {
				*dst = v
			}
		}
	}
	integer := func(dst *int, name string) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	float := func(dst *float64, name string) {
		if v, ok := lookup(name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(dst *bool, name string) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(dst *time.Duration, name string) {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	integer(&c.Server.Port, EnvPrefix+"PORT")
	str(&c.Log.Level, "LOG_LEVEL", EnvPrefix+"LOG_LEVEL")
	str(&c.Log.Format, EnvPrefix+"LOG_FORMAT")
	str(&c.Log.File, EnvPrefix+"LOG_FILE")

	integer(&c.Engine.IngestQueueDepth, EnvPrefix+"INGEST_QUEUE_DEPTH")
	integer(&c.Engine.IngestWorkers, EnvPrefix+"INGEST_WORKERS")
	integer(&c.Engine.RollupWorkers, EnvPrefix+"ROLLUP_WORKERS")
	duration(&c.Engine.RollupInterval, EnvPrefix+"ROLLUP_INTERVAL")
	duration(&c.Engine.RollupBudget, EnvPrefix+"ROLLUP_BUDGET")
	float(&c.Engine.CostPerM3, EnvPrefix+"COST_PER_M3")
	duration(&c.Alerts.DefaultExpiry, EnvPrefix+"ALERT_EXPIRY")

	boolean(&c.Journal.Enabled, EnvPrefix+"JOURNAL_ENABLED")
	str(&c.Journal.Dir, EnvPrefix+"JOURNAL_DIR")
	str(&c.Archive.DatabaseURL, "DATABASE_URL", EnvPrefix+"DATABASE_URL")
	str(&c.Snapshot.RedisAddr, "REDIS_ADDR", EnvPrefix+"REDIS_ADDR")
	str(&c.Snapshot.RedisPassword, EnvPrefix+"REDIS_PASSWORD")
	str(&c.Events.NNGPublishAddr, EnvPrefix+"NNG_PUBLISH_ADDR")

	boolean(&c.Server.TLS.Enabled, EnvPrefix+"TLS_ENABLED")
	str(&c.Server.TLS.CertFile, EnvPrefix+"TLS_CERT_FILE")
	str(&c.Server.TLS.KeyFile, EnvPrefix+"TLS_KEY_FILE")

	boolean(&c.RateLimit.Enabled, EnvPrefix+"RATE_LIMIT_ENABLED")
	float(&c.RateLimit.RPS, EnvPrefix+"RATE_LIMIT_RPS")
	integer(&c.RateLimit.Burst, EnvPrefix+"RATE_LIMIT_BURST")

	if len(errs) > 0 {
		return fmt.Errorf("environment: %w", errors.Join(errs...))
	}
	return nil
}
