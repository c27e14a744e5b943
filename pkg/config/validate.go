package config

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	wtls "github.com/dd0wney/cluso-waternet/pkg/tls"
	"github.com/dd0wney/cluso-waternet/pkg/validation"
)

var knownAlertTypes = map[alerts.Type]bool{
	alerts.LowPressure:  true,
	alerts.HighPressure: true,
	alerts.LowFlow:      true,
	alerts.HighFlow:     true,
	alerts.LowLevel:     true,
	alerts.HighLevel:    true,
	alerts.WaterQuality: true,
}

// Validate runs struct tag checks, then the cross-field rules
func (c Config) Validate() error {
	for _, section := range []any{&c.Server, &c.Log, &c.Engine, &c.Snapshot, &c.RateLimit} {
		if err := validation.Struct(section); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	cv := validation.NewConfigValidator("engine").
		MinDuration("rollup_interval", c.Engine.RollupInterval, time.Second).
		MinDuration("rollup_budget", c.Engine.RollupBudget, time.Millisecond).
		ShorterThan("rollup_budget", c.Engine.RollupBudget, "rollup_interval", c.Engine.RollupInterval).
		MinDuration("billing_interval", c.Engine.BillingInterval, time.Hour).
		MinDuration("reading_retention", c.Engine.ReadingRetention, time.Hour).
		ShorterThan("reading_retention", c.Engine.ReadingRetention, "summary_retention", c.Engine.SummaryRetention).
		MinDuration("sweep_interval", c.Engine.SweepInterval, time.Second).
		MinDuration("expiry_sweep_interval", c.Engine.ExpirySweepInterval, time.Second)
	if err := cv.Validate(); err != nil {
		return err
	}

	cv = validation.NewConfigValidator("alerts").
		MinDuration("default_expiry", c.Alerts.DefaultExpiry, time.Second)
	for name, d := range c.Alerts.Expiry {
		cv.Custom("expiry."+name, func() error {
			if !knownAlertTypes[alerts.Type(name)] {
				return fmt.Errorf("unknown alert type %q", name)
			}
			if d <= 0 {
				return fmt.Errorf("expiry must be positive, got %v", d)
			}
			return nil
		})
	}
	if err := cv.Validate(); err != nil {
		return err
	}

	cv = validation.NewConfigValidator("server.tls").
		When(c.Server.TLS.Enabled && !c.Server.TLS.AutoGenerate, func(cv *validation.ConfigValidator) {
			cv.Required("cert_file", c.Server.TLS.CertFile).
				Required("key_file", c.Server.TLS.KeyFile)
		}).
		When(c.Server.TLS.RequireClientCert, func(cv *validation.ConfigValidator) {
			cv.Required("ca_file", c.Server.TLS.CAFile)
		})
	if err := cv.Validate(); err != nil {
		return err
	}

	return validation.NewConfigValidator("storage").
		When(c.Journal.Enabled, func(cv *validation.ConfigValidator) {
			cv.Required("journal.dir", c.Journal.Dir)
		}).
		HostPort("snapshot.redis_addr", c.Snapshot.RedisAddr).
		When(c.Snapshot.RedisAddr != "", func(cv *validation.ConfigValidator) {
			cv.MinDuration("snapshot.ttl", c.Snapshot.TTL, time.Second)
		}).
		Validate()
}

// ExpiryPolicy converts the alerts section
func (c Config) ExpiryPolicy() alerts.ExpiryPolicy {
	p := alerts.ExpiryPolicy{Default: c.Alerts.DefaultExpiry}
	if len(c.Alerts.Expiry) > 0 {
		p.PerType = make(map[alerts.Type]time.Duration, len(c.Alerts.Expiry))
		for name, d := range c.Alerts.Expiry {
			p.PerType[alerts.Type(name)] = d
		}
	}
	return p
}

// EngineConfig converts the engine and alerts sections
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		IngestQueueDepth:    c.Engine.IngestQueueDepth,
		IngestWorkers:       c.Engine.IngestWorkers,
		RollupWorkers:       c.Engine.RollupWorkers,
		RollupInterval:      c.Engine.RollupInterval,
		RollupBudget:        c.Engine.RollupBudget,
		BillingInterval:     c.Engine.BillingInterval,
		ReadingRetention:    c.Engine.ReadingRetention,
		SummaryRetention:    c.Engine.SummaryRetention,
		SweepInterval:       c.Engine.SweepInterval,
		ExpirySweepInterval: c.Engine.ExpirySweepInterval,
		AlertShards:         c.Engine.AlertShards,
		CostPerM3:           c.Engine.CostPerM3,
		Expiry:              c.ExpiryPolicy(),
	}
}

// LogOptions converts the log section
func (c Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}

// TLSOptions converts the server.tls section
func (c Config) TLSOptions() wtls.Config {
	t := c.Server.TLS
	return wtls.Config{
		Enabled:           t.Enabled,
		CertFile:          t.CertFile,
		KeyFile:           t.KeyFile,
		CAFile:            t.CAFile,
		RequireClientCert: t.RequireClientCert,
		MinVersion:        t.MinVersion,
		AutoGenerate:      t.AutoGenerate,
		Hosts:             t.Hosts,
	}
}
