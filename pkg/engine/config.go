package engine

import (
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
)

// Config tunes the engine's queues, workers and periodic jobs
type Config struct {
	IngestQueueDepth    int
	IngestWorkers       int
	RollupWorkers       int
	RollupInterval      time.Duration
	RollupBudget        time.Duration
	BillingInterval     time.Duration
	ReadingRetention    time.Duration
	SummaryRetention    time.Duration
	SweepInterval       time.Duration
	ExpirySweepInterval time.Duration
	AlertShards         int
	CostPerM3           float64
	Expiry              alerts.ExpiryPolicy
	EventBuffer         int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		IngestQueueDepth:    10000,
		IngestWorkers:       4,
		RollupWorkers:       2,
		RollupInterval:      time.Hour,
		RollupBudget:        5 * time.Second,
		BillingInterval:     720 * time.Hour,
		ReadingRetention:    2160 * time.Hour,
		SummaryRetention:    8760 * time.Hour,
		SweepInterval:       10 * time.Minute,
		ExpirySweepInterval: time.Minute,
		AlertShards:         64,
		Expiry:              alerts.ExpiryPolicy{Default: 24 * time.Hour},
		EventBuffer:         256,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IngestQueueDepth <= 0 {
		c.IngestQueueDepth = d.IngestQueueDepth
	}
	if c.IngestWorkers <= 0 {
		c.IngestWorkers = d.IngestWorkers
	}
	if c.RollupWorkers <= 0 {
		c.RollupWorkers = d.RollupWorkers
	}
	if c.RollupInterval <= 0 {
		c.RollupInterval = d.RollupInterval
	}
	if c.RollupBudget <= 0 {
		c.RollupBudget = d.RollupBudget
	}
	if c.BillingInterval <= 0 {
		c.BillingInterval = d.BillingInterval
	}
	if c.ReadingRetention <= 0 {
		c.ReadingRetention = d.ReadingRetention
	}
	if c.SummaryRetention <= 0 {
		c.SummaryRetention = d.SummaryRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.ExpirySweepInterval <= 0 {
		c.ExpirySweepInterval = d.ExpirySweepInterval
	}
	if c.AlertShards <= 0 {
		c.AlertShards = d.AlertShards
	}
	if c.Expiry.Default <= 0 {
		c.Expiry.Default = d.Expiry.Default
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}
