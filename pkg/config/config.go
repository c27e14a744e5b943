// Package config loads waternetd settings from a YAML file with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-waternet/pkg/engine"
)

// EnvPrefix namespaces environment overrides
const EnvPrefix = "WATERNET_"

// Config is the full daemon configuration
type Config struct {
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Engine    Engine    `yaml:"engine"`
	Alerts    Alerts    `yaml:"alerts"`
	Journal   Journal   `yaml:"journal"`
	Archive   Archive   `yaml:"archive"`
	Snapshot  Snapshot  `yaml:"snapshot"`
	Events    Events    `yaml:"events"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type Server struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"gte=0"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	TLS             TLS           `yaml:"tls"`
}

type TLS struct {
	Enabled           bool     `yaml:"enabled"`
	CertFile          string   `yaml:"cert_file"`
	KeyFile           string   `yaml:"key_file"`
	CAFile            string   `yaml:"ca_file"`
	RequireClientCert bool     `yaml:"require_client_cert"`
	MinVersion        string   `yaml:"min_version" validate:"omitempty,oneof=1.2 1.3"`
	AutoGenerate      bool     `yaml:"auto_generate"`
	Hosts             []string `yaml:"hosts"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
	File   string `yaml:"file"`
}

type Engine struct {
	IngestQueueDepth    int           `yaml:"ingest_queue_depth" validate:"min=1"`
	IngestWorkers       int           `yaml:"ingest_workers" validate:"min=1"`
	RollupWorkers       int           `yaml:"rollup_workers" validate:"min=1"`
	RollupInterval      time.Duration `yaml:"rollup_interval"`
	RollupBudget        time.Duration `yaml:"rollup_budget"`
	BillingInterval     time.Duration `yaml:"billing_interval"`
	ReadingRetention    time.Duration `yaml:"reading_retention"`
	SummaryRetention    time.Duration `yaml:"summary_retention"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval"`
	AlertShards         int           `yaml:"alert_shards" validate:"min=1,max=4096"`
	CostPerM3           float64       `yaml:"cost_per_m3" validate:"gte=0,finite"`
}

type Alerts struct {
	DefaultExpiry time.Duration            `yaml:"default_expiry"`
	Expiry        map[string]time.Duration `yaml:"expiry"`
}

type Journal struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`
}

type Archive struct {
	DatabaseURL string `yaml:"database_url"`
}

type Snapshot struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	TTL           time.Duration `yaml:"ttl"`
}

type Events struct {
	NNGPublishAddr string `yaml:"nng_publish_addr"`
}

type RateLimit struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps" validate:"gt=0,finite"`
	Burst   int     `yaml:"burst" validate:"min=1"`
}

// Default returns the built-in defaults
func Default() Config {
	ed := engine.DefaultConfig()
	return Config{
		Server: Server{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Log: Log{Level: "info", Format: "json"},
		Engine: Engine{
			IngestQueueDepth:    ed.IngestQueueDepth,
			IngestWorkers:       ed.IngestWorkers,
			RollupWorkers:       ed.RollupWorkers,
			RollupInterval:      ed.RollupInterval,
			RollupBudget:        ed.RollupBudget,
			BillingInterval:     ed.BillingInterval,
			ReadingRetention:    ed.ReadingRetention,
			SummaryRetention:    ed.SummaryRetention,
			SweepInterval:       ed.SweepInterval,
			ExpirySweepInterval: ed.ExpirySweepInterval,
			AlertShards:         ed.AlertShards,
		},
		Alerts:    Alerts{DefaultExpiry: ed.Expiry.Default},
		Journal:   Journal{Enabled: true, Dir: "./data/journal", Compress: true},
		Snapshot:  Snapshot{TTL: 15 * time.Minute},
		RateLimit: RateLimit{RPS: 100, Burst: 200},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays YAML onto cfg. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
