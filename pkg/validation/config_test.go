package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigValidator_Required(t *testing.T) {
	if !NewConfigValidator("journal").Required("dir", "").HasErrors() {
		t.Error("Expected error for empty required field")
	}
	if NewConfigValidator("journal").Required("dir", "./data").HasErrors() {
		t.Error("Expected no error for non-empty required field")
	}
}

func TestConfigValidator_Positive(t *testing.T) {
	tests := []struct {
		value     int
		expectErr bool
	}{
		{-1, true},
		{0, true},
		{1, false},
		{64, false},
	}
	for _, tt := range tests {
		cv := NewConfigValidator("engine").Positive("alert_shards", tt.value)
		if cv.HasErrors() != tt.expectErr {
			t.Errorf("Positive(%d): HasErrors() = %v, want %v", tt.value, cv.HasErrors(), tt.expectErr)
		}
	}
}

func TestConfigValidator_RangeInt(t *testing.T) {
	tests := []struct {
		value     int
		expectErr bool
	}{
		{0, true},
		{1, false},
		{8080, false},
		{65535, false},
		{65536, true},
	}
	for _, tt := range tests {
		cv := NewConfigValidator("server").RangeInt("port", tt.value, 1, 65535)
		if cv.HasErrors() != tt.expectErr {
			t.Errorf("RangeInt(%d): HasErrors() = %v, want %v", tt.value, cv.HasErrors(), tt.expectErr)
		}
	}
}

func TestConfigValidator_Durations(t *testing.T) {
	cv := NewConfigValidator("engine").
		MinDuration("rollup_interval", time.Second, time.Minute).
		ShorterThan("rollup_budget", time.Hour, "rollup_interval", time.Minute)
	if len(cv.Errors()) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(cv.Errors()))
	}
	if !strings.Contains(cv.Errors()[1].Error(), "shorter than rollup_interval") {
		t.Errorf("unexpected message %q", cv.Errors()[1])
	}

	ok := NewConfigValidator("engine").ShorterThan("rollup_budget", 5*time.Second, "rollup_interval", time.Hour)
	if ok.HasErrors() {
		t.Error("Expected no error for budget below interval")
	}
}

func TestConfigValidator_OneOf(t *testing.T) {
	allowed := []string{"json", "console"}
	if NewConfigValidator("log").OneOf("format", "json", allowed).HasErrors() {
		t.Error("Expected no error for allowed value")
	}
	if !NewConfigValidator("log").OneOf("format", "xml", allowed).HasErrors() {
		t.Error("Expected error for disallowed value")
	}
}

func TestConfigValidator_HostPort(t *testing.T) {
	tests := []struct {
		value     string
		expectErr bool
	}{
		{"", false},
		{"localhost:6379", false},
		{"redis", true},
	}
	for _, tt := range tests {
		cv := NewConfigValidator("snapshot").HostPort("redis_addr", tt.value)
		if cv.HasErrors() != tt.expectErr {
			t.Errorf("HostPort(%q): HasErrors() = %v, want %v", tt.value, cv.HasErrors(), tt.expectErr)
		}
	}
}

func TestConfigValidator_Custom(t *testing.T) {
	sentinel := errors.New("expiry must be positive")
	cv := NewConfigValidator("alerts").Custom("expiry", func() error { return sentinel })
	if !errors.Is(cv.Validate(), sentinel) {
		t.Errorf("Validate() should wrap the custom error, got %v", cv.Validate())
	}
}

func TestConfigValidator_When(t *testing.T) {
	cv := NewConfigValidator("journal").When(false, func(cv *ConfigValidator) {
		cv.Required("dir", "")
	})
	if cv.HasErrors() {
		t.Error("When(false) should skip validations")
	}

	cv = NewConfigValidator("journal").When(true, func(cv *ConfigValidator) {
		cv.Required("dir", "")
	})
	if !cv.HasErrors() {
		t.Error("When(true) should apply validations")
	}
}

func TestConfigValidator_Validate(t *testing.T) {
	if err := NewConfigValidator("engine").Positive("ingest_workers", 4).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	err := NewConfigValidator("engine").
		Positive("ingest_workers", 0).
		NonNegativeFloat("cost_per_m3", -1).
		Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"engine.ingest_workers", "engine.cost_per_m3"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}
