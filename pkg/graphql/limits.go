package graphql

import "fmt"

// LimitConfig bounds the length of list results
type LimitConfig struct {
	DefaultLimit int // used when a list field has no limit argument
	MaxLimit     int // cap on any requested limit
}

// DefaultLimitConfig returns the limits used when none are configured
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{DefaultLimit: 100, MaxLimit: 1000}
}

// ValidateLimitConfig validates the limit configuration
func ValidateLimitConfig(config *LimitConfig) error {
	if config.MaxLimit <= 0 {
		return fmt.Errorf("max limit must be greater than 0, got %d", config.MaxLimit)
	}
	if config.DefaultLimit <= 0 {
		return fmt.Errorf("default limit must be greater than 0, got %d", config.DefaultLimit)
	}
	if config.DefaultLimit > config.MaxLimit {
		return fmt.Errorf("default limit (%d) cannot exceed max limit (%d)", config.DefaultLimit, config.MaxLimit)
	}
	return nil
}

// applyLimit applies default and max limit constraints to a limit value
func applyLimit(requestedLimit int, config *LimitConfig) int {
	if requestedLimit < 0 {
		return config.DefaultLimit
	}
	if requestedLimit > config.MaxLimit {
		return config.MaxLimit
	}
	return requestedLimit
}
