package resilience

import (
	"time"
)

// RetryFromConfig builds a RetryConfig from the configured retry count.
// maxRetries counts retries after the first attempt; zero or negative
// keeps the defaults.
func RetryFromConfig(maxRetries int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxRetries > 0 {
		cfg.MaxAttempts = maxRetries + 1
	}
	return cfg
}

// WindowFromConfig builds the source-API window limiter from config
// values, falling back to 1000 calls per rolling hour.
func WindowFromConfig(callsPerWindow, windowMinutes int) *WindowLimiter {
	if callsPerWindow <= 0 {
		callsPerWindow = 1000
	}
	if windowMinutes <= 0 {
		windowMinutes = 60
	}
	return NewWindowLimiter(callsPerWindow, time.Duration(windowMinutes)*time.Minute)
}
