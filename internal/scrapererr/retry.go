// internal/scrapererr/retry.go - Retry with exponential backoff for transient failures
package scrapererr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DefaultRetryConfig returns the retry policy used by fetchers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     2 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      5 * time.Minute,
	}
}

// Retry runs operation until it succeeds, a non-retryable error occurs, the
// retry budget is exhausted, or ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, operationName string, operation func() error) error {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attempts++
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= cfg.MaxRetries || !IsRetryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.delay(attempt)):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operationName, attempts, lastErr)
}

// IsRetryable reports whether an error looks transient. Selector and template
// failures never retry since repeating them cannot change the outcome.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var selErr *SelectorSyntaxError
	var reqErr *RequiredFieldError
	var tplErr *TemplateError
	if errors.As(err, &selErr) || errors.As(err, &reqErr) || errors.As(err, &tplErr) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"timeout", "connection refused", "connection reset", "no such host",
		"500", "502", "503", "504", "429",
		"temporary", "service unavailable", "eof",
		"deadline exceeded", "net::err",
	}
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}

func (cfg RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}
