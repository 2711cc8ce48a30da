package sync

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// RateLimitFallbackSeconds is the wait after a 429 without a usable Retry-After.
	RateLimitFallbackSeconds = 60.0
	// TransientAttempts bounds attempts for transport and decode failures.
	TransientAttempts = 5
	// DefaultMaxRetries bounds retries of retryable status codes.
	DefaultMaxRetries = 5

	defaultInitialInterval = time.Second
	defaultMaxInterval     = 60 * time.Second
	backoffMultiplier      = 2.0
)

// ShouldRetry reports whether a response status is transient.
func ShouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// BackoffSeconds returns an explicit wait for a retryable status.
// ok is false when the caller should fall back to exponential backoff.
func BackoffSeconds(statusCode int, header http.Header) (seconds float64, ok bool) {
	if statusCode != http.StatusTooManyRequests {
		return 0, false
	}
	if s, found := retryAfterSeconds(header.Get("Retry-After")); found {
		return s, true
	}
	return RateLimitFallbackSeconds, true
}

// retryAfterSeconds accepts both forms of Retry-After: delta seconds and an HTTP date.
func retryAfterSeconds(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if s, err := strconv.ParseFloat(value, 64); err == nil {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return 0, false
		}
		return s, true
	}
	if t, err := http.ParseTime(value); err == nil {
		return math.Max(0, time.Until(t).Seconds()), true
	}
	return 0, false
}

// RetryPolicy configures how failed page requests are repeated.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaultMaxInterval
	}
	return p
}

// pageBackOff decides the wait before the next attempt at one page based on
// the error of the attempt that just failed. It keeps separate budgets for
// retryable statuses and for transport/decode failures.
type pageBackOff struct {
	policy      RetryPolicy
	exponential *backoff.ExponentialBackOff

	last           error
	statusRetries  int
	transientTries int
	exhausted      bool
}

func newPageBackOff(policy RetryPolicy) *pageBackOff {
	policy = policy.withDefaults()
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = policy.InitialInterval
	exponential.MaxInterval = policy.MaxInterval
	exponential.Multiplier = backoffMultiplier
	exponential.RandomizationFactor = 0
	exponential.MaxElapsedTime = 0
	exponential.Reset()
	return &pageBackOff{policy: policy, exponential: exponential}
}

// record must be called with the error of every failed attempt.
func (b *pageBackOff) record(err error) {
	b.last = err
}

func (b *pageBackOff) NextBackOff() time.Duration {
	var statusErr *StatusError
	if errors.As(b.last, &statusErr) {
		b.statusRetries++
		if b.statusRetries > b.policy.MaxRetries {
			b.exhausted = true
			return backoff.Stop
		}
		if seconds, ok := BackoffSeconds(statusErr.StatusCode, statusErr.Header); ok {
			return time.Duration(seconds * float64(time.Second))
		}
		return b.exponential.NextBackOff()
	}

	// the first attempt counts towards the transient budget
	b.transientTries++
	if b.transientTries >= TransientAttempts {
		b.exhausted = true
		return backoff.Stop
	}
	return b.exponential.NextBackOff()
}

func (b *pageBackOff) Reset() {
	b.last = nil
	b.statusRetries = 0
	b.transientTries = 0
	b.exhausted = false
	b.exponential.Reset()
}
