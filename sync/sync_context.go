package sync

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SyncContext holds what every stream of one sync shares.
// It is immutable after construction; streams only read from it.
type SyncContext struct {
	Config         Config
	Logger         *zap.Logger
	Observer       Observer
	RecordRequests bool

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	// RetryInitialInterval overrides the first exponential backoff interval.
	RetryInitialInterval time.Duration
}

func (sc SyncContext) logger() *zap.Logger {
	if sc.Logger == nil {
		return zap.NewNop()
	}
	return sc.Logger
}

func (sc SyncContext) observer() Observer {
	if sc.Observer == nil {
		return NopObserver{}
	}
	return sc.Observer
}

func (sc SyncContext) retryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      maxRetries,
		InitialInterval: sc.RetryInitialInterval,
	}
}
