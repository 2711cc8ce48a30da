package sync

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// probePageSize keeps the connection probe as cheap as possible.
const probePageSize = 1

// Check validates the configuration and probes the first endpoint.
// It never fails with an error: every problem becomes a message for the
// operator, and ok is true only when the probe returned a usable page.
func Check(ctx context.Context, sc SyncContext) (ok bool, message string) {
	if err := sc.Config.Validate(); err != nil {
		return false, err.Error()
	}
	stream, err := NewStream(sc, sc.Config.Endpoints[0])
	if err != nil {
		return false, err.Error()
	}

	endpointURL := stream.config.EndpointURL
	raw, err := stream.client.post(ctx, BuildRequest(CursorState{}, nil, probePageSize))
	if err != nil {
		message = probeFailure(err, stream.config)
		sc.logger().Warn("connection check failed", zap.String("endpoint_url", endpointURL), zap.Error(err))
		return false, message
	}

	clean := Clean(raw)
	if !gjson.Valid(clean) {
		return false, fmt.Sprintf("Invalid response from %s: body is not valid JSON", endpointURL)
	}
	if !gjson.Parse(clean).Get(RecordsField).Exists() {
		return false, fmt.Sprintf("Invalid response from %s: missing %q field", endpointURL, RecordsField)
	}
	return true, ""
}

func probeFailure(err error, cfg StreamConfig) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("HTTP error %d from %s: %s",
			statusErr.StatusCode, cfg.EndpointURL, truncate(statusErr.Body, maxErrorBodyLength))
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if isTimeout(transportErr.Err) {
			return fmt.Sprintf("Timed out after %s connecting to %s", cfg.RequestTimeout, cfg.EndpointURL)
		}
		return fmt.Sprintf("Connection error reaching %s: %v", cfg.EndpointURL, transportErr.Err)
	}
	return fmt.Sprintf("Unexpected error checking %s: %v", cfg.EndpointURL, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
