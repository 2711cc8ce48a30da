package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
)

// RecordRequestsDir is where exchanges are written when RecordRequests is set.
const RecordRequestsDir = "testdata/.requests"

// apiClient posts queries to one endpoint.
type apiClient struct {
	endpointURL string
	apiToken    string
	timeout     time.Duration
	transport   http.RoundTripper
	recordAs    string
}

func newAPIClient(sc SyncContext, cfg StreamConfig) apiClient {
	result := apiClient{
		endpointURL: cfg.EndpointURL,
		apiToken:    cfg.APIToken,
		timeout:     cfg.RequestTimeout,
		transport:   sc.Transport,
	}
	if sc.RecordRequests {
		result.recordAs = cfg.Name
	}
	return result
}

// APIBuilder returns a new requests.Builder configured for the endpoint.
func (c apiClient) APIBuilder() *requests.Builder {
	result := requests.
		URL(c.endpointURL).
		Client(&http.Client{Timeout: c.timeout})
	if c.recordAs != "" {
		result = result.Transport(requests.Record(c.transport, fmt.Sprintf("%s/%s", RecordRequestsDir, c.recordAs)))
	} else if c.transport != nil {
		result = result.Transport(c.transport)
	}
	return result
}

// post sends one query and returns the raw response body.
// Failures are a *StatusError when the API answered and a *TransportError
// when it did not.
func (c apiClient) post(ctx context.Context, body QueryBody) (string, error) {
	var result, errBody string
	err := c.APIBuilder().
		Post().
		Bearer(c.apiToken).
		ContentType("application/json").
		BodyJSON(&body).
		AddValidator(requests.ValidatorHandler(requests.DefaultValidator, requests.ToString(&errBody))).
		ToString(&result).
		Fetch(ctx)
	if err == nil {
		return result, nil
	}

	var respErr *requests.ResponseError
	if errors.As(err, &respErr) {
		return "", &StatusError{
			StatusCode: respErr.StatusCode,
			Header:     respErr.Header.Clone(),
			Body:       errBody,
		}
	}
	return "", &TransportError{Err: err}
}
