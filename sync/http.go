package sync

import (
	"fmt"
	"net/http"
	"time"
)

// HTTPRequestTimeout is the default timeout for all HTTP requests to external APIs.
const HTTPRequestTimeout = 60 * time.Second

// TransportError reports a request that failed at the network level even
// after the single automatic retry. HTTP error statuses are not transport
// errors — they pass through to the caller as ordinary responses.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request to %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// retryTransport retries a request exactly once on a transport-level failure.
// The retry is capped at one to avoid amplifying an outage. Responses with
// 4xx/5xx statuses are returned unchanged for the caller to inspect.
type retryTransport struct {
	base http.RoundTripper
}

// NewRetryTransport wraps rt (or http.DefaultTransport if nil) with the
// single-retry policy used for every external API call in this package.
func NewRetryTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return retryTransport{base: rt}
}

func (t retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.base.RoundTrip(req)
	if err == nil {
		return res, nil
	}
	// rewind the body for the retry if one was sent
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
		}
		req.Body = body
	}
	res, err = t.base.RoundTrip(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	return res, nil
}

// apiClient returns the shared HTTP client used by all API builders.
func apiClient() *http.Client {
	return &http.Client{
		Timeout:   HTTPRequestTimeout,
		Transport: NewRetryTransport(nil),
	}
}
