package sync

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

// flakyTransport fails the first n round trips with a transport error and
// then returns a canned response.
type flakyTransport struct {
	failures int
	status   int
	calls    int
	bodies   []string
}

func (t *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		t.bodies = append(t.bodies, string(b))
	}
	if t.calls <= t.failures {
		return nil, errors.New("connection reset")
	}
	return &http.Response{
		StatusCode: t.status,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestRetryTransport_RetriesOnceOnTransportFailure(t *testing.T) {
	flaky := &flakyTransport{failures: 1, status: http.StatusOK}
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/v1/ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewRetryTransport(flaky).RoundTrip(req)
	if err != nil {
		t.Fatalf("expected retry to recover but have: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200 but have: %d", res.StatusCode)
	}
	if flaky.calls != 2 {
		t.Errorf("expected 2 attempts but have: %d", flaky.calls)
	}
}

func TestRetryTransport_SecondFailureIsTransportError(t *testing.T) {
	flaky := &flakyTransport{failures: 2, status: http.StatusOK}
	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/v1/items", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewRetryTransport(flaky).RoundTrip(req)
	if err == nil {
		t.Fatal("expected an error after two transport failures")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected a TransportError but have: %v", err)
	}
	if transportErr.Method != http.MethodPost || transportErr.URL != "https://api.example.com/v1/items" {
		t.Errorf("expected method and URL on the error but have: %+v", transportErr)
	}
	if flaky.calls != 2 {
		t.Errorf("expected the retry to be capped at one, have %d attempts", flaky.calls)
	}
}

func TestRetryTransport_RewindsBodyForRetry(t *testing.T) {
	flaky := &flakyTransport{failures: 1, status: http.StatusOK}
	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/v1/items", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewRetryTransport(flaky).RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if len(flaky.bodies) != 2 || flaky.bodies[1] != `{"a":1}` {
		t.Errorf("expected the retried request to carry the body, have: %q", flaky.bodies)
	}
}

func TestRetryTransport_DoesNotRetryHTTPErrorStatus(t *testing.T) {
	flaky := &flakyTransport{failures: 0, status: http.StatusInternalServerError}
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/v1/ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewRetryTransport(flaky).RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected the 500 to pass through, have: %d", res.StatusCode)
	}
	if flaky.calls != 1 {
		t.Errorf("expected no retry on an HTTP error status, have %d attempts", flaky.calls)
	}
}
