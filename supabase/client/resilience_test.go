package client

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}
}

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestRetryTransportRetriesRetryableStatus(t *testing.T) {
	calls := 0
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return response(http.StatusServiceUnavailable), nil
		}
		return response(http.StatusOK), nil
	})

	transport := NewRetryTransport(base, fastRetryConfig())
	req, _ := http.NewRequest(http.MethodGet, "http://backend/rest/v1/products", nil)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestRetryTransportNeverReplaysFailedWrite(t *testing.T) {
	calls := 0
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection reset")
	})

	transport := NewRetryTransport(base, fastRetryConfig())
	req, _ := http.NewRequest(http.MethodPost, "http://backend/rest/v1/rpc/complete_deal",
		strings.NewReader(`{"notification_id":"n1"}`))

	_, err := transport.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "a write that may have executed must not be replayed")
}

func TestRetryTransportRetriesRejectedWrite(t *testing.T) {
	calls := 0
	var bodies []string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		body, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(body))
		if calls == 1 {
			// 429 means the backend refused without executing.
			return response(http.StatusTooManyRequests), nil
		}
		return response(http.StatusCreated), nil
	})

	transport := NewRetryTransport(base, fastRetryConfig())
	req, _ := http.NewRequest(http.MethodPost, "http://backend/rest/v1/notifications",
		strings.NewReader(`{"product_id":"p1"}`))

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, calls)
	assert.Equal(t, bodies[0], bodies[1], "replayed request must carry the same body")
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure(errors.New("backend down"))
	}

	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.EqualError(t, cb.LastError(), "backend down")
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	})

	cb.RecordFailure(errors.New("down"))
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, cb.Allow(), "after the timeout one probe is allowed")
	require.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	})

	cb.RecordFailure(errors.New("down"))
	time.Sleep(5 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure(errors.New("still down"))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitClosedSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	cb.RecordFailure(errors.New("blip"))
	cb.RecordSuccess()
	cb.RecordFailure(errors.New("blip"))

	assert.Equal(t, CircuitClosed, cb.State(), "non-consecutive failures must not open the circuit")
}
