package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"screencast/internal/core/domain"
	"screencast/pkg/circuitbreaker"
	"screencast/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(url string) Config {
	return Config{
		BaseURL: url,
		Token:   "secret",
		Timeout: time.Second,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		Breaker: circuitbreaker.Config{
			FailureThreshold:    10,
			SuccessThreshold:    1,
			Timeout:             time.Minute,
			MaxRequestsHalfOpen: 1,
		},
	}
}

func TestHTTPPublisher_Success(t *testing.T) {
	var got domain.RecordingInput
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/recordings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Recording{ID: "r1", Filename: got.Filename})
	}))
	defer server.Close()

	p := NewHTTPPublisher(testConfig(server.URL+"/"), zaptest.NewLogger(t).Sugar())
	rec, err := p.Publish(context.Background(), domain.RecordingInput{Filename: "a.webm", Format: "webm"})
	require.NoError(t, err)

	assert.Equal(t, domain.RecordingID("r1"), rec.ID)
	assert.Equal(t, "a.webm", got.Filename)
}

func TestHTTPPublisher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Recording{ID: "r2"})
	}))
	defer server.Close()

	p := NewHTTPPublisher(testConfig(server.URL), zaptest.NewLogger(t).Sugar())
	rec, err := p.Publish(context.Background(), domain.RecordingInput{Filename: "a.webm"})
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingID("r2"), rec.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPPublisher_DoesNotRetryValidationErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid recording data"}`))
	}))
	defer server.Close()

	p := NewHTTPPublisher(testConfig(server.URL), zaptest.NewLogger(t).Sugar())
	_, err := p.Publish(context.Background(), domain.RecordingInput{})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "Invalid recording data", statusErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPPublisher_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.FailureThreshold = 2
	p := NewHTTPPublisher(cfg, zaptest.NewLogger(t).Sugar())

	for i := 0; i < 2; i++ {
		_, err := p.Publish(context.Background(), domain.RecordingInput{})
		require.Error(t, err)
	}
	_, err := p.Publish(context.Background(), domain.RecordingInput{})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
}
