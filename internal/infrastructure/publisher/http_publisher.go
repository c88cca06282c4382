// Package publisher sends artifact descriptors to a remote recording store.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"screencast/internal/core/domain"
	"screencast/pkg/circuitbreaker"
	"screencast/pkg/retry"
	"screencast/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const recordingsPath = "/api/recordings"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// Config configures HTTPPublisher.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   retry.Config
	Breaker circuitbreaker.Config
}

// StatusError is a non-2xx answer from the remote store.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recording store returned %d", e.StatusCode)
	}
	return fmt.Sprintf("recording store returned %d: %s", e.StatusCode, e.Message)
}

// HTTPPublisher implements ports.MetadataPublisher against the REST store of
// another screencast instance.
type HTTPPublisher struct {
	endpoint string
	token    string
	client   *http.Client
	retry    retry.Config
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.SugaredLogger
}

func NewHTTPPublisher(cfg Config, logger *zap.SugaredLogger) *HTTPPublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := circuitbreaker.New(cfg.Breaker)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("publisher circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return &HTTPPublisher{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + recordingsPath,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		retry:    cfg.Retry,
		breaker:  breaker,
		logger:   logger,
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, input domain.RecordingInput) (*domain.Recording, error) {
	ctx, span := tracing.TracePublish(ctx, input.Filename)
	defer span.End()

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recording: %w", err)
	}

	attempt := 0
	recording, err := retry.DoWithResult(ctx, p.retry, func(ctx context.Context) (*domain.Recording, error) {
		attempt++
		rec, err := circuitbreaker.Execute(p.breaker, func() (*domain.Recording, error) {
			return p.post(ctx, body)
		})
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, circuitbreaker.ErrOpen) || !retryable(err) {
			return nil, retry.Permanent(err)
		}
		p.logger.Warnw("publish attempt failed",
			"attempt", attempt,
			"filename", input.Filename,
			"error", err,
		)
		return nil, err
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return recording, nil
}

func (p *HTTPPublisher) post(ctx context.Context, body []byte) (*domain.Recording, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach recording store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	var recording domain.Recording
	if err := json.NewDecoder(resp.Body).Decode(&recording); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	return &recording, nil
}

// retryable: transport errors, 429 and 5xx.
func retryable(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return true
	}
	return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
}

func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
