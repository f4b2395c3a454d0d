// File: internal/intent/http.go
package intent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

const (
	resolvePath    = "/v1/intent"
	invalidatePath = "/v1/invalidate"
)

// HTTPClient talks to an intent source over JSON/HTTP, retrying transient
// failures with exponential backoff.
type HTTPClient struct {
	endpoint       string
	httpClient     *http.Client
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

var _ Source = (*HTTPClient)(nil)

// NewHTTPClient builds a client for cfg.Endpoint.
func NewHTTPClient(cfg config.IntentConfig, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("intent endpoint is required")
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	retries := uint64(max(cfg.MaxRetries, 0))

	return &HTTPClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("intent"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return backoff.WithMaxRetries(b, retries)
		},
	}, nil
}

// Resolve sends the utterance and decodes the decided action.
func (c *HTTPClient) Resolve(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal intent request: %w", err)
	}

	var out Response
	err = c.post(ctx, resolvePath, body, func(respBody []byte) error {
		if err := json.Unmarshal(respBody, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode intent response: %w", err))
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	kind := ""
	if out.Action != nil {
		kind = string(out.Action.Kind())
	}
	c.logger.Debug("Intent resolved",
		zap.String("session_id", req.SessionID),
		zap.String("action", kind),
		zap.String("tool", out.ToolUsed))
	return out, nil
}

// Invalidate tells the source to forget the user's conversation.
func (c *HTTPClient) Invalidate(ctx context.Context, userID string) error {
	body, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return fmt.Errorf("failed to marshal invalidate request: %w", err)
	}
	return c.post(ctx, invalidatePath, body, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte, decode func([]byte) error) error {
	url := c.endpoint + path
	attempt := 0

	operation := func() error {
		attempt++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error calling intent source, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: failed to read response body: %v", ErrUnavailable, err)
		}
		if resp.StatusCode/100 != 2 {
			return c.handleStatus(resp.StatusCode, respBody)
		}
		c.logger.Debug("Intent source call complete", zap.String("path", path), zap.Duration("duration", time.Since(startTime)))
		if decode == nil {
			return nil
		}
		return decode(respBody)
	}

	return backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx))
}

func (c *HTTPClient) handleStatus(status int, body []byte) error {
	c.logger.Warn("Intent source returned error status", zap.Int("status", status), zap.String("response", string(body)))
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	default:
		return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, status, strings.TrimSpace(string(body))))
	}
}
