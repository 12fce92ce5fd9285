package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"

	"github.com/goccy/go-json"
)

const maxAttempts = 3

// GatewayConfig is what every online gateway client needs.
type GatewayConfig struct {
	BaseURL string
	AppKey  string
	Secret  string
	Timeout time.Duration
}

type gatewayClient struct {
	name       string
	baseURL    string
	appKey     string
	secret     string
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
}

func newGatewayClient(name string, cfg GatewayConfig) *gatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &gatewayClient{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appKey:     cfg.AppKey,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: timeout},
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 500 * time.Millisecond
		},
	}
}

// postJSON sends body to path and decodes the response into out. Network
// errors, 5xx and 429 are retried up to three attempts; other 4xx responses
// are permanent.
func (c *gatewayClient) postJSON(ctx context.Context, path string, body, out interface{}, sign func([]byte) (string, string)) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", c.name, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, ctx.Err())
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		retry, err := c.do(ctx, path, payload, out, sign)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		logger.WithContext(ctx).Warn().Err(err).Str("gateway", c.name).Int("attempt", attempt+1).Msg("gateway request failed")
	}
	return lastErr
}

func (c *gatewayClient) do(ctx context.Context, path string, payload []byte, out interface{}, sign func([]byte) (string, string)) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Key", c.appKey)
	if sign != nil {
		name, value := sign(payload)
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: %s request failed: %v", domain.ErrGatewayUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return false, nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return false, fmt.Errorf("%w: malformed %s response: %v", domain.ErrGatewayUnavailable, c.name, err)
		}
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("%w: %s returned status %d", domain.ErrGatewayUnavailable, c.name, resp.StatusCode)
	default:
		return false, domain.ErrPaymentFailed.WithMessage("%s rejected the payment request (status %d): %s",
			c.name, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}
