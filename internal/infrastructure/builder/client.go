// Package builder provides the HTTP client for the external build system.
package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	"github.com/relicta-tech/launchpad/internal/infrastructure/resilience"
)

// Config configures the builder client.
type Config struct {
	URL     string
	User    string
	Token   string
	Timeout time.Duration
	// BreakerFailures is the consecutive failure count that opens the circuit.
	BreakerFailures int
	BreakerTimeout  time.Duration
}

type buildBody struct {
	Type   string            `json:"type"`
	Job    string            `json:"job"`
	Params map[string]string `json:"params"`
}

type buildResponse struct {
	QueueID int64 `json:"queueId"`
}

// Client queues builds. Builds are never retried: a queued build that looks
// failed to the client could still run, so the circuit breaker only guards
// against hammering a builder that is down.
type Client struct {
	baseURL string
	user    string
	token   string
	http    *http.Client
	policy  *resilience.Policy[int64]
	logger  *slog.Logger
}

// Ensure Client implements the interface.
var _ ports.Builder = (*Client)(nil)

// New creates a builder client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		user:    cfg.User,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		policy: resilience.New[int64]("builder", resilience.Config{
			CircuitBreakerEnabled:     cfg.BreakerFailures > 0,
			CircuitBreakerThreshold:   cfg.BreakerFailures,
			CircuitBreakerTimeout:     cfg.BreakerTimeout,
			CircuitBreakerMaxRequests: 1,
		}),
		logger: slog.Default().With("component", "builder_client"),
	}
}

// Build queues a build and returns its queue id.
func (c *Client) Build(ctx context.Context, req ports.BuildRequest) (int64, error) {
	return c.policy.Execute(ctx, func(ctx context.Context) (int64, error) {
		return c.build(ctx, req)
	})
}

func (c *Client) build(ctx context.Context, req ports.BuildRequest) (int64, error) {
	body, err := json.Marshal(buildBody{Type: string(req.ProjectType), Job: req.Job, Params: req.Params})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/build", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("build request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return 0, &resilience.StatusError{Service: "builder", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out buildResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("failed to decode build response: %w", err)
	}

	c.logger.Debug("build queued", "job", req.Job, "queue_id", out.QueueID)
	return out.QueueID, nil
}

// CircuitState reports the circuit breaker state for health checks.
func (c *Client) CircuitState() string {
	return c.policy.CircuitBreakerState()
}
