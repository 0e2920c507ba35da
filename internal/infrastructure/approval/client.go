// Package approval provides the client for the approval gate service.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	"github.com/relicta-tech/launchpad/internal/infrastructure/resilience"
)

// ErrInstanceNotFound is returned when the service does not know the instance.
var ErrInstanceNotFound = errors.New("approval instance not found")

// Config configures the approval client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type instanceResponse struct {
	Status string `json:"status"`
}

// Client reads approval instance status.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	policy  *resilience.Policy[domain.ApprovalStatus]
}

// Ensure Client implements the interface.
var _ ports.ApprovalService = (*Client)(nil)

// New creates an approval client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		policy: resilience.New[domain.ApprovalStatus]("approval", resilience.Config{
			RetryAttempts:    3,
			RetryInitialWait: 200 * time.Millisecond,
			RetryMaxWait:     time.Second,
		}),
	}
}

// Status returns the status of an approval instance.
func (c *Client) Status(ctx context.Context, instance string) (domain.ApprovalStatus, error) {
	return c.policy.Execute(ctx, func(ctx context.Context) (domain.ApprovalStatus, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/instances/"+url.PathEscape(instance), nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
		}
		if resp.StatusCode >= 400 {
			return "", &resilience.StatusError{Service: "approval", StatusCode: resp.StatusCode, Body: string(body)}
		}

		var out instanceResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("failed to decode approval status: %w", err)
		}
		return domain.ApprovalStatus(strings.ToUpper(out.Status)), nil
	})
}
