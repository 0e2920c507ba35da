// Package repository provides the git hosting service client: branch
// lookups, branch comparison and upstream merges through its REST API.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	"github.com/relicta-tech/launchpad/internal/infrastructure/resilience"
)

// ErrMergeConflict is returned when the hosting service cannot merge the
// branches automatically.
var ErrMergeConflict = errors.New("merge request has conflicts")

// Config configures the repository client.
type Config struct {
	APIURL string
	// Token authenticates requests that carry no token of their own.
	Token          string
	CompareTimeout time.Duration
	Retries        int
	// PollInterval is the wait between merge status polls.
	PollInterval time.Duration
}

type compareResponse struct {
	Commits []struct {
		ID string `json:"id"`
	} `json:"commits"`
}

type mergeRequest struct {
	IID   int64  `json:"iid"`
	State string `json:"state"`
}

// Client talks to the hosting service REST API.
type Client struct {
	baseURL        string
	token          string
	compareTimeout time.Duration
	pollInterval   time.Duration
	http           *http.Client
	policy         *resilience.Policy[[]byte]
	logger         *slog.Logger
}

// Ensure Client implements the interface.
var _ ports.RepositoryService = (*Client)(nil)

// New creates a repository client.
func New(cfg Config) *Client {
	compareTimeout := cfg.CompareTimeout
	if compareTimeout == 0 {
		compareTimeout = 10 * time.Second
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = time.Second
	}
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.APIURL, "/"),
		token:          cfg.Token,
		compareTimeout: compareTimeout,
		pollInterval:   poll,
		http:           &http.Client{Timeout: 30 * time.Second},
		policy: resilience.New[[]byte]("repository", resilience.Config{
			RetryAttempts:    cfg.Retries + 1,
			RetryInitialWait: 250 * time.Millisecond,
			RetryMaxWait:     2 * time.Second,
		}),
		logger: slog.Default().With("component", "repository"),
	}
}

// Compare counts the commits on target missing from source. A comparison
// that exceeds the compare timeout reports TimedOut instead of failing.
func (c *Client) Compare(ctx context.Context, projectRef, source, target string) (ports.CompareResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.compareTimeout)
	defer cancel()

	n, err := c.countCommits(ctx, projectRef, source, target, c.token)
	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("branch comparison timed out", "project", projectRef, "source", source, "target", target)
		return ports.CompareResult{TimedOut: true}, nil
	}
	if err != nil {
		return ports.CompareResult{}, err
	}
	return ports.CompareResult{AheadCommits: n}, nil
}

// BranchExists reports whether the branch exists in the project.
func (c *Client) BranchExists(ctx context.Context, projectRef, branch string) (bool, error) {
	path := fmt.Sprintf("/projects/%s/repository/branches/%s", url.PathEscape(projectRef), url.PathEscape(branch))
	_, err := c.do(ctx, http.MethodGet, path, nil, c.token)
	var se *resilience.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up branch %s: %w", branch, err)
	}
	return true, nil
}

// Merge merges source into target through a merge request and waits until
// the hosting service reports it merged. Nothing is opened when target
// already contains every commit of source.
func (c *Client) Merge(ctx context.Context, req ports.MergeRequest) error {
	token := req.Token
	if token == "" {
		token = c.token
	}

	pending, err := c.countCommits(ctx, req.ProjectRef, req.Target, req.Source, token)
	if err != nil {
		return err
	}
	if pending == 0 {
		c.logger.Debug("nothing to merge", "project", req.ProjectRef, "source", req.Source, "target", req.Target)
		return nil
	}

	mr, err := c.openMergeRequest(ctx, req, token)
	if err != nil {
		return err
	}

	base := fmt.Sprintf("/projects/%s/merge_requests/%d", url.PathEscape(req.ProjectRef), mr.IID)
	if _, err := c.do(ctx, http.MethodPut, base+"/merge", map[string]any{"should_remove_source_branch": false}, token); err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotAcceptable {
			return fmt.Errorf("%w: %s into %s", ErrMergeConflict, req.Source, req.Target)
		}
		return fmt.Errorf("accepting merge request %d: %w", mr.IID, err)
	}

	for {
		raw, err := c.do(ctx, http.MethodGet, base, nil, token)
		if err != nil {
			return fmt.Errorf("polling merge request %d: %w", mr.IID, err)
		}
		var cur mergeRequest
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("decoding merge request: %w", err)
		}
		switch cur.State {
		case "merged":
			c.logger.Info("merge request merged", "project", req.ProjectRef, "iid", mr.IID)
			return nil
		case "closed":
			return fmt.Errorf("merge request %d was closed", mr.IID)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for merge request %d: %w", mr.IID, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// openMergeRequest creates a merge request, or reuses the open one for the
// same branches.
func (c *Client) openMergeRequest(ctx context.Context, req ports.MergeRequest, token string) (*mergeRequest, error) {
	project := url.PathEscape(req.ProjectRef)
	raw, err := c.do(ctx, http.MethodPost, "/projects/"+project+"/merge_requests", map[string]any{
		"source_branch": req.Source,
		"target_branch": req.Target,
		"title":         req.Title,
	}, token)

	var se *resilience.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		q := url.Values{"state": {"opened"}, "source_branch": {req.Source}, "target_branch": {req.Target}}
		raw, err = c.do(ctx, http.MethodGet, "/projects/"+project+"/merge_requests?"+q.Encode(), nil, token)
		if err != nil {
			return nil, fmt.Errorf("listing merge requests: %w", err)
		}
		var open []mergeRequest
		if err := json.Unmarshal(raw, &open); err != nil {
			return nil, fmt.Errorf("decoding merge requests: %w", err)
		}
		if len(open) == 0 {
			return nil, fmt.Errorf("merge request for %s into %s conflicts but none is open", req.Source, req.Target)
		}
		return &open[0], nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening merge request: %w", err)
	}

	var mr mergeRequest
	if err := json.Unmarshal(raw, &mr); err != nil {
		return nil, fmt.Errorf("decoding merge request: %w", err)
	}
	return &mr, nil
}

// countCommits returns the number of commits reachable from to but not from.
func (c *Client) countCommits(ctx context.Context, projectRef, from, to, token string) (int, error) {
	q := url.Values{"from": {from}, "to": {to}, "straight": {"true"}}
	path := fmt.Sprintf("/projects/%s/repository/compare?%s", url.PathEscape(projectRef), q.Encode())
	raw, err := c.do(ctx, http.MethodGet, path, nil, token)
	if err != nil {
		return 0, fmt.Errorf("comparing %s with %s: %w", from, to, err)
	}
	var cmp compareResponse
	if err := json.Unmarshal(raw, &cmp); err != nil {
		return 0, fmt.Errorf("decoding comparison: %w", err)
	}
	return len(cmp.Commits), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, token string) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return c.policy.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("PRIVATE-TOKEN", token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &resilience.StatusError{Service: "repository", StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
}
