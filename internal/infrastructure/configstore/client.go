// Package configstore provides the HTTP client for the runtime configuration
// store that serves gateway and web HTML documents.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	"github.com/relicta-tech/launchpad/internal/infrastructure/resilience"
)

const (
	loginPath      = "/nacos/v1/auth/login"
	namespacesPath = "/nacos/v1/console/namespaces"
	configsPath    = "/nacos/v1/cs/configs"
)

// Config configures the config store client.
type Config struct {
	// URLs maps a deploy environment to the store endpoint serving it.
	URLs     map[domain.DeployEnv]string
	Username string
	Password string
	// Group is used when coordinates carry none.
	Group   string
	Timeout time.Duration
	Retries int
}

type namespace struct {
	ID   string `json:"namespace"`
	Name string `json:"namespaceShowName"`
}

type namespaceList struct {
	Data []namespace `json:"data"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenTTL    int64  `json:"tokenTtl"`
}

type accessToken struct {
	value   string
	expires time.Time
}

// Client talks to one config store cluster per deploy environment.
type Client struct {
	cfg    Config
	http   *http.Client
	policy *resilience.Policy[string]
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]accessToken
}

// Ensure Client implements the interface.
var _ ports.ConfigStore = (*Client)(nil)

// New creates a config store client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		policy: resilience.New[string]("config_store", resilience.Config{
			RetryAttempts:    cfg.Retries + 1,
			RetryInitialWait: 200 * time.Millisecond,
			RetryMaxWait:     2 * time.Second,
		}),
		logger: slog.Default().With("component", "config_store"),
		tokens: make(map[string]accessToken),
	}
}

// LookupNamespace returns the namespace id whose display name is tenant.
func (c *Client) LookupNamespace(ctx context.Context, env domain.DeployEnv, tenant string) (string, bool, error) {
	base, err := c.endpoint(env, "")
	if err != nil {
		return "", false, err
	}
	raw, err := c.do(ctx, base, http.MethodGet, namespacesPath, nil)
	if err != nil {
		return "", false, fmt.Errorf("listing namespaces: %w", err)
	}
	var list namespaceList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return "", false, fmt.Errorf("decoding namespaces: %w", err)
	}
	for _, ns := range list.Data {
		if ns.Name == tenant {
			return ns.ID, true, nil
		}
	}
	return "", false, nil
}

// UpsertNamespace creates the tenant namespace, using the tenant as its id,
// unless it already exists.
func (c *Client) UpsertNamespace(ctx context.Context, env domain.DeployEnv, tenant string) (string, error) {
	id, ok, err := c.LookupNamespace(ctx, env, tenant)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	base, err := c.endpoint(env, "")
	if err != nil {
		return "", err
	}
	form := url.Values{
		"customNamespaceId": {tenant},
		"namespaceName":     {tenant},
		"namespaceDesc":     {"created by launchpad"},
	}
	if _, err := c.do(ctx, base, http.MethodPost, namespacesPath, form); err != nil {
		return "", fmt.Errorf("creating namespace %s: %w", tenant, err)
	}
	c.logger.Info("created namespace", "env", env, "tenant", tenant)
	return tenant, nil
}

// RenderHTML returns the document at the coordinates. A document that does
// not exist yet renders as the empty string.
func (c *Client) RenderHTML(ctx context.Context, env domain.DeployEnv, at domain.StoreCoordinates) (string, error) {
	base, err := c.endpoint(env, at.URL)
	if err != nil {
		return "", err
	}
	q := c.coordinates(at)
	doc, err := c.do(ctx, base, http.MethodGet, configsPath+"?"+q.Encode(), nil)
	if err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("reading %s/%s: %w", at.Group, at.DataID, err)
	}
	return doc, nil
}

// WriteHTML overwrites the document at the coordinates.
func (c *Client) WriteHTML(ctx context.Context, env domain.DeployEnv, at domain.StoreCoordinates, html string) error {
	base, err := c.endpoint(env, at.URL)
	if err != nil {
		return err
	}
	form := c.coordinates(at)
	form.Set("content", html)
	form.Set("type", "html")
	if _, err := c.do(ctx, base, http.MethodPost, configsPath, form); err != nil {
		return fmt.Errorf("writing %s/%s: %w", at.Group, at.DataID, err)
	}
	c.logger.Info("wrote document", "env", env, "tenant", at.Tenant, "group", at.Group, "data_id", at.DataID, "bytes", len(html))
	return nil
}

func (c *Client) coordinates(at domain.StoreCoordinates) url.Values {
	group := at.Group
	if group == "" {
		group = c.cfg.Group
	}
	v := url.Values{"dataId": {at.DataID}, "group": {group}}
	if at.Tenant != "" {
		v.Set("tenant", at.Tenant)
	}
	return v
}

func (c *Client) endpoint(env domain.DeployEnv, override string) (string, error) {
	base := override
	if base == "" {
		base = c.cfg.URLs[env]
	}
	if base == "" {
		return "", fmt.Errorf("no config store endpoint for environment %q", env)
	}
	return strings.TrimSuffix(base, "/"), nil
}

// do sends a request with the access token of base attached and returns the
// response body.
func (c *Client) do(ctx context.Context, base, method, path string, form url.Values) (string, error) {
	return c.policy.Execute(ctx, func(ctx context.Context) (string, error) {
		token, err := c.token(ctx, base)
		if err != nil {
			return "", err
		}

		target := base + path
		if token != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + "accessToken=" + url.QueryEscape(token)
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		return c.send(req)
	})
}

func (c *Client) send(req *http.Request) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &resilience.StatusError{Service: "config store", StatusCode: resp.StatusCode, Body: truncate(string(data))}
	}
	return string(data), nil
}

// token returns a cached access token for base, logging in when needed.
// Anonymous stores get an empty token.
func (c *Client) token(ctx context.Context, base string) (string, error) {
	if c.cfg.Username == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tokens[base]; ok && time.Now().Before(t.expires) {
		return t.value, nil
	}

	form := url.Values{"username": {c.cfg.Username}, "password": {c.cfg.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	raw, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("config store login: %w", err)
	}

	var lr loginResponse
	if err := json.Unmarshal([]byte(raw), &lr); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	ttl := time.Duration(lr.TokenTTL) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// Renew a minute before the server-side expiry.
	c.tokens[base] = accessToken{value: lr.AccessToken, expires: time.Now().Add(ttl - time.Minute)}
	return lr.AccessToken, nil
}

func truncate(s string) string {
	const limit = 512
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
