// Package webhook delivers build results to the caller system over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

// Config configures the notifier.
type Config struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// getTimeout returns the configured timeout or default.
func getTimeout(c Config) time.Duration {
	if c.Timeout == 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

// getRetryDelay returns the configured retry delay or default.
func getRetryDelay(c Config) time.Duration {
	if c.RetryDelay == 0 {
		return 1 * time.Second
	}
	return c.RetryDelay
}

// Notifier implements ports.Notifier. Delivery is synchronous so that a
// failure reaches the caller of the callback.
type Notifier struct {
	cfg    Config
	client *http.Client
	policy *resilience.Policy[struct{}]
	logger *slog.Logger
}

// Ensure Notifier implements ports.Notifier.
var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier creates a new webhook notifier.
func NewNotifier(cfg Config) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: getTimeout(cfg)},
		policy: resilience.New[struct{}]("callback", resilience.Config{
			RetryAttempts:    cfg.MaxRetries + 1,
			RetryInitialWait: getRetryDelay(cfg),
			RetryMaxWait:     4 * getRetryDelay(cfg),
		}),
		logger: slog.Default().With("component", "webhook_notifier"),
	}
}

// NotifyBuildResult posts the notification to the configured URL, retrying
// transient failures.
func (n *Notifier) NotifyBuildResult(ctx context.Context, note ports.BuildNotification) error {
	if n.cfg.URL == "" {
		return fmt.Errorf("callback url is not configured")
	}

	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	delivery := DeliveryID(note)

	attempt := 0
	_, err = n.policy.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		attempt++
		err := n.send(ctx, body, delivery)
		if err != nil {
			n.logger.Warn("callback request failed",
				"delivery", delivery,
				"attempt", attempt,
				"max_attempts", n.cfg.MaxRetries+1,
				"error", err)
		}
		return struct{}{}, err
	})
	if err != nil {
		n.logger.Error("callback failed after all retries",
			"delivery", delivery,
			"result", note.Result,
			"error", err)
		return err
	}

	n.logger.Debug("callback sent successfully", "delivery", delivery, "result", note.Result)
	return nil
}

// send performs a single request.
func (n *Notifier) send(ctx context.Context, body []byte, delivery string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Launchpad-Webhook/1.0")
	req.Header.Set("X-Launchpad-Delivery", delivery)

	if n.cfg.Secret != "" {
		req.Header.Set("X-Launchpad-Signature", "sha256="+signPayload(body, n.cfg.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response body for error messages
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return &resilience.StatusError{Service: "callback receiver", StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return checkAck(respBody)
}

// RejectedError is an application-level rejection in a 2xx response body.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("callback receiver rejected notification with code %s: %s", e.Code, e.Message)
}

// ack is the envelope callback receivers answer with. An empty or non-JSON
// body, or one without a code, is an acknowledgement.
type ack struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
}

func checkAck(body []byte) error {
	var a ack
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &a) != nil || len(a.Code) == 0 {
		return nil
	}
	code := strings.Trim(string(a.Code), `"`)
	if code == "200" || code == "null" {
		return nil
	}
	msg := a.Message
	if msg == "" {
		msg = a.Msg
	}
	return &RejectedError{Code: code, Message: msg}
}

// DeliveryID is the deduplication key receivers see for a notification.
func DeliveryID(note ports.BuildNotification) string {
	id := note.ExternalTaskID
	if id == "" {
		id = fmt.Sprintf("task-%d", note.Number)
	}
	return id + ":" + note.BuildID
}

// signPayload creates an HMAC-SHA256 signature of the payload.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies a webhook signature.
// This is a helper for webhook receivers to validate payloads.
func VerifySignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	expected := signPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
