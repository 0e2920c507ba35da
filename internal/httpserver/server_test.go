package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relicta-tech/launchpad/internal/config"
	"github.com/relicta-tech/launchpad/internal/httpserver/handlers"
)

func TestNewServer(t *testing.T) {
	cfg := config.ServerConfig{
		Address:      ":0", // Random port
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := NewServer(ServerDeps{Config: cfg})

	if server == nil {
		t.Fatal("NewServer returned nil")
	}
	if server.router == nil {
		t.Error("Router should be initialized")
	}
	if server.limiter != nil {
		t.Error("rate limiter should be disabled without rate_limit_rpm")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(ServerDeps{
		Config:   config.ServerConfig{Address: ":0", APIKeys: []string{"secret"}},
		Handlers: handlers.New(handlers.Deps{Version: "1.0.0"}),
	})

	for _, path := range []string{"/health", "/api/v1/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rec.Code)
		}

		var response handlers.HealthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("%s: failed to parse response: %v", path, err)
		}
		if response.Status != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", response.Status)
		}
		if response.Version != "1.0.0" {
			t.Errorf("expected version 1.0.0, got '%s'", response.Version)
		}
	}
}

func TestAPIRequiresKey(t *testing.T) {
	server := NewServer(ServerDeps{
		Config: config.ServerConfig{Address: ":0", APIKeys: []string{"secret"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/1", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("launchpad_info 1\n"))
	})

	enabled := NewServer(ServerDeps{
		Config:  config.ServerConfig{Address: ":0", Metrics: true},
		Metrics: metrics,
	})
	rec := httptest.NewRecorder()
	enabled.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected metrics to be served, got %d", rec.Code)
	}

	disabled := NewServer(ServerDeps{
		Config:  config.ServerConfig{Address: ":0"},
		Metrics: metrics,
	})
	rec = httptest.NewRecorder()
	disabled.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with metrics disabled, got %d", rec.Code)
	}
}

func TestRateLimitedAPI(t *testing.T) {
	server := NewServer(ServerDeps{
		Config: config.ServerConfig{Address: ":0", RateLimitRPM: 1, APIKeys: []string{"secret"}},
	})
	defer server.Shutdown(context.Background()) //nolint:errcheck

	first := httptest.NewRecorder()
	server.router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/1", nil))
	if first.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for first request, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	server.router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/1", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for second request, got %d", second.Code)
	}

	health := httptest.NewRecorder()
	server.router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if health.Code != http.StatusOK {
		t.Errorf("health must not be rate limited, got %d", health.Code)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	server := NewServer(ServerDeps{Config: config.ServerConfig{Address: ":0"}})

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	server := NewServer(ServerDeps{
		Config: config.ServerConfig{Address: "127.0.0.1:0", ShutdownTimeout: time.Second},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerTimeoutDefaults(t *testing.T) {
	server := NewServer(ServerDeps{Config: config.ServerConfig{Address: ":0"}})

	if got := server.getReadTimeout(); got != 15*time.Second {
		t.Errorf("read timeout = %v", got)
	}
	if got := server.getWriteTimeout(); got != 30*time.Second {
		t.Errorf("write timeout = %v", got)
	}
	if got := server.getIdleTimeout(); got != 60*time.Second {
		t.Errorf("idle timeout = %v", got)
	}
	if got := server.getShutdownTimeout(); got != 30*time.Second {
		t.Errorf("shutdown timeout = %v", got)
	}
}
