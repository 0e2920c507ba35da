package builder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

func TestClient_Build(t *testing.T) {
	var got buildBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/build", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ci", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"queueId": 381}`))
	}))
	defer server.Close()

	c := New(Config{URL: server.URL + "/", User: "ci", Token: "secret"})
	queueID, err := c.Build(context.Background(), ports.BuildRequest{
		Job:         "web-deploy",
		ProjectType: domain.ProjectWeb,
		Params:      map[string]string{"TASK_ID": "7"},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(381), queueID)
	assert.Equal(t, "web", got.Type)
	assert.Equal(t, "web-deploy", got.Job)
	assert.Equal(t, "7", got.Params["TASK_ID"])
}

func TestClient_BuildMissingQueueIDIsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	queueID, err := New(Config{URL: server.URL}).Build(context.Background(), ports.BuildRequest{Job: "j"})
	require.NoError(t, err)
	assert.Zero(t, queueID)
}

func TestClient_BuildIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(Config{URL: server.URL}).Build(context.Background(), ports.BuildRequest{Job: "j"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(Config{URL: server.URL, BreakerFailures: 2, BreakerTimeout: time.Minute})
	for range 4 {
		_, err := c.Build(context.Background(), ports.BuildRequest{Job: "j"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "open", c.CircuitState())
}
