package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

// fakeHost is a minimal hosting service with a fixed commit graph expressed
// as missing-commit counts per (from, to) pair.
type fakeHost struct {
	mu        sync.Mutex
	missing   map[string]int
	branches  map[string]bool
	created   int
	accepted  int
	polls     int
	conflict  bool
	existing  bool
	delay     time.Duration
	lastToken string
}

func (f *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = r.Header.Get("PRIVATE-TOKEN")
	path := r.URL.EscapedPath()

	switch {
	case strings.HasSuffix(path, "/repository/compare"):
		if f.delay > 0 {
			f.mu.Unlock()
			time.Sleep(f.delay)
			f.mu.Lock()
		}
		q := r.URL.Query()
		n := f.missing[q.Get("from")+".."+q.Get("to")]
		commits := make([]map[string]string, n)
		for i := range commits {
			commits[i] = map[string]string{"id": "c"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"commits": commits})
	case strings.Contains(path, "/repository/branches/"):
		name := path[strings.LastIndex(path, "/")+1:]
		name = strings.ReplaceAll(name, "%2F", "/")
		if !f.branches[name] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(path, "/merge_requests") && r.Method == http.MethodPost:
		if f.existing {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.created++
		_ = json.NewEncoder(w).Encode(mergeRequest{IID: 5, State: "opened"})
	case strings.HasSuffix(path, "/merge_requests") && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode([]mergeRequest{{IID: 9, State: "opened"}})
	case strings.HasSuffix(path, "/merge"):
		if f.conflict {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		f.accepted++
		_ = json.NewEncoder(w).Encode(mergeRequest{IID: 5, State: "opened"})
	case strings.Contains(path, "/merge_requests/"):
		f.polls++
		state := "opened"
		if f.polls > 1 {
			state = "merged"
		}
		_ = json.NewEncoder(w).Encode(mergeRequest{IID: 5, State: state})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, host *fakeHost) *Client {
	t.Helper()
	server := httptest.NewServer(host)
	t.Cleanup(server.Close)
	return New(Config{APIURL: server.URL, Token: "default-token", PollInterval: time.Millisecond})
}

func TestClient_Compare(t *testing.T) {
	host := &fakeHost{missing: map[string]int{"release/1.0.0..master": 3}}
	c := newTestClient(t, host)

	res, err := c.Compare(context.Background(), "fe/portal", "release/1.0.0", "master")
	require.NoError(t, err)
	assert.Equal(t, 3, res.AheadCommits)
	assert.False(t, res.TimedOut)
}

func TestClient_CompareTimeout(t *testing.T) {
	host := &fakeHost{delay: 100 * time.Millisecond}
	server := httptest.NewServer(host)
	defer server.Close()
	c := New(Config{APIURL: server.URL, CompareTimeout: 10 * time.Millisecond})

	res, err := c.Compare(context.Background(), "fe/portal", "release/1.0.0", "master")
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
}

func TestClient_BranchExists(t *testing.T) {
	host := &fakeHost{branches: map[string]bool{"dev/1.0.0": true}}
	c := newTestClient(t, host)

	ok, err := c.BranchExists(context.Background(), "fe/portal", "dev/1.0.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.BranchExists(context.Background(), "fe/portal", "dev/9.9.9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_MergeWaitsForCompletion(t *testing.T) {
	host := &fakeHost{missing: map[string]int{"test/1.0.0..dev/1.0.0": 2}}
	c := newTestClient(t, host)

	err := c.Merge(context.Background(), ports.MergeRequest{
		ProjectRef: "fe/portal", Source: "dev/1.0.0", Target: "test/1.0.0", Title: "merge", Token: "merge-token",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, host.created)
	assert.Equal(t, 1, host.accepted)
	assert.Equal(t, 2, host.polls)
	assert.Equal(t, "merge-token", host.lastToken)
}

func TestClient_MergeNothingPending(t *testing.T) {
	host := &fakeHost{missing: map[string]int{}}
	c := newTestClient(t, host)

	err := c.Merge(context.Background(), ports.MergeRequest{ProjectRef: "fe/portal", Source: "dev/1.0.0", Target: "test/1.0.0"})
	require.NoError(t, err)
	assert.Zero(t, host.created)
	assert.Equal(t, "default-token", host.lastToken)
}

func TestClient_MergeReusesOpenRequest(t *testing.T) {
	host := &fakeHost{missing: map[string]int{"test/1.0.0..dev/1.0.0": 1}, existing: true}
	c := newTestClient(t, host)

	err := c.Merge(context.Background(), ports.MergeRequest{ProjectRef: "fe/portal", Source: "dev/1.0.0", Target: "test/1.0.0"})
	require.NoError(t, err)
	assert.Zero(t, host.created)
	assert.Equal(t, 1, host.accepted)
}

func TestClient_MergeConflict(t *testing.T) {
	host := &fakeHost{missing: map[string]int{"test/1.0.0..dev/1.0.0": 1}, conflict: true}
	c := newTestClient(t, host)

	err := c.Merge(context.Background(), ports.MergeRequest{ProjectRef: "fe/portal", Source: "dev/1.0.0", Target: "test/1.0.0"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMergeConflict))
}
