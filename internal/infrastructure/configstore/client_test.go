package configstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
)

// fakeStore is a minimal config store server.
type fakeStore struct {
	mu         sync.Mutex
	namespaces []namespace
	docs       map[string]string
	logins     int
	failures   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]string)}
}

func docKey(tenant, group, dataID string) string {
	return tenant + "|" + group + "|" + dataID
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if r.URL.Path != loginPath && r.URL.Query().Get("accessToken") != "tok" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	_ = r.ParseForm()

	switch {
	case r.URL.Path == loginPath:
		f.logins++
		if r.PostForm.Get("username") != "ops" || r.PostForm.Get("password") != "pw" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(loginResponse{AccessToken: "tok", TokenTTL: 18000})
	case r.URL.Path == namespacesPath && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(namespaceList{Data: f.namespaces})
	case r.URL.Path == namespacesPath && r.Method == http.MethodPost:
		f.namespaces = append(f.namespaces, namespace{ID: r.PostForm.Get("customNamespaceId"), Name: r.PostForm.Get("namespaceName")})
		_, _ = w.Write([]byte("true"))
	case r.URL.Path == configsPath && r.Method == http.MethodGet:
		q := r.URL.Query()
		doc, ok := f.docs[docKey(q.Get("tenant"), q.Get("group"), q.Get("dataId"))]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(doc))
	case r.URL.Path == configsPath && r.Method == http.MethodPost:
		f.docs[docKey(r.PostForm.Get("tenant"), r.PostForm.Get("group"), r.PostForm.Get("dataId"))] = r.PostForm.Get("content")
		_, _ = w.Write([]byte("true"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, store *fakeStore) *Client {
	t.Helper()
	server := httptest.NewServer(store)
	t.Cleanup(server.Close)
	return New(Config{
		URLs:     map[domain.DeployEnv]string{domain.EnvProd: server.URL, domain.EnvPre: server.URL},
		Username: "ops",
		Password: "pw",
		Group:    "DEFAULT_GROUP",
		Retries:  2,
	})
}

func TestClient_NamespaceUpsertIsIdempotent(t *testing.T) {
	store := newFakeStore()
	c := newTestClient(t, store)
	ctx := context.Background()

	_, ok, err := c.LookupNamespace(ctx, domain.EnvPre, "pre-1-shell")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := c.UpsertNamespace(ctx, domain.EnvPre, "pre-1-shell")
	require.NoError(t, err)
	assert.Equal(t, "pre-1-shell", id)

	id, err = c.UpsertNamespace(ctx, domain.EnvPre, "pre-1-shell")
	require.NoError(t, err)
	assert.Equal(t, "pre-1-shell", id)
	assert.Len(t, store.namespaces, 1)
	assert.Equal(t, 1, store.logins, "token should be cached")
}

func TestClient_HTMLRoundTrip(t *testing.T) {
	store := newFakeStore()
	c := newTestClient(t, store)
	ctx := context.Background()
	at := domain.StoreCoordinates{Group: "GATEWAY", Tenant: "prod-1-shell", DataID: "shell.html"}

	doc, err := c.RenderHTML(ctx, domain.EnvProd, at)
	require.NoError(t, err)
	assert.Empty(t, doc)

	html := "<html><head></head><body>&amp; ünïcode</body></html>"
	require.NoError(t, c.WriteHTML(ctx, domain.EnvProd, at, html))

	doc, err = c.RenderHTML(ctx, domain.EnvProd, at)
	require.NoError(t, err)
	assert.Equal(t, html, doc)
}

func TestClient_DefaultGroupAndURLOverride(t *testing.T) {
	store := newFakeStore()
	server := httptest.NewServer(store)
	defer server.Close()
	c := New(Config{Username: "ops", Password: "pw", Group: "DEFAULT_GROUP"})

	at := domain.StoreCoordinates{URL: server.URL, DataID: "portal.html"}
	require.NoError(t, c.WriteHTML(context.Background(), domain.EnvProd, at, "<html/>"))
	assert.Equal(t, "<html/>", store.docs[docKey("", "DEFAULT_GROUP", "portal.html")])
}

func TestClient_RetriesUnavailable(t *testing.T) {
	store := newFakeStore()
	store.failures = 2
	c := newTestClient(t, store)

	_, _, err := c.LookupNamespace(context.Background(), domain.EnvProd, "x")
	require.NoError(t, err)
}

func TestClient_MissingEndpoint(t *testing.T) {
	c := New(Config{})
	_, err := c.RenderHTML(context.Background(), domain.EnvDev, domain.StoreCoordinates{DataID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config store endpoint")
}
