package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderExpandEnvVar(t *testing.T) {
	t.Setenv("TOKEN_VALUE", "abc123")
	t.Setenv("FALLBACK", "fallback")

	value := expandEnvVar("prefix-${TOKEN_VALUE}-suffix:$MISSING:${MISSING:-default}:${FALLBACK}")

	assert.Equal(t, "prefix-abc123-suffix:$MISSING:default:fallback", value)
	assert.Equal(t, "", expandEnvVar(""))
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader().WithSearchPaths(t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "master", cfg.Repository.TrunkBranch)
	assert.Equal(t, []string{"fix", "production"}, cfg.Workflow.Templates["hotfix"])
	assert.Equal(t, 30*time.Second, cfg.Builder.Timeout)
}

func TestLoader_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	content := `
builder:
  url: https://ci.example.com
  timeout: 45s
  jobs:
    iOS: ios-build
    web: web-build
assets:
  paths:
    prod: https://cdn.example.com/prod
callback:
  url: https://caller.example.com/status
  secret: ${LAUNCHPAD_TEST_SECRET}
workflow:
  type_templates:
    gateway: hotfix
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".launchpad.yaml"), []byte(content), 0o600))
	t.Setenv("LAUNCHPAD_TEST_SECRET", "s3cret")
	t.Setenv("LAUNCHPAD_STORAGE_DRIVER", "postgres")

	loader := NewLoader().WithSearchPaths(dir)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".launchpad.yaml"), loader.GetConfigPath())
	assert.Equal(t, "https://ci.example.com", cfg.Builder.URL)
	assert.Equal(t, 45*time.Second, cfg.Builder.Timeout)
	assert.Equal(t, "ios-build", cfg.Builder.JobFor("iOS"))
	assert.Equal(t, "web-build", cfg.Builder.JobFor("web"))
	assert.Equal(t, "https://cdn.example.com/prod", cfg.Assets.PathFor("prod"))
	assert.Equal(t, "s3cret", cfg.Callback.Secret)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "hotfix", cfg.Workflow.TemplateNameFor("gateway", false))
	assert.Equal(t, "standard", cfg.Workflow.TemplateNameFor("web", false))
	assert.Equal(t, "hotfix", cfg.Workflow.TemplateNameFor("web", true))
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	_, err := FindConfigFile(dir)
	require.Error(t, err)

	path := filepath.Join(dir, "launchpad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	found, err := FindConfigFile(dir)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestConfigSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Builder.Token = "builder-token"
	cfg.Server.APIKeys = []string{"key-one", "key-two"}

	secrets := cfg.Secrets()
	assert.Contains(t, secrets, "builder-token")
	assert.Contains(t, secrets, "key-one")
	assert.Contains(t, secrets, "key-two")
}
