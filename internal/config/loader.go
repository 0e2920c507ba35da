package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

var (
	// envVarPattern matches ${VAR} or ${VAR:-default} syntax
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR syntax
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("LAUNCHPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths adds directories to search for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append(l.searchPaths, paths...)
	return l
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, lperrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, lperrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	l.expandEnvVars(cfg)

	return cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("server.address", d.Server.Address)
	l.v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	l.v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	l.v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.api_keys", d.Server.APIKeys)
	l.v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	l.v.SetDefault("server.metrics", d.Server.Metrics)
	l.v.SetDefault("server.rate_limit_rpm", d.Server.RateLimitRPM)

	l.v.SetDefault("builder.url", d.Builder.URL)
	l.v.SetDefault("builder.user", d.Builder.User)
	l.v.SetDefault("builder.token", d.Builder.Token)
	l.v.SetDefault("builder.timeout", d.Builder.Timeout)
	l.v.SetDefault("builder.jobs", d.Builder.Jobs)
	l.v.SetDefault("builder.images", d.Builder.Images)
	l.v.SetDefault("builder.breaker_failures", d.Builder.BreakerFailures)
	l.v.SetDefault("builder.breaker_timeout", d.Builder.BreakerTimeout)

	l.v.SetDefault("assets.paths", d.Assets.Paths)

	l.v.SetDefault("callback.url", d.Callback.URL)
	l.v.SetDefault("callback.secret", d.Callback.Secret)
	l.v.SetDefault("callback.timeout", d.Callback.Timeout)
	l.v.SetDefault("callback.max_retries", d.Callback.MaxRetries)
	l.v.SetDefault("callback.retry_delay", d.Callback.RetryDelay)

	l.v.SetDefault("config_store.urls", d.ConfigStore.URLs)
	l.v.SetDefault("config_store.username", d.ConfigStore.Username)
	l.v.SetDefault("config_store.password", d.ConfigStore.Password)
	l.v.SetDefault("config_store.group", d.ConfigStore.Group)
	l.v.SetDefault("config_store.timeout", d.ConfigStore.Timeout)
	l.v.SetDefault("config_store.retries", d.ConfigStore.Retries)

	l.v.SetDefault("repository.provider", d.Repository.Provider)
	l.v.SetDefault("repository.api_url", d.Repository.APIURL)
	l.v.SetDefault("repository.token", d.Repository.Token)
	l.v.SetDefault("repository.mirror_dir", d.Repository.MirrorDir)
	l.v.SetDefault("repository.mirror_url", d.Repository.MirrorURL)
	l.v.SetDefault("repository.compare_timeout", d.Repository.CompareTimeout)
	l.v.SetDefault("repository.trunk_branch", d.Repository.TrunkBranch)
	l.v.SetDefault("repository.retries", d.Repository.Retries)

	l.v.SetDefault("approval.url", d.Approval.URL)
	l.v.SetDefault("approval.token", d.Approval.Token)
	l.v.SetDefault("approval.timeout", d.Approval.Timeout)

	l.v.SetDefault("storage.driver", d.Storage.Driver)
	l.v.SetDefault("storage.dsn", d.Storage.DSN)
	l.v.SetDefault("storage.max_open_conns", d.Storage.MaxOpenConns)
	l.v.SetDefault("storage.seed_file", d.Storage.SeedFile)

	l.v.SetDefault("redis.enabled", d.Redis.Enabled)
	l.v.SetDefault("redis.addr", d.Redis.Addr)
	l.v.SetDefault("redis.password", d.Redis.Password)
	l.v.SetDefault("redis.db", d.Redis.DB)
	l.v.SetDefault("redis.token_key", d.Redis.TokenKey)
	l.v.SetDefault("redis.lock_ttl", d.Redis.LockTTL)

	l.v.SetDefault("artifacts.enabled", d.Artifacts.Enabled)
	l.v.SetDefault("artifacts.endpoint", d.Artifacts.Endpoint)
	l.v.SetDefault("artifacts.access_key", d.Artifacts.AccessKey)
	l.v.SetDefault("artifacts.secret_key", d.Artifacts.SecretKey)
	l.v.SetDefault("artifacts.bucket", d.Artifacts.Bucket)
	l.v.SetDefault("artifacts.region", d.Artifacts.Region)
	l.v.SetDefault("artifacts.use_ssl", d.Artifacts.UseSSL)

	l.v.SetDefault("workflow.templates", d.Workflow.Templates)
	l.v.SetDefault("workflow.type_templates", d.Workflow.TypeTemplates)
	l.v.SetDefault("workflow.default_template", d.Workflow.DefaultTemplate)
	l.v.SetDefault("workflow.hotfix_template", d.Workflow.HotfixTemplate)
	l.v.SetDefault("workflow.allow_gateway_publish", d.Workflow.AllowGatewayPublish)
	l.v.SetDefault("workflow.third_party_secret", d.Workflow.ThirdPartySecret)

	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)
}

// loadConfigFile loads the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	if configFile, err := FindConfigFile(l.searchPaths...); err == nil {
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	// No config file found - this is OK, we use defaults
	return nil
}

// expandEnvVars expands environment variables in credential fields.
func (l *Loader) expandEnvVars(cfg *Config) {
	cfg.Builder.Token = expandEnvVar(cfg.Builder.Token)
	cfg.Callback.Secret = expandEnvVar(cfg.Callback.Secret)
	cfg.ConfigStore.Password = expandEnvVar(cfg.ConfigStore.Password)
	cfg.Repository.Token = expandEnvVar(cfg.Repository.Token)
	cfg.Approval.Token = expandEnvVar(cfg.Approval.Token)
	cfg.Storage.DSN = expandEnvVar(cfg.Storage.DSN)
	cfg.Redis.Password = expandEnvVar(cfg.Redis.Password)
	cfg.Artifacts.AccessKey = expandEnvVar(cfg.Artifacts.AccessKey)
	cfg.Artifacts.SecretKey = expandEnvVar(cfg.Artifacts.SecretKey)
	cfg.Workflow.ThirdPartySecret = expandEnvVar(cfg.Workflow.ThirdPartySecret)
	for i, key := range cfg.Server.APIKeys {
		cfg.Server.APIKeys[i] = expandEnvVar(key)
	}
}

// expandEnvVar expands environment variables in a string.
// Supports both ${VAR} and $VAR syntax.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		varName := submatch[1]
		defaultValue := ""
		if len(submatch) > 2 {
			defaultValue = submatch[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})

	result = simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		if value := os.Getenv(match[1:]); value != "" {
			return value
		}
		return match
	})

	return result
}

// GetConfigPath returns the path to the loaded config file, if any.
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if _, err := os.Stat(configFile); err == nil {
					return configFile, nil
				}
			}
		}
	}

	return "", lperrors.NotFound("config.FindConfigFile", "no config file found")
}
