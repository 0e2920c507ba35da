// Package config provides configuration management for launchpad.
package config

import (
	"strings"
	"time"
)

// Config is the root configuration for launchpad. It is loaded once and
// passed explicitly to every component at construction.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `mapstructure:"server" json:"server" yaml:"server"`
	// Builder configures the external build system.
	Builder BuilderConfig `mapstructure:"builder" json:"builder" yaml:"builder"`
	// Assets maps deploy environments to public asset base URLs.
	Assets AssetsConfig `mapstructure:"assets" json:"assets" yaml:"assets"`
	// Callback configures the upstream caller notification.
	Callback CallbackConfig `mapstructure:"callback" json:"callback" yaml:"callback"`
	// ConfigStore configures the runtime configuration store.
	ConfigStore ConfigStoreConfig `mapstructure:"config_store" json:"config_store" yaml:"config_store"`
	// Repository configures the git hosting service.
	Repository RepositoryConfig `mapstructure:"repository" json:"repository" yaml:"repository"`
	// Approval configures the approval gate service.
	Approval ApprovalConfig `mapstructure:"approval" json:"approval" yaml:"approval"`
	// Storage configures entity persistence.
	Storage StorageConfig `mapstructure:"storage" json:"storage" yaml:"storage"`
	// Redis configures the shared token cache and distributed lock.
	Redis RedisConfig `mapstructure:"redis" json:"redis" yaml:"redis"`
	// Artifacts configures the object store holding deployed HTML.
	Artifacts ArtifactsConfig `mapstructure:"artifacts" json:"artifacts" yaml:"artifacts"`
	// Workflow configures workflow templates and publish policy.
	Workflow WorkflowConfig `mapstructure:"workflow" json:"workflow" yaml:"workflow"`
	// Log configures logging output.
	Log LogConfig `mapstructure:"log" json:"log" yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address         string        `mapstructure:"address" json:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
	// APIKeys authorizes API callers. Empty disables authentication.
	APIKeys []string `mapstructure:"api_keys" json:"-" yaml:"-"`
	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins" yaml:"cors_origins"`
	// Metrics exposes /metrics when true.
	Metrics bool `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	// RateLimitRPM caps API requests per client address; 0 disables it.
	RateLimitRPM int `mapstructure:"rate_limit_rpm" json:"rate_limit_rpm" yaml:"rate_limit_rpm"`
}

// BuilderConfig configures the external build system.
type BuilderConfig struct {
	URL     string        `mapstructure:"url" json:"url" yaml:"url"`
	User    string        `mapstructure:"user" json:"user" yaml:"user"`
	Token   string        `mapstructure:"token" json:"-" yaml:"-"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	// Jobs maps a project type to the builder job that builds it.
	Jobs map[string]string `mapstructure:"jobs" json:"jobs" yaml:"jobs"`
	// Images maps a project type to its default docker image.
	Images map[string]string `mapstructure:"images" json:"images" yaml:"images"`
	// BreakerFailures is the consecutive failure count that opens the circuit.
	BreakerFailures uint32 `mapstructure:"breaker_failures" json:"breaker_failures" yaml:"breaker_failures"`
	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout" json:"breaker_timeout" yaml:"breaker_timeout"`
}

// JobFor returns the builder job configured for a project type.
func (b BuilderConfig) JobFor(projectType string) string {
	return lookupFold(b.Jobs, projectType)
}

// ImageFor returns the default docker image configured for a project type.
func (b BuilderConfig) ImageFor(projectType string) string {
	return lookupFold(b.Images, projectType)
}

// AssetsConfig maps deploy environments (dev, test, fix, prod) to asset base URLs.
type AssetsConfig struct {
	Paths map[string]string `mapstructure:"paths" json:"paths" yaml:"paths"`
}

// PathFor returns the asset base URL for a deploy environment.
func (a AssetsConfig) PathFor(env string) string {
	return lookupFold(a.Paths, env)
}

// CallbackConfig configures the upstream caller notification.
type CallbackConfig struct {
	URL        string        `mapstructure:"url" json:"url" yaml:"url"`
	Secret     string        `mapstructure:"secret" json:"-" yaml:"-"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`
}

// ConfigStoreConfig configures the runtime configuration store.
type ConfigStoreConfig struct {
	// URLs maps a deploy environment to the store endpoint serving it.
	URLs     map[string]string `mapstructure:"urls" json:"urls" yaml:"urls"`
	Username string            `mapstructure:"username" json:"username" yaml:"username"`
	Password string            `mapstructure:"password" json:"-" yaml:"-"`
	Group    string            `mapstructure:"group" json:"group" yaml:"group"`
	Timeout  time.Duration     `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	Retries  int               `mapstructure:"retries" json:"retries" yaml:"retries"`
}

// URLFor returns the store endpoint for a deploy environment.
func (c ConfigStoreConfig) URLFor(env string) string {
	return lookupFold(c.URLs, env)
}

// RepositoryConfig configures the git hosting service.
type RepositoryConfig struct {
	// Provider selects the compare implementation: "api" or "mirror".
	Provider string `mapstructure:"provider" json:"provider" yaml:"provider"`
	APIURL   string `mapstructure:"api_url" json:"api_url" yaml:"api_url"`
	// Token authenticates merge requests opened on behalf of the orchestrator.
	Token     string `mapstructure:"token" json:"-" yaml:"-"`
	MirrorDir string `mapstructure:"mirror_dir" json:"mirror_dir" yaml:"mirror_dir"`
	// MirrorURL is the clone URL prefix of mirrored projects.
	MirrorURL      string        `mapstructure:"mirror_url" json:"mirror_url" yaml:"mirror_url"`
	CompareTimeout time.Duration `mapstructure:"compare_timeout" json:"compare_timeout" yaml:"compare_timeout"`
	TrunkBranch    string        `mapstructure:"trunk_branch" json:"trunk_branch" yaml:"trunk_branch"`
	Retries        int           `mapstructure:"retries" json:"retries" yaml:"retries"`
}

// ApprovalConfig configures the approval gate service.
type ApprovalConfig struct {
	URL     string        `mapstructure:"url" json:"url" yaml:"url"`
	Token   string        `mapstructure:"token" json:"-" yaml:"-"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// StorageConfig configures entity persistence.
type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver       string `mapstructure:"driver" json:"driver" yaml:"driver"`
	DSN          string `mapstructure:"dsn" json:"-" yaml:"-"`
	MaxOpenConns int    `mapstructure:"max_open_conns" json:"max_open_conns" yaml:"max_open_conns"`
	// SeedFile is a YAML document of projects, iterations and domains loaded
	// into memory storage at startup.
	SeedFile string `mapstructure:"seed_file" json:"seed_file" yaml:"seed_file"`
}

// RedisConfig configures the shared token cache and distributed lock.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" json:"addr" yaml:"addr"`
	Password string `mapstructure:"password" json:"-" yaml:"-"`
	DB       int    `mapstructure:"db" json:"db" yaml:"db"`
	// TokenKey holds the third-party platform component access token.
	TokenKey string        `mapstructure:"token_key" json:"token_key" yaml:"token_key"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" json:"lock_ttl" yaml:"lock_ttl"`
}

// ArtifactsConfig configures the object store holding deployed HTML.
type ArtifactsConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" json:"-" yaml:"-"`
	SecretKey string `mapstructure:"secret_key" json:"-" yaml:"-"`
	Bucket    string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" json:"region" yaml:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" json:"use_ssl" yaml:"use_ssl"`
}

// WorkflowConfig configures workflow templates and publish policy.
type WorkflowConfig struct {
	// Templates maps a template name to its ordered node list.
	Templates map[string][]string `mapstructure:"templates" json:"templates" yaml:"templates"`
	// TypeTemplates maps a project type to a template name; unmapped types
	// use DefaultTemplate.
	TypeTemplates   map[string]string `mapstructure:"type_templates" json:"type_templates" yaml:"type_templates"`
	DefaultTemplate string            `mapstructure:"default_template" json:"default_template" yaml:"default_template"`
	HotfixTemplate  string            `mapstructure:"hotfix_template" json:"hotfix_template" yaml:"hotfix_template"`
	// AllowGatewayPublish permits gateway publishes outside production.
	AllowGatewayPublish bool `mapstructure:"allow_gateway_publish" json:"allow_gateway_publish" yaml:"allow_gateway_publish"`
	// ThirdPartySecret signs third-party channel payloads.
	ThirdPartySecret string `mapstructure:"third_party_secret" json:"-" yaml:"-"`
}

// TemplateNameFor returns the template name for a project type and bump policy.
func (w WorkflowConfig) TemplateNameFor(projectType string, hotfix bool) string {
	if hotfix {
		return w.HotfixTemplate
	}
	if name := lookupFold(w.TypeTemplates, projectType); name != "" {
		return name
	}
	return w.DefaultTemplate
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// ConfigFileNames are the base names searched for a config file.
var ConfigFileNames = []string{".launchpad", "launchpad"}

// ConfigFileExtensions are the supported config file extensions.
var ConfigFileExtensions = []string{"yaml", "yml", "json", "toml"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			Metrics:         true,
			RateLimitRPM:    600,
		},
		Builder: BuilderConfig{
			Timeout:         30 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			Jobs:            map[string]string{},
			Images:          map[string]string{},
		},
		Assets: AssetsConfig{Paths: map[string]string{}},
		Callback: CallbackConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		ConfigStore: ConfigStoreConfig{
			URLs:    map[string]string{},
			Group:   "DEFAULT_GROUP",
			Timeout: 10 * time.Second,
			Retries: 3,
		},
		Repository: RepositoryConfig{
			Provider:       "api",
			CompareTimeout: 10 * time.Second,
			TrunkBranch:    "master",
			Retries:        2,
		},
		Approval: ApprovalConfig{Timeout: 10 * time.Second},
		Storage:  StorageConfig{Driver: "memory", MaxOpenConns: 10},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			TokenKey: "component_access_token",
			LockTTL:  time.Minute,
		},
		Artifacts: ArtifactsConfig{Bucket: "launchpad-artifacts", Region: "us-east-1"},
		Workflow: WorkflowConfig{
			Templates: map[string][]string{
				"standard": {"development", "testing", "fix", "production"},
				"hotfix":   {"fix", "production"},
			},
			TypeTemplates:   map[string]string{},
			DefaultTemplate: "standard",
			HotfixTemplate:  "hotfix",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Secrets returns every configured credential value, for log redaction.
func (c *Config) Secrets() []string {
	secrets := []string{
		c.Builder.Token,
		c.Callback.Secret,
		c.ConfigStore.Password,
		c.Repository.Token,
		c.Approval.Token,
		c.Storage.DSN,
		c.Redis.Password,
		c.Artifacts.AccessKey,
		c.Artifacts.SecretKey,
		c.Workflow.ThirdPartySecret,
	}
	return append(secrets, c.Server.APIKeys...)
}

// lookupFold reads a viper-decoded map. Viper lowercases keys, so lookups
// are case-insensitive.
func lookupFold(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return m[strings.ToLower(key)]
}
