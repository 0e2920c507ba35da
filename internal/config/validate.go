package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// workflowNodes are the node names a template may list.
var workflowNodes = []string{"development", "testing", "fix", "production"}

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Validate validates the configuration. Warnings never fail validation and
// are available from Warnings afterwards.
func (v *Validator) Validate(cfg *Config) error {
	v.validateServer(cfg.Server)
	v.validateBuilder(cfg.Builder)
	v.validateCallback(cfg.Callback)
	v.validateConfigStore(cfg.ConfigStore)
	v.validateRepository(cfg.Repository)
	v.validateStorage(cfg.Storage)
	v.validateRedis(cfg.Redis)
	v.validateArtifacts(cfg.Artifacts)
	v.validateWorkflow(cfg.Workflow)
	v.validateLog(cfg.Log)

	if v.errors.HasErrors() {
		return lperrors.Validation("config.Validate", v.errors.Error())
	}

	return nil
}

// Warnings returns the warnings collected by the last Validate call.
func (v *Validator) Warnings() []string {
	return v.errors.Warnings
}

// Validate is a shorthand for NewValidator().Validate(cfg).
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

func (v *Validator) validateServer(cfg ServerConfig) {
	if cfg.Address == "" {
		v.errors.Addf("server.address: must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		v.errors.Addf("server: read_timeout and write_timeout must be positive")
	}
	if len(cfg.APIKeys) == 0 {
		v.errors.Warnf("server.api_keys: empty, API authentication is disabled")
	}
	if cfg.RateLimitRPM < 0 {
		v.errors.Addf("server.rate_limit_rpm: must not be negative")
	}
}

func (v *Validator) validateBuilder(cfg BuilderConfig) {
	if cfg.URL == "" {
		v.errors.Warnf("builder.url: not set, publishes that need a build will fail")
		return
	}
	v.validateURL("builder.url", cfg.URL)
	if cfg.Timeout <= 0 {
		v.errors.Addf("builder.timeout: must be positive")
	}
}

func (v *Validator) validateCallback(cfg CallbackConfig) {
	if cfg.URL == "" {
		v.errors.Warnf("callback.url: not set, build results will not reach the caller system")
		return
	}
	v.validateURL("callback.url", cfg.URL)
	if cfg.MaxRetries < 0 {
		v.errors.Addf("callback.max_retries: must not be negative, got %d", cfg.MaxRetries)
	}
}

func (v *Validator) validateConfigStore(cfg ConfigStoreConfig) {
	for env, u := range cfg.URLs {
		v.validateURL("config_store.urls."+env, u)
	}
}

func (v *Validator) validateRepository(cfg RepositoryConfig) {
	switch cfg.Provider {
	case "api":
		if cfg.APIURL == "" {
			v.errors.Warnf("repository.api_url: not set, branch checks and merges will fail")
		} else {
			v.validateURL("repository.api_url", cfg.APIURL)
		}
	case "mirror":
		if cfg.MirrorDir == "" {
			v.errors.Addf("repository.mirror_dir: required when provider is mirror")
		}
		if cfg.MirrorURL == "" {
			v.errors.Addf("repository.mirror_url: required when provider is mirror")
		}
	default:
		v.errors.Addf("repository.provider: must be one of [api mirror], got %q", cfg.Provider)
	}
	if cfg.TrunkBranch == "" {
		v.errors.Addf("repository.trunk_branch: must not be empty")
	}
}

func (v *Validator) validateStorage(cfg StorageConfig) {
	switch cfg.Driver {
	case "memory":
		v.errors.Warnf("storage.driver: memory storage loses all state on restart")
	case "postgres":
		if cfg.DSN == "" {
			v.errors.Addf("storage.dsn: required when driver is postgres")
		}
	default:
		v.errors.Addf("storage.driver: must be one of [memory postgres], got %q", cfg.Driver)
	}
}

func (v *Validator) validateRedis(cfg RedisConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		v.errors.Addf("redis.addr: required when redis is enabled")
	}
	if cfg.Enabled && cfg.LockTTL <= 0 {
		v.errors.Addf("redis.lock_ttl: must be positive")
	}
}

func (v *Validator) validateArtifacts(cfg ArtifactsConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Endpoint == "" {
		v.errors.Addf("artifacts.endpoint: required when artifacts are enabled")
	}
	if cfg.Bucket == "" {
		v.errors.Addf("artifacts.bucket: required when artifacts are enabled")
	}
}

func (v *Validator) validateWorkflow(cfg WorkflowConfig) {
	for name, nodes := range cfg.Templates {
		if len(nodes) == 0 {
			v.errors.Addf("workflow.templates.%s: must list at least one node", name)
		}
		for _, node := range nodes {
			if !slices.Contains(workflowNodes, node) {
				v.errors.Addf("workflow.templates.%s: unknown node %q, must be one of %v", name, node, workflowNodes)
			}
		}
	}
	for _, name := range []string{cfg.DefaultTemplate, cfg.HotfixTemplate} {
		if _, ok := cfg.Templates[name]; !ok {
			v.errors.Addf("workflow: template %q is not defined", name)
		}
	}
	for projectType, name := range cfg.TypeTemplates {
		if _, ok := cfg.Templates[name]; !ok {
			v.errors.Addf("workflow.type_templates.%s: template %q is not defined", projectType, name)
		}
	}
	if cfg.ThirdPartySecret == "" {
		v.errors.Warnf("workflow.third_party_secret: not set, third-party channel payloads are unsigned")
	}
}

func (v *Validator) validateLog(cfg LogConfig) {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Level) {
		v.errors.Addf("log.level: must be one of %v, got %q", validLevels, cfg.Level)
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, cfg.Format) {
		v.errors.Addf("log.format: must be one of %v, got %q", validFormats, cfg.Format)
	}
}

func (v *Validator) validateURL(field, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		v.errors.Addf("%s: invalid URL %q", field, raw)
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.errors.Addf("%s: scheme must be http or https, got %q", field, u.Scheme)
	}
}
