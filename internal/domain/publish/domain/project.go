package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Project is a source repository published by the orchestrator.
type Project struct {
	ID int64
	// Name is the git project name; it keys asset URLs and remote modules.
	Name string
	// PackageName is the published package name for npm projects.
	PackageName  string
	GitURL       string
	GitNamespace string
	// RepositoryRef identifies the project at the repository service.
	RepositoryRef string
	DeployConfig  string
	ConfigStore   ConfigStoreSettings
	SecretToken   string
	AppID         string
	Types         []ProjectType
}

// HasMultipleTypes reports whether the project publishes more than one type.
func (p *Project) HasMultipleTypes() bool {
	return len(p.Types) > 1
}

// GitPath returns the clone path the builder expects: host/path.git without scheme.
func (p *Project) GitPath() string {
	u := strings.TrimPrefix(p.GitURL, "http://")
	u = strings.TrimPrefix(u, "https://")
	return u + ".git"
}

// StoreCoordinates address one document in the config store.
type StoreCoordinates struct {
	URL    string `json:"url" yaml:"url"`
	Group  string `json:"group" yaml:"group"`
	Tenant string `json:"tenant" yaml:"tenant"`
	DataID string `json:"dataId" yaml:"data_id"`
}

// ConfigStoreSettings maps an environment key to its coordinates. The
// "default" entry is the base every environment inherits from.
type ConfigStoreSettings map[string]StoreCoordinates

// Resolve merges the base coordinates with the environment overrides.
func (s ConfigStoreSettings) Resolve(env DeployEnv) StoreCoordinates {
	c := s["default"]
	o, ok := s[string(env)]
	if !ok {
		return c
	}
	if o.URL != "" {
		c.URL = o.URL
	}
	if o.Group != "" {
		c.Group = o.Group
	}
	if o.Tenant != "" {
		c.Tenant = o.Tenant
	}
	if o.DataID != "" {
		c.DataID = o.DataID
	}
	return c
}

// ProjectConfiguration overrides deployment defaults per (project, type).
type ProjectConfiguration struct {
	ProjectID    int64
	ProjectType  ProjectType
	BuilderImage string
	DeployConfig string
	ConfigStore  ConfigStoreSettings
	// Authentication is a JSON blob holding third-party credentials.
	Authentication string
}

// Credentials holds third-party platform credentials.
type Credentials struct {
	SecretToken string `json:"secretToken"`
	AppID       string `json:"appId"`
}

// ResolveCredentials parses the authentication blob and falls back to the
// project-level values for missing fields.
func (c *ProjectConfiguration) ResolveCredentials(p *Project) (Credentials, error) {
	var creds Credentials
	if c != nil && c.Authentication != "" {
		if err := json.Unmarshal([]byte(c.Authentication), &creds); err != nil {
			return Credentials{}, fmt.Errorf("parsing authentication: %w", err)
		}
	}
	if creds.SecretToken == "" {
		creds.SecretToken = p.SecretToken
	}
	if creds.AppID == "" {
		creds.AppID = p.AppID
	}
	return creds, nil
}

// Domain binds a gateway host to its config-store document.
type Domain struct {
	ID          int64
	ProjectID   int64
	Path        string
	Name        string
	Host        string
	Environment Node
	NodeID      int
	StoreURL    string
	StoreGroup  string
	StoreTenant string
	StoreDataID string
	// MicroConfig is the host application's micro-frontend configuration.
	MicroConfig string
}

// DomainKey is the lookup-then-create guard for domain bindings.
type DomainKey struct {
	Path        string
	Name        string
	Host        string
	Environment Node
	NodeID      int
}

// Key returns the guard key of the binding.
func (d *Domain) Key() DomainKey {
	return DomainKey{Path: d.Path, Name: d.Name, Host: d.Host, Environment: d.Environment, NodeID: d.NodeID}
}

// ThirdPartyAccount is a mini-program merchant bound to a project.
type ThirdPartyAccount struct {
	ID          int64          `json:"id"`
	ProjectID   int64          `json:"projectId"`
	Environment Node           `json:"-"`
	AppID       string         `json:"appId"`
	Name        string         `json:"name"`
	Ext         map[string]any `json:"ext,omitempty"`
}

// MicroModule references a child application of a micro-frontend host.
type MicroModule struct {
	ProjectID   int64 `json:"projectId"`
	IterationID int64 `json:"iterationId"`
}

// DeployHistory is an append-only record of an applied artifact.
type DeployHistory struct {
	ID           int64
	ProjectID    int64
	ProjectType  ProjectType
	TaskID       TaskID
	IterationID  int64
	Version      string
	Environment  Node
	ArtifactURL  string
	MicroModules []MicroModule
	DomainID     int64
	CreatedAt    time.Time
}

// HistoryQuery selects deploy history rows. A zero DomainID matches any domain.
type HistoryQuery struct {
	ProjectID   int64
	ProjectType ProjectType
	Environment Node
	Version     string
	DomainID    int64
}

// Matches reports whether h satisfies the query.
func (q HistoryQuery) Matches(h *DeployHistory) bool {
	return h.ProjectID == q.ProjectID &&
		h.ProjectType == q.ProjectType &&
		h.Environment == q.Environment &&
		h.Version == q.Version &&
		(q.DomainID == 0 || h.DomainID == q.DomainID)
}

// Operation is an audit record written when a task is created.
type Operation struct {
	ID          string
	TaskID      TaskID
	ProjectID   int64
	IterationID int64
	Environment Node
	ProjectType ProjectType
	Operator    string
	Record      string
	CreatedAt   time.Time
}
