// Package app provides application services (use cases) for the publish orchestrator.
package app

import (
	"fmt"
	"strings"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
)

// Settings is the explicit configuration injected into the application
// services. Nothing in this package reads process-wide configuration.
type Settings struct {
	// Jobs maps a project type to its builder job.
	Jobs map[domain.ProjectType]string
	// Images maps a project type to its default builder docker image.
	Images map[domain.ProjectType]string
	// AssetPaths maps a deploy environment to its asset base URL.
	AssetPaths map[domain.DeployEnv]string
	// ConfigStoreURLs maps a deploy environment to its config-store endpoint.
	ConfigStoreURLs map[domain.DeployEnv]string
	// Templates holds the workflow templates by name.
	Templates map[string]domain.WorkflowTemplate
	// TypeTemplates maps project types to template names.
	TypeTemplates   map[domain.ProjectType]string
	DefaultTemplate string
	HotfixTemplate  string
	// TrunkBranch is the branch production releases must not lag behind.
	TrunkBranch string
	// MergeToken authenticates upstream merges.
	MergeToken string
	// AllowGatewayPublish permits gateway publishes from this deployment.
	AllowGatewayPublish bool
	// ThirdPartySecret signs third-party channel payloads.
	ThirdPartySecret string
}

// Template returns the workflow template for a project type and bump policy.
func (s Settings) Template(pt domain.ProjectType, hotfix bool) (domain.WorkflowTemplate, error) {
	name := s.DefaultTemplate
	if hotfix {
		name = s.HotfixTemplate
	} else if n, ok := s.TypeTemplates[pt]; ok {
		name = n
	}
	tpl, ok := s.Templates[name]
	if !ok {
		return domain.WorkflowTemplate{}, fmt.Errorf("workflow template %q is not configured", name)
	}
	return tpl, nil
}

// AssetURL returns the remote entry URL of a published micro-frontend module.
func (s Settings) AssetURL(env domain.DeployEnv, name, version string) string {
	base := strings.TrimSuffix(s.AssetPaths[env], "/")
	return fmt.Sprintf("%s/%s/%s/remoteEntry.js", base, name, version)
}
