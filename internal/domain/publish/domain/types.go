// Package domain provides the core domain model for the publish orchestrator.
// This is the bounded context for tasks, iterations and their workflow state.
package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Node is a named stage in a project's release path.
type Node string

const (
	NodeDevelopment        Node = "development"
	NodeApplyForTest       Node = "apply_for_test"
	NodeTesting            Node = "testing"
	NodeApplyForFix        Node = "apply_for_fix"
	NodeFix                Node = "fix"
	NodePre                Node = "pre"
	NodeProduction         Node = "production"
	NodeProductionNotMerge Node = "production_not_merge"
)

var allNodes = []Node{
	NodeDevelopment, NodeApplyForTest, NodeTesting, NodeApplyForFix,
	NodeFix, NodePre, NodeProduction, NodeProductionNotMerge,
}

// ParseNode parses a node name.
func ParseNode(s string) (Node, error) {
	for _, n := range allNodes {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNode, s)
}

// String returns the node name.
func (n Node) String() string {
	return string(n)
}

// Normalize maps a pre-production request onto the fix node.
func (n Node) Normalize() Node {
	if n == NodePre {
		return NodeFix
	}
	return n
}

// IsPendingAction reports whether the node waits for a human action before
// the next publish moves the workflow forward.
func (n Node) IsPendingAction() bool {
	switch n {
	case NodeApplyForTest, NodeApplyForFix, NodeProductionNotMerge:
		return true
	}
	return false
}

// IsDeployable reports whether tasks can target the node.
func (n Node) IsDeployable() bool {
	switch n {
	case NodeDevelopment, NodeTesting, NodeFix, NodePre, NodeProduction:
		return true
	}
	return false
}

// DeployEnv returns the environment key used for builder parameters, asset
// paths and config-store endpoints. Pre-production shares the fix
// environment; callers that need the distinct "pre" key use RequestEnv.
func (n Node) DeployEnv() DeployEnv {
	switch n {
	case NodeDevelopment:
		return EnvDev
	case NodeTesting:
		return EnvTest
	case NodeFix, NodePre:
		return EnvFix
	case NodeProduction:
		return EnvProd
	}
	return ""
}

// RequestEnv is DeployEnv except that a pre-production request keeps its own
// "pre" key.
func (n Node) RequestEnv() DeployEnv {
	if n == NodePre {
		return EnvPre
	}
	return n.DeployEnv()
}

// BranchType returns the branch type published to the node.
func (n Node) BranchType() BranchType {
	switch n {
	case NodeDevelopment:
		return BranchDev
	case NodeTesting:
		return BranchTest
	case NodeFix, NodePre:
		return BranchFix
	case NodeProduction:
		return BranchRelease
	}
	return ""
}

// PrereleaseTag returns the npm prerelease identifier for the node.
func (n Node) PrereleaseTag() string {
	switch n {
	case NodeDevelopment:
		return "alpha"
	case NodeTesting:
		return "beta"
	case NodeFix, NodePre:
		return "rc"
	}
	return ""
}

// DeployEnv is an environment key: dev, test, fix, pre or prod.
type DeployEnv string

const (
	EnvDev  DeployEnv = "dev"
	EnvTest DeployEnv = "test"
	EnvFix  DeployEnv = "fix"
	EnvPre  DeployEnv = "pre"
	EnvProd DeployEnv = "prod"
)

// DeployEnvs returns every environment key.
func DeployEnvs() []DeployEnv {
	return []DeployEnv{EnvDev, EnvTest, EnvFix, EnvPre, EnvProd}
}

// String returns the environment key.
func (e DeployEnv) String() string {
	return string(e)
}

// BranchType is the conventional prefix of an environment branch.
type BranchType string

const (
	BranchDev     BranchType = "dev"
	BranchTest    BranchType = "test"
	BranchFix     BranchType = "fix"
	BranchRelease BranchType = "release"
	BranchHotfix  BranchType = "hotfix"
)

// ProjectType is the closed set of project kinds the orchestrator publishes.
type ProjectType string

const (
	ProjectWeb      ProjectType = "web"
	ProjectGateway  ProjectType = "gateway"
	ProjectIOS      ProjectType = "iOS"
	ProjectAndroid  ProjectType = "android"
	ProjectNodeJS   ProjectType = "nodejs"
	ProjectNPM      ProjectType = "npm"
	ProjectMicro    ProjectType = "micro"
	ProjectWeapp3rd ProjectType = "weapp3rd"
)

var allProjectTypes = []ProjectType{
	ProjectWeb, ProjectGateway, ProjectIOS, ProjectAndroid,
	ProjectNodeJS, ProjectNPM, ProjectMicro, ProjectWeapp3rd,
}

// ProjectTypes returns every project type.
func ProjectTypes() []ProjectType {
	return slices.Clone(allProjectTypes)
}

// ParseProjectType parses a project type, ignoring case.
func ParseProjectType(s string) (ProjectType, error) {
	for _, pt := range allProjectTypes {
		if strings.EqualFold(string(pt), s) {
			return pt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProjectType, s)
}

// String returns the project type name.
func (p ProjectType) String() string {
	return string(p)
}

// RequiresApproval reports whether production publishes need an approved
// approval instance.
func (p ProjectType) RequiresApproval() bool {
	return p != ProjectNPM
}

// RequiresDeployConfig reports whether a deployment configuration must exist
// before publishing. Native and server builds carry their own.
func (p ProjectType) RequiresDeployConfig() bool {
	switch p {
	case ProjectIOS, ProjectAndroid, ProjectNodeJS:
		return false
	}
	return true
}

// UsesConfigStore reports whether the type is served from the config store.
func (p ProjectType) UsesConfigStore() bool {
	return p == ProjectGateway
}

// SupportsRollback reports whether a stored artifact can be replayed.
func (p ProjectType) SupportsRollback() bool {
	return p == ProjectWeb || p == ProjectGateway
}

// UsesThirdPartyChannel reports whether publishes carry third-party
// mini-program bindings.
func (p ProjectType) UsesThirdPartyChannel() bool {
	return p == ProjectWeapp3rd
}

// IsPackage reports whether the type is versioned as a package with
// prerelease identifiers.
func (p ProjectType) IsPackage() bool {
	return p == ProjectNPM
}

// PublishType selects the micro-frontend handling of a publish.
type PublishType string

const (
	// PublishStandard builds and deploys the project.
	PublishStandard PublishType = ""
	// PublishMicro builds a host application with a remote-module manifest.
	PublishMicro PublishType = "micro"
	// PublishMicroChild injects the manifest into the live host HTML without a build.
	PublishMicroChild PublishType = "micro_child"
)

// ApprovalStatus is the state of an approval instance.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalForwarded ApprovalStatus = "FORWARDED"
)

// BumpPolicy distinguishes normal release trains from hotfixes.
type BumpPolicy string

const (
	BumpNormal BumpPolicy = "normal"
	BumpHotfix BumpPolicy = "hotfix"
)

// IterationStatus is the lifecycle status of an iteration.
type IterationStatus string

const (
	IterationActive     IterationStatus = "active"
	IterationDeprecated IterationStatus = "deprecated"
)
