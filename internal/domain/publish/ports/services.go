package ports

import (
	"context"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
)

// BuildRequest is a builder invocation: a job name and a flat parameter set.
type BuildRequest struct {
	Job         string
	ProjectType domain.ProjectType
	Params      map[string]string
}

// Builder invokes the external build system.
type Builder interface {
	// Build queues a build and returns its queue id. A response without a
	// queue id is an error.
	Build(ctx context.Context, req BuildRequest) (int64, error)
}

// ConfigStore is the runtime configuration store serving gateway and web HTML.
type ConfigStore interface {
	// LookupNamespace returns the namespace id of a tenant, if it exists.
	LookupNamespace(ctx context.Context, env domain.DeployEnv, tenant string) (string, bool, error)

	// UpsertNamespace creates the tenant namespace when missing and returns its id.
	UpsertNamespace(ctx context.Context, env domain.DeployEnv, tenant string) (string, error)

	// RenderHTML returns the live document at the coordinates.
	RenderHTML(ctx context.Context, env domain.DeployEnv, at domain.StoreCoordinates) (string, error)

	// WriteHTML overwrites the live document at the coordinates.
	WriteHTML(ctx context.Context, env domain.DeployEnv, at domain.StoreCoordinates, html string) error
}

// CompareResult is the outcome of comparing two branches.
type CompareResult struct {
	// AheadCommits counts commits on the target missing from the source.
	AheadCommits int
	TimedOut     bool
}

// MergeRequest asks the repository service to merge source into target.
type MergeRequest struct {
	ProjectRef string
	Source     string
	Target     string
	Title      string
	Token      string
}

// BranchComparer compares two branches.
type BranchComparer interface {
	Compare(ctx context.Context, projectRef, source, target string) (CompareResult, error)
}

// RepositoryService is the git hosting service.
type RepositoryService interface {
	BranchComparer
	BranchExists(ctx context.Context, projectRef, branch string) (bool, error)
	Merge(ctx context.Context, req MergeRequest) error
}

// ApprovalService answers approval instance status.
type ApprovalService interface {
	Status(ctx context.Context, instance string) (domain.ApprovalStatus, error)
}

// ArtifactStore stores deployed HTML artifacts.
type ArtifactStore interface {
	// Put stores body under key and returns the artifact URL.
	Put(ctx context.Context, key string, body []byte) (string, error)

	// Fetch returns the artifact body, or nil when it does not exist.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BuildNotification is the normalized result echoed to the caller system.
type BuildNotification struct {
	Result         string        `json:"result"`
	HookStep       string        `json:"hookStep"`
	ExternalTaskID string        `json:"taskId"`
	BuildID        string        `json:"buildId"`
	Number         domain.TaskID `json:"number"`
	QueueID        int64         `json:"queueId"`
}

// Notifier delivers build results to the caller system. Deliveries are keyed
// by external task id and build id so receivers can deduplicate.
type Notifier interface {
	NotifyBuildResult(ctx context.Context, n BuildNotification) error
}

// TokenSource returns the third-party platform access token.
type TokenSource interface {
	ThirdPartyToken(ctx context.Context) (string, error)
}
