// Package ports defines the interfaces (ports) for the publish orchestrator.
package ports

import (
	"context"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
)

// TaskRepository persists tasks. Tasks are never deleted.
type TaskRepository interface {
	// Create stores a new task and assigns its ID.
	Create(ctx context.Context, task *domain.Task) error

	// FindByID returns domain.ErrTaskNotFound when no task matches.
	FindByID(ctx context.Context, id domain.TaskID) (*domain.Task, error)

	// FindByExternalID finds a task by the caller-issued task id.
	FindByExternalID(ctx context.Context, externalID string) (*domain.Task, error)

	// LatestOnEnvironment returns the newest task of a project type on env.
	LatestOnEnvironment(ctx context.Context, projectID int64, pt domain.ProjectType, env domain.Node) (*domain.Task, error)

	// AttachQueueID stores the builder correlation id. It fails with
	// domain.ErrQueueIDAssigned when a different id is already attached, and
	// with domain.ErrQueueIDInUse when another task carries queueID.
	AttachQueueID(ctx context.Context, id domain.TaskID, queueID int64) error

	// TransitionStatus moves the task from one status to another only if it
	// is still in from. It reports whether the write was applied.
	TransitionStatus(ctx context.Context, id domain.TaskID, from, to domain.TaskStatus, buildID string) (bool, error)
}

// IterationRepository persists iterations with optimistic concurrency.
type IterationRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Iteration, error)

	// ListByProject returns every iteration of a project.
	ListByProject(ctx context.Context, projectID int64) ([]*domain.Iteration, error)

	// Save writes the iteration if its Revision matches the stored one and
	// increments Revision. It returns domain.ErrConcurrentUpdate otherwise.
	Save(ctx context.Context, it *domain.Iteration) error
}

// ProcessRepository persists processes with optimistic concurrency.
type ProcessRepository interface {
	// Find returns the process of a project type within an iteration.
	Find(ctx context.Context, iterationID int64, pt domain.ProjectType) (*domain.Process, error)

	// Save behaves like IterationRepository.Save. A process with a zero ID is
	// inserted and assigned one.
	Save(ctx context.Context, p *domain.Process) error
}

// ProjectRepository reads projects.
type ProjectRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Project, error)
}

// ProjectConfigurationRepository reads per-type overrides. A missing override
// is returned as (nil, nil).
type ProjectConfigurationRepository interface {
	Find(ctx context.Context, projectID int64, pt domain.ProjectType) (*domain.ProjectConfiguration, error)
}

// DomainRepository stores gateway domain bindings.
type DomainRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Domain, error)

	// FindByKey returns domain.ErrDomainNotFound when no binding matches.
	FindByKey(ctx context.Context, key domain.DomainKey) (*domain.Domain, error)

	// Create stores a binding unless one with the same key exists, in which
	// case the existing binding is returned.
	Create(ctx context.Context, d *domain.Domain) (*domain.Domain, error)
}

// ThirdPartyRepository reads third-party account bindings.
type ThirdPartyRepository interface {
	FindByIDs(ctx context.Context, ids []int64, projectID int64, env domain.Node) ([]domain.ThirdPartyAccount, error)
}

// DeployHistoryRepository is an append-only store of applied artifacts.
type DeployHistoryRepository interface {
	Append(ctx context.Context, h *domain.DeployHistory) error

	// Latest returns the newest row matching q, or domain.ErrHistoryNotFound.
	Latest(ctx context.Context, q domain.HistoryQuery) (*domain.DeployHistory, error)

	// FindByTaskID returns the newest row written for a task.
	FindByTaskID(ctx context.Context, id domain.TaskID) (*domain.DeployHistory, error)
}

// OperationRepository stores audit records.
type OperationRepository interface {
	Record(ctx context.Context, op *domain.Operation) error
}
