package app

import (
	"context"
	"errors"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// TaskDetail is a task with the builder job that runs it.
type TaskDetail struct {
	Task *domain.Task
	Job  string
}

// ModuleAsset describes a micro-frontend child module deployed with a task.
type ModuleAsset struct {
	ProjectID   int64  `json:"projectId"`
	Name        string `json:"name"`
	IterationID int64  `json:"iterationId"`
	Version     string `json:"version"`
	AssetURL    string `json:"assetUrl"`
}

// TaskExtra is the caller-facing summary of an external task.
type TaskExtra struct {
	Version      string        `json:"version,omitempty"`
	MicroModules []ModuleAsset `json:"microConfigData,omitempty"`
}

// QueryService answers read-only task queries.
type QueryService struct {
	settings   Settings
	tasks      ports.TaskRepository
	history    ports.DeployHistoryRepository
	projects   ports.ProjectRepository
	iterations ports.IterationRepository
}

// NewQueryService creates a QueryService.
func NewQueryService(
	settings Settings,
	tasks ports.TaskRepository,
	history ports.DeployHistoryRepository,
	projects ports.ProjectRepository,
	iterations ports.IterationRepository,
) *QueryService {
	return &QueryService{
		settings:   settings,
		tasks:      tasks,
		history:    history,
		projects:   projects,
		iterations: iterations,
	}
}

// Detail returns a task and its builder job.
func (q *QueryService) Detail(ctx context.Context, id domain.TaskID) (*TaskDetail, error) {
	task, err := q.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "query.Detail", "task not found")
	}
	return &TaskDetail{Task: task, Job: q.settings.Jobs[task.ProjectType]}, nil
}

// ExtraByExternalID summarizes the task issued under an external task id.
// An unknown id yields an empty summary. Module assets are resolved only when
// withModules is set.
func (q *QueryService) ExtraByExternalID(ctx context.Context, externalID string, withModules bool) (*TaskExtra, error) {
	const op = "query.ExtraByExternalID"

	task, err := q.tasks.FindByExternalID(ctx, externalID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return &TaskExtra{}, nil
	}
	if err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to load task")
	}

	out := &TaskExtra{Version: task.Version}
	if !withModules {
		return out, nil
	}

	h, err := q.history.FindByTaskID(ctx, task.ID)
	if errors.Is(err, domain.ErrHistoryNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to load deploy history")
	}

	env := h.Environment.RequestEnv()
	for _, mod := range h.MicroModules {
		asset := ModuleAsset{ProjectID: mod.ProjectID, IterationID: mod.IterationID}
		if p, err := q.projects.FindByID(ctx, mod.ProjectID); err == nil {
			asset.Name = p.Name
		}
		if it, err := q.iterations.FindByID(ctx, mod.IterationID); err == nil {
			asset.Version = it.Version
		}
		if asset.Name != "" && asset.Version != "" {
			asset.AssetURL = q.settings.AssetURL(env, asset.Name, asset.Version)
		}
		out.MicroModules = append(out.MicroModules, asset)
	}
	return out, nil
}
