package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// HistoryService stores deployed artifacts and appends DeployHistory rows.
type HistoryService struct {
	tasks     ports.TaskRepository
	history   ports.DeployHistoryRepository
	artifacts ports.ArtifactStore
	clock     ports.Clock
	logger    *slog.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(
	tasks ports.TaskRepository,
	history ports.DeployHistoryRepository,
	artifacts ports.ArtifactStore,
	clock ports.Clock,
) *HistoryService {
	return &HistoryService{
		tasks:     tasks,
		history:   history,
		artifacts: artifacts,
		clock:     clock,
		logger:    slog.Default().With("component", "history"),
	}
}

// RecordArtifact stores the HTML the builder deployed for a task and appends
// the history row rollback reads.
func (s *HistoryService) RecordArtifact(ctx context.Context, id domain.TaskID, body []byte) (*domain.DeployHistory, error) {
	const op = "history.RecordArtifact"

	if len(body) == 0 {
		return nil, lperrors.Validation(op, MsgArtifactEmpty)
	}
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, op, "task not found")
	}
	var modules []domain.MicroModule
	if prev, err := s.history.FindByTaskID(ctx, id); err == nil {
		modules = prev.MicroModules
	}
	return s.record(ctx, task, body, modules)
}

// record stores body in the artifact store and appends a history row.
func (s *HistoryService) record(ctx context.Context, task *domain.Task, body []byte, modules []domain.MicroModule) (*domain.DeployHistory, error) {
	const op = "history.record"

	key := artifactKey(task)
	url, err := s.artifacts.Put(ctx, key, body)
	if err != nil {
		return nil, lperrors.DependencyWrap(err, op, "failed to store artifact")
	}

	h := newHistory(task, s.clock)
	h.ArtifactURL = url
	h.MicroModules = modules
	if err := s.history.Append(ctx, h); err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to append deploy history")
	}

	s.logger.Info("recorded artifact",
		"task_id", task.ID,
		"project", task.ProjectID,
		"environment", task.Environment,
		"version", task.Version,
		"artifact", url,
	)
	return h, nil
}

func newHistory(task *domain.Task, clock ports.Clock) *domain.DeployHistory {
	return &domain.DeployHistory{
		ProjectID:   task.ProjectID,
		ProjectType: task.ProjectType,
		TaskID:      task.ID,
		IterationID: task.IterationID,
		Version:     task.Version,
		Environment: task.Environment,
		DomainID:    task.DomainID,
		CreatedAt:   clock.Now(),
	}
}

func artifactKey(task *domain.Task) string {
	return fmt.Sprintf("%d/%s/%s/%s/%d.html",
		task.ProjectID, task.ProjectType, task.Environment.RequestEnv(), task.Version, task.ID)
}
