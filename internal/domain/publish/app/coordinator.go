package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

var errNoQueueID = errors.New("builder returned no queue id")

// BuildCoordinator is the first phase of the build protocol: it queues the
// build and correlates the task with the queue entry. It never retries.
type BuildCoordinator struct {
	builder   ports.Builder
	lifecycle *TaskLifecycle
	settings  Settings
	logger    *slog.Logger
}

// NewBuildCoordinator creates a BuildCoordinator.
func NewBuildCoordinator(builder ports.Builder, lifecycle *TaskLifecycle, settings Settings) *BuildCoordinator {
	return &BuildCoordinator{
		builder:   builder,
		lifecycle: lifecycle,
		settings:  settings,
		logger:    slog.Default().With("component", "build_coordinator"),
	}
}

// Dispatch queues the build of a task and returns the queue id. On failure
// the task is left in publish_failed.
func (c *BuildCoordinator) Dispatch(ctx context.Context, task *domain.Task, payload Payload) (int64, error) {
	const op = "coordinator.Dispatch"

	job, ok := c.settings.Jobs[task.ProjectType]
	if !ok || job == "" {
		err := lperrors.Config(op, "no builder job configured for "+task.ProjectType.String())
		return 0, c.fail(ctx, task, err)
	}

	queueID, err := c.builder.Build(ctx, ports.BuildRequest{
		Job:         job,
		ProjectType: task.ProjectType,
		Params:      payload,
	})
	if err == nil && queueID == 0 {
		err = errNoQueueID
	}
	if err != nil {
		return 0, c.fail(ctx, task, lperrors.DependencyWrap(err, op, "builder invocation failed"))
	}

	if err := c.lifecycle.AttachQueueID(ctx, task, queueID); err != nil {
		return 0, c.fail(ctx, task, err)
	}

	c.logger.Info("build queued", "task_id", task.ID, "job", job, "queue_id", queueID)
	return queueID, nil
}

func (c *BuildCoordinator) fail(ctx context.Context, task *domain.Task, cause error) error {
	if err := c.lifecycle.MarkFailed(ctx, task, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
