package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// maxSaveAttempts bounds the optimistic retry loops of the state tracker.
const maxSaveAttempts = 16

// StateTracker advances iteration and process state. Creation and completion
// are deliberately asymmetric: pending nodes advance when a task is created,
// counters and the production marker only move when a task succeeds.
type StateTracker struct {
	iterations ports.IterationRepository
	processes  ports.ProcessRepository
	logger     *slog.Logger
}

// NewStateTracker creates a StateTracker.
func NewStateTracker(iterations ports.IterationRepository, processes ports.ProcessRepository) *StateTracker {
	return &StateTracker{
		iterations: iterations,
		processes:  processes,
		logger:     slog.Default().With("component", "state_tracker"),
	}
}

// OnTaskCreated advances pending iteration and process nodes to the task's
// environment and records the task in the process's environment slot.
func (t *StateTracker) OnTaskCreated(ctx context.Context, task *domain.Task) error {
	const op = "tracker.OnTaskCreated"

	if task.IterationID == 0 {
		return nil
	}

	err := retryOnConflict(func() error {
		it, err := t.iterations.FindByID(ctx, task.IterationID)
		if err != nil {
			return err
		}
		if !it.AdvanceFromPending(task.Environment) {
			return nil
		}
		return t.iterations.Save(ctx, it)
	})
	if err != nil {
		return lperrors.InternalWrap(err, op, "failed to advance iteration")
	}

	err = retryOnConflict(func() error {
		p, err := t.processes.Find(ctx, task.IterationID, task.ProjectType)
		if err != nil {
			return err
		}
		p.AdvanceFromPending(task.Environment)
		p.RecordTask(task.Environment, task.ID)
		p.CurrentEnvBranch = task.Branch
		return t.processes.Save(ctx, p)
	})
	if err != nil {
		return lperrors.InternalWrap(err, op, "failed to update process")
	}

	t.logger.Debug("task created", "task_id", task.ID, "iteration", task.IterationID, "environment", task.Environment)
	return nil
}

// OnTaskSucceeded moves the iteration to production_not_merge after a
// production success, or increments the environment counter otherwise. It
// returns the new counter value, which is zero for production.
func (t *StateTracker) OnTaskSucceeded(ctx context.Context, task *domain.Task) (int, error) {
	const op = "tracker.OnTaskSucceeded"

	if task.IterationID == 0 {
		return 0, nil
	}

	var counter int
	err := retryOnConflict(func() error {
		it, err := t.iterations.FindByID(ctx, task.IterationID)
		if err != nil {
			return err
		}
		if task.Environment == domain.NodeProduction {
			it.MarkProductionNotMerged(task.ProjectType)
		} else {
			counter, _ = it.IncrementCounter(task.Environment)
		}
		return t.iterations.Save(ctx, it)
	})
	if err != nil {
		return 0, lperrors.InternalWrap(err, op, "failed to advance iteration")
	}

	t.logger.Info("task succeeded",
		"task_id", task.ID,
		"iteration", task.IterationID,
		"environment", task.Environment,
		"counter", counter,
	)
	return counter, nil
}

// retryOnConflict reruns fn while it loses optimistic writes.
func retryOnConflict(fn func() error) error {
	var err error
	for range maxSaveAttempts {
		if err = fn(); !errors.Is(err, domain.ErrConcurrentUpdate) {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxSaveAttempts, err)
}
