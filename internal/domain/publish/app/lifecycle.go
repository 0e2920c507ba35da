package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// Result codes reported by the builder.
const (
	ResultSuccess = "SUCCESS"
	ResultFailure = "FAILURE"
)

// CallbackInput is a build completion report.
type CallbackInput struct {
	// TaskID is the task sequence number; ExternalTaskID is used when it is zero.
	TaskID         domain.TaskID
	ExternalTaskID string
	BuildID        string
	Result         string
	HookStep       string
}

// CallbackOutput describes what a completion report did.
type CallbackOutput struct {
	Task   *domain.Task
	Status domain.TaskStatus
	// Applied is false for replays and progress reports.
	Applied      bool
	Notification ports.BuildNotification
}

// TaskLifecycle creates tasks and applies status reports idempotently.
type TaskLifecycle struct {
	tasks     ports.TaskRepository
	history   ports.DeployHistoryRepository
	artifacts ports.ArtifactStore
	store     ports.ConfigStore
	notifier  ports.Notifier
	tracker   *StateTracker
	metrics   ports.Metrics
	logger    *slog.Logger
}

// LifecycleDeps are the collaborators of a TaskLifecycle.
type LifecycleDeps struct {
	Tasks     ports.TaskRepository
	History   ports.DeployHistoryRepository
	Artifacts ports.ArtifactStore
	Store     ports.ConfigStore
	Notifier  ports.Notifier
	Tracker   *StateTracker
	Metrics   ports.Metrics
}

// NewTaskLifecycle creates a TaskLifecycle.
func NewTaskLifecycle(deps LifecycleDeps) *TaskLifecycle {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &TaskLifecycle{
		tasks:     deps.Tasks,
		history:   deps.History,
		artifacts: deps.Artifacts,
		store:     deps.Store,
		notifier:  deps.Notifier,
		tracker:   deps.Tracker,
		metrics:   metrics,
		logger:    slog.Default().With("component", "task_lifecycle"),
	}
}

// Create persists a new task.
func (l *TaskLifecycle) Create(ctx context.Context, task *domain.Task) error {
	if err := l.tasks.Create(ctx, task); err != nil {
		return lperrors.InternalWrap(err, "lifecycle.Create", "failed to create task")
	}
	l.logger.Info("task created",
		"task_id", task.ID,
		"project", task.ProjectID,
		"type", task.ProjectType,
		"environment", task.Environment,
		"branch", task.Branch,
		"version", task.Version,
	)
	return nil
}

// AttachQueueID stores the builder correlation id on a task.
func (l *TaskLifecycle) AttachQueueID(ctx context.Context, task *domain.Task, queueID int64) error {
	const op = "lifecycle.AttachQueueID"

	if err := l.tasks.AttachQueueID(ctx, task.ID, queueID); err != nil {
		if errors.Is(err, domain.ErrQueueIDAssigned) {
			return lperrors.ConflictWrap(err, op, "task already correlated with another build")
		}
		if errors.Is(err, domain.ErrQueueIDInUse) {
			return lperrors.ConflictWrap(err, op, "queue id already correlated with another task")
		}
		return lperrors.InternalWrap(err, op, "failed to attach queue id")
	}
	task.QueueID = queueID
	return nil
}

// MarkFailed moves a publishing task to publish_failed.
func (l *TaskLifecycle) MarkFailed(ctx context.Context, task *domain.Task, reason error) error {
	applied, err := l.tasks.TransitionStatus(ctx, task.ID, domain.StatusPublishing, domain.StatusPublishFailed, task.BuildID)
	if err != nil {
		return lperrors.InternalWrap(err, "lifecycle.MarkFailed", "failed to mark task failed")
	}
	if applied {
		task.Status = domain.StatusPublishFailed
	}
	l.logger.Warn("task failed", "task_id", task.ID, "reason", reason)
	return nil
}

// Complete applies a builder completion report and notifies the caller
// system. The notification is sent whether or not the local update succeeded,
// and also for replays; a failed delivery is returned as a notification error.
func (l *TaskLifecycle) Complete(ctx context.Context, in CallbackInput) (*CallbackOutput, error) {
	const op = "lifecycle.Complete"

	out := &CallbackOutput{}
	task, applyErr := l.findCallbackTask(ctx, in)
	if applyErr == nil {
		out.Task = task
		out.Applied, applyErr = l.apply(ctx, task, domain.StatusFromResult(in.Result), in.BuildID)
		out.Status = task.Status
	}

	n := ports.BuildNotification{
		Result:         in.Result,
		HookStep:       in.HookStep,
		ExternalTaskID: in.ExternalTaskID,
		BuildID:        in.BuildID,
	}
	if applyErr != nil {
		n.Result = ResultFailure
	}
	if task != nil {
		if task.ExternalTaskID != "" {
			n.ExternalTaskID = task.ExternalTaskID
		}
		n.Number = task.ID
		n.QueueID = task.QueueID
	}
	out.Notification = n
	l.metrics.ObserveCallback(in.Result, out.Applied)

	var notifyErr error
	if err := l.notifier.NotifyBuildResult(ctx, n); err != nil {
		l.metrics.ObserveNotification("failed")
		l.logger.Error("build result notification failed", "task_id", n.Number, "build_id", n.BuildID, "error", err)
		notifyErr = lperrors.NotificationWrap(err, op, "failed to notify caller system")
	} else {
		l.metrics.ObserveNotification("delivered")
	}

	return out, errors.Join(applyErr, notifyErr)
}

// ApplyLegacyStatus applies a numeric status report without notifying the
// caller system. Code zero leaves the status unchanged.
func (l *TaskLifecycle) ApplyLegacyStatus(ctx context.Context, id domain.TaskID, code int, buildID string) (bool, error) {
	const op = "lifecycle.ApplyLegacyStatus"

	status, err := domain.StatusFromCode(code)
	if err != nil {
		return false, lperrors.Validation(op, err.Error())
	}
	task, err := l.tasks.FindByID(ctx, id)
	if err != nil {
		return false, notFound(err, op, "task not found")
	}
	if status == domain.StatusUnpublished {
		return false, nil
	}
	return l.apply(ctx, task, status, buildID)
}

func (l *TaskLifecycle) findCallbackTask(ctx context.Context, in CallbackInput) (*domain.Task, error) {
	const op = "lifecycle.findCallbackTask"

	var (
		task *domain.Task
		err  error
	)
	switch {
	case in.TaskID != 0:
		task, err = l.tasks.FindByID(ctx, in.TaskID)
	case in.ExternalTaskID != "":
		task, err = l.tasks.FindByExternalID(ctx, in.ExternalTaskID)
	default:
		return nil, lperrors.Validation(op, "callback names no task")
	}
	if err != nil {
		return nil, notFound(err, op, "task not found")
	}
	return task, nil
}

// apply moves the task to status once. Terminal tasks absorb every report,
// and a concurrent report that wins the compare-and-set makes this one a
// replay. A gateway success that cannot be applied fails the task instead.
func (l *TaskLifecycle) apply(ctx context.Context, task *domain.Task, status domain.TaskStatus, buildID string) (bool, error) {
	const op = "lifecycle.apply"

	next, changed := domain.NextStatus(task.Status, domain.EventForStatus(status))
	if !changed {
		l.logger.Debug("status report ignored", "task_id", task.ID, "status", task.Status, "reported", status)
		return false, nil
	}

	var applyErr error
	if next == domain.StatusPublishSuccess && task.IsGateway() {
		if applyErr = l.applyGatewayArtifact(ctx, task); applyErr != nil {
			next = domain.StatusPublishFailed
		}
	}

	ok, err := l.tasks.TransitionStatus(ctx, task.ID, task.Status, next, buildID)
	if err != nil {
		return false, lperrors.InternalWrap(err, op, "failed to update task status")
	}
	if !ok {
		return false, applyErr
	}
	task.Status = next
	task.BuildID = buildID

	if applyErr != nil {
		return true, applyErr
	}
	if next == domain.StatusPublishSuccess {
		if _, err := l.tracker.OnTaskSucceeded(ctx, task); err != nil {
			return true, err
		}
	}
	return true, nil
}

// applyGatewayArtifact re-applies the config-store binding persisted on a
// gateway task. The namespace is upserted again, then the recorded artifact is
// written to the coordinates. A build callback may arrive before the artifact
// upload; the live document is then republished in place. A task with neither
// cannot be applied and fails.
func (l *TaskLifecycle) applyGatewayArtifact(ctx context.Context, task *domain.Task) error {
	const op = "lifecycle.applyGatewayArtifact"

	if task.ConfigStore == nil {
		return lperrors.Dependency(op, "gateway task has no config-store binding")
	}
	env := task.Environment.RequestEnv()
	at := task.ConfigStore.StoreCoordinates
	if task.ConfigStore.Namespace != "" {
		tenant, err := l.store.UpsertNamespace(ctx, env, task.ConfigStore.Namespace)
		if err != nil {
			return lperrors.DependencyWrap(err, op, "failed to confirm config-store namespace")
		}
		at.Tenant = tenant
	}

	body, err := l.recordedArtifact(ctx, task)
	if err != nil {
		return err
	}
	if body == "" {
		live, err := l.store.RenderHTML(ctx, env, at)
		if err != nil {
			return lperrors.DependencyWrap(err, op, "failed to render gateway document")
		}
		if live == "" {
			return lperrors.Dependency(op, "no artifact recorded and no live gateway document").
				WithDetail("data_id", at.DataID)
		}
		l.logger.Info("no artifact recorded yet; republishing live gateway document", "task_id", task.ID, "data_id", at.DataID)
		body = live
	}

	if err := l.store.WriteHTML(ctx, env, at, body); err != nil {
		return lperrors.DependencyWrap(err, op, "failed to write gateway document")
	}
	return nil
}

// recordedArtifact returns the artifact recorded for task, or "" when none
// has been uploaded yet.
func (l *TaskLifecycle) recordedArtifact(ctx context.Context, task *domain.Task) (string, error) {
	const op = "lifecycle.recordedArtifact"

	h, err := l.history.FindByTaskID(ctx, task.ID)
	if errors.Is(err, domain.ErrHistoryNotFound) {
		return "", nil
	}
	if err != nil {
		return "", lperrors.InternalWrap(err, op, "failed to load deploy history")
	}
	if h.ArtifactURL == "" {
		return "", nil
	}
	body, err := l.artifacts.Fetch(ctx, h.ArtifactURL)
	if err != nil {
		return "", lperrors.DependencyWrap(err, op, "failed to fetch artifact")
	}
	return string(body), nil
}
