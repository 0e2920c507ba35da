package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// PublishInput is a workflow publish request.
type PublishInput struct {
	ProjectID     int64                `json:"projectId"`
	IterationID   int64                `json:"iterationId"`
	ProjectType   domain.ProjectType   `json:"projectType"`
	Environment   domain.Node          `json:"environment"`
	DomainID      int64                `json:"domainId,omitempty"`
	NodeID        int                  `json:"nodeId,omitempty"`
	PublishType   domain.PublishType   `json:"publishType,omitempty"`
	MicroModules  []domain.MicroModule `json:"microModules,omitempty"`
	ThirdPartyIDs []int64              `json:"thirdPartyIds,omitempty"`
	Cache         bool                 `json:"cache"`
	Description   string               `json:"desc,omitempty"`
	User          User                 `json:"-"`
}

// PublishOutput is the result of a publish.
type PublishOutput struct {
	Task       *domain.Task
	QueueID    int64
	Advisories []string
}

// ExternalPublishInput is a publish issued by the caller system. It bypasses
// workflow validation.
type ExternalPublishInput struct {
	ExternalTaskID string               `json:"taskId"`
	ProjectID      int64                `json:"appId"`
	ProjectType    domain.ProjectType   `json:"projectType"`
	Environment    domain.Node          `json:"environment"`
	Branch         string               `json:"branch"`
	Version        string               `json:"version"`
	DomainID       int64                `json:"domainId,omitempty"`
	NodeID         int                  `json:"nodeId,omitempty"`
	MicroModules   []domain.MicroModule `json:"microModules,omitempty"`
	ThirdPartyIDs  []int64              `json:"thirdPartyIds,omitempty"`
	// DeployOnly injects the manifest into the live document without a build.
	DeployOnly  bool   `json:"deployOnly"`
	Cache       bool   `json:"cache"`
	Extra       string `json:"extra,omitempty"`
	Description string `json:"desc,omitempty"`
	User        User   `json:"-"`
}

// PreCheckOutput lists non-fatal notices for a publish request.
type PreCheckOutput struct {
	Advisories []string
}

// PublishService is the publish entry point. It serializes requests per
// (project, iteration, project type) and drives the components in order:
// validation, branch merge, packaging, task creation and build dispatch.
type PublishService struct {
	settings    Settings
	tasks       ports.TaskRepository
	iterations  ports.IterationRepository
	processes   ports.ProcessRepository
	projects    ports.ProjectRepository
	operations  ports.OperationRepository
	comparer    ports.BranchComparer
	locks       ports.LockManager
	validator   *EnvironmentValidator
	branches    *BranchResolver
	packager    *Packager
	lifecycle   *TaskLifecycle
	coordinator *BuildCoordinator
	tracker     *StateTracker
	clock       ports.Clock
	metrics     ports.Metrics
	logger      *slog.Logger
}

// PublishDeps are the collaborators of a PublishService.
type PublishDeps struct {
	Tasks       ports.TaskRepository
	Iterations  ports.IterationRepository
	Processes   ports.ProcessRepository
	Projects    ports.ProjectRepository
	Operations  ports.OperationRepository
	Comparer    ports.BranchComparer
	Locks       ports.LockManager
	Validator   *EnvironmentValidator
	Branches    *BranchResolver
	Packager    *Packager
	Lifecycle   *TaskLifecycle
	Coordinator *BuildCoordinator
	Tracker     *StateTracker
	Clock       ports.Clock
	Metrics     ports.Metrics
}

// NewPublishService creates a PublishService.
func NewPublishService(settings Settings, deps PublishDeps) *PublishService {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &PublishService{
		settings:    settings,
		tasks:       deps.Tasks,
		iterations:  deps.Iterations,
		processes:   deps.Processes,
		projects:    deps.Projects,
		operations:  deps.Operations,
		comparer:    deps.Comparer,
		locks:       deps.Locks,
		validator:   deps.Validator,
		branches:    deps.Branches,
		packager:    deps.Packager,
		lifecycle:   deps.Lifecycle,
		coordinator: deps.Coordinator,
		tracker:     deps.Tracker,
		clock:       deps.Clock,
		metrics:     metrics,
		logger:      slog.Default().With("component", "publish"),
	}
}

// PreCheck reports whether a publish would be accepted without performing it.
// Production requests are compared against trunk: a release branch missing
// trunk commits is rejected, and a comparison that timed out is an advisory.
func (s *PublishService) PreCheck(ctx context.Context, in PublishInput) (*PreCheckOutput, error) {
	const op = "publish.PreCheck"

	if err := s.checkGateway(op, in.ProjectType); err != nil {
		return nil, err
	}
	it, project, err := s.loadWorkflow(ctx, in.IterationID, in.ProjectID)
	if err != nil {
		return nil, err
	}

	out := &PreCheckOutput{}
	if out.Advisories, err = s.validator.Advisories(ctx, it, in.Environment); err != nil {
		return nil, err
	}
	advisory, err := s.checkTrunk(ctx, op, it, project, in.ProjectType, in.Environment)
	if err != nil {
		return nil, err
	}
	if advisory != "" {
		out.Advisories = append(out.Advisories, advisory)
	}
	return out, nil
}

// checkTrunk compares a production release branch with trunk. A branch
// missing trunk commits is rejected; a comparison that timed out yields an
// advisory instead. Other environments are not compared.
func (s *PublishService) checkTrunk(ctx context.Context, op string, it *domain.Iteration, project *domain.Project, pt domain.ProjectType, env domain.Node) (string, error) {
	if env != domain.NodeProduction {
		return "", nil
	}

	branch := s.branches.EnvironmentBranch(it, project, pt, env)
	res, err := s.comparer.Compare(ctx, project.RepositoryRef, branch, s.settings.TrunkBranch)
	if err != nil {
		return "", lperrors.WrapSafe(err, lperrors.KindDependency, op, "failed to compare with trunk")
	}
	if res.TimedOut {
		return fmt.Sprintf("comparison of %s with %s timed out; check manually that it is up to date", branch, s.settings.TrunkBranch), nil
	}
	if res.AheadCommits > 0 {
		return "", lperrors.Validation(op, MsgBehindTrunk).
			WithDetail("branch", branch).
			WithDetail("missing_commits", res.AheadCommits)
	}
	return "", nil
}

// Publish validates and executes a workflow publish.
func (s *PublishService) Publish(ctx context.Context, in PublishInput) (out *PublishOutput, err error) {
	const op = "publish.Publish"

	defer func() { s.metrics.ObservePublish(string(in.ProjectType), string(in.Environment), outcome(err)) }()

	if err := s.checkGateway(op, in.ProjectType); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, lockKey(in.ProjectID, in.IterationID, in.ProjectType))
	if err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to acquire publish lock")
	}
	defer release()

	it, project, err := s.loadWorkflow(ctx, in.IterationID, in.ProjectID)
	if err != nil {
		return nil, err
	}
	process, err := s.loadProcess(ctx, it, in.ProjectType)
	if err != nil {
		return nil, err
	}

	result, err := s.validator.Validate(ctx, ValidationInput{
		Iteration:   it,
		Project:     project,
		Process:     process,
		ProjectType: in.ProjectType,
		Target:      in.Environment,
	})
	if err != nil {
		return nil, err
	}
	advisories, err := s.validator.Advisories(ctx, it, in.Environment)
	if err != nil {
		return nil, err
	}
	advisory, err := s.checkTrunk(ctx, op, it, project, in.ProjectType, in.Environment)
	if err != nil {
		return nil, err
	}
	if advisory != "" {
		advisories = append(advisories, advisory)
	}
	for _, a := range advisories {
		s.logger.Warn("publish advisory", "project", project.ID, "iteration", it.ID, "advisory", a)
	}

	if err := s.branches.MergeUpstream(ctx, project, result.Branches); err != nil {
		return nil, err
	}

	store, err := s.packager.ResolveStore(ctx, in.ProjectType, in.DomainID, in.NodeID, in.Environment)
	if err != nil {
		return nil, err
	}

	task := domain.NewTask(project.ID, it.ID, process.ID, in.Environment, in.ProjectType,
		result.Branches.Target, iterationVersion(it, in.ProjectType, in.Environment), s.clock.Now())
	task.DomainID = in.DomainID
	task.CreatorID = in.User.ID
	task.CreatorName = in.User.Name
	task.Description = in.Description
	if store.Binding != nil {
		task.ConfigStore = store.Binding
	}
	if err := s.lifecycle.Create(ctx, task); err != nil {
		return nil, err
	}
	s.audit(ctx, task, in.User, in)

	pc := &PackageContext{
		Project:       project,
		Iteration:     it,
		Configuration: result.Configuration,
		Task:          task,
		Store:         store,
		User:          in.User,
		Cache:         in.Cache,
		PublishType:   in.PublishType,
		MicroModules:  in.MicroModules,
		ThirdPartyIDs: in.ThirdPartyIDs,
	}

	if in.PublishType == domain.PublishMicroChild {
		if err := s.injectOnly(ctx, pc); err != nil {
			return nil, err
		}
		return &PublishOutput{Task: task, Advisories: advisories}, nil
	}

	queueID, err := s.build(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := s.tracker.OnTaskCreated(ctx, task); err != nil {
		s.logger.Error("build queued but workflow state was not updated",
			"task_id", task.ID,
			"queue_id", queueID,
			"error", err,
		)
		return nil, lperrors.InternalWrap(err, op, MsgBuildInFlight).
			WithDetail("task_id", task.ID).
			WithDetail("queue_id", queueID)
	}
	return &PublishOutput{Task: task, QueueID: queueID, Advisories: advisories}, nil
}

// PublishExternal executes a publish issued by the caller system. It does not
// validate or advance any workflow and returns queue id 0 for deploy-only
// requests.
func (s *PublishService) PublishExternal(ctx context.Context, in ExternalPublishInput) (out *PublishOutput, err error) {
	const op = "publish.PublishExternal"

	defer func() { s.metrics.ObservePublish(string(in.ProjectType), string(in.Environment), outcome(err)) }()

	if in.ExternalTaskID == "" {
		return nil, lperrors.Validation(op, "external task id is required")
	}
	if !in.Environment.IsDeployable() {
		return nil, invalid(op, "environment %s cannot be published to", in.Environment)
	}
	if err := s.checkGateway(op, in.ProjectType); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, lockKey(in.ProjectID, 0, in.ProjectType))
	if err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to acquire publish lock")
	}
	defer release()

	project, err := s.projects.FindByID(ctx, in.ProjectID)
	if err != nil {
		return nil, notFound(err, op, "project not found")
	}

	version := in.Version
	if in.ProjectType.IsPackage() {
		prev, err := s.tasks.LatestOnEnvironment(ctx, project.ID, in.ProjectType, in.Environment)
		if err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
			return nil, lperrors.InternalWrap(err, op, "failed to load previous task")
		}
		version = nextPrerelease(in.Version, in.Environment, prev)
	}

	store, err := s.packager.ResolveStore(ctx, in.ProjectType, in.DomainID, in.NodeID, in.Environment)
	if err != nil {
		return nil, err
	}

	task := domain.NewTask(project.ID, 0, 0, in.Environment, in.ProjectType, in.Branch, version, s.clock.Now())
	task.ExternalTaskID = in.ExternalTaskID
	task.DomainID = in.DomainID
	task.CreatorID = in.User.ID
	task.CreatorName = in.User.Name
	task.Description = in.Description
	task.Extra = in.Extra
	if store.Binding != nil {
		task.ConfigStore = store.Binding
	}
	if err := s.lifecycle.Create(ctx, task); err != nil {
		return nil, err
	}
	s.audit(ctx, task, in.User, in)

	publishType := domain.PublishStandard
	if len(in.MicroModules) > 0 {
		publishType = domain.PublishMicro
	}
	pc := &PackageContext{
		Project:       project,
		Task:          task,
		Store:         store,
		User:          in.User,
		Cache:         in.Cache,
		PublishType:   publishType,
		MicroModules:  in.MicroModules,
		ThirdPartyIDs: in.ThirdPartyIDs,
		External:      true,
		Extra:         in.Extra,
	}

	if in.DeployOnly {
		if err := s.injectOnly(ctx, pc); err != nil {
			return nil, err
		}
		return &PublishOutput{Task: task}, nil
	}

	queueID, err := s.build(ctx, pc)
	if err != nil {
		return nil, err
	}
	return &PublishOutput{Task: task, QueueID: queueID}, nil
}

// build packages the payload and dispatches the build. Any failure leaves the
// task in publish_failed.
func (s *PublishService) build(ctx context.Context, pc *PackageContext) (int64, error) {
	payload, err := s.packager.Package(ctx, pc)
	if err != nil {
		if markErr := s.lifecycle.MarkFailed(ctx, pc.Task, err); markErr != nil {
			return 0, errors.Join(err, markErr)
		}
		return 0, err
	}
	return s.coordinator.Dispatch(ctx, pc.Task, payload)
}

// injectOnly completes a task synchronously by injecting the manifest into
// the live document.
func (s *PublishService) injectOnly(ctx context.Context, pc *PackageContext) error {
	if _, err := s.packager.InjectOnly(ctx, pc); err != nil {
		if markErr := s.lifecycle.MarkFailed(ctx, pc.Task, err); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	_, err := s.lifecycle.ApplyLegacyStatus(ctx, pc.Task.ID, domain.StatusPublishSuccess.Code(), "")
	if err == nil {
		pc.Task.Status = domain.StatusPublishSuccess
	}
	return err
}

func (s *PublishService) checkGateway(op string, pt domain.ProjectType) error {
	if pt == domain.ProjectGateway && !s.settings.AllowGatewayPublish {
		return lperrors.Validation(op, MsgGatewayPublishBlocked)
	}
	return nil
}

func (s *PublishService) loadWorkflow(ctx context.Context, iterationID, projectID int64) (*domain.Iteration, *domain.Project, error) {
	const op = "publish.loadWorkflow"

	it, err := s.iterations.FindByID(ctx, iterationID)
	if err != nil {
		return nil, nil, notFound(err, op, "iteration not found")
	}
	if it.ProjectID != projectID {
		return nil, nil, invalid(op, "iteration %d does not belong to project %d", iterationID, projectID)
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, nil, notFound(err, op, "project not found")
	}
	return it, project, nil
}

// loadProcess returns the process of a project type, creating it at the
// iteration's current node the first time the type is published.
func (s *PublishService) loadProcess(ctx context.Context, it *domain.Iteration, pt domain.ProjectType) (*domain.Process, error) {
	const op = "publish.loadProcess"

	p, err := s.processes.Find(ctx, it.ID, pt)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrProcessNotFound) {
		return nil, lperrors.InternalWrap(err, op, "failed to load process")
	}

	p = &domain.Process{
		IterationID: it.ID,
		ProjectID:   it.ProjectID,
		ProjectType: pt,
		CurrentNode: it.CurrentNode,
	}
	if err := s.processes.Save(ctx, p); err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to create process")
	}
	return p, nil
}

// audit records who created a task and with which request. Audit failures
// are logged and do not fail the publish.
func (s *PublishService) audit(ctx context.Context, task *domain.Task, user User, request any) {
	record, err := json.Marshal(request)
	if err != nil {
		record = []byte("{}")
	}
	entry := &domain.Operation{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		ProjectID:   task.ProjectID,
		IterationID: task.IterationID,
		Environment: task.Environment,
		ProjectType: task.ProjectType,
		Operator:    user.Name,
		Record:      string(record),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.operations.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record operation", "task_id", task.ID, "error", err)
	}
}

func lockKey(projectID, iterationID int64, pt domain.ProjectType) string {
	return fmt.Sprintf("publish:%d:%d:%s", projectID, iterationID, pt)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return lperrors.GetKind(err).String()
}
