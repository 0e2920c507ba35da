package app

import (
	"context"
	"fmt"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// ValidationInput is the state an environment transition is checked against.
type ValidationInput struct {
	Iteration   *domain.Iteration
	Project     *domain.Project
	Process     *domain.Process
	ProjectType domain.ProjectType
	Target      domain.Node
}

// ValidationResult carries what the checks resolved along the way.
type ValidationResult struct {
	Template      domain.WorkflowTemplate
	Branches      BranchPlan
	Configuration *domain.ProjectConfiguration
}

// EnvironmentValidator gates a requested environment transition. It has no
// side effects.
type EnvironmentValidator struct {
	settings       Settings
	approvals      ports.ApprovalService
	configurations ports.ProjectConfigurationRepository
	iterations     ports.IterationRepository
	repo           ports.RepositoryService
	branches       *BranchResolver
}

// NewEnvironmentValidator creates an EnvironmentValidator.
func NewEnvironmentValidator(
	settings Settings,
	approvals ports.ApprovalService,
	configurations ports.ProjectConfigurationRepository,
	iterations ports.IterationRepository,
	repo ports.RepositoryService,
	branches *BranchResolver,
) *EnvironmentValidator {
	return &EnvironmentValidator{
		settings:       settings,
		approvals:      approvals,
		configurations: configurations,
		iterations:     iterations,
		repo:           repo,
		branches:       branches,
	}
}

// Validate runs the checks in order and stops at the first failure:
// lifecycle, approval, workflow adjacency, deployment configuration, branch.
func (v *EnvironmentValidator) Validate(ctx context.Context, in ValidationInput) (*ValidationResult, error) {
	const op = "validator.Validate"

	if in.Iteration.IsDeprecated() {
		return nil, lperrors.Validation(op, MsgIterationDeprecated)
	}
	if !in.Target.IsDeployable() {
		return nil, invalid(op, "environment %s cannot be published to", in.Target)
	}

	if in.Target == domain.NodeProduction && in.ProjectType.RequiresApproval() {
		if err := v.checkApproval(ctx, in.Iteration.ApprovalInstance); err != nil {
			return nil, err
		}
	}

	tpl, err := v.settings.Template(in.ProjectType, in.Iteration.IsHotfix())
	if err != nil {
		return nil, lperrors.ConfigWrap(err, op, "workflow template unavailable")
	}
	current := currentNode(in.Iteration, in.Process)
	if !tpl.Reachable(current, in.Target) {
		return nil, invalid(op, "environment %s is not reachable from %s", in.Target, current)
	}

	cfg, err := v.configurations.Find(ctx, in.Project.ID, in.ProjectType)
	if err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to load project configuration")
	}
	if in.ProjectType.RequiresDeployConfig() && deployConfig(cfg, in.Project) == "" {
		return nil, lperrors.Validation(op, MsgDeployConfigRequired)
	}

	plan := v.branches.Plan(tpl, in.Iteration, in.Project, in.ProjectType, in.Target)
	exists, err := v.repo.BranchExists(ctx, in.Project.RepositoryRef, plan.Target)
	if err != nil {
		return nil, lperrors.WrapSafe(err, lperrors.KindDependency, op, "failed to check branch")
	}
	if !exists {
		return nil, invalid(op, "branch %s does not exist", plan.Target)
	}

	return &ValidationResult{Template: tpl, Branches: plan, Configuration: cfg}, nil
}

func (v *EnvironmentValidator) checkApproval(ctx context.Context, instance string) error {
	const op = "validator.checkApproval"

	if instance == "" {
		return lperrors.Validation(op, MsgNoApproval)
	}
	status, err := v.approvals.Status(ctx, instance)
	if err != nil {
		return lperrors.DependencyWrap(err, op, "failed to query approval status")
	}
	switch status {
	case domain.ApprovalApproved:
		return nil
	case domain.ApprovalPending:
		return lperrors.Validation(op, MsgApprovalPending)
	case domain.ApprovalRejected:
		return lperrors.Validation(op, MsgApprovalRejected)
	case domain.ApprovalForwarded:
		return lperrors.Validation(op, MsgApprovalForwarded)
	}
	return invalid(op, "unknown approval status %q", status)
}

// Advisories returns non-fatal notices for a request. A production request
// is flagged while another iteration of the project is live in production
// but not merged back to trunk.
func (v *EnvironmentValidator) Advisories(ctx context.Context, it *domain.Iteration, target domain.Node) ([]string, error) {
	if target != domain.NodeProduction {
		return nil, nil
	}
	siblings, err := v.iterations.ListByProject(ctx, it.ProjectID)
	if err != nil {
		return nil, lperrors.InternalWrap(err, "validator.Advisories", "failed to list iterations")
	}
	var notes []string
	for _, s := range siblings {
		if s.ID == it.ID || s.CurrentNode != domain.NodeProductionNotMerge {
			continue
		}
		notes = append(notes, fmt.Sprintf("iteration %s is in production but not merged to %s", s.Version, v.settings.TrunkBranch))
	}
	return notes, nil
}

// currentNode prefers the process node and falls back to the iteration's.
func currentNode(it *domain.Iteration, p *domain.Process) domain.Node {
	if p != nil && p.CurrentNode != "" {
		return p.CurrentNode
	}
	return it.CurrentNode
}

func deployConfig(cfg *domain.ProjectConfiguration, p *domain.Project) string {
	if cfg != nil && cfg.DeployConfig != "" {
		return cfg.DeployConfig
	}
	return p.DeployConfig
}
