package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// BranchPlan is the pair of branches involved in a publish. Source is empty
// when the target is the head of the workflow chain.
type BranchPlan struct {
	Target string
	Source string
}

// NeedsMerge reports whether the source must be merged into the target first.
func (p BranchPlan) NeedsMerge() bool {
	return p.Source != "" && p.Source != p.Target
}

// BranchResolver computes environment branches and merges upstream changes.
type BranchResolver struct {
	repo     ports.RepositoryService
	settings Settings
	logger   *slog.Logger
}

// NewBranchResolver creates a BranchResolver.
func NewBranchResolver(repo ports.RepositoryService, settings Settings) *BranchResolver {
	return &BranchResolver{
		repo:     repo,
		settings: settings,
		logger:   slog.Default().With("component", "branch_resolver"),
	}
}

// BranchName returns "<prefix><type>/<version>". Multi-branch iterations of
// projects with several types prefix the project type.
func (r *BranchResolver) BranchName(it *domain.Iteration, project *domain.Project, pt domain.ProjectType, bt domain.BranchType) string {
	prefix := ""
	if it.MultiBranch && project.HasMultipleTypes() {
		prefix = string(pt) + "-"
	}
	return fmt.Sprintf("%s%s/%s", prefix, bt, it.Version)
}

// EnvironmentBranch returns the branch published to a node.
func (r *BranchResolver) EnvironmentBranch(it *domain.Iteration, project *domain.Project, pt domain.ProjectType, node domain.Node) string {
	bt := node.BranchType()
	if it.IsHotfix() && node.Normalize() == domain.NodeFix {
		bt = domain.BranchHotfix
	}
	return r.BranchName(it, project, pt, bt)
}

// Plan resolves the target branch of a node and, unless the node heads the
// template, the branch of the previous node to merge from. Hotfix trains
// always merge from the hotfix branch.
func (r *BranchResolver) Plan(tpl domain.WorkflowTemplate, it *domain.Iteration, project *domain.Project, pt domain.ProjectType, target domain.Node) BranchPlan {
	plan := BranchPlan{Target: r.EnvironmentBranch(it, project, pt, target)}

	prev, ok := tpl.Previous(target)
	if !ok {
		return plan
	}
	if it.IsHotfix() {
		plan.Source = r.BranchName(it, project, pt, domain.BranchHotfix)
	} else {
		plan.Source = r.EnvironmentBranch(it, project, pt, prev)
	}
	return plan
}

// MergeUpstream merges the plan's source into its target and waits for the
// repository service to finish.
func (r *BranchResolver) MergeUpstream(ctx context.Context, project *domain.Project, plan BranchPlan) error {
	const op = "branch.MergeUpstream"

	if !plan.NeedsMerge() {
		return nil
	}

	req := ports.MergeRequest{
		ProjectRef: project.RepositoryRef,
		Source:     plan.Source,
		Target:     plan.Target,
		Title:      fmt.Sprintf("Merge %s into %s", plan.Source, plan.Target),
		Token:      r.settings.MergeToken,
	}
	if err := r.repo.Merge(ctx, req); err != nil {
		return lperrors.WrapSafe(err, lperrors.KindDependency, op,
			fmt.Sprintf("failed to merge %s into %s", plan.Source, plan.Target))
	}

	r.logger.Info("merged upstream branch",
		"project", project.ID,
		"source", plan.Source,
		"target", plan.Target,
	)
	return nil
}
