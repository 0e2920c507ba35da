package app

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// RollbackInput selects the production artifact to restore.
type RollbackInput struct {
	ProjectID       int64              `json:"appId"`
	ProjectType     domain.ProjectType `json:"projectType"`
	RollbackVersion string             `json:"rollbackVersion"`
	DomainID        int64              `json:"domainId,omitempty"`
	NodeID          int                `json:"nodeId,omitempty"`
}

// RollbackOutput describes the restored artifact.
type RollbackOutput struct {
	History     *domain.DeployHistory
	Coordinates domain.StoreCoordinates
	Bytes       int
}

// DiffInput names the live and the rollback versions to compare.
type DiffInput struct {
	ProjectID       int64              `json:"appId"`
	ProjectType     domain.ProjectType `json:"projectType"`
	OnlineVersion   string             `json:"onlineVersion"`
	RollbackVersion string             `json:"rollbackVersion"`
	DomainID        int64              `json:"domainId,omitempty"`
}

// DiffOutput holds both history rows; either is nil when missing.
type DiffOutput struct {
	Online   *domain.DeployHistory `json:"online"`
	Rollback *domain.DeployHistory `json:"rollback"`
}

// RollbackService redeploys a previously recorded production artifact
// without building. It creates no task and no history row.
type RollbackService struct {
	projects       ports.ProjectRepository
	configurations ports.ProjectConfigurationRepository
	history        ports.DeployHistoryRepository
	artifacts      ports.ArtifactStore
	store          ports.ConfigStore
	packager       *Packager
	metrics        ports.Metrics
	logger         *slog.Logger
}

// RollbackDeps are the collaborators of a RollbackService.
type RollbackDeps struct {
	Projects       ports.ProjectRepository
	Configurations ports.ProjectConfigurationRepository
	History        ports.DeployHistoryRepository
	Artifacts      ports.ArtifactStore
	Store          ports.ConfigStore
	Packager       *Packager
	Metrics        ports.Metrics
}

// NewRollbackService creates a RollbackService.
func NewRollbackService(deps RollbackDeps) *RollbackService {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &RollbackService{
		projects:       deps.Projects,
		configurations: deps.Configurations,
		history:        deps.History,
		artifacts:      deps.Artifacts,
		store:          deps.Store,
		packager:       deps.Packager,
		metrics:        metrics,
		logger:         slog.Default().With("component", "rollback"),
	}
}

// Rollback overwrites the live production document with the artifact recorded
// for the rollback version. Gateways write to their current config-store
// coordinates; web projects to their production config-store settings.
func (s *RollbackService) Rollback(ctx context.Context, in RollbackInput) (out *RollbackOutput, err error) {
	const op = "rollback.Rollback"

	if !in.ProjectType.SupportsRollback() {
		return nil, lperrors.Validation(op, MsgRollbackUnsupported)
	}
	defer func() { s.metrics.ObserveRollback(string(in.ProjectType), outcome(err)) }()

	project, err := s.projects.FindByID(ctx, in.ProjectID)
	if err != nil {
		return nil, notFound(err, op, "project not found")
	}

	h, err := s.history.Latest(ctx, domain.HistoryQuery{
		ProjectID:   in.ProjectID,
		ProjectType: in.ProjectType,
		Environment: domain.NodeProduction,
		Version:     in.RollbackVersion,
		DomainID:    in.DomainID,
	})
	if err != nil {
		return nil, notFound(err, op, MsgArtifactNotFound)
	}
	if h.ArtifactURL == "" {
		return nil, lperrors.NotFound(op, MsgArtifactNotFound)
	}
	body, err := s.artifacts.Fetch(ctx, h.ArtifactURL)
	if err != nil {
		return nil, lperrors.DependencyWrap(err, op, "failed to fetch artifact")
	}
	if len(body) == 0 {
		return nil, lperrors.Validation(op, MsgArtifactEmpty)
	}

	var at domain.StoreCoordinates
	switch in.ProjectType {
	case domain.ProjectGateway:
		target, err := s.packager.ResolveStore(ctx, in.ProjectType, in.DomainID, in.NodeID, domain.NodeProduction)
		if err != nil {
			return nil, err
		}
		if target.Binding == nil {
			return nil, lperrors.Validation(op, "gateway rollback requires a domain")
		}
		at = target.Binding.StoreCoordinates
	case domain.ProjectWeb:
		cfg, err := s.configurations.Find(ctx, project.ID, in.ProjectType)
		if err != nil {
			return nil, lperrors.InternalWrap(err, op, "failed to load project configuration")
		}
		settings := project.ConfigStore
		if cfg != nil && len(cfg.ConfigStore) > 0 {
			settings = cfg.ConfigStore
		}
		at = settings.Resolve(domain.EnvProd)
	}

	if err := s.store.WriteHTML(ctx, domain.EnvProd, at, string(body)); err != nil {
		return nil, lperrors.DependencyWrap(err, op, "failed to write rollback document")
	}

	s.logger.Info("rolled back",
		"project", project.ID,
		"type", in.ProjectType,
		"version", in.RollbackVersion,
		"task_id", h.TaskID,
		"bytes", len(body),
	)
	return &RollbackOutput{History: h, Coordinates: at, Bytes: len(body)}, nil
}

// Diff loads the history rows of the online and rollback versions in
// parallel. Missing rows are returned as nil.
func (s *RollbackService) Diff(ctx context.Context, in DiffInput) (*DiffOutput, error) {
	const op = "rollback.Diff"

	out := &DiffOutput{}
	g, gctx := errgroup.WithContext(ctx)
	lookup := func(version string, dst **domain.DeployHistory) func() error {
		return func() error {
			h, err := s.history.Latest(gctx, domain.HistoryQuery{
				ProjectID:   in.ProjectID,
				ProjectType: in.ProjectType,
				Environment: domain.NodeProduction,
				Version:     version,
				DomainID:    in.DomainID,
			})
			if errors.Is(err, domain.ErrHistoryNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			*dst = h
			return nil
		}
	}
	g.Go(lookup(in.OnlineVersion, &out.Online))
	g.Go(lookup(in.RollbackVersion, &out.Rollback))
	if err := g.Wait(); err != nil {
		return nil, lperrors.InternalWrap(err, op, "failed to load deploy history")
	}
	return out, nil
}
