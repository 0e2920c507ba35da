package container

import (
	"context"
	"fmt"

	"github.com/relicta-tech/launchpad/internal/config"
	"github.com/relicta-tech/launchpad/internal/domain/publish/adapters"
	"github.com/relicta-tech/launchpad/internal/domain/publish/app"
	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
	"github.com/relicta-tech/launchpad/internal/infrastructure/persistence/postgres"
)

// Repositories groups the storage ports behind one backend.
type Repositories struct {
	Tasks          ports.TaskRepository
	Iterations     ports.IterationRepository
	Processes      ports.ProcessRepository
	Projects       ports.ProjectRepository
	Configurations ports.ProjectConfigurationRepository
	Domains        ports.DomainRepository
	ThirdParty     ports.ThirdPartyRepository
	History        ports.DeployHistoryRepository
	Operations     ports.OperationRepository
}

// memoryRepositories exposes a MemoryStore through the storage ports.
func memoryRepositories(store *adapters.MemoryStore) Repositories {
	return Repositories{
		Tasks:          store,
		Iterations:     store.Iterations(),
		Processes:      store,
		Projects:       store.Projects(),
		Configurations: store.Configurations(),
		Domains:        store.Domains(),
		ThirdParty:     store,
		History:        store.History(),
		Operations:     store,
	}
}

// postgresRepositories exposes the PostgreSQL repositories through the
// storage ports.
func postgresRepositories(r *postgres.Repositories) Repositories {
	return Repositories{
		Tasks:          r.Tasks,
		Iterations:     r.Iterations,
		Processes:      r.Processes,
		Projects:       r.Projects,
		Configurations: r.Configurations,
		Domains:        r.Domains,
		ThirdParty:     r.ThirdParty,
		History:        r.History,
		Operations:     r.Operations,
	}
}

// MirroredRepository answers branch comparisons from local mirrors and sends
// everything else to the hosting service API.
type MirroredRepository struct {
	ports.RepositoryService
	mirror ports.BranchComparer
}

// NewMirroredRepository creates a MirroredRepository.
func NewMirroredRepository(api ports.RepositoryService, mirror ports.BranchComparer) *MirroredRepository {
	return &MirroredRepository{RepositoryService: api, mirror: mirror}
}

// Compare counts the commits on target missing from source using the mirror.
func (r *MirroredRepository) Compare(ctx context.Context, projectRef, source, target string) (ports.CompareResult, error) {
	return r.mirror.Compare(ctx, projectRef, source, target)
}

// unconfiguredTokens is the token source of deployments without Redis.
type unconfiguredTokens struct{}

func (unconfiguredTokens) ThirdPartyToken(context.Context) (string, error) {
	return "", lperrors.Dependency("tokens.ThirdPartyToken", "third-party access token store is not configured")
}

// SettingsFromConfig converts loaded configuration into application
// settings. Viper lowercases map keys, so project types and environments are
// resolved case-insensitively.
func SettingsFromConfig(cfg *config.Config) (app.Settings, error) {
	s := app.Settings{
		Jobs:                make(map[domain.ProjectType]string),
		Images:              make(map[domain.ProjectType]string),
		AssetPaths:          make(map[domain.DeployEnv]string),
		ConfigStoreURLs:     make(map[domain.DeployEnv]string),
		Templates:           make(map[string]domain.WorkflowTemplate, len(cfg.Workflow.Templates)),
		TypeTemplates:       make(map[domain.ProjectType]string),
		DefaultTemplate:     cfg.Workflow.DefaultTemplate,
		HotfixTemplate:      cfg.Workflow.HotfixTemplate,
		TrunkBranch:         cfg.Repository.TrunkBranch,
		MergeToken:          cfg.Repository.Token,
		AllowGatewayPublish: cfg.Workflow.AllowGatewayPublish,
		ThirdPartySecret:    cfg.Workflow.ThirdPartySecret,
	}

	for _, pt := range domain.ProjectTypes() {
		if job := cfg.Builder.JobFor(string(pt)); job != "" {
			s.Jobs[pt] = job
		}
		if image := cfg.Builder.ImageFor(string(pt)); image != "" {
			s.Images[pt] = image
		}
		s.TypeTemplates[pt] = cfg.Workflow.TemplateNameFor(string(pt), false)
	}

	for _, env := range domain.DeployEnvs() {
		if p := cfg.Assets.PathFor(string(env)); p != "" {
			s.AssetPaths[env] = p
		}
		if u := cfg.ConfigStore.URLFor(string(env)); u != "" {
			s.ConfigStoreURLs[env] = u
		}
	}

	for name, nodes := range cfg.Workflow.Templates {
		tpl, err := domain.NewWorkflowTemplate(name, nodes)
		if err != nil {
			return app.Settings{}, lperrors.ConfigWrap(err, "SettingsFromConfig",
				fmt.Sprintf("invalid workflow template %q", name))
		}
		s.Templates[name] = tpl
	}

	return s, nil
}
