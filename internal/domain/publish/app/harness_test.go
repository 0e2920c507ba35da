package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
)

const (
	projectID   int64 = 1
	iterationID int64 = 10
	gatewayID   int64 = 2
	domainID    int64 = 7
)

type harness struct {
	settings       Settings
	clock          fixedClock
	tasks          *mockTasks
	iterations     *mockIterations
	processes      *mockProcesses
	projects       *mockProjects
	configurations *mockConfigurations
	domains        *mockDomains
	thirdParty     *mockThirdParty
	history        *mockHistory
	operations     *mockOperations
	builder        *mockBuilder
	store          *mockConfigStore
	repo           *mockRepository
	approvals      *mockApprovals
	artifacts      *mockArtifacts
	notifier       *mockNotifier

	tracker   *StateTracker
	recorder  *HistoryService
	packager  *Packager
	lifecycle *TaskLifecycle
	validator *EnvironmentValidator
	publish   *PublishService
	rollback  *RollbackService
	query     *QueryService
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	standard, err := domain.NewWorkflowTemplate("standard", []string{"development", "testing", "fix", "production"})
	require.NoError(t, err)
	hotfix, err := domain.NewWorkflowTemplate("hotfix", []string{"fix", "production"})
	require.NoError(t, err)

	return Settings{
		Jobs: map[domain.ProjectType]string{
			domain.ProjectWeb:      "web-build",
			domain.ProjectGateway:  "gateway-build",
			domain.ProjectNPM:      "npm-publish",
			domain.ProjectWeapp3rd: "weapp-build",
			domain.ProjectIOS:      "ios-build",
		},
		Images: map[domain.ProjectType]string{
			domain.ProjectWeb: "builder/web:18",
		},
		AssetPaths: map[domain.DeployEnv]string{
			domain.EnvDev:  "https://assets.dev.test",
			domain.EnvProd: "https://assets.test/",
		},
		ConfigStoreURLs: map[domain.DeployEnv]string{
			domain.EnvDev:  "http://store.dev.test",
			domain.EnvPre:  "http://store.pre.test",
			domain.EnvProd: "http://store.test",
		},
		Templates:           map[string]domain.WorkflowTemplate{"standard": standard, "hotfix": hotfix},
		DefaultTemplate:     "standard",
		HotfixTemplate:      "hotfix",
		TrunkBranch:         "master",
		MergeToken:          "merge-token",
		AllowGatewayPublish: true,
		ThirdPartySecret:    "channel-secret",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		settings: testSettings(t),
		clock:    fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		tasks:    newMockTasks(),
		iterations: newMockIterations(&domain.Iteration{
			ID:               iterationID,
			ProjectID:        projectID,
			Version:          "1.4.0",
			CurrentNode:      domain.NodeDevelopment,
			ApprovalInstance: "ap-1",
			BumpPolicy:       domain.BumpNormal,
			Status:           domain.IterationActive,
		}, &domain.Iteration{
			ID:               20,
			ProjectID:        gatewayID,
			Version:          "2.0.0",
			CurrentNode:      domain.NodeProduction,
			ApprovalInstance: "ap-1",
			BumpPolicy:       domain.BumpNormal,
			Status:           domain.IterationActive,
		}),
		processes: newMockProcesses(),
		projects: &mockProjects{items: map[int64]*domain.Project{
			projectID: {
				ID:            projectID,
				Name:          "portal",
				PackageName:   "@acme/portal",
				GitURL:        "https://git.example.com/fe/portal",
				GitNamespace:  "fe",
				RepositoryRef: "fe/portal",
				DeployConfig:  `{"replicas":2}`,
				ConfigStore: domain.ConfigStoreSettings{
					"default": {URL: "http://store.test", Group: "WEB", Tenant: "base", DataID: "portal.html"},
					"prod":    {Tenant: "prod-tenant"},
				},
				SecretToken: "project-secret",
				AppID:       "wx-project",
				Types:       []domain.ProjectType{domain.ProjectWeb},
			},
			gatewayID: {
				ID:            gatewayID,
				Name:          "shell",
				GitURL:        "https://git.example.com/fe/shell",
				RepositoryRef: "fe/shell",
				DeployConfig:  "{}",
				Types:         []domain.ProjectType{domain.ProjectGateway},
			},
			3: {ID: 3, Name: "orders"},
		}},
		configurations: &mockConfigurations{items: map[string]*domain.ProjectConfiguration{}},
		domains: &mockDomains{items: map[int64]*domain.Domain{
			domainID: {
				ID:          domainID,
				ProjectID:   gatewayID,
				Path:        "/",
				Name:        "shell",
				Host:        "shell.example.com",
				Environment: domain.NodeProduction,
				NodeID:      1,
				StoreGroup:  "GATEWAY",
				StoreTenant: "shell",
				StoreDataID: "shell",
				MicroConfig: `{"layout":"wide"}`,
			},
		}},
		thirdParty: &mockThirdParty{},
		history:    &mockHistory{},
		operations: &mockOperations{},
		builder:    &mockBuilder{queueID: 4242},
		store:      newMockConfigStore(),
		repo: &mockRepository{branches: map[string]bool{
			"dev/1.4.0":     true,
			"test/1.4.0":    true,
			"fix/1.4.0":     true,
			"release/1.4.0": true,
			"hotfix/1.4.0":  true,
			"release/2.0.0": true,
		}},
		approvals: &mockApprovals{statuses: map[string]domain.ApprovalStatus{"ap-1": domain.ApprovalApproved}},
		artifacts: newMockArtifacts(),
		notifier:  &mockNotifier{},
	}

	h.tracker = NewStateTracker(h.iterations, h.processes)
	h.recorder = NewHistoryService(h.tasks, h.history, h.artifacts, h.clock)
	branches := NewBranchResolver(h.repo, h.settings)
	h.validator = NewEnvironmentValidator(h.settings, h.approvals, h.configurations, h.iterations, h.repo, branches)
	h.packager = NewPackager(h.settings, PackagerDeps{
		Store:      h.store,
		Domains:    h.domains,
		Projects:   h.projects,
		Iterations: h.iterations,
		ThirdParty: h.thirdParty,
		Tokens:     mockTokens{token: "access-token"},
		History:    h.history,
		Recorder:   h.recorder,
		Clock:      h.clock,
	})
	h.lifecycle = NewTaskLifecycle(LifecycleDeps{
		Tasks:     h.tasks,
		History:   h.history,
		Artifacts: h.artifacts,
		Store:     h.store,
		Notifier:  h.notifier,
		Tracker:   h.tracker,
	})
	coordinator := NewBuildCoordinator(h.builder, h.lifecycle, h.settings)
	h.publish = NewPublishService(h.settings, PublishDeps{
		Tasks:       h.tasks,
		Iterations:  h.iterations,
		Processes:   h.processes,
		Projects:    h.projects,
		Operations:  h.operations,
		Comparer:    h.repo,
		Locks:       &mockLocks{},
		Validator:   h.validator,
		Branches:    branches,
		Packager:    h.packager,
		Lifecycle:   h.lifecycle,
		Coordinator: coordinator,
		Tracker:     h.tracker,
		Clock:       h.clock,
	})
	h.rollback = NewRollbackService(RollbackDeps{
		Projects:       h.projects,
		Configurations: h.configurations,
		History:        h.history,
		Artifacts:      h.artifacts,
		Store:          h.store,
		Packager:       h.packager,
	})
	h.query = NewQueryService(h.settings, h.tasks, h.history, h.projects, h.iterations)
	return h
}

// setIteration overwrites the stored iteration with the result of fn.
func (h *harness) setIteration(t *testing.T, id int64, fn func(it *domain.Iteration)) {
	t.Helper()
	it := h.iterations.get(id)
	require.NotNil(t, it)
	fn(it)
	h.iterations.mu.Lock()
	h.iterations.items[id] = it.Clone()
	h.iterations.mu.Unlock()
}
