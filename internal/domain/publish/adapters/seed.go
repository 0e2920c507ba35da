package adapters

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/fileutil"
)

// SeedData is the YAML reference-data document loaded at startup.
type SeedData struct {
	Projects       []SeedProject       `yaml:"projects"`
	Iterations     []SeedIteration     `yaml:"iterations"`
	Configurations []SeedConfiguration `yaml:"configurations"`
	Domains        []SeedDomain        `yaml:"domains"`
	Accounts       []SeedAccount       `yaml:"third_party_accounts"`
}

// SeedProject describes a project.
type SeedProject struct {
	ID            int64                              `yaml:"id"`
	Name          string                             `yaml:"name"`
	PackageName   string                             `yaml:"package_name"`
	GitURL        string                             `yaml:"git_url"`
	GitNamespace  string                             `yaml:"git_namespace"`
	RepositoryRef string                             `yaml:"repository_ref"`
	DeployConfig  string                             `yaml:"deploy_config"`
	ConfigStore   map[string]domain.StoreCoordinates `yaml:"config_store"`
	SecretToken   string                             `yaml:"secret_token"`
	AppID         string                             `yaml:"app_id"`
	Types         []string                           `yaml:"types"`
}

// SeedIteration describes an iteration.
type SeedIteration struct {
	ID               int64  `yaml:"id"`
	ProjectID        int64  `yaml:"project_id"`
	Version          string `yaml:"version"`
	CurrentNode      string `yaml:"current_node"`
	ApprovalInstance string `yaml:"approval_instance"`
	Hotfix           bool   `yaml:"hotfix"`
	Deprecated       bool   `yaml:"deprecated"`
	MultiBranch      bool   `yaml:"multi_branch"`
}

// SeedConfiguration describes a per-type project override.
type SeedConfiguration struct {
	ProjectID      int64                              `yaml:"project_id"`
	ProjectType    string                             `yaml:"project_type"`
	BuilderImage   string                             `yaml:"builder_image"`
	DeployConfig   string                             `yaml:"deploy_config"`
	ConfigStore    map[string]domain.StoreCoordinates `yaml:"config_store"`
	Authentication string                             `yaml:"authentication"`
}

// SeedDomain describes a gateway domain binding.
type SeedDomain struct {
	ID          int64  `yaml:"id"`
	ProjectID   int64  `yaml:"project_id"`
	Path        string `yaml:"path"`
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Environment string `yaml:"environment"`
	NodeID      int    `yaml:"node_id"`
	StoreGroup  string `yaml:"store_group"`
	StoreTenant string `yaml:"store_tenant"`
	StoreDataID string `yaml:"store_data_id"`
	MicroConfig string `yaml:"micro_config"`
}

// SeedAccount describes a third-party account binding.
type SeedAccount struct {
	ID          int64  `yaml:"id"`
	ProjectID   int64  `yaml:"project_id"`
	Environment string `yaml:"environment"`
	AppID       string `yaml:"app_id"`
	Name        string `yaml:"name"`
}

// LoadSeedFile parses a seed document.
func LoadSeedFile(path string) (*SeedData, error) {
	data, err := fileutil.ReadFileLimited(path, fileutil.MaxSeedFileSize)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var seed SeedData
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &seed, nil
}

// ResolvedSeed is a seed document converted to domain values.
type ResolvedSeed struct {
	Projects       []*domain.Project
	Iterations     []*domain.Iteration
	Configurations []*domain.ProjectConfiguration
	Domains        []*domain.Domain
	Accounts       []domain.ThirdPartyAccount
}

// Resolve validates the seed and converts it to domain values.
func (seed *SeedData) Resolve() (*ResolvedSeed, error) {
	out := &ResolvedSeed{}

	for _, p := range seed.Projects {
		types := make([]domain.ProjectType, 0, len(p.Types))
		for _, raw := range p.Types {
			pt, err := domain.ParseProjectType(raw)
			if err != nil {
				return nil, fmt.Errorf("project %d: %w", p.ID, err)
			}
			types = append(types, pt)
		}
		out.Projects = append(out.Projects, &domain.Project{
			ID:            p.ID,
			Name:          p.Name,
			PackageName:   p.PackageName,
			GitURL:        p.GitURL,
			GitNamespace:  p.GitNamespace,
			RepositoryRef: p.RepositoryRef,
			DeployConfig:  p.DeployConfig,
			ConfigStore:   p.ConfigStore,
			SecretToken:   p.SecretToken,
			AppID:         p.AppID,
			Types:         types,
		})
	}

	for _, i := range seed.Iterations {
		node := domain.NodeDevelopment
		if i.CurrentNode != "" {
			n, err := domain.ParseNode(i.CurrentNode)
			if err != nil {
				return nil, fmt.Errorf("iteration %d: %w", i.ID, err)
			}
			node = n
		}
		it := &domain.Iteration{
			ID:               i.ID,
			ProjectID:        i.ProjectID,
			Version:          i.Version,
			CurrentNode:      node,
			ApprovalInstance: i.ApprovalInstance,
			BumpPolicy:       domain.BumpNormal,
			Status:           domain.IterationActive,
			MultiBranch:      i.MultiBranch,
		}
		if i.Hotfix {
			it.BumpPolicy = domain.BumpHotfix
		}
		if i.Deprecated {
			it.Status = domain.IterationDeprecated
		}
		out.Iterations = append(out.Iterations, it)
	}

	for _, c := range seed.Configurations {
		pt, err := domain.ParseProjectType(c.ProjectType)
		if err != nil {
			return nil, fmt.Errorf("configuration of project %d: %w", c.ProjectID, err)
		}
		out.Configurations = append(out.Configurations, &domain.ProjectConfiguration{
			ProjectID:      c.ProjectID,
			ProjectType:    pt,
			BuilderImage:   c.BuilderImage,
			DeployConfig:   c.DeployConfig,
			ConfigStore:    c.ConfigStore,
			Authentication: c.Authentication,
		})
	}

	for _, d := range seed.Domains {
		env, err := parseOptionalNode(d.Environment)
		if err != nil {
			return nil, fmt.Errorf("domain %d: %w", d.ID, err)
		}
		out.Domains = append(out.Domains, &domain.Domain{
			ID:          d.ID,
			ProjectID:   d.ProjectID,
			Path:        d.Path,
			Name:        d.Name,
			Host:        d.Host,
			Environment: env,
			NodeID:      d.NodeID,
			StoreGroup:  d.StoreGroup,
			StoreTenant: d.StoreTenant,
			StoreDataID: d.StoreDataID,
			MicroConfig: d.MicroConfig,
		})
	}

	for _, a := range seed.Accounts {
		env, err := parseOptionalNode(a.Environment)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", a.ID, err)
		}
		out.Accounts = append(out.Accounts, domain.ThirdPartyAccount{
			ID:          a.ID,
			ProjectID:   a.ProjectID,
			Environment: env,
			AppID:       a.AppID,
			Name:        a.Name,
		})
	}
	return out, nil
}

// Seed loads reference data into the store.
func (s *MemoryStore) Seed(seed *SeedData) error {
	r, err := seed.Resolve()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range r.Projects {
		s.projects[p.ID] = p
	}
	for _, it := range r.Iterations {
		s.iterations[it.ID] = it
	}
	for _, c := range r.Configurations {
		s.configurations[configKey{c.ProjectID, c.ProjectType}] = c
	}
	for _, d := range r.Domains {
		s.domains[d.ID] = d
		s.nextDomainID = max(s.nextDomainID, d.ID)
	}
	for _, a := range r.Accounts {
		s.accounts[a.ID] = a
	}
	return nil
}

func parseOptionalNode(s string) (domain.Node, error) {
	if s == "" {
		return "", nil
	}
	return domain.ParseNode(s)
}
