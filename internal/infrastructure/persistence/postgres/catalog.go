package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relicta-tech/launchpad/internal/domain/publish/adapters"
	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

// ProjectRepository implements ports.ProjectRepository.
type ProjectRepository struct {
	db *sql.DB
}

// ConfigurationRepository implements ports.ProjectConfigurationRepository.
type ConfigurationRepository struct {
	db *sql.DB
}

// DomainRepository implements ports.DomainRepository.
type DomainRepository struct {
	db *sql.DB
}

// ThirdPartyRepository implements ports.ThirdPartyRepository.
type ThirdPartyRepository struct {
	db *sql.DB
}

var (
	_ ports.ProjectRepository              = (*ProjectRepository)(nil)
	_ ports.ProjectConfigurationRepository = (*ConfigurationRepository)(nil)
	_ ports.DomainRepository               = (*DomainRepository)(nil)
	_ ports.ThirdPartyRepository           = (*ThirdPartyRepository)(nil)
)

// FindByID returns the project.
func (r *ProjectRepository) FindByID(ctx context.Context, id int64) (*domain.Project, error) {
	var (
		p            domain.Project
		store, types []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, package_name, git_url, git_namespace, repository_ref,
			deploy_config, config_store, secret_token, app_id, types
		FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.PackageName, &p.GitURL, &p.GitNamespace, &p.RepositoryRef,
		&p.DeployConfig, &store, &p.SecretToken, &p.AppID, &types)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	if err := decodeJSON(store, &p.ConfigStore); err != nil {
		return nil, err
	}
	if err := decodeJSON(types, &p.Types); err != nil {
		return nil, err
	}
	return &p, nil
}

// Find returns the override of a project type, or nil when none exists.
func (r *ConfigurationRepository) Find(ctx context.Context, projectID int64, pt domain.ProjectType) (*domain.ProjectConfiguration, error) {
	var (
		c     domain.ProjectConfiguration
		ptype string
		store []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT project_id, project_type, builder_image, deploy_config, config_store, authentication
		FROM project_configurations WHERE project_id = $1 AND project_type = $2`,
		projectID, string(pt),
	).Scan(&c.ProjectID, &ptype, &c.BuilderImage, &c.DeployConfig, &store, &c.Authentication)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project configuration: %w", err)
	}
	c.ProjectType = domain.ProjectType(ptype)
	if err := decodeJSON(store, &c.ConfigStore); err != nil {
		return nil, err
	}
	return &c, nil
}

const domainColumns = `id, project_id, path, name, host, environment, node_id,
	store_url, store_group, store_tenant, store_data_id, micro_config`

// FindByID returns the domain binding.
func (r *DomainRepository) FindByID(ctx context.Context, id int64) (*domain.Domain, error) {
	return r.one(ctx, `SELECT `+domainColumns+` FROM domains WHERE id = $1`, id)
}

// FindByKey returns the binding with the given guard key.
func (r *DomainRepository) FindByKey(ctx context.Context, key domain.DomainKey) (*domain.Domain, error) {
	return r.one(ctx, `SELECT `+domainColumns+` FROM domains
		WHERE path = $1 AND name = $2 AND host = $3 AND environment = $4 AND node_id = $5`,
		key.Path, key.Name, key.Host, string(key.Environment), key.NodeID)
}

// Create inserts the binding. The unique key on the guard columns resolves
// concurrent creators to the row that won.
func (r *DomainRepository) Create(ctx context.Context, d *domain.Domain) (*domain.Domain, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO domains (project_id, path, name, host, environment, node_id,
			store_url, store_group, store_tenant, store_data_id, micro_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (path, name, host, environment, node_id) DO NOTHING
		RETURNING id`,
		d.ProjectID, d.Path, d.Name, d.Host, string(d.Environment), d.NodeID,
		d.StoreURL, d.StoreGroup, d.StoreTenant, d.StoreDataID, d.MicroConfig,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return r.FindByKey(ctx, d.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("inserting domain: %w", err)
	}
	d.ID = id
	return d, nil
}

func (r *DomainRepository) one(ctx context.Context, query string, args ...any) (*domain.Domain, error) {
	var (
		d   domain.Domain
		env string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&d.ID, &d.ProjectID, &d.Path, &d.Name,
		&d.Host, &env, &d.NodeID, &d.StoreURL, &d.StoreGroup, &d.StoreTenant, &d.StoreDataID, &d.MicroConfig)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDomainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading domain: %w", err)
	}
	d.Environment = domain.Node(env)
	return &d, nil
}

// FindByIDs returns the accounts among ids bound to the project. Accounts
// without an environment match every environment.
func (r *ThirdPartyRepository) FindByIDs(ctx context.Context, ids []int64, projectID int64, env domain.Node) ([]domain.ThirdPartyAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, environment, app_id, name, ext
		FROM third_party_accounts
		WHERE id = ANY($1) AND project_id = $2 AND (environment = '' OR environment = $3)
		ORDER BY array_position($1, id)`,
		ids, projectID, string(env))
	if err != nil {
		return nil, fmt.Errorf("listing third-party accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.ThirdPartyAccount
	for rows.Next() {
		var (
			a       domain.ThirdPartyAccount
			accEnv  string
			extJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &accEnv, &a.AppID, &a.Name, &extJSON); err != nil {
			return nil, fmt.Errorf("reading third-party account: %w", err)
		}
		a.Environment = domain.Node(accEnv)
		if err := decodeJSON(extJSON, &a.Ext); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Seed writes reference data in one transaction. Projects, configurations,
// domains and accounts are upserted; existing iterations are left alone so a
// restart never rewinds workflow state.
func Seed(ctx context.Context, db *sql.DB, seed *adapters.SeedData) error {
	data, err := seed.Resolve()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range data.Projects {
		store, err := jsonParam(p.ConfigStore, false)
		if err != nil {
			return err
		}
		types, err := jsonParam(p.Types, false)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, package_name, git_url, git_namespace, repository_ref,
				deploy_config, config_store, secret_token, app_id, types)
			VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::jsonb, '{}'), $9, $10, $11::jsonb)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, package_name = EXCLUDED.package_name,
				git_url = EXCLUDED.git_url, git_namespace = EXCLUDED.git_namespace,
				repository_ref = EXCLUDED.repository_ref, deploy_config = EXCLUDED.deploy_config,
				config_store = EXCLUDED.config_store, secret_token = EXCLUDED.secret_token,
				app_id = EXCLUDED.app_id, types = EXCLUDED.types`,
			p.ID, p.Name, p.PackageName, p.GitURL, p.GitNamespace, p.RepositoryRef,
			p.DeployConfig, nullJSON(store), p.SecretToken, p.AppID, types,
		); err != nil {
			return fmt.Errorf("seeding project %d: %w", p.ID, err)
		}
	}

	for _, it := range data.Iterations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO iterations (id, project_id, version, current_node, approval_instance,
				bump_policy, status, multi_branch)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			it.ID, it.ProjectID, it.Version, string(it.CurrentNode), it.ApprovalInstance,
			string(it.BumpPolicy), string(it.Status), it.MultiBranch,
		); err != nil {
			return fmt.Errorf("seeding iteration %d: %w", it.ID, err)
		}
	}

	for _, c := range data.Configurations {
		store, err := jsonParam(c.ConfigStore, false)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_configurations (project_id, project_type, builder_image,
				deploy_config, config_store, authentication)
			VALUES ($1, $2, $3, $4, COALESCE($5::jsonb, '{}'), $6)
			ON CONFLICT (project_id, project_type) DO UPDATE SET
				builder_image = EXCLUDED.builder_image, deploy_config = EXCLUDED.deploy_config,
				config_store = EXCLUDED.config_store, authentication = EXCLUDED.authentication`,
			c.ProjectID, string(c.ProjectType), c.BuilderImage, c.DeployConfig,
			nullJSON(store), c.Authentication,
		); err != nil {
			return fmt.Errorf("seeding configuration of project %d: %w", c.ProjectID, err)
		}
	}

	for _, d := range data.Domains {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO domains (id, project_id, path, name, host, environment, node_id,
				store_url, store_group, store_tenant, store_data_id, micro_config)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				project_id = EXCLUDED.project_id, path = EXCLUDED.path, name = EXCLUDED.name,
				host = EXCLUDED.host, environment = EXCLUDED.environment, node_id = EXCLUDED.node_id,
				store_url = EXCLUDED.store_url, store_group = EXCLUDED.store_group,
				store_tenant = EXCLUDED.store_tenant, store_data_id = EXCLUDED.store_data_id,
				micro_config = EXCLUDED.micro_config`,
			d.ID, d.ProjectID, d.Path, d.Name, d.Host, string(d.Environment), d.NodeID,
			d.StoreURL, d.StoreGroup, d.StoreTenant, d.StoreDataID, d.MicroConfig,
		); err != nil {
			return fmt.Errorf("seeding domain %d: %w", d.ID, err)
		}
	}
	if len(data.Domains) > 0 {
		// Explicit ids bypass the sequence; move it past them.
		if _, err := tx.ExecContext(ctx,
			`SELECT setval(pg_get_serial_sequence('domains', 'id'), (SELECT MAX(id) FROM domains))`,
		); err != nil {
			return fmt.Errorf("advancing domain sequence: %w", err)
		}
	}

	for _, a := range data.Accounts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO third_party_accounts (id, project_id, environment, app_id, name)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				project_id = EXCLUDED.project_id, environment = EXCLUDED.environment,
				app_id = EXCLUDED.app_id, name = EXCLUDED.name`,
			a.ID, a.ProjectID, string(a.Environment), a.AppID, a.Name,
		); err != nil {
			return fmt.Errorf("seeding account %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}
	return nil
}

// nullJSON maps an encoded JSON null to SQL NULL.
func nullJSON(v any) any {
	if s, ok := v.(string); ok && s == "null" {
		return nil
	}
	return v
}
