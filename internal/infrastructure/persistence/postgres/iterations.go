package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const iterationColumns = `id, project_id, version, dev_count, test_count, fix_count,
	current_node, sub_nodes, approval_instance, bump_policy, status, multi_branch, revision`

// IterationRepository implements ports.IterationRepository.
type IterationRepository struct {
	db *sql.DB
}

// ProcessRepository implements ports.ProcessRepository.
type ProcessRepository struct {
	db *sql.DB
}

var (
	_ ports.IterationRepository = (*IterationRepository)(nil)
	_ ports.ProcessRepository   = (*ProcessRepository)(nil)
)

// FindByID returns the iteration.
func (r *IterationRepository) FindByID(ctx context.Context, id int64) (*domain.Iteration, error) {
	it, err := scanIteration(r.db.QueryRowContext(ctx,
		`SELECT `+iterationColumns+` FROM iterations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIterationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading iteration: %w", err)
	}
	return it, nil
}

// ListByProject returns the iterations of a project ordered by id.
func (r *IterationRepository) ListByProject(ctx context.Context, projectID int64) ([]*domain.Iteration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+iterationColumns+` FROM iterations WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing iterations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Iteration
	for rows.Next() {
		it, err := scanIteration(rows)
		if err != nil {
			return nil, fmt.Errorf("reading iteration: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Save updates the iteration when its revision is current, inserting it when
// the row does not exist yet.
func (r *IterationRepository) Save(ctx context.Context, it *domain.Iteration) error {
	subNodes, err := jsonParam(it.SubNodes, false)
	if err != nil {
		return err
	}
	if it.SubNodes == nil {
		subNodes = "{}"
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE iterations SET
			version = $3, dev_count = $4, test_count = $5, fix_count = $6,
			current_node = $7, sub_nodes = $8::jsonb, approval_instance = $9,
			bump_policy = $10, status = $11, multi_branch = $12, revision = revision + 1
		WHERE id = $1 AND revision = $2`,
		it.ID, it.Revision, it.Version, it.DevCount, it.TestCount, it.FixCount,
		string(it.CurrentNode), subNodes, it.ApprovalInstance,
		string(it.BumpPolicy), string(it.Status), it.MultiBranch)
	if err != nil {
		return fmt.Errorf("updating iteration: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		it.Revision++
		return nil
	}

	res, err = r.db.ExecContext(ctx, `
		INSERT INTO iterations (id, project_id, version, dev_count, test_count, fix_count,
			current_node, sub_nodes, approval_instance, bump_policy, status, multi_branch, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		it.ID, it.ProjectID, it.Version, it.DevCount, it.TestCount, it.FixCount,
		string(it.CurrentNode), subNodes, it.ApprovalInstance,
		string(it.BumpPolicy), string(it.Status), it.MultiBranch, it.Revision+1)
	if err != nil {
		return fmt.Errorf("inserting iteration: %w", err)
	}
	if n, err = rowsAffected(res); err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrentUpdate
	}
	it.Revision++
	return nil
}

func scanIteration(row rowScanner) (*domain.Iteration, error) {
	var (
		it                 domain.Iteration
		node, bump, status string
		subNodes           []byte
	)
	err := row.Scan(&it.ID, &it.ProjectID, &it.Version, &it.DevCount, &it.TestCount, &it.FixCount,
		&node, &subNodes, &it.ApprovalInstance, &bump, &status, &it.MultiBranch, &it.Revision)
	if err != nil {
		return nil, err
	}
	it.CurrentNode = domain.Node(node)
	it.BumpPolicy = domain.BumpPolicy(bump)
	it.Status = domain.IterationStatus(status)
	if err := decodeJSON(subNodes, &it.SubNodes); err != nil {
		return nil, err
	}
	if len(it.SubNodes) == 0 {
		it.SubNodes = nil
	}
	return &it, nil
}

// Find returns the process of a project type within an iteration.
func (r *ProcessRepository) Find(ctx context.Context, iterationID int64, pt domain.ProjectType) (*domain.Process, error) {
	var (
		p          domain.Process
		ptype      string
		node       string
		currentIDs []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, iteration_id, project_id, project_type, current_node,
			current_env_branch, current_task_ids, revision
		FROM processes WHERE iteration_id = $1 AND project_type = $2`,
		iterationID, string(pt),
	).Scan(&p.ID, &p.IterationID, &p.ProjectID, &ptype, &node,
		&p.CurrentEnvBranch, &currentIDs, &p.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProcessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading process: %w", err)
	}
	p.ProjectType = domain.ProjectType(ptype)
	p.CurrentNode = domain.Node(node)
	if err := decodeJSON(currentIDs, &p.CurrentTaskIDs); err != nil {
		return nil, err
	}
	if len(p.CurrentTaskIDs) == 0 {
		p.CurrentTaskIDs = nil
	}
	return &p, nil
}

// Save inserts a process with a zero ID and otherwise updates it when its
// revision is current.
func (r *ProcessRepository) Save(ctx context.Context, p *domain.Process) error {
	taskIDs := any("{}")
	if len(p.CurrentTaskIDs) > 0 {
		v, err := jsonParam(p.CurrentTaskIDs, false)
		if err != nil {
			return err
		}
		taskIDs = v
	}

	if p.ID == 0 {
		var id int64
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO processes (iteration_id, project_id, project_type, current_node,
				current_env_branch, current_task_ids, revision)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
			ON CONFLICT (iteration_id, project_type) DO NOTHING
			RETURNING id`,
			p.IterationID, p.ProjectID, string(p.ProjectType), string(p.CurrentNode),
			p.CurrentEnvBranch, taskIDs, p.Revision+1,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrConcurrentUpdate
		}
		if err != nil {
			return fmt.Errorf("inserting process: %w", err)
		}
		p.ID = id
		p.Revision++
		return nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE processes SET
			current_node = $3, current_env_branch = $4, current_task_ids = $5::jsonb,
			revision = revision + 1
		WHERE id = $1 AND revision = $2`,
		p.ID, p.Revision, string(p.CurrentNode), p.CurrentEnvBranch, taskIDs)
	if err != nil {
		return fmt.Errorf("updating process: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrentUpdate
	}
	p.Revision++
	return nil
}
