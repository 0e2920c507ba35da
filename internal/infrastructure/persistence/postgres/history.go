package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const historyColumns = `id, project_id, project_type, task_id, iteration_id, version,
	environment, artifact_url, micro_modules, domain_id, created_at`

// HistoryRepository implements ports.DeployHistoryRepository.
type HistoryRepository struct {
	db *sql.DB
}

// OperationRepository implements ports.OperationRepository.
type OperationRepository struct {
	db *sql.DB
}

var (
	_ ports.DeployHistoryRepository = (*HistoryRepository)(nil)
	_ ports.OperationRepository     = (*OperationRepository)(nil)
)

// Append inserts a history row and assigns its ID.
func (r *HistoryRepository) Append(ctx context.Context, h *domain.DeployHistory) error {
	modules := any("[]")
	if len(h.MicroModules) > 0 {
		v, err := jsonParam(h.MicroModules, false)
		if err != nil {
			return err
		}
		modules = v
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO deploy_history (project_id, project_type, task_id, iteration_id, version,
			environment, artifact_url, micro_modules, domain_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
		RETURNING id`,
		h.ProjectID, string(h.ProjectType), int64(h.TaskID), h.IterationID, h.Version,
		string(h.Environment), h.ArtifactURL, modules, h.DomainID, h.CreatedAt,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("inserting deploy history: %w", err)
	}
	return nil
}

// Latest returns the newest row matching q. A zero domain id matches any.
func (r *HistoryRepository) Latest(ctx context.Context, q domain.HistoryQuery) (*domain.DeployHistory, error) {
	return r.one(ctx, `SELECT `+historyColumns+` FROM deploy_history
		WHERE project_id = $1 AND project_type = $2 AND environment = $3 AND version = $4
			AND ($5::bigint = 0 OR domain_id = $5)
		ORDER BY id DESC LIMIT 1`,
		q.ProjectID, string(q.ProjectType), string(q.Environment), q.Version, q.DomainID)
}

// FindByTaskID returns the newest row written for a task.
func (r *HistoryRepository) FindByTaskID(ctx context.Context, id domain.TaskID) (*domain.DeployHistory, error) {
	return r.one(ctx, `SELECT `+historyColumns+` FROM deploy_history
		WHERE task_id = $1 ORDER BY id DESC LIMIT 1`, int64(id))
}

func (r *HistoryRepository) one(ctx context.Context, query string, args ...any) (*domain.DeployHistory, error) {
	var (
		h           domain.DeployHistory
		pt, env     string
		taskID      int64
		microModule []byte
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&h.ID, &h.ProjectID, &pt, &taskID,
		&h.IterationID, &h.Version, &env, &h.ArtifactURL, &microModule, &h.DomainID, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading deploy history: %w", err)
	}
	h.ProjectType = domain.ProjectType(pt)
	h.Environment = domain.Node(env)
	h.TaskID = domain.TaskID(taskID)
	if err := decodeJSON(microModule, &h.MicroModules); err != nil {
		return nil, err
	}
	if len(h.MicroModules) == 0 {
		h.MicroModules = nil
	}
	return &h, nil
}

// Record stores an audit record. Records without an id get a fresh UUID;
// replaying a record with a known id is a no-op.
func (r *OperationRepository) Record(ctx context.Context, op *domain.Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	record := op.Record
	if record == "" {
		record = "{}"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operations (id, task_id, project_id, iteration_id, environment,
			project_type, operator, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
		op.ID, int64(op.TaskID), op.ProjectID, op.IterationID, string(op.Environment),
		string(op.ProjectType), op.Operator, record, op.CreatedAt)
	if isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inserting operation: %w", err)
	}
	return nil
}
