package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const taskColumns = `id, project_id, iteration_id, process_id, environment, project_type,
	branch, version, queue_id, external_task_id, build_id, status, config_store,
	domain_id, creator_id, creator_name, description, extra, created_at, updated_at`

// TaskRepository implements ports.TaskRepository.
type TaskRepository struct {
	db *sql.DB
}

// Ensure TaskRepository implements the interface.
var _ ports.TaskRepository = (*TaskRepository)(nil)

// Create inserts the task and assigns its ID.
func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	store, err := jsonParam(t.ConfigStore, true)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (project_id, iteration_id, process_id, environment, project_type,
			branch, version, queue_id, external_task_id, build_id, status, config_store,
			domain_id, creator_id, creator_name, description, extra, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`,
		t.ProjectID, t.IterationID, t.ProcessID, string(t.Environment), string(t.ProjectType),
		t.Branch, t.Version, t.QueueID, t.ExternalTaskID, t.BuildID, string(t.Status), store,
		t.DomainID, t.CreatorID, t.CreatorName, t.Description, t.Extra, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// FindByID returns the task.
func (r *TaskRepository) FindByID(ctx context.Context, id domain.TaskID) (*domain.Task, error) {
	return r.one(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, int64(id))
}

// FindByExternalID returns the newest task issued under an external id.
func (r *TaskRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Task, error) {
	return r.one(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE external_task_id = $1 ORDER BY id DESC LIMIT 1`, externalID)
}

// LatestOnEnvironment returns the newest task of a project type on env.
func (r *TaskRepository) LatestOnEnvironment(ctx context.Context, projectID int64, pt domain.ProjectType, env domain.Node) (*domain.Task, error) {
	return r.one(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE project_id = $1 AND project_type = $2 AND environment = $3
		ORDER BY id DESC LIMIT 1`, projectID, string(pt), string(env))
}

// AttachQueueID stores the builder correlation id once.
func (r *TaskRepository) AttachQueueID(ctx context.Context, id domain.TaskID, queueID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET queue_id = $2, updated_at = now()
		WHERE id = $1 AND (queue_id = 0 OR queue_id = $2)`, int64(id), queueID)
	if isUniqueViolation(err) {
		return domain.ErrQueueIDInUse
	}
	if err != nil {
		return fmt.Errorf("attaching queue id: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrQueueIDAssigned
}

// TransitionStatus is a compare-and-set on the status column.
func (r *TaskRepository) TransitionStatus(ctx context.Context, id domain.TaskID, from, to domain.TaskStatus, buildID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $3, build_id = COALESCE(NULLIF($4, ''), build_id), updated_at = now()
		WHERE id = $1 AND status = $2`, int64(id), string(from), string(to), buildID)
	if err != nil {
		return false, fmt.Errorf("updating task status: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *TaskRepository) one(ctx context.Context, query string, args ...any) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	return t, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t               domain.Task
		env, pt, status string
		store           []byte
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.IterationID, &t.ProcessID, &env, &pt,
		&t.Branch, &t.Version, &t.QueueID, &t.ExternalTaskID, &t.BuildID, &status, &store,
		&t.DomainID, &t.CreatorID, &t.CreatorName, &t.Description, &t.Extra, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Environment = domain.Node(env)
	t.ProjectType = domain.ProjectType(pt)
	t.Status = domain.TaskStatus(status)
	if len(store) > 0 {
		t.ConfigStore = &domain.ConfigStoreBinding{}
		if err := decodeJSON(store, t.ConfigStore); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
