package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"unkit-api/internal/domain"
)

// TaskRepository define el contrato de persistencia para tareas y plantillas.
// Todas las operaciones por id exigen además el username dueño, de modo que
// una cuenta nunca ve ni toca tareas ajenas.
type TaskRepository interface {
	ListTasks(ctx context.Context, username string) ([]domain.Task, error)
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id int64, username string) (domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, id int64, username string) error

	ListSavedTasks(ctx context.Context, username string) ([]domain.SavedTask, error)
	CreateSavedTask(ctx context.Context, task domain.SavedTask) (domain.SavedTask, error)
	GetSavedTask(ctx context.Context, id int64, username string) (domain.SavedTask, error)
	UpdateSavedTask(ctx context.Context, task domain.SavedTask) error
	DeleteSavedTask(ctx context.Context, id int64, username string) error
}

// PgTaskRepository implementa TaskRepository usando pgxpool.
type PgTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPgTaskRepository(pool *pgxpool.Pool) *PgTaskRepository {
	return &PgTaskRepository{pool: pool}
}

func (r *PgTaskRepository) ListTasks(ctx context.Context, username string) ([]domain.Task, error) {
	const query = `
		SELECT taskid, username, name, estimated_time, completion_time, completed, taskidbyfrontend, created_at
		FROM tasks
		WHERE username = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Username, &t.Name, &t.EstimatedTime, &t.CompletionTime, &t.Completed, &t.FrontendID, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PgTaskRepository) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	const query = `
		INSERT INTO tasks (username, name, estimated_time, completion_time, completed, taskidbyfrontend, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING taskid
	`
	err := r.pool.QueryRow(ctx, query,
		t.Username, t.Name, t.EstimatedTime, t.CompletionTime, t.Completed, t.FrontendID, t.CreatedAt,
	).Scan(&t.ID)
	return t, err
}

func (r *PgTaskRepository) GetTask(ctx context.Context, id int64, username string) (domain.Task, error) {
	const query = `
		SELECT taskid, username, name, estimated_time, completion_time, completed, taskidbyfrontend, created_at
		FROM tasks
		WHERE taskid = $1 AND username = $2
	`
	var t domain.Task
	err := r.pool.QueryRow(ctx, query, id, username).Scan(
		&t.ID, &t.Username, &t.Name, &t.EstimatedTime, &t.CompletionTime, &t.Completed, &t.FrontendID, &t.CreatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (r *PgTaskRepository) UpdateTask(ctx context.Context, t domain.Task) error {
	const query = `
		UPDATE tasks
		SET name = $3, estimated_time = $4, completion_time = $5, completed = $6, taskidbyfrontend = $7
		WHERE taskid = $1 AND username = $2
	`
	tag, err := r.pool.Exec(ctx, query, t.ID, t.Username, t.Name, t.EstimatedTime, t.CompletionTime, t.Completed, t.FrontendID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgTaskRepository) DeleteTask(ctx context.Context, id int64, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE taskid = $1 AND username = $2`, id, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgTaskRepository) ListSavedTasks(ctx context.Context, username string) ([]domain.SavedTask, error) {
	const query = `
		SELECT id, username, name, estimated_time
		FROM saved_tasks
		WHERE username = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.SavedTask
	for rows.Next() {
		var t domain.SavedTask
		if err := rows.Scan(&t.ID, &t.Username, &t.Name, &t.EstimatedTime); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PgTaskRepository) CreateSavedTask(ctx context.Context, t domain.SavedTask) (domain.SavedTask, error) {
	const query = `
		INSERT INTO saved_tasks (username, name, estimated_time)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query, t.Username, t.Name, t.EstimatedTime).Scan(&t.ID)
	return t, err
}

func (r *PgTaskRepository) GetSavedTask(ctx context.Context, id int64, username string) (domain.SavedTask, error) {
	const query = `
		SELECT id, username, name, estimated_time
		FROM saved_tasks
		WHERE id = $1 AND username = $2
	`
	var t domain.SavedTask
	err := r.pool.QueryRow(ctx, query, id, username).Scan(&t.ID, &t.Username, &t.Name, &t.EstimatedTime)
	if err != nil {
		return domain.SavedTask{}, err
	}
	return t, nil
}

func (r *PgTaskRepository) UpdateSavedTask(ctx context.Context, t domain.SavedTask) error {
	const query = `
		UPDATE saved_tasks SET name = $3, estimated_time = $4
		WHERE id = $1 AND username = $2
	`
	tag, err := r.pool.Exec(ctx, query, t.ID, t.Username, t.Name, t.EstimatedTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgTaskRepository) DeleteSavedTask(ctx context.Context, id int64, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM saved_tasks WHERE id = $1 AND username = $2`, id, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
