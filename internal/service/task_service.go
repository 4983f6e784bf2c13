package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"unkit-api/internal/domain"
	"unkit-api/internal/repository"
)

// ErrNotFound cubre tanto recursos inexistentes como tareas de otro dueño;
// no se distingue para no revelar ids ajenos.
var ErrNotFound = errors.New("not found")

// TaskService maneja tareas y plantillas por cuenta.
type TaskService struct {
	logger *zap.Logger
	tasks  repository.TaskRepository
}

func NewTaskService(logger *zap.Logger, tasks repository.TaskRepository) *TaskService {
	return &TaskService{
		logger: logger,
		tasks:  tasks,
	}
}

func (s *TaskService) ListTasks(ctx context.Context, username string) ([]domain.Task, error) {
	return s.tasks.ListTasks(ctx, username)
}

func (s *TaskService) CreateTask(ctx context.Context, username, name string, estimatedTime int, frontendID *int64) (domain.Task, error) {
	task := domain.Task{
		Username:      username,
		Name:          name,
		EstimatedTime: estimatedTime,
		FrontendID:    frontendID,
		CreatedAt:     time.Now().UTC(),
	}
	return s.tasks.CreateTask(ctx, task)
}

// UpdateTask aplica un patch tipado sobre la tarea del dueño indicado.
func (s *TaskService) UpdateTask(ctx context.Context, id int64, username string, patch domain.TaskPatch) (domain.Task, error) {
	task, err := s.tasks.GetTask(ctx, id, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, ErrNotFound
		}
		return domain.Task{}, err
	}
	patch.Apply(&task)
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, ErrNotFound
		}
		return domain.Task{}, err
	}
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id int64, username string) error {
	if err := s.tasks.DeleteTask(ctx, id, username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *TaskService) ListSavedTasks(ctx context.Context, username string) ([]domain.SavedTask, error) {
	return s.tasks.ListSavedTasks(ctx, username)
}

func (s *TaskService) CreateSavedTask(ctx context.Context, username, name string, estimatedTime int) (domain.SavedTask, error) {
	task := domain.SavedTask{
		Username:      username,
		Name:          name,
		EstimatedTime: estimatedTime,
	}
	return s.tasks.CreateSavedTask(ctx, task)
}

func (s *TaskService) UpdateSavedTask(ctx context.Context, id int64, username string, patch domain.SavedTaskPatch) (domain.SavedTask, error) {
	task, err := s.tasks.GetSavedTask(ctx, id, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SavedTask{}, ErrNotFound
		}
		return domain.SavedTask{}, err
	}
	patch.Apply(&task)
	if err := s.tasks.UpdateSavedTask(ctx, task); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SavedTask{}, ErrNotFound
		}
		return domain.SavedTask{}, err
	}
	return task, nil
}

func (s *TaskService) DeleteSavedTask(ctx context.Context, id int64, username string) error {
	if err := s.tasks.DeleteSavedTask(ctx, id, username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
