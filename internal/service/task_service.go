package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
)

// Pagination bounds for task listings.
const (
	defaultTaskLimit = 20
	maxTaskLimit     = 100
)

// TaskService exposes task records for status polling. All reads enforce
// ownership: a caller sees only their own tasks unless they are an admin.
type TaskService interface {
	// GetTask retrieves a single task record by ID.
	GetTask(ctx context.Context, requesterID uuid.UUID, isAdmin bool, taskID string) (*domain.Task, error)

	// ListTasks returns the requester's own tasks, most recent first.
	ListTasks(ctx context.Context, requesterID uuid.UUID, offset, limit int) ([]*domain.Task, error)

	// GetLatestForPath returns the most recent task whose subject is the
	// given learning path.
	GetLatestForPath(ctx context.Context, requesterID uuid.UUID, isAdmin bool, pathID uuid.UUID) (*domain.Task, error)
}

type taskServiceImpl struct {
	taskStore store.TaskStore
	logger    *slog.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(taskStore store.TaskStore, logger *slog.Logger) (TaskService, error) {
	if taskStore == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "taskStore cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &taskServiceImpl{
		taskStore: taskStore,
		logger:    logger.With("component", "task_service"),
	}, nil
}

// GetTask retrieves a task and checks that the requester may see it.
func (s *taskServiceImpl) GetTask(
	ctx context.Context,
	requesterID uuid.UUID,
	isAdmin bool,
	taskID string,
) (*domain.Task, error) {
	t, err := s.taskStore.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		s.logger.Error("failed to retrieve task",
			"error", err,
			"task_id", taskID)
		return nil, NewServiceError("get_task", "failed to retrieve task", err)
	}

	if !isAdmin && !t.OwnedBy(requesterID) {
		s.logger.Warn("task access denied",
			"task_id", taskID,
			"owner_id", t.OwnerID,
			"requester_id", requesterID)
		return nil, domain.ErrUnauthorized
	}
	return t, nil
}

// ListTasks returns the requester's tasks with clamped pagination.
func (s *taskServiceImpl) ListTasks(
	ctx context.Context,
	requesterID uuid.UUID,
	offset, limit int,
) ([]*domain.Task, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultTaskLimit
	}
	if limit > maxTaskLimit {
		limit = maxTaskLimit
	}

	tasks, err := s.taskStore.ListByOwner(ctx, requesterID, offset, limit)
	if err != nil {
		s.logger.Error("failed to list tasks",
			"error", err,
			"owner_id", requesterID)
		return nil, NewServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

// GetLatestForPath returns the newest task for a learning path, with the
// same ownership check as GetTask.
func (s *taskServiceImpl) GetLatestForPath(
	ctx context.Context,
	requesterID uuid.UUID,
	isAdmin bool,
	pathID uuid.UUID,
) (*domain.Task, error) {
	t, err := s.taskStore.GetLatestBySubject(ctx, pathID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		s.logger.Error("failed to retrieve latest task for path",
			"error", err,
			"path_id", pathID)
		return nil, NewServiceError("get_latest_task", "failed to retrieve task", err)
	}

	if !isAdmin && !t.OwnedBy(requesterID) {
		return nil, domain.ErrUnauthorized
	}
	return t, nil
}
