package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
	"github.com/pathlight/pathlight-api/internal/task"
)

// TaskRunner defines the interface for submitting background work.
type TaskRunner interface {
	// Submit hands a runnable to the dispatch queue. A full queue parks the
	// record as queued and returns nil; the caller should only see an error
	// when the runner is shut down.
	Submit(ctx context.Context, work task.Runnable) error
}

// RunnableFactory builds a runnable workflow from a task record.
type RunnableFactory interface {
	Build(t *domain.Task) (task.Runnable, error)
}

// PathService accepts path generation requests and hands them off to the
// background runner, returning immediately with the task ID for polling.
type PathService interface {
	// GeneratePath creates a path generation task for the owner and submits
	// it. The returned ID identifies the task record, not the path; the
	// path ID appears on the record once the structure is persisted.
	GeneratePath(ctx context.Context, ownerID uuid.UUID, topic, title string) (string, error)
}

type pathServiceImpl struct {
	taskStore store.TaskStore
	runner    TaskRunner
	factory   RunnableFactory
	logger    *slog.Logger
}

// NewPathService creates a new PathService.
// It returns an error if any of the required dependencies are nil.
func NewPathService(
	taskStore store.TaskStore,
	runner TaskRunner,
	factory RunnableFactory,
	logger *slog.Logger,
) (PathService, error) {
	if taskStore == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "taskStore cannot be nil"}
	}
	if runner == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "runner cannot be nil"}
	}
	if factory == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "factory cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &pathServiceImpl{
		taskStore: taskStore,
		runner:    runner,
		factory:   factory,
		logger:    logger.With("component", "path_service"),
	}, nil
}

// GeneratePath validates the request, persists a pending task record, and
// submits the workflow fire-and-forget.
func (s *pathServiceImpl) GeneratePath(
	ctx context.Context,
	ownerID uuid.UUID,
	topic, title string,
) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", domain.NewValidationError("topic", "topic cannot be empty", domain.ErrValidation)
	}

	payload, err := json.Marshal(task.GenerationRequest{Topic: topic, Title: strings.TrimSpace(title)})
	if err != nil {
		return "", NewServiceError("generate_path", "failed to encode request", err)
	}

	record, err := domain.NewTask(domain.TaskKindPathGeneration, ownerID, payload)
	if err != nil {
		return "", NewServiceError("generate_path", "failed to create task", err)
	}
	if err := s.taskStore.Create(ctx, record); err != nil {
		s.logger.Error("failed to create task record",
			"error", err,
			"owner_id", ownerID)
		return "", NewServiceError("generate_path", "failed to create task record", err)
	}

	work, err := s.factory.Build(record)
	if err != nil {
		s.logger.Error("failed to build workflow",
			"error", err,
			"task_id", record.ID)
		return "", NewServiceError("generate_path", "failed to build workflow", err)
	}

	if err := s.runner.Submit(ctx, work); err != nil {
		s.logger.Error("failed to submit task",
			"error", err,
			"task_id", record.ID)
		return "", NewServiceError("generate_path", "failed to submit task", err)
	}

	s.logger.Info("path generation task submitted",
		"task_id", record.ID,
		"owner_id", ownerID,
		"topic", topic)
	return record.ID, nil
}
