package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
)

// TaskUpdate describes a forward-only merge against a task record. Nil
// fields are left unchanged. The store discards the whole update if the
// task is already terminal, and never lets progress move backwards.
type TaskUpdate struct {
	Status         *domain.TaskStatus
	Stage          *string
	Progress       *float64
	TotalItems     *int
	CompletedItems *int
	SubjectID      *uuid.UUID
	Message        *string
	ErrorDetails   *string
	Errors         []string
}

// TaskStore is the durable task registry: the sole source of truth for
// status polling.
// Version: 1.0
type TaskStore interface {
	// Create persists a new task record. The task must be in pending status.
	Create(ctx context.Context, t *domain.Task) error

	// Update applies a forward-only merge to the task. Writes against a
	// terminal task are silently discarded (no error, no change); progress
	// is clamped so it never decreases. Returns ErrTaskNotFound if the
	// task does not exist.
	Update(ctx context.Context, taskID string, update TaskUpdate) error

	// GetByID retrieves a task by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, taskID string) (*domain.Task, error)

	// ListByOwner retrieves the owner's tasks, most recent first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*domain.Task, error)

	// GetLatestBySubject retrieves the most recent task whose subject
	// matches subjectID. Returns ErrTaskNotFound when none exists.
	GetLatestBySubject(ctx context.Context, subjectID uuid.UUID) (*domain.Task, error)

	// Claim atomically moves a pending or queued task to starting and
	// stamps started_at, establishing this worker as the task's single
	// writer. Returns ErrTaskNotClaimable if the task is absent or no
	// longer in a claimable status.
	Claim(ctx context.Context, taskID string) (*domain.Task, error)

	// FindByStatus retrieves tasks in the given status. If olderThan is
	// non-zero, only tasks whose last update is older than that duration
	// are returned.
	FindByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Duration) ([]*domain.Task, error)

	// FindExpired retrieves tasks in any of the given statuses that were
	// claimed longer ago than timeout. The cutoff is measured from
	// started_at, so a task that keeps checkpointing still expires once its
	// total execution time exceeds the deadline.
	FindExpired(ctx context.Context, statuses []domain.TaskStatus, timeout time.Duration) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
