package task

import (
	"context"
	"time"

	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
)

// Runnable represents a unit of background work to be processed. The
// durable record lives in the registry; a Runnable is the in-memory
// executable bound to it.
// Version: 1.0
type Runnable interface {
	// ID returns the identifier of the registry record this work is bound to.
	ID() string

	// Kind returns the task kind identifier.
	Kind() string

	// Payload returns the serialized request the task was created from,
	// sufficient to rebuild the Runnable after a restart.
	Payload() []byte

	// Execute runs the task logic. The implementation owns all registry
	// writes for its task for the duration of the call.
	Execute(ctx context.Context) error
}

// Registry is the subset of the durable task store the runner and
// workflows need: claiming, checkpointing and status scans.
// Version: 1.0
type Registry interface {
	// Update applies a forward-only merge; writes against terminal tasks
	// are discarded.
	Update(ctx context.Context, taskID string, update store.TaskUpdate) error

	// Claim atomically moves a pending/queued task to starting,
	// establishing single-writer ownership.
	Claim(ctx context.Context, taskID string) (*domain.Task, error)

	// FindByStatus retrieves tasks in the given status, optionally only
	// those stale for longer than olderThan.
	FindByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Duration) ([]*domain.Task, error)

	// FindExpired retrieves tasks in any of the given statuses whose
	// started_at is older than timeout.
	FindExpired(ctx context.Context, statuses []domain.TaskStatus, timeout time.Duration) ([]*domain.Task, error)
}

// Factory rebuilds an executable Runnable from a persisted task record.
// Registered per kind with the runner so recovery and requeueing can
// reconstruct work after a restart.
type Factory interface {
	// Kind returns the task kind this factory handles.
	Kind() string

	// Rebuild constructs a Runnable from the persisted record.
	Rebuild(t *domain.Task) (Runnable, error)
}

// QueueReader provides read-only access to the task channel, allowing
// workers to consume tasks without the ability to enqueue.
// Version: 1.0
type QueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks.
	GetChannel() <-chan Runnable
}

// QueueWriter provides write access to the task queue, allowing services
// to enqueue tasks for processing.
// Version: 1.0
type QueueWriter interface {
	// Enqueue adds a task to the queue for processing.
	// Returns an error if the queue is full or closed.
	Enqueue(r Runnable) error

	// Close closes the task queue, preventing further task submission.
	Close()
}
