package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
	"github.com/pathlight/pathlight-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockTaskStore is an in-memory store.TaskStore with overridable behavior.
type mockTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]*domain.Task
	createFn func(ctx context.Context, t *domain.Task) error
	listFn   func(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*domain.Task, error)
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[string]*domain.Task)}
}

func (m *mockTaskStore) Create(ctx context.Context, t *domain.Task) error {
	if m.createFn != nil {
		return m.createFn(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *t
	m.tasks[t.ID] = &copied
	return nil
}

func (m *mockTaskStore) Update(ctx context.Context, taskID string, update store.TaskUpdate) error {
	return nil
}

func (m *mockTaskStore) GetByID(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *mockTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*domain.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID, offset, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockTaskStore) GetLatestBySubject(ctx context.Context, subjectID uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Task
	for _, t := range m.tasks {
		if t.SubjectID == nil || *t.SubjectID != subjectID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, store.ErrTaskNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *mockTaskStore) Claim(ctx context.Context, taskID string) (*domain.Task, error) {
	return nil, store.ErrTaskNotClaimable
}

func (m *mockTaskStore) FindByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Duration) ([]*domain.Task, error) {
	return nil, nil
}

func (m *mockTaskStore) FindExpired(ctx context.Context, statuses []domain.TaskStatus, timeout time.Duration) ([]*domain.Task, error) {
	return nil, nil
}

func (m *mockTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return m }

// mockRunner records submitted work.
type mockRunner struct {
	mu        sync.Mutex
	submitted []task.Runnable
	submitErr error
}

func (m *mockRunner) Submit(ctx context.Context, work task.Runnable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, work)
	return nil
}

// mockFactory builds no-op runnables.
type mockFactory struct {
	buildErr error
}

func (m *mockFactory) Build(t *domain.Task) (task.Runnable, error) {
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	return &noopRunnable{id: t.ID, kind: t.Kind, payload: t.Payload}, nil
}

type noopRunnable struct {
	id      string
	kind    string
	payload []byte
}

func (r *noopRunnable) ID() string                        { return r.id }
func (r *noopRunnable) Kind() string                      { return r.kind }
func (r *noopRunnable) Payload() []byte                   { return r.payload }
func (r *noopRunnable) Execute(ctx context.Context) error { return nil }
