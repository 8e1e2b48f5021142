package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/generation"
	"github.com/pathlight/pathlight-api/internal/store"
)

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// mockRegistry is an in-memory Registry that mimics the store's merge
// semantics: terminal records discard writes and progress never decreases.
type mockRegistry struct {
	mu        sync.Mutex
	tasks     map[string]*domain.Task
	updates   []store.TaskUpdate
	claimErr  error
	updateErr error
}

func newMockRegistry(tasks ...*domain.Task) *mockRegistry {
	m := &mockRegistry{tasks: make(map[string]*domain.Task)}
	for _, t := range tasks {
		copied := *t
		m.tasks[t.ID] = &copied
	}
	return m
}

func (m *mockRegistry) Update(ctx context.Context, taskID string, update store.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}

	t, ok := m.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.IsTerminal() {
		return nil
	}
	if update.Status != nil && !t.Status.CanTransitionTo(*update.Status) {
		return domain.ErrInvalidTransition
	}

	m.updates = append(m.updates, update)
	now := time.Now().UTC()
	if update.Status != nil {
		t.Status = *update.Status
		if t.Status.IsTerminal() {
			ended := now
			t.EndedAt = &ended
		}
	}
	if update.Stage != nil {
		t.Stage = *update.Stage
	}
	if update.Progress != nil && *update.Progress > t.Progress {
		t.Progress = *update.Progress
	}
	if update.TotalItems != nil {
		t.TotalItems = update.TotalItems
	}
	if update.CompletedItems != nil {
		t.CompletedItems = *update.CompletedItems
	}
	if update.SubjectID != nil {
		t.SubjectID = update.SubjectID
	}
	if update.Message != nil {
		t.Message = *update.Message
	}
	if update.ErrorDetails != nil {
		t.ErrorDetails = *update.ErrorDetails
	}
	if update.Errors != nil {
		t.Errors = update.Errors
	}
	t.UpdatedAt = now
	return nil
}

func (m *mockRegistry) Claim(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claimErr != nil {
		return nil, m.claimErr
	}

	t, ok := m.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotClaimable
	}
	if t.Status != domain.TaskStatusPending && t.Status != domain.TaskStatusQueued {
		return nil, store.ErrTaskNotClaimable
	}
	now := time.Now().UTC()
	t.Status = domain.TaskStatusStarting
	t.StartedAt = &now
	t.UpdatedAt = now
	copied := *t
	return &copied, nil
}

func (m *mockRegistry) FindByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Duration) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Task
	cutoff := time.Now().UTC().Add(-olderThan)
	for _, t := range m.tasks {
		if t.Status != status {
			continue
		}
		if olderThan > 0 && !t.UpdatedAt.Before(cutoff) {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockRegistry) FindExpired(ctx context.Context, statuses []domain.TaskStatus, timeout time.Duration) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-timeout)
	var out []*domain.Task
	for _, t := range m.tasks {
		match := false
		for _, s := range statuses {
			if t.Status == s {
				match = true
				break
			}
		}
		if !match || t.StartedAt == nil || !t.StartedAt.Before(cutoff) {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockRegistry) get(taskID string) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		copied := *t
		return &copied
	}
	return nil
}

func (m *mockRegistry) checkpoints() []store.TaskUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.TaskUpdate, len(m.updates))
	copy(out, m.updates)
	return out
}

// mockGenerator implements generation.Generator with overridable behavior.
type mockGenerator struct {
	mu        sync.Mutex
	extractFn func(ctx context.Context, topic string) (*generation.Goals, error)
	planFn    func(ctx context.Context, goals *generation.Goals) (*generation.Plan, error)
	cardFn    func(ctx context.Context, sectionTitle, keyword string) (*domain.Card, error)
	planCalls int
	cardCalls int
}

func (m *mockGenerator) ExtractGoals(ctx context.Context, topic string) (*generation.Goals, error) {
	m.mu.Lock()
	fn := m.extractFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, topic)
	}
	return &generation.Goals{Topic: topic, Objectives: []string{"learn " + topic}}, nil
}

func (m *mockGenerator) PlanStructure(ctx context.Context, goals *generation.Goals) (*generation.Plan, error) {
	m.mu.Lock()
	m.planCalls++
	fn := m.planFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, goals)
	}
	return twoSectionPlan(), nil
}

func (m *mockGenerator) GenerateCard(ctx context.Context, sectionTitle, keyword string) (*domain.Card, error) {
	m.mu.Lock()
	m.cardCalls++
	fn := m.cardFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, sectionTitle, keyword)
	}
	return domain.NewCard(keyword, "Q: "+keyword, "A: "+keyword)
}

// twoSectionPlan returns a plan with 2 courses, one section each, 4 keywords
// total.
func twoSectionPlan() *generation.Plan {
	return &generation.Plan{
		Title: "Generated Path",
		Courses: []generation.PlanCourse{
			{
				Title: "Course One",
				Sections: []generation.PlanSection{
					{Title: "Section A", Keywords: []string{"alpha", "beta"}},
				},
			},
			{
				Title: "Course Two",
				Sections: []generation.PlanSection{
					{Title: "Section B", Keywords: []string{"gamma", "delta"}},
				},
			},
		},
	}
}

// mockContentWriter records saved structures and cards.
type mockContentWriter struct {
	mu           sync.Mutex
	structures   []*store.PathStructure
	cards        map[uuid.UUID][]*domain.Card
	structureErr error
	cardErr      error
}

func newMockContentWriter() *mockContentWriter {
	return &mockContentWriter{cards: make(map[uuid.UUID][]*domain.Card)}
}

func (m *mockContentWriter) SaveStructure(ctx context.Context, structure *store.PathStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.structureErr != nil {
		return m.structureErr
	}
	m.structures = append(m.structures, structure)
	return nil
}

func (m *mockContentWriter) SaveCard(ctx context.Context, sectionID uuid.UUID, card *domain.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cardErr != nil {
		return m.cardErr
	}
	m.cards[sectionID] = append(m.cards[sectionID], card)
	return nil
}

func (m *mockContentWriter) savedCardCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, cards := range m.cards {
		n += len(cards)
	}
	return n
}

// mockPlanCache is an in-memory generation.PlanCache.
type mockPlanCache struct {
	mu    sync.Mutex
	plans map[string]*generation.Plan
	hits  int
	sets  int
}

func newMockPlanCache() *mockPlanCache {
	return &mockPlanCache{plans: make(map[string]*generation.Plan)}
}

func (m *mockPlanCache) GetPlan(ctx context.Context, topic string) (*generation.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if plan, ok := m.plans[topic]; ok {
		m.hits++
		return plan, nil
	}
	return nil, nil
}

func (m *mockPlanCache) SetPlan(ctx context.Context, topic string, plan *generation.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[topic] = plan
	m.sets++
	return nil
}

// mockRunnable is a minimal Runnable whose Execute behavior is injectable.
type mockRunnable struct {
	id        string
	kind      string
	executeFn func(ctx context.Context) error
	executed  chan struct{}
}

func newMockRunnable(id string) *mockRunnable {
	return &mockRunnable{
		id:       id,
		kind:     "test_kind",
		executed: make(chan struct{}),
	}
}

func (m *mockRunnable) ID() string      { return m.id }
func (m *mockRunnable) Kind() string    { return m.kind }
func (m *mockRunnable) Payload() []byte { return []byte(`{}`) }

func (m *mockRunnable) Execute(ctx context.Context) error {
	defer close(m.executed)
	if m.executeFn != nil {
		return m.executeFn(ctx)
	}
	return nil
}

// mockFactory rebuilds mockRunnables for a kind.
type mockFactory struct {
	kind      string
	rebuildFn func(t *domain.Task) (Runnable, error)
}

func (m *mockFactory) Kind() string { return m.kind }

func (m *mockFactory) Rebuild(t *domain.Task) (Runnable, error) {
	if m.rebuildFn != nil {
		return m.rebuildFn(t)
	}
	return newMockRunnable(t.ID), nil
}
