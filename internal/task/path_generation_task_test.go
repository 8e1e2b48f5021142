package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGenerationRecord creates a pending task record carrying a generation
// request payload.
func newGenerationRecord(t *testing.T, topic string) *domain.Task {
	t.Helper()
	payload, err := json.Marshal(GenerationRequest{Topic: topic})
	require.NoError(t, err)
	record, err := domain.NewTask(domain.TaskKindPathGeneration, uuid.New(), payload)
	require.NoError(t, err)
	return record
}

// claimRecord moves the record to starting the way the runner does before
// executing, so checkpoint writes follow legal lifecycle edges.
func claimRecord(t *testing.T, registry *mockRegistry, taskID string) {
	t.Helper()
	_, err := registry.Claim(context.Background(), taskID)
	require.NoError(t, err)
}

func TestNewPathGenerationTask_Validation(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)
	generator := &mockGenerator{}
	content := newMockContentWriter()
	config := WorkflowConfig{FailureRateThreshold: 0.10}
	logger := testLogger()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		workflow, err := NewPathGenerationTask(record, registry, generator, content, nil, config, logger)
		require.NoError(t, err)
		assert.Equal(t, record.ID, workflow.ID())
		assert.Equal(t, domain.TaskKindPathGeneration, workflow.Kind())
		assert.JSONEq(t, `{"topic":"graph theory"}`, string(workflow.Payload()))
	})

	t.Run("nil dependencies", func(t *testing.T) {
		t.Parallel()
		_, err := NewPathGenerationTask(record, nil, generator, content, nil, config, logger)
		assert.ErrorIs(t, err, ErrNilRegistry)

		_, err = NewPathGenerationTask(record, registry, nil, content, nil, config, logger)
		assert.ErrorIs(t, err, ErrNilGenerator)

		_, err = NewPathGenerationTask(record, registry, generator, nil, nil, config, logger)
		assert.ErrorIs(t, err, ErrNilContent)

		_, err = NewPathGenerationTask(record, registry, generator, content, nil, config, nil)
		assert.ErrorIs(t, err, ErrNilLogger)
	})

	t.Run("empty payload", func(t *testing.T) {
		t.Parallel()
		bare, err := domain.NewTask(domain.TaskKindPathGeneration, uuid.New(), nil)
		require.NoError(t, err)
		_, err = NewPathGenerationTask(bare, registry, generator, content, nil, config, logger)
		assert.ErrorIs(t, err, ErrEmptyPayload)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()
		bad, err := domain.NewTask(domain.TaskKindPathGeneration, uuid.New(), []byte("not json"))
		require.NoError(t, err)
		_, err = NewPathGenerationTask(bad, registry, generator, content, nil, config, logger)
		assert.Error(t, err)
	})

	t.Run("empty topic", func(t *testing.T) {
		t.Parallel()
		empty, err := domain.NewTask(domain.TaskKindPathGeneration, uuid.New(), []byte(`{"topic":""}`))
		require.NoError(t, err)
		_, err = NewPathGenerationTask(empty, registry, generator, content, nil, config, logger)
		assert.ErrorIs(t, err, generation.ErrEmptyTopic)
	})
}

func TestPathGenerationTask_Execute_HappyPath(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)
	generator := &mockGenerator{}
	content := newMockContentWriter()

	workflow, err := NewPathGenerationTask(record, registry, generator, content, nil,
		WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
	require.NoError(t, err)

	claimRecord(t, registry, record.ID)
	require.NoError(t, workflow.Execute(context.Background()))

	final := registry.get(record.ID)
	require.NotNil(t, final)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	assert.Equal(t, domain.StageFinished, final.Stage)
	assert.Equal(t, float64(100), final.Progress)
	require.NotNil(t, final.TotalItems)
	assert.Equal(t, 4, *final.TotalItems)
	assert.Equal(t, 4, final.CompletedItems)
	assert.NotNil(t, final.SubjectID)
	assert.NotNil(t, final.EndedAt)
	assert.Equal(t, "generated 4 of 4 items", final.Message)
	assert.Empty(t, final.Errors)

	// The structure is persisted once and every keyword produced a card.
	require.Len(t, content.structures, 1)
	assert.Len(t, content.structures[0].Courses, 2)
	assert.Equal(t, 4, content.savedCardCount())
}

func TestPathGenerationTask_Execute_CheckpointsPhasesInOrder(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)

	workflow, err := NewPathGenerationTask(record, registry, &mockGenerator{}, newMockContentWriter(), nil,
		WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
	require.NoError(t, err)

	claimRecord(t, registry, record.ID)
	require.NoError(t, workflow.Execute(context.Background()))

	var stages []string
	var baselines []float64
	for _, u := range registry.checkpoints() {
		if u.Status != nil && *u.Status == domain.TaskStatusRunning && u.Stage != nil {
			stages = append(stages, *u.Stage)
			baselines = append(baselines, *u.Progress)
		}
	}
	assert.Equal(t, []string{
		domain.StageExtractingGoals,
		domain.StagePlanningStructure,
		domain.StageSavingStructure,
		domain.StageGeneratingCards,
	}, stages)
	assert.Equal(t, []float64{2, 8, 15, 20}, baselines)

	// Per-item checkpoints map linearly onto the 20-100 band.
	var itemProgress []float64
	for _, u := range registry.checkpoints() {
		if u.Status == nil && u.Progress != nil {
			itemProgress = append(itemProgress, *u.Progress)
		}
	}
	assert.Equal(t, []float64{40, 60, 80, 100}, itemProgress)
}

func TestPathGenerationTask_Execute_CompletesWithItemErrors(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)
	generator := &mockGenerator{
		cardFn: func(ctx context.Context, sectionTitle, keyword string) (*domain.Card, error) {
			if keyword == "beta" {
				return nil, generation.ErrContentBlocked
			}
			return domain.NewCard(keyword, "Q", "A")
		},
	}
	content := newMockContentWriter()

	// 1 failure out of 4 items is 25%, below a 30% threshold.
	workflow, err := NewPathGenerationTask(record, registry, generator, content, nil,
		WorkflowConfig{FailureRateThreshold: 0.30}, testLogger())
	require.NoError(t, err)

	claimRecord(t, registry, record.ID)
	require.NoError(t, workflow.Execute(context.Background()))

	final := registry.get(record.ID)
	assert.Equal(t, domain.TaskStatusCompleted, final.Status)
	assert.Equal(t, float64(100), final.Progress)
	assert.Equal(t, 4, final.CompletedItems)
	assert.Equal(t, "generated 3 of 4 items", final.Message)
	require.Len(t, final.Errors, 1)
	assert.Contains(t, final.Errors[0], "beta")
	assert.Equal(t, 3, content.savedCardCount())
}

func TestPathGenerationTask_Execute_FailsAboveFailureThreshold(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)
	generator := &mockGenerator{
		cardFn: func(ctx context.Context, sectionTitle, keyword string) (*domain.Card, error) {
			if keyword == "alpha" || keyword == "gamma" {
				return nil, generation.ErrTransientFailure
			}
			return domain.NewCard(keyword, "Q", "A")
		},
	}

	workflow, err := NewPathGenerationTask(record, registry, generator, newMockContentWriter(), nil,
		WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
	require.NoError(t, err)

	claimRecord(t, registry, record.ID)
	err = workflow.Execute(context.Background())
	assert.ErrorIs(t, err, ErrTooManyItemErr)

	final := registry.get(record.ID)
	assert.Equal(t, domain.TaskStatusFailed, final.Status)
	// A failed run keeps the stage it died in so pollers can see where it
	// stopped; only a completed run advances to finished.
	assert.Equal(t, domain.StageGeneratingCards, final.Stage)
	assert.Contains(t, final.Message, "2 of 4 items failed")
	assert.Len(t, final.Errors, 2)
	assert.NotNil(t, final.EndedAt)
}

func TestPathGenerationTask_Execute_FatalPhaseErrors(t *testing.T) {
	t.Parallel()

	t.Run("goal extraction fails", func(t *testing.T) {
		t.Parallel()
		record := newGenerationRecord(t, "graph theory")
		registry := newMockRegistry(record)
		generator := &mockGenerator{
			extractFn: func(ctx context.Context, topic string) (*generation.Goals, error) {
				return nil, generation.ErrTransientFailure
			},
		}

		workflow, err := NewPathGenerationTask(record, registry, generator, newMockContentWriter(), nil,
			WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
		require.NoError(t, err)

		claimRecord(t, registry, record.ID)
		err = workflow.Execute(context.Background())
		assert.ErrorIs(t, err, ErrFatalPhase)

		final := registry.get(record.ID)
		assert.Equal(t, domain.TaskStatusFailed, final.Status)
		assert.Equal(t, domain.StageExtractingGoals, final.Stage)
		assert.NotEmpty(t, final.ErrorDetails)
	})

	t.Run("empty plan", func(t *testing.T) {
		t.Parallel()
		record := newGenerationRecord(t, "graph theory")
		registry := newMockRegistry(record)
		generator := &mockGenerator{
			planFn: func(ctx context.Context, goals *generation.Goals) (*generation.Plan, error) {
				return &generation.Plan{Title: "Empty"}, nil
			},
		}

		workflow, err := NewPathGenerationTask(record, registry, generator, newMockContentWriter(), nil,
			WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
		require.NoError(t, err)

		claimRecord(t, registry, record.ID)
		err = workflow.Execute(context.Background())
		assert.ErrorIs(t, err, ErrFatalPhase)

		final := registry.get(record.ID)
		assert.Equal(t, domain.TaskStatusFailed, final.Status)
		assert.Equal(t, domain.StagePlanningStructure, final.Stage)
	})

	t.Run("structure persistence fails", func(t *testing.T) {
		t.Parallel()
		record := newGenerationRecord(t, "graph theory")
		registry := newMockRegistry(record)
		content := newMockContentWriter()
		content.structureErr = errors.New("connection reset")

		workflow, err := NewPathGenerationTask(record, registry, &mockGenerator{}, content, nil,
			WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
		require.NoError(t, err)

		claimRecord(t, registry, record.ID)
		err = workflow.Execute(context.Background())
		assert.ErrorIs(t, err, ErrFatalPhase)

		final := registry.get(record.ID)
		assert.Equal(t, domain.TaskStatusFailed, final.Status)
		assert.Contains(t, final.ErrorDetails, "connection reset")
	})
}

func TestPathGenerationTask_Execute_CancelledContext(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)

	workflow, err := NewPathGenerationTask(record, registry, &mockGenerator{}, newMockContentWriter(), nil,
		WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
	require.NoError(t, err)

	claimRecord(t, registry, record.ID)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = workflow.Execute(ctx)
	assert.ErrorIs(t, err, ErrFatalPhase)

	final := registry.get(record.ID)
	assert.Equal(t, domain.TaskStatusFailed, final.Status)
}

func TestPathGenerationTask_Execute_UsesCachedPlan(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)
	generator := &mockGenerator{}
	cache := newMockPlanCache()
	cache.plans["graph theory"] = twoSectionPlan()

	workflow, err := NewPathGenerationTask(record, registry, generator, newMockContentWriter(), cache,
		WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
	require.NoError(t, err)

	claimRecord(t, registry, record.ID)
	require.NoError(t, workflow.Execute(context.Background()))

	assert.Equal(t, 0, generator.planCalls)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, domain.TaskStatusCompleted, registry.get(record.ID).Status)
}

func TestPathGenerationTask_Execute_CachesPlanOnMiss(t *testing.T) {
	t.Parallel()

	record := newGenerationRecord(t, "graph theory")
	registry := newMockRegistry(record)
	generator := &mockGenerator{}
	cache := newMockPlanCache()

	workflow, err := NewPathGenerationTask(record, registry, generator, newMockContentWriter(), cache,
		WorkflowConfig{FailureRateThreshold: 0.10}, testLogger())
	require.NoError(t, err)

	claimRecord(t, registry, record.ID)
	require.NoError(t, workflow.Execute(context.Background()))

	assert.Equal(t, 1, generator.planCalls)
	assert.Equal(t, 1, cache.sets)
	assert.NotNil(t, cache.plans["graph theory"])
}
