package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/generation"
	"github.com/pathlight/pathlight-api/internal/store"
)

// Common errors for PathGenerationTask construction.
var (
	ErrNilRegistry    = errors.New("registry cannot be nil")
	ErrNilGenerator   = errors.New("generator cannot be nil")
	ErrNilContent     = errors.New("content writer cannot be nil")
	ErrNilLogger      = errors.New("logger cannot be nil")
	ErrEmptyPayload   = errors.New("task payload cannot be empty")
	ErrFatalPhase     = errors.New("fatal error in structural phase")
	ErrTooManyItemErr = errors.New("item failure rate exceeded threshold")
)

// Progress band boundaries. The structural phases occupy a fixed baseline
// band; per-item generation maps linearly onto the remainder.
const (
	progressExtracting = 2.0
	progressPlanning   = 8.0
	progressSaving     = 15.0
	progressItemsStart = 20.0
	progressDone       = 100.0
)

// GenerationRequest is the serialized payload of a path generation task.
type GenerationRequest struct {
	Topic string `json:"topic"`
	Title string `json:"title,omitempty"`
}

// ContentWriter persists generated content. SaveStructure must be atomic:
// a failure leaves no partial learning path behind.
type ContentWriter interface {
	// SaveStructure persists a planned path with all courses and sections.
	SaveStructure(ctx context.Context, structure *store.PathStructure) error

	// SaveCard persists one generated card into a section.
	SaveCard(ctx context.Context, sectionID uuid.UUID, card *domain.Card) error
}

// WorkflowConfig holds the tunables of the generation workflow.
type WorkflowConfig struct {
	// FailureRateThreshold is the fraction of failed items (0-1) above
	// which the workflow finishes failed instead of completed.
	FailureRateThreshold float64
}

// PathGenerationTask runs the multi-phase learning-path generation
// workflow. Each phase transition is checkpointed into the registry before
// the phase's expensive work, so a poller always observes the most recently
// entered phase and a crash leaves the record stuck at the last completed
// checkpoint rather than corrupted.
type PathGenerationTask struct {
	taskID    string
	ownerID   uuid.UUID
	req       GenerationRequest
	registry  Registry
	generator generation.Generator
	content   ContentWriter
	planCache generation.PlanCache
	config    WorkflowConfig
	logger    *slog.Logger
}

// NewPathGenerationTask builds the workflow bound to an existing registry
// record.
func NewPathGenerationTask(
	t *domain.Task,
	registry Registry,
	generator generation.Generator,
	content ContentWriter,
	planCache generation.PlanCache,
	config WorkflowConfig,
	logger *slog.Logger,
) (*PathGenerationTask, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if generator == nil {
		return nil, ErrNilGenerator
	}
	if content == nil {
		return nil, ErrNilContent
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if len(t.Payload) == 0 {
		return nil, ErrEmptyPayload
	}

	var req GenerationRequest
	if err := json.Unmarshal(t.Payload, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal generation request: %w", err)
	}
	if req.Topic == "" {
		return nil, generation.ErrEmptyTopic
	}

	return &PathGenerationTask{
		taskID:    t.ID,
		ownerID:   t.OwnerID,
		req:       req,
		registry:  registry,
		generator: generator,
		content:   content,
		planCache: planCache,
		config:    config,
		logger:    logger.With("task_kind", domain.TaskKindPathGeneration, "task_id", t.ID),
	}, nil
}

// ID returns the bound registry record's identifier.
func (t *PathGenerationTask) ID() string {
	return t.taskID
}

// Kind returns the task kind identifier.
func (t *PathGenerationTask) Kind() string {
	return domain.TaskKindPathGeneration
}

// Payload returns the serialized generation request.
func (t *PathGenerationTask) Payload() []byte {
	data, err := json.Marshal(t.req)
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Execute runs the workflow: extract goals, plan the structure, persist it,
// then generate cards item by item. Item failures are recovered locally and
// accumulated; only a fatal structural error or an item failure rate above
// the configured threshold fails the task.
func (t *PathGenerationTask) Execute(ctx context.Context) error {
	t.logger.Info("starting path generation workflow", "topic", t.req.Topic)

	// Phase 1: extract goals.
	if err := t.checkpoint(ctx, domain.StageExtractingGoals, progressExtracting); err != nil {
		return err
	}
	goals, err := t.generator.ExtractGoals(ctx, t.req.Topic)
	if err != nil {
		return t.fatal(ctx, "failed to extract learning goals", err)
	}

	// Phase 2: plan structure, consulting the plan cache first.
	if err := t.checkpoint(ctx, domain.StagePlanningStructure, progressPlanning); err != nil {
		return err
	}
	plan, err := t.loadPlan(ctx, goals)
	if err != nil {
		return t.fatal(ctx, "failed to plan path structure", err)
	}
	total := plan.ItemCount()
	if total == 0 {
		return t.fatal(ctx, "planned structure contains no items",
			fmt.Errorf("%w: empty plan", generation.ErrInvalidResponse))
	}

	// Phase 3: persist the structure atomically.
	if err := t.checkpoint(ctx, domain.StageSavingStructure, progressSaving); err != nil {
		return err
	}
	structure, sections, err := t.buildStructure(plan)
	if err != nil {
		return t.fatal(ctx, "failed to build path structure", err)
	}
	if err := t.content.SaveStructure(ctx, structure); err != nil {
		return t.fatal(ctx, "failed to persist path structure", err)
	}

	subjectID := structure.Path.ID
	completedItems := 0
	if err := t.registry.Update(ctx, t.taskID, store.TaskUpdate{
		SubjectID:      &subjectID,
		TotalItems:     &total,
		CompletedItems: &completedItems,
	}); err != nil {
		return fmt.Errorf("failed to record subject: %w", err)
	}
	t.logger.Info("path structure persisted",
		"path_id", subjectID,
		"total_items", total)

	// Phase 4: per-item card generation.
	if err := t.checkpoint(ctx, domain.StageGeneratingCards, progressItemsStart); err != nil {
		return err
	}

	processed := 0
	failed := 0
	var itemErrors []string

	for _, item := range sections {
		for _, keyword := range item.section.Keywords {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return t.fatal(ctx, "workflow interrupted", ctxErr)
			}

			if err := t.generateItem(ctx, item.section, keyword); err != nil {
				failed++
				if len(itemErrors) < domain.MaxTaskErrors {
					itemErrors = append(itemErrors, fmt.Sprintf("%s/%s: %v", item.section.Title, keyword, err))
				}
				t.logger.Warn("item generation failed",
					"section", item.section.Title,
					"keyword", keyword,
					"error", err)
			}

			processed++
			progress := progressItemsStart + (progressDone-progressItemsStart)*float64(processed)/float64(total)
			update := store.TaskUpdate{
				Progress:       &progress,
				CompletedItems: &processed,
			}
			if failed > 0 {
				update.Errors = itemErrors
			}
			if err := t.registry.Update(ctx, t.taskID, update); err != nil {
				t.logger.Error("failed to checkpoint item progress", "error", err)
			}
		}
	}

	// Finish: partial item failures complete the task unless the failure
	// rate exceeds the configured threshold.
	failureRate := float64(failed) / float64(total)
	if failureRate > t.config.FailureRateThreshold {
		message := fmt.Sprintf("generation failed: %d of %d items failed (%.0f%%)",
			failed, total, failureRate*100)
		t.finish(ctx, domain.TaskStatusFailed, message, itemErrors)
		return fmt.Errorf("%w: %d of %d items failed", ErrTooManyItemErr, failed, total)
	}

	message := fmt.Sprintf("generated %d of %d items", total-failed, total)
	t.finish(ctx, domain.TaskStatusCompleted, message, itemErrors)
	t.logger.Info("path generation workflow finished",
		"path_id", subjectID,
		"failed_items", failed,
		"total_items", total)
	return nil
}

// loadPlan returns a cached plan for the topic when available, otherwise
// plans via the generator and caches the result best-effort.
func (t *PathGenerationTask) loadPlan(ctx context.Context, goals *generation.Goals) (*generation.Plan, error) {
	if t.planCache != nil {
		plan, err := t.planCache.GetPlan(ctx, t.req.Topic)
		if err != nil {
			t.logger.Warn("plan cache lookup failed", "error", err)
		} else if plan != nil {
			t.logger.Info("using cached plan", "topic", t.req.Topic)
			return plan, nil
		}
	}

	plan, err := t.generator.PlanStructure(ctx, goals)
	if err != nil {
		return nil, err
	}

	if t.planCache != nil {
		if err := t.planCache.SetPlan(ctx, t.req.Topic, plan); err != nil {
			t.logger.Warn("failed to cache plan", "error", err)
		}
	}
	return plan, nil
}

// sectionRef pairs a built section with its parent course for the
// generation loop.
type sectionRef struct {
	section  *domain.Section
	courseID uuid.UUID
}

// buildStructure materializes domain entities from the plan.
func (t *PathGenerationTask) buildStructure(plan *generation.Plan) (*store.PathStructure, []sectionRef, error) {
	title := t.req.Title
	if title == "" {
		title = plan.Title
	}

	path, err := domain.NewLearningPath(t.ownerID, title, t.req.Topic)
	if err != nil {
		return nil, nil, err
	}
	structure := &store.PathStructure{Path: path}
	var refs []sectionRef

	for _, planCourse := range plan.Courses {
		course := &domain.Course{
			ID:        uuid.New(),
			Title:     planCourse.Title,
			CreatedAt: path.CreatedAt,
		}
		cs := store.CourseStructure{Course: course}
		for _, planSection := range planCourse.Sections {
			section := &domain.Section{
				ID:        uuid.New(),
				Title:     planSection.Title,
				Keywords:  planSection.Keywords,
				CreatedAt: path.CreatedAt,
			}
			cs.Sections = append(cs.Sections, section)
			refs = append(refs, sectionRef{section: section, courseID: course.ID})
		}
		structure.Courses = append(structure.Courses, cs)
	}

	return structure, refs, nil
}

// generateItem generates and persists one card.
func (t *PathGenerationTask) generateItem(ctx context.Context, section *domain.Section, keyword string) error {
	card, err := t.generator.GenerateCard(ctx, section.Title, keyword)
	if err != nil {
		return err
	}
	if err := t.content.SaveCard(ctx, section.ID, card); err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	return nil
}

// checkpoint writes the newly entered stage and baseline progress before
// the phase's expensive work begins.
func (t *PathGenerationTask) checkpoint(ctx context.Context, stage string, progress float64) error {
	running := domain.TaskStatusRunning
	if err := t.registry.Update(ctx, t.taskID, store.TaskUpdate{
		Status:   &running,
		Stage:    &stage,
		Progress: &progress,
	}); err != nil {
		return fmt.Errorf("failed to checkpoint stage %s: %w", stage, err)
	}
	t.logger.Info("entered stage", "stage", stage, "progress", progress)
	return nil
}

// fatal records a structural failure and returns the wrapped error.
func (t *PathGenerationTask) fatal(ctx context.Context, message string, err error) error {
	failed := domain.TaskStatusFailed
	detail := err.Error()
	if updateErr := t.registry.Update(ctx, t.taskID, store.TaskUpdate{
		Status:       &failed,
		Message:      &message,
		ErrorDetails: &detail,
	}); updateErr != nil {
		t.logger.Error("failed to record fatal error", "error", updateErr)
	}
	return fmt.Errorf("%w: %s: %v", ErrFatalPhase, message, err)
}

// finish writes the terminal status. Discarded by the registry if the task
// already went terminal, e.g. reaped as timed out. On failure the stage is
// left at the last phase entered so pollers can see where the run stopped.
func (t *PathGenerationTask) finish(ctx context.Context, status domain.TaskStatus, message string, itemErrors []string) {
	update := store.TaskUpdate{
		Status:  &status,
		Message: &message,
		Errors:  itemErrors,
	}
	if status == domain.TaskStatusCompleted {
		stage := domain.StageFinished
		progress := progressDone
		update.Stage = &stage
		update.Progress = &progress
	}
	if err := t.registry.Update(ctx, t.taskID, update); err != nil {
		t.logger.Error("failed to record final status", "status", status, "error", err)
	}
}
