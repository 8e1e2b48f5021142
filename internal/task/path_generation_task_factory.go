package task

import (
	"log/slog"

	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/generation"
)

// PathGenerationTaskFactory builds path generation tasks from registry
// records, both for fresh submissions and for recovery after a restart.
type PathGenerationTaskFactory struct {
	registry  Registry
	generator generation.Generator
	content   ContentWriter
	planCache generation.PlanCache
	config    WorkflowConfig
	logger    *slog.Logger
}

// NewPathGenerationTaskFactory creates a factory with the workflow's
// collaborators.
func NewPathGenerationTaskFactory(
	registry Registry,
	generator generation.Generator,
	content ContentWriter,
	planCache generation.PlanCache,
	config WorkflowConfig,
	logger *slog.Logger,
) *PathGenerationTaskFactory {
	return &PathGenerationTaskFactory{
		registry:  registry,
		generator: generator,
		content:   content,
		planCache: planCache,
		config:    config,
		logger:    logger,
	}
}

// Kind returns the task kind this factory rebuilds.
func (f *PathGenerationTaskFactory) Kind() string {
	return domain.TaskKindPathGeneration
}

// Rebuild reconstructs a runnable workflow from a persisted record.
func (f *PathGenerationTaskFactory) Rebuild(t *domain.Task) (Runnable, error) {
	return NewPathGenerationTask(t, f.registry, f.generator, f.content, f.planCache, f.config, f.logger)
}

// Build wraps a freshly created record for first submission.
func (f *PathGenerationTaskFactory) Build(t *domain.Task) (Runnable, error) {
	return f.Rebuild(t)
}
