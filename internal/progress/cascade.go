package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/metrics"
	"github.com/pathlight/pathlight-api/internal/store"
)

// Engine recomputes the progress hierarchy after a card completion event.
// Apply expects transaction-bound stores so the edge write and all three
// recomputation hops commit or roll back together.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a cascade engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Result carries the written edge and every progress node the cascade
// touched, for handlers that echo the new state back to the caller.
type Result struct {
	Edge     *domain.CompletionEdge
	Sections []*domain.ProgressNode
	Courses  []*domain.ProgressNode
	Paths    []*domain.ProgressNode
}

// Apply records the user's completion state for a card and recomputes every
// affected ancestor. Sections are recomputed from completion edges; courses
// and paths are recomputed as the mean over all their children, reading
// persisted percentages for the unaffected siblings (absent nodes count
// as 0).
func (e *Engine) Apply(
	ctx context.Context,
	content store.ContentStore,
	progress store.ProgressStore,
	userID, cardID uuid.UUID,
	completed bool,
) (*Result, error) {
	edge, err := progress.UpsertCompletion(ctx, userID, cardID, completed)
	if err != nil {
		return nil, fmt.Errorf("failed to record completion: %w", err)
	}
	now := edge.UpdatedAt
	result := &Result{Edge: edge}

	// Hop 1: every section containing the card.
	sectionIDs, err := content.SectionsContainingCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sections: %w", err)
	}
	if len(sectionIDs) == 0 {
		// Orphan card: the edge is recorded but nothing cascades.
		return result, nil
	}

	sectionPercents := make(map[uuid.UUID]float64, len(sectionIDs))
	for _, sectionID := range sectionIDs {
		total, done, err := progress.SectionCompletionCounts(ctx, userID, sectionID)
		if err != nil {
			return nil, fmt.Errorf("failed to count section completions: %w", err)
		}
		percent := 0.0
		if total > 0 {
			percent = 100 * float64(done) / float64(total)
		}
		node, err := e.writeNode(ctx, progress, userID, domain.EntityTypeSection, sectionID, percent, now)
		if err != nil {
			return nil, err
		}
		sectionPercents[sectionID] = percent
		result.Sections = append(result.Sections, node)
	}

	// Hop 2: every course containing an affected section, deduplicated.
	courseBySection, err := content.CoursesContainingSections(ctx, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve courses: %w", err)
	}
	courseIDs := dedupe(courseBySection)
	coursePercents, nodes, err := e.recomputeLevel(ctx, recomputeLevelParams{
		content:       content,
		progress:      progress,
		userID:        userID,
		now:           now,
		entityType:    domain.EntityTypeCourse,
		childType:     domain.EntityTypeSection,
		parentIDs:     courseIDs,
		childrenOf:    content.SectionsOfCourses,
		freshPercents: sectionPercents,
	})
	if err != nil {
		return nil, err
	}
	result.Courses = nodes

	// Hop 3: every learning path containing an affected course.
	pathByCourse, err := content.PathsContainingCourses(ctx, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve learning paths: %w", err)
	}
	pathIDs := dedupe(pathByCourse)
	_, nodes, err = e.recomputeLevel(ctx, recomputeLevelParams{
		content:       content,
		progress:      progress,
		userID:        userID,
		now:           now,
		entityType:    domain.EntityTypeLearningPath,
		childType:     domain.EntityTypeCourse,
		parentIDs:     pathIDs,
		childrenOf:    content.CoursesOfPaths,
		freshPercents: coursePercents,
	})
	if err != nil {
		return nil, err
	}
	result.Paths = nodes

	metrics.CascadeUpdates.Inc()
	e.logger.Debug("progress cascade applied",
		"user_id", userID,
		"card_id", cardID,
		"sections", len(result.Sections),
		"courses", len(result.Courses),
		"paths", len(result.Paths))
	return result, nil
}

type recomputeLevelParams struct {
	content    store.ContentStore
	progress   store.ProgressStore
	userID     uuid.UUID
	now        time.Time
	entityType domain.EntityType
	childType  domain.EntityType
	parentIDs  []uuid.UUID
	childrenOf func(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	// freshPercents holds the percentages recomputed in the previous hop;
	// siblings outside it are read from persisted nodes.
	freshPercents map[uuid.UUID]float64
}

// recomputeLevel recomputes one hierarchy level as the mean of all children
// of each parent and returns the new percentages keyed by parent ID.
func (e *Engine) recomputeLevel(ctx context.Context, p recomputeLevelParams) (map[uuid.UUID]float64, []*domain.ProgressNode, error) {
	if len(p.parentIDs) == 0 {
		return map[uuid.UUID]float64{}, nil, nil
	}

	children, err := p.childrenOf(ctx, p.parentIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s children: %w", p.entityType, err)
	}

	// Collect siblings whose percentage was not recomputed this cascade.
	var staleIDs []uuid.UUID
	for _, childIDs := range children {
		for _, id := range childIDs {
			if _, ok := p.freshPercents[id]; !ok {
				staleIDs = append(staleIDs, id)
			}
		}
	}
	persisted := map[uuid.UUID]float64{}
	if len(staleIDs) > 0 {
		persisted, err = p.progress.GetPercents(ctx, p.userID, p.childType, staleIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load %s percentages: %w", p.childType, err)
		}
	}

	percents := make(map[uuid.UUID]float64, len(p.parentIDs))
	var nodes []*domain.ProgressNode
	for _, parentID := range p.parentIDs {
		childIDs := children[parentID]
		percent := 0.0
		if len(childIDs) > 0 {
			sum := 0.0
			for _, id := range childIDs {
				if fresh, ok := p.freshPercents[id]; ok {
					sum += fresh
				} else {
					sum += persisted[id]
				}
			}
			percent = sum / float64(len(childIDs))
		}
		node, err := e.writeNode(ctx, p.progress, p.userID, p.entityType, parentID, percent, p.now)
		if err != nil {
			return nil, nil, err
		}
		percents[parentID] = percent
		nodes = append(nodes, node)
	}
	return percents, nodes, nil
}

// writeNode loads or lazily creates the node, applies the percentage and
// persists it.
func (e *Engine) writeNode(
	ctx context.Context,
	progress store.ProgressStore,
	userID uuid.UUID,
	entityType domain.EntityType,
	entityID uuid.UUID,
	percent float64,
	now time.Time,
) (*domain.ProgressNode, error) {
	node, err := progress.GetNode(ctx, userID, entityType, entityID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load %s node: %w", entityType, err)
		}
		node = &domain.ProgressNode{
			UserID:     userID,
			EntityType: entityType,
			EntityID:   entityID,
		}
	}
	node.ApplyProgress(percent, now)
	if err := progress.UpsertNode(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to persist %s node: %w", entityType, err)
	}
	return node, nil
}

// dedupe flattens a child-to-parents map into a unique parent ID list.
func dedupe(m map[uuid.UUID][]uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, ids := range m {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
