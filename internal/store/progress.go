package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
)

// ProgressStore persists per-user completion edges and progress nodes.
// Nodes are created lazily on first relevant completion event and mutated
// only by the cascade engine.
// Version: 1.0
type ProgressStore interface {
	// UpsertCompletion records the per-user completion state of a card and
	// returns the resulting edge.
	UpsertCompletion(ctx context.Context, userID, cardID uuid.UUID, completed bool) (*domain.CompletionEdge, error)

	// SectionCompletionCounts returns the total number of cards in the
	// section and how many of them the user has completed.
	SectionCompletionCounts(ctx context.Context, userID, sectionID uuid.UUID) (total, completed int, err error)

	// UpsertNode writes a recomputed progress node.
	UpsertNode(ctx context.Context, node *domain.ProgressNode) error

	// GetNode retrieves a progress node. Returns ErrNotFound when the node
	// has not been created yet.
	GetNode(ctx context.Context, userID uuid.UUID, entityType domain.EntityType, entityID uuid.UUID) (*domain.ProgressNode, error)

	// GetPercents returns the persisted percentages for the given entities,
	// keyed by entity ID. Entities without a node are absent from the map;
	// callers treat them as 0.
	GetPercents(ctx context.Context, userID uuid.UUID, entityType domain.EntityType, entityIDs []uuid.UUID) (map[uuid.UUID]float64, error)

	// WithTx returns a new ProgressStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ProgressStore
}
