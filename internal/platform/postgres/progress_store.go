package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
)

// PostgresProgressStore implements the store.ProgressStore interface
// using a PostgreSQL database as the storage backend.
type PostgresProgressStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresProgressStore creates a new PostgreSQL implementation of the ProgressStore interface.
func NewPostgresProgressStore(db store.DBTX, logger *slog.Logger) *PostgresProgressStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresProgressStore{
		db:     db,
		logger: logger.With(slog.String("component", "progress_store")),
	}
}

// Ensure PostgresProgressStore implements store.ProgressStore interface
var _ store.ProgressStore = (*PostgresProgressStore)(nil)

// UpsertCompletion implements store.ProgressStore.UpsertCompletion
func (s *PostgresProgressStore) UpsertCompletion(
	ctx context.Context,
	userID, cardID uuid.UUID,
	completed bool,
) (*domain.CompletionEdge, error) {
	edge := &domain.CompletionEdge{
		UserID:      userID,
		CardID:      cardID,
		IsCompleted: completed,
		UpdatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_completions (user_id, card_id, is_completed, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, card_id)
		DO UPDATE SET is_completed = EXCLUDED.is_completed, updated_at = EXCLUDED.updated_at
	`, edge.UserID, edge.CardID, edge.IsCompleted, edge.UpdatedAt)
	if err != nil {
		s.logger.Error("failed to upsert completion",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.String("card_id", cardID.String()))
		return nil, MapError(err)
	}
	return edge, nil
}

// SectionCompletionCounts implements store.ProgressStore.SectionCompletionCounts.
// Cards with no completion edge count as not completed.
func (s *PostgresProgressStore) SectionCompletionCounts(
	ctx context.Context,
	userID, sectionID uuid.UUID,
) (int, int, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE cc.is_completed)
		FROM section_cards sc
		LEFT JOIN card_completions cc
		       ON cc.card_id = sc.card_id AND cc.user_id = $1
		WHERE sc.section_id = $2
	`
	var total, completed int
	err := s.db.QueryRowContext(ctx, query, userID, sectionID).Scan(&total, &completed)
	if err != nil {
		s.logger.Error("failed to count section completions",
			slog.String("error", err.Error()),
			slog.String("section_id", sectionID.String()))
		return 0, 0, MapError(err)
	}
	return total, completed, nil
}

// UpsertNode implements store.ProgressStore.UpsertNode
func (s *PostgresProgressStore) UpsertNode(ctx context.Context, node *domain.ProgressNode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_nodes (user_id, entity_type, entity_id, progress, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, entity_type, entity_id)
		DO UPDATE SET progress = EXCLUDED.progress,
		              completed_at = EXCLUDED.completed_at,
		              updated_at = EXCLUDED.updated_at
	`, node.UserID, node.EntityType, node.EntityID, node.Progress, node.CompletedAt, node.UpdatedAt)
	if err != nil {
		s.logger.Error("failed to upsert progress node",
			slog.String("error", err.Error()),
			slog.String("entity_type", string(node.EntityType)),
			slog.String("entity_id", node.EntityID.String()))
		return MapError(err)
	}
	return nil
}

// GetNode implements store.ProgressStore.GetNode
func (s *PostgresProgressStore) GetNode(
	ctx context.Context,
	userID uuid.UUID,
	entityType domain.EntityType,
	entityID uuid.UUID,
) (*domain.ProgressNode, error) {
	node := &domain.ProgressNode{
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
	}
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT progress, completed_at, updated_at
		FROM progress_nodes
		WHERE user_id = $1 AND entity_type = $2 AND entity_id = $3
	`, userID, entityType, entityID).Scan(&node.Progress, &completedAt, &node.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, MapError(err)
	}

	if completedAt.Valid {
		completed := completedAt.Time
		node.CompletedAt = &completed
	}
	return node, nil
}

// GetPercents implements store.ProgressStore.GetPercents
func (s *PostgresProgressStore) GetPercents(
	ctx context.Context,
	userID uuid.UUID,
	entityType domain.EntityType,
	entityIDs []uuid.UUID,
) (map[uuid.UUID]float64, error) {
	out := make(map[uuid.UUID]float64, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, progress
		FROM progress_nodes
		WHERE user_id = $1 AND entity_type = $2 AND entity_id = ANY($3::uuid[])
	`, userID, entityType, uuidStrings(entityIDs))
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id uuid.UUID
		var progress float64
		if err := rows.Scan(&id, &progress); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		out[id] = progress
	}
	return out, rows.Err()
}

// WithTx implements store.ProgressStore.WithTx
func (s *PostgresProgressStore) WithTx(tx *sql.Tx) store.ProgressStore {
	return &PostgresProgressStore{
		db:     tx,
		logger: s.logger,
	}
}
