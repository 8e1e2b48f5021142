package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/progress"
	"github.com/pathlight/pathlight-api/internal/store"
)

// ProgressService applies card completion events. Each event runs the full
// cascade inside one transaction: the completion edge and every recomputed
// section, course and path node commit together or not at all.
type ProgressService interface {
	// SetCardCompletion records the user's completion state of a card and
	// returns the edge plus every ancestor node the cascade updated.
	SetCardCompletion(ctx context.Context, userID, cardID uuid.UUID, completed bool) (*progress.Result, error)
}

type progressServiceImpl struct {
	db            *sql.DB
	contentStore  store.ContentStore
	progressStore store.ProgressStore
	engine        *progress.Engine
	logger        *slog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(
	db *sql.DB,
	contentStore store.ContentStore,
	progressStore store.ProgressStore,
	engine *progress.Engine,
	logger *slog.Logger,
) (ProgressService, error) {
	if db == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "db cannot be nil"}
	}
	if contentStore == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "contentStore cannot be nil"}
	}
	if progressStore == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "progressStore cannot be nil"}
	}
	if engine == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "engine cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &progressServiceImpl{
		db:            db,
		contentStore:  contentStore,
		progressStore: progressStore,
		engine:        engine,
		logger:        logger.With("component", "progress_service"),
	}, nil
}

// SetCardCompletion verifies the card exists, then runs the cascade in a
// single transaction.
func (s *progressServiceImpl) SetCardCompletion(
	ctx context.Context,
	userID, cardID uuid.UUID,
	completed bool,
) (*progress.Result, error) {
	exists, err := s.contentStore.CardExists(ctx, cardID)
	if err != nil {
		s.logger.Error("failed to check card existence",
			"error", err,
			"card_id", cardID)
		return nil, NewServiceError("set_card_completion", "failed to check card", err)
	}
	if !exists {
		return nil, ErrCardNotFound
	}

	var result *progress.Result
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txContent := s.contentStore.WithTx(tx)
		txProgress := s.progressStore.WithTx(tx)

		result, err = s.engine.Apply(ctx, txContent, txProgress, userID, cardID, completed)
		return err
	})
	if err != nil {
		s.logger.Error("progress cascade failed",
			"error", err,
			"user_id", userID,
			"card_id", cardID)
		return nil, NewServiceError("set_card_completion", "failed to apply completion", err)
	}

	s.logger.Info("card completion applied",
		"user_id", userID,
		"card_id", cardID,
		"completed", completed)
	return result, nil
}
