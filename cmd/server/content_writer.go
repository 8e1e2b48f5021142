package main

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
	"github.com/pathlight/pathlight-api/internal/task"
)

// transactionalContentWriter adapts the content store to the workflow's
// ContentWriter: structure persistence runs in a transaction so a failure
// never leaves a partial learning path behind.
type transactionalContentWriter struct {
	db      *sql.DB
	content store.ContentStore
}

func newTransactionalContentWriter(db *sql.DB, content store.ContentStore) *transactionalContentWriter {
	return &transactionalContentWriter{db: db, content: content}
}

// Ensure transactionalContentWriter implements task.ContentWriter
var _ task.ContentWriter = (*transactionalContentWriter)(nil)

// SaveStructure persists the whole planned structure atomically.
func (w *transactionalContentWriter) SaveStructure(ctx context.Context, structure *store.PathStructure) error {
	return store.RunInTransaction(ctx, w.db, func(ctx context.Context, tx *sql.Tx) error {
		return w.content.WithTx(tx).SaveStructure(ctx, structure)
	})
}

// SaveCard persists one generated card.
func (w *transactionalContentWriter) SaveCard(ctx context.Context, sectionID uuid.UUID, card *domain.Card) error {
	return w.content.SaveCard(ctx, sectionID, card)
}
