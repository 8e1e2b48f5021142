package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
)

// PostgresContentStore implements the store.ContentStore interface
// using a PostgreSQL database as the storage backend.
type PostgresContentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresContentStore creates a new PostgreSQL implementation of the ContentStore interface.
func NewPostgresContentStore(db store.DBTX, logger *slog.Logger) *PostgresContentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresContentStore{
		db:     db,
		logger: logger.With(slog.String("component", "content_store")),
	}
}

// Ensure PostgresContentStore implements store.ContentStore interface
var _ store.ContentStore = (*PostgresContentStore)(nil)

// SaveStructure implements store.ContentStore.SaveStructure.
// Callers run this inside a transaction so a failure leaves no partial path.
func (s *PostgresContentStore) SaveStructure(ctx context.Context, structure *store.PathStructure) error {
	path := structure.Path
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_paths (id, owner_id, title, topic, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, path.ID, path.OwnerID, path.Title, path.Topic, path.CreatedAt, path.UpdatedAt)
	if err != nil {
		s.logger.Error("failed to insert learning path",
			slog.String("error", err.Error()),
			slog.String("path_id", path.ID.String()))
		return MapError(err)
	}

	for coursePos, cs := range structure.Courses {
		course := cs.Course
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO courses (id, title, created_at)
			VALUES ($1, $2, $3)
		`, course.ID, course.Title, course.CreatedAt)
		if err != nil {
			return MapError(err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO path_courses (path_id, course_id, position)
			VALUES ($1, $2, $3)
		`, path.ID, course.ID, coursePos)
		if err != nil {
			return MapError(err)
		}

		for sectionPos, section := range cs.Sections {
			keywords, err := json.Marshal(section.Keywords)
			if err != nil {
				return fmt.Errorf("failed to marshal section keywords: %w", err)
			}
			_, err = s.db.ExecContext(ctx, `
				INSERT INTO sections (id, title, keywords, created_at)
				VALUES ($1, $2, $3, $4)
			`, section.ID, section.Title, keywords, section.CreatedAt)
			if err != nil {
				return MapError(err)
			}

			_, err = s.db.ExecContext(ctx, `
				INSERT INTO course_sections (course_id, section_id, position)
				VALUES ($1, $2, $3)
			`, course.ID, section.ID, sectionPos)
			if err != nil {
				return MapError(err)
			}
		}
	}

	s.logger.Info("path structure persisted",
		slog.String("path_id", path.ID.String()),
		slog.Int("courses", len(structure.Courses)))
	return nil
}

// SaveCard implements store.ContentStore.SaveCard
func (s *PostgresContentStore) SaveCard(ctx context.Context, sectionID uuid.UUID, card *domain.Card) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (id, keyword, question, answer, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, card.ID, card.Keyword, card.Question, card.Answer, card.CreatedAt)
	if err != nil {
		s.logger.Error("failed to insert card",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()))
		return MapError(err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO section_cards (section_id, card_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, sectionID, card.ID)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// CardExists implements store.ContentStore.CardExists
func (s *PostgresContentStore) CardExists(ctx context.Context, cardID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE id = $1`, cardID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, MapError(err)
	}
	return true, nil
}

// SectionsContainingCard implements store.ContentStore.SectionsContainingCard
func (s *PostgresContentStore) SectionsContainingCard(ctx context.Context, cardID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id FROM section_cards WHERE card_id = $1
	`, cardID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan section id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CoursesContainingSections implements store.ContentStore.CoursesContainingSections
func (s *PostgresContentStore) CoursesContainingSections(
	ctx context.Context,
	sectionIDs []uuid.UUID,
) (map[uuid.UUID][]uuid.UUID, error) {
	return s.edgeMap(ctx, `
		SELECT section_id, course_id FROM course_sections
		WHERE section_id = ANY($1::uuid[])
	`, sectionIDs)
}

// PathsContainingCourses implements store.ContentStore.PathsContainingCourses
func (s *PostgresContentStore) PathsContainingCourses(
	ctx context.Context,
	courseIDs []uuid.UUID,
) (map[uuid.UUID][]uuid.UUID, error) {
	return s.edgeMap(ctx, `
		SELECT course_id, path_id FROM path_courses
		WHERE course_id = ANY($1::uuid[])
	`, courseIDs)
}

// SectionsOfCourses implements store.ContentStore.SectionsOfCourses
func (s *PostgresContentStore) SectionsOfCourses(
	ctx context.Context,
	courseIDs []uuid.UUID,
) (map[uuid.UUID][]uuid.UUID, error) {
	return s.edgeMap(ctx, `
		SELECT course_id, section_id FROM course_sections
		WHERE course_id = ANY($1::uuid[])
	`, courseIDs)
}

// CoursesOfPaths implements store.ContentStore.CoursesOfPaths
func (s *PostgresContentStore) CoursesOfPaths(
	ctx context.Context,
	pathIDs []uuid.UUID,
) (map[uuid.UUID][]uuid.UUID, error) {
	return s.edgeMap(ctx, `
		SELECT path_id, course_id FROM path_courses
		WHERE path_id = ANY($1::uuid[])
	`, pathIDs)
}

// WithTx implements store.ContentStore.WithTx
func (s *PostgresContentStore) WithTx(tx *sql.Tx) store.ContentStore {
	return &PostgresContentStore{
		db:     tx,
		logger: s.logger,
	}
}

// edgeMap runs a two-column (key, value) query over a uuid set and groups
// the values by key.
func (s *PostgresContentStore) edgeMap(
	ctx context.Context,
	query string,
	ids []uuid.UUID,
) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value uuid.UUID
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		out[key] = append(out[key], value)
	}
	return out, rows.Err()
}

// uuidStrings converts a uuid slice into the string form the stdlib driver
// can bind as a uuid[] parameter.
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
