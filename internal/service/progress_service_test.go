package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/progress"
	"github.com/pathlight/pathlight-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubContentStore implements store.ContentStore for paths that never reach
// the database.
type stubContentStore struct {
	exists    bool
	existsErr error
}

func (s *stubContentStore) SaveStructure(ctx context.Context, structure *store.PathStructure) error {
	return nil
}

func (s *stubContentStore) SaveCard(ctx context.Context, sectionID uuid.UUID, card *domain.Card) error {
	return nil
}

func (s *stubContentStore) CardExists(ctx context.Context, cardID uuid.UUID) (bool, error) {
	return s.exists, s.existsErr
}

func (s *stubContentStore) SectionsContainingCard(ctx context.Context, cardID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *stubContentStore) CoursesContainingSections(ctx context.Context, sectionIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return nil, nil
}

func (s *stubContentStore) PathsContainingCourses(ctx context.Context, courseIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return nil, nil
}

func (s *stubContentStore) SectionsOfCourses(ctx context.Context, courseIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return nil, nil
}

func (s *stubContentStore) CoursesOfPaths(ctx context.Context, pathIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return nil, nil
}

func (s *stubContentStore) WithTx(tx *sql.Tx) store.ContentStore { return s }

// stubProgressStore implements store.ProgressStore; none of its methods are
// reached in these tests.
type stubProgressStore struct{}

func (s *stubProgressStore) UpsertCompletion(ctx context.Context, userID, cardID uuid.UUID, completed bool) (*domain.CompletionEdge, error) {
	return nil, nil
}

func (s *stubProgressStore) SectionCompletionCounts(ctx context.Context, userID, sectionID uuid.UUID) (int, int, error) {
	return 0, 0, nil
}

func (s *stubProgressStore) UpsertNode(ctx context.Context, node *domain.ProgressNode) error {
	return nil
}

func (s *stubProgressStore) GetNode(ctx context.Context, userID uuid.UUID, entityType domain.EntityType, entityID uuid.UUID) (*domain.ProgressNode, error) {
	return nil, store.ErrNotFound
}

func (s *stubProgressStore) GetPercents(ctx context.Context, userID uuid.UUID, entityType domain.EntityType, entityIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	return nil, nil
}

func (s *stubProgressStore) WithTx(tx *sql.Tx) store.ProgressStore { return s }

// testDB returns an sql.DB handle that is never connected; the paths under
// test must fail before any query is issued.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", "postgres://localhost:1/unused")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewProgressService_Validation(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	content := &stubContentStore{}
	progressStore := &stubProgressStore{}
	engine := progress.NewEngine(testLogger())

	_, err := NewProgressService(nil, content, progressStore, engine, testLogger())
	assert.Error(t, err)

	_, err = NewProgressService(db, nil, progressStore, engine, testLogger())
	assert.Error(t, err)

	_, err = NewProgressService(db, content, nil, engine, testLogger())
	assert.Error(t, err)

	_, err = NewProgressService(db, content, progressStore, nil, testLogger())
	assert.Error(t, err)

	svc, err := NewProgressService(db, content, progressStore, engine, nil)
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestProgressService_SetCardCompletion_UnknownCard(t *testing.T) {
	t.Parallel()

	svc, err := NewProgressService(testDB(t), &stubContentStore{exists: false}, &stubProgressStore{},
		progress.NewEngine(testLogger()), testLogger())
	require.NoError(t, err)

	_, err = svc.SetCardCompletion(context.Background(), uuid.New(), uuid.New(), true)
	assert.ErrorIs(t, err, ErrCardNotFound)
}
