package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
)

// taskColumns is the canonical select list shared by every task query.
const taskColumns = `id, kind, owner_id, subject_id, status, stage, progress,
	total_items, completed_items, message, error_details, errors, payload,
	created_at, updated_at, started_at, ended_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, t *domain.Task) error {
	if err := t.Validate(); err != nil {
		s.logger.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID))
		return err
	}

	errorsJSON, err := json.Marshal(t.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal task errors: %w", err)
	}
	payload := t.Payload
	if payload == nil {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO tasks (id, kind, owner_id, subject_id, status, stage, progress,
			total_items, completed_items, message, error_details, errors, payload,
			created_at, updated_at, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		t.Kind,
		t.OwnerID,
		t.SubjectID,
		t.Status,
		t.Stage,
		t.Progress,
		t.TotalItems,
		t.CompletedItems,
		t.Message,
		t.ErrorDetails,
		errorsJSON,
		payload,
		t.CreatedAt,
		t.UpdatedAt,
		t.StartedAt,
		t.EndedAt,
	)
	if err != nil {
		s.logger.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID))
		return MapError(err)
	}

	s.logger.Info("task created",
		slog.String("task_id", t.ID),
		slog.String("kind", t.Kind),
		slog.String("owner_id", t.OwnerID.String()))
	return nil
}

// Update implements store.TaskStore.Update. The statement itself enforces
// the write invariants: a terminal row never matches the WHERE clause, so
// late writes are silently discarded; a status change only matches rows the
// state machine allows as its source; and progress is merged through
// GREATEST so it never moves backwards.
func (s *PostgresTaskStore) Update(ctx context.Context, taskID string, update store.TaskUpdate) error {
	setClauses := []string{"updated_at = $2"}
	args := []interface{}{taskID, time.Now().UTC()}
	next := 3

	addClause := func(clause string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf(clause, next))
		args = append(args, value)
		next++
	}

	whereClauses := []string{
		"id = $1",
		"status NOT IN ('completed', 'failed', 'timed_out')",
	}

	if update.Status != nil {
		if !update.Status.IsValid() {
			return domain.ErrInvalidTaskStatus
		}
		addClause("status = $%d", *update.Status)
		if update.Status.IsTerminal() {
			// $2 is the update timestamp, so ended_at and updated_at agree.
			setClauses = append(setClauses, "ended_at = $2")
		}
		// Constrain the write to legal edges of the lifecycle state
		// machine so a stray caller cannot move a task backwards.
		whereClauses = append(whereClauses, fmt.Sprintf("status = ANY($%d::text[])", next))
		args = append(args, statusStrings(domain.TransitionSources(*update.Status)))
		next++
	}
	if update.Stage != nil {
		addClause("stage = $%d", *update.Stage)
	}
	if update.Progress != nil {
		addClause("progress = GREATEST(progress, $%d)", *update.Progress)
	}
	if update.TotalItems != nil {
		addClause("total_items = $%d", *update.TotalItems)
	}
	if update.CompletedItems != nil {
		addClause("completed_items = $%d", *update.CompletedItems)
	}
	if update.SubjectID != nil {
		addClause("subject_id = $%d", *update.SubjectID)
	}
	if update.Message != nil {
		addClause("message = $%d", *update.Message)
	}
	if update.ErrorDetails != nil {
		addClause("error_details = $%d", *update.ErrorDetails)
	}
	if update.Errors != nil {
		errorsJSON, err := json.Marshal(update.Errors)
		if err != nil {
			return fmt.Errorf("failed to marshal task errors: %w", err)
		}
		addClause("errors = $%d", errorsJSON)
	}

	query := fmt.Sprintf(`
		UPDATE tasks
		SET %s
		WHERE %s
	`, strings.Join(setClauses, ", "), strings.Join(whereClauses, " AND "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// The task is gone, already terminal, or the requested status change
		// is not a legal edge. Terminal rows absorb late writes without
		// error; an illegal transition against a live row is a caller bug.
		current, err := s.currentStatus(ctx, taskID)
		if err != nil {
			return err
		}
		if current == "" {
			return store.ErrTaskNotFound
		}
		if update.Status != nil && !current.IsTerminal() {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, *update.Status)
		}
		s.logger.Debug("update discarded for terminal task",
			slog.String("task_id", taskID))
	}
	return nil
}

// statusStrings converts statuses to plain strings for array binding.
func statusStrings(statuses []domain.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, taskID string) (*domain.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)
	t, err := s.scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		s.logger.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID))
		return nil, MapError(err)
	}
	return t, nil
}

// ListByOwner implements store.TaskStore.ListByOwner
func (s *PostgresTaskStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	offset, limit int,
) ([]*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`, taskColumns)

	rows, err := s.db.QueryContext(ctx, query, ownerID, offset, limit)
	if err != nil {
		s.logger.Error("failed to list tasks",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return s.collectTasks(rows)
}

// GetLatestBySubject implements store.TaskStore.GetLatestBySubject
func (s *PostgresTaskStore) GetLatestBySubject(ctx context.Context, subjectID uuid.UUID) (*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, taskColumns)

	t, err := s.scanTask(s.db.QueryRowContext(ctx, query, subjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		s.logger.Error("failed to get latest task for subject",
			slog.String("error", err.Error()),
			slog.String("subject_id", subjectID.String()))
		return nil, MapError(err)
	}
	return t, nil
}

// Claim implements store.TaskStore.Claim. The conditional UPDATE is the
// single-writer gate: exactly one caller observes an affected row.
func (s *PostgresTaskStore) Claim(ctx context.Context, taskID string) (*domain.Task, error) {
	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = 'starting', started_at = $2, updated_at = $2
		WHERE id = $1
		  AND status IN ('pending', 'queued')
		RETURNING %s
	`, taskColumns)

	t, err := s.scanTask(s.db.QueryRowContext(ctx, query, taskID, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotClaimable
		}
		s.logger.Error("failed to claim task",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID))
		return nil, MapError(err)
	}

	s.logger.Debug("task claimed", slog.String("task_id", taskID))
	return t, nil
}

// FindByStatus implements store.TaskStore.FindByStatus
func (s *PostgresTaskStore) FindByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Duration,
) ([]*domain.Task, error) {
	var query string
	var args []interface{}

	if olderThan > 0 {
		query = fmt.Sprintf(`
			SELECT %s FROM tasks
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC
		`, taskColumns)
		args = []interface{}{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = fmt.Sprintf(`
			SELECT %s FROM tasks
			WHERE status = $1
			ORDER BY created_at ASC
		`, taskColumns)
		args = []interface{}{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to find tasks by status",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return s.collectTasks(rows)
}

// FindExpired implements store.TaskStore.FindExpired. The cutoff compares
// started_at rather than updated_at: a workflow that keeps checkpointing
// refreshes updated_at on every write, but its total execution time is
// still bounded from the moment it was claimed.
func (s *PostgresTaskStore) FindExpired(
	ctx context.Context,
	statuses []domain.TaskStatus,
	timeout time.Duration,
) ([]*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE status = ANY($1::text[])
		  AND started_at IS NOT NULL
		  AND started_at < $2
		ORDER BY started_at ASC
	`, taskColumns)

	rows, err := s.db.QueryContext(ctx, query, statusStrings(statuses), time.Now().UTC().Add(-timeout))
	if err != nil {
		s.logger.Error("failed to find expired tasks",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return s.collectTasks(rows)
}

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// currentStatus reads a task's status regardless of lifecycle state. The
// empty string means the row does not exist.
func (s *PostgresTaskStore) currentStatus(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	var status domain.TaskStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, taskID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", MapError(err)
	}
	return status, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask reads one task row in taskColumns order.
func (s *PostgresTaskStore) scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var subjectID uuid.NullUUID
	var stage, message, errorDetails sql.NullString
	var totalItems sql.NullInt64
	var errorsJSON []byte
	var startedAt, endedAt sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.Kind,
		&t.OwnerID,
		&subjectID,
		&t.Status,
		&stage,
		&t.Progress,
		&totalItems,
		&t.CompletedItems,
		&message,
		&errorDetails,
		&errorsJSON,
		&t.Payload,
		&t.CreatedAt,
		&t.UpdatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if subjectID.Valid {
		id := subjectID.UUID
		t.SubjectID = &id
	}
	t.Stage = stage.String
	t.Message = message.String
	t.ErrorDetails = errorDetails.String
	if totalItems.Valid {
		total := int(totalItems.Int64)
		t.TotalItems = &total
	}
	if startedAt.Valid {
		started := startedAt.Time
		t.StartedAt = &started
	}
	if endedAt.Valid {
		ended := endedAt.Time
		t.EndedAt = &ended
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &t.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task errors: %w", err)
		}
	}
	return &t, nil
}

// collectTasks drains a result set into task records.
func (s *PostgresTaskStore) collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}
