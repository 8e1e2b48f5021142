package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an asynchronous task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusStarting  TaskStatus = "starting"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusTimedOut  TaskStatus = "timed_out"
)

// Task kind constants.
const (
	// TaskKindPathGeneration identifies learning-path generation workflows.
	TaskKindPathGeneration = "path_generation"
)

// Well-known stage labels written by the path generation workflow. The
// stage column itself is free-form text; these are the values pollers
// should expect from the built-in workflow.
const (
	StageExtractingGoals   = "extracting_goals"
	StagePlanningStructure = "planning_structure"
	StageSavingStructure   = "saving_structure"
	StageGeneratingCards   = "generating_cards"
	StageFinished          = "finished"
)

// MaxTaskErrors bounds the per-item error list accumulated by a workflow so
// a pathological run cannot grow the task record without limit.
const MaxTaskErrors = 50

// taskTransitions encodes the allowed forward edges of the lifecycle state
// machine. Terminal states have no outgoing edges.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:  {TaskStatusQueued, TaskStatusStarting, TaskStatusFailed},
	TaskStatusQueued:   {TaskStatusStarting, TaskStatusFailed},
	TaskStatusStarting: {TaskStatusRunning, TaskStatusFailed, TaskStatusTimedOut},
	TaskStatusRunning:  {TaskStatusCompleted, TaskStatusFailed, TaskStatusTimedOut},
}

// Task is the persisted record tracking one asynchronous generation
// workflow's lifecycle. It is created once per generation request, mutated
// only by its owning executor, and never reused after reaching a terminal
// status.
type Task struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	SubjectID      *uuid.UUID `json:"subject_id,omitempty"`
	Status         TaskStatus `json:"status"`
	Stage          string     `json:"stage,omitempty"`
	Progress       float64    `json:"progress"`
	TotalItems     *int       `json:"total_items,omitempty"`
	CompletedItems int        `json:"completed_items"`
	Message        string     `json:"message,omitempty"`
	ErrorDetails   string     `json:"error_details,omitempty"`
	Errors         []string   `json:"errors,omitempty"`
	Payload        []byte     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// NewTask creates a new pending Task owned by ownerID. The ID is derived
// from kind, owner and creation time, which makes it globally unique and
// lets operators read the provenance of a task straight from its ID.
func NewTask(kind string, ownerID uuid.UUID, payload []byte) (*Task, error) {
	if kind == "" {
		return nil, NewValidationError("kind", "cannot be empty", ErrValidation)
	}
	if ownerID == uuid.Nil {
		return nil, NewValidationError("owner_id", "cannot be empty", ErrValidation)
	}

	now := time.Now().UTC()
	return &Task{
		ID:        fmt.Sprintf("%s_%s_%d", kind, ownerID, now.UnixNano()),
		Kind:      kind,
		OwnerID:   ownerID,
		Status:    TaskStatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsTerminal reports whether the status is final. Once a task reaches a
// terminal status, further writes are discarded.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimedOut:
		return true
	default:
		return false
	}
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusStarting,
		TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusTimedOut:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine allows moving from s
// to next. Self-transitions are permitted so repeated checkpoint writes
// within the same state remain legal.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s == next {
		return !s.IsTerminal()
	}
	for _, allowed := range taskTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// TransitionSources returns every status from which the state machine
// allows moving to next, including next itself when it permits repeated
// writes. Stores use it to constrain status updates to legal edges.
func TransitionSources(next TaskStatus) []TaskStatus {
	all := []TaskStatus{
		TaskStatusPending, TaskStatusQueued, TaskStatusStarting,
		TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusTimedOut,
	}
	var sources []TaskStatus
	for _, s := range all {
		if s.CanTransitionTo(next) {
			sources = append(sources, s)
		}
	}
	return sources
}

// IsTerminal reports whether the task has reached a final status.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// OwnedBy reports whether the given user owns this task.
func (t *Task) OwnedBy(userID uuid.UUID) bool {
	return t.OwnerID == userID
}

// Validate checks the task's invariants: a valid status, progress within
// 0-100, completed items never exceeding the known total, and ended_at set
// exactly when the status is terminal.
func (t *Task) Validate() error {
	if t.ID == "" {
		return NewValidationError("id", "cannot be empty", ErrValidation)
	}
	if t.OwnerID == uuid.Nil {
		return NewValidationError("owner_id", "cannot be empty", ErrValidation)
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	if t.Progress < 0 || t.Progress > 100 {
		return NewValidationError("progress", "must be between 0 and 100", ErrValidation)
	}
	if t.CompletedItems < 0 {
		return NewValidationError("completed_items", "cannot be negative", ErrValidation)
	}
	if t.TotalItems != nil && t.CompletedItems > *t.TotalItems {
		return NewValidationError("completed_items", "cannot exceed total items", ErrValidation)
	}
	if t.Status.IsTerminal() != (t.EndedAt != nil) {
		return NewValidationError("ended_at", "must be set exactly for terminal statuses", ErrValidation)
	}
	return nil
}
