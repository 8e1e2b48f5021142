package api

import (
	"time"

	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/progress"
)

// TaskResponse represents the polling view of a task record.
type TaskResponse struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	Stage          string     `json:"stage,omitempty"`
	Progress       float64    `json:"progress"`
	TotalItems     *int       `json:"total_items,omitempty"`
	CompletedItems int        `json:"completed_items"`
	SubjectID      string     `json:"subject_id,omitempty"`
	Message        string     `json:"message,omitempty"`
	ErrorDetails   string     `json:"error_details,omitempty"`
	Errors         []string   `json:"errors,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// taskToResponse converts a domain.Task to a TaskResponse.
func taskToResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:             t.ID,
		Kind:           t.Kind,
		Status:         string(t.Status),
		Stage:          t.Stage,
		Progress:       t.Progress,
		TotalItems:     t.TotalItems,
		CompletedItems: t.CompletedItems,
		Message:        t.Message,
		ErrorDetails:   t.ErrorDetails,
		Errors:         t.Errors,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		StartedAt:      t.StartedAt,
		EndedAt:        t.EndedAt,
	}
	if t.SubjectID != nil {
		resp.SubjectID = t.SubjectID.String()
	}
	return resp
}

// TaskListResponse wraps a page of task records.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// GenerationAcceptedResponse is returned when a generation task has been
// accepted for background processing.
type GenerationAcceptedResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ProgressNodeResponse represents a recomputed progress node.
type ProgressNodeResponse struct {
	EntityType  string     `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Progress    float64    `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CompletionResponse echoes the new completion state plus every progress
// node the cascade updated.
type CompletionResponse struct {
	CardID      string                 `json:"card_id"`
	IsCompleted bool                   `json:"is_completed"`
	Sections    []ProgressNodeResponse `json:"sections"`
	Courses     []ProgressNodeResponse `json:"courses"`
	Paths       []ProgressNodeResponse `json:"paths"`
}

// cascadeToResponse converts a cascade result into the response shape.
func cascadeToResponse(result *progress.Result) CompletionResponse {
	resp := CompletionResponse{
		CardID:      result.Edge.CardID.String(),
		IsCompleted: result.Edge.IsCompleted,
	}
	resp.Sections = nodesToResponses(result.Sections)
	resp.Courses = nodesToResponses(result.Courses)
	resp.Paths = nodesToResponses(result.Paths)
	return resp
}

func nodesToResponses(nodes []*domain.ProgressNode) []ProgressNodeResponse {
	out := make([]ProgressNodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, ProgressNodeResponse{
			EntityType:  string(n.EntityType),
			EntityID:    n.EntityID.String(),
			Progress:    n.Progress,
			CompletedAt: n.CompletedAt,
		})
	}
	return out
}
