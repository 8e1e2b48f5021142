package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the hierarchy level a progress node belongs to.
type EntityType string

// Hierarchy levels carrying per-user progress.
const (
	EntityTypeSection      EntityType = "section"
	EntityTypeCourse       EntityType = "course"
	EntityTypeLearningPath EntityType = "learning_path"
)

// ProgressNode is a per-user completion percentage attached to a section,
// course or learning path. Its value is always a deterministic function of
// its children's percentages; it is mutated only by the cascade engine.
type ProgressNode struct {
	UserID      uuid.UUID  `json:"user_id"`
	EntityType  EntityType `json:"entity_type"`
	EntityID    uuid.UUID  `json:"entity_id"`
	Progress    float64    `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CompletionEdge is the per-user boolean completion state of a card. One
// card may be referenced by multiple sections, so a single edge change can
// fan out to several ancestors.
type CompletionEdge struct {
	UserID      uuid.UUID `json:"user_id"`
	CardID      uuid.UUID `json:"card_id"`
	IsCompleted bool      `json:"is_completed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApplyProgress records a freshly recomputed percentage, setting the
// completion timestamp when the node first reaches 100% and clearing it if
// the node later drops below 100%.
func (n *ProgressNode) ApplyProgress(percent float64, now time.Time) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	n.Progress = percent
	n.UpdatedAt = now
	if percent >= 100 {
		if n.CompletedAt == nil {
			completed := now
			n.CompletedAt = &completed
		}
	} else {
		n.CompletedAt = nil
	}
}
