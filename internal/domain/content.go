package domain

import (
	"time"

	"github.com/google/uuid"
)

// LearningPath is the top of the content hierarchy and the subject entity
// produced by a path generation task.
type LearningPath struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Course groups sections inside a learning path.
type Course struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Section groups cards inside a course. Sections draw cards from a shared
// library, so one card may appear in many sections.
type Section struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Keywords  []string  `json:"keywords,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Card is the leaf content item. Per-user completion of cards drives the
// progress cascade.
type Card struct {
	ID        uuid.UUID `json:"id"`
	Keyword   string    `json:"keyword"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLearningPath creates a learning path owned by ownerID.
func NewLearningPath(ownerID uuid.UUID, title, topic string) (*LearningPath, error) {
	if ownerID == uuid.Nil {
		return nil, NewValidationError("owner_id", "cannot be empty", ErrValidation)
	}
	if title == "" {
		return nil, NewValidationError("title", "cannot be empty", ErrEmptyContent)
	}
	now := time.Now().UTC()
	return &LearningPath{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		Topic:     topic,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewCard creates a card for the given keyword.
func NewCard(keyword, question, answer string) (*Card, error) {
	if question == "" || answer == "" {
		return nil, NewValidationError("card", "question and answer are required", ErrEmptyContent)
	}
	return &Card{
		ID:        uuid.New(),
		Keyword:   keyword,
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}, nil
}
