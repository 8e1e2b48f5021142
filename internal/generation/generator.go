package generation

import (
	"context"

	"github.com/pathlight/pathlight-api/internal/domain"
)

// Goals captures the learning intent extracted from a raw topic before any
// structure is planned.
type Goals struct {
	Topic      string   `json:"topic"`
	Objectives []string `json:"objectives"`
	Audience   string   `json:"audience,omitempty"`
}

// Plan is a generated learning-path structure: courses containing sections,
// each section carrying the keywords that per-item card generation will
// later expand.
type Plan struct {
	Title   string       `json:"title"`
	Courses []PlanCourse `json:"courses"`
}

// PlanCourse is one planned course.
type PlanCourse struct {
	Title    string        `json:"title"`
	Sections []PlanSection `json:"sections"`
}

// PlanSection is one planned section with its card keywords.
type PlanSection struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

// ItemCount returns the number of cards the plan will produce, one per
// section keyword.
func (p *Plan) ItemCount() int {
	n := 0
	for _, course := range p.Courses {
		for _, section := range course.Sections {
			n += len(section.Keywords)
		}
	}
	return n
}

// Generator is the opaque content-generation capability consumed by the
// path generation workflow. Implementations may be slow and may fail;
// callers are responsible for checkpointing around each call.
type Generator interface {
	// ExtractGoals distills a raw topic into learning goals.
	ExtractGoals(ctx context.Context, topic string) (*Goals, error)

	// PlanStructure turns extracted goals into a full path structure.
	PlanStructure(ctx context.Context, goals *Goals) (*Plan, error)

	// GenerateCard produces one card for a keyword in the context of its
	// section. A failure here is an item-level error the workflow recovers
	// from locally.
	GenerateCard(ctx context.Context, sectionTitle, keyword string) (*domain.Card, error)
}

// PlanCache stores planned structures keyed by topic so identical requests
// can skip the expensive planning call. Implementations must be safe for
// concurrent use. A nil PlanCache disables caching.
type PlanCache interface {
	// GetPlan returns the cached plan for the topic, or (nil, nil) on a miss.
	GetPlan(ctx context.Context, topic string) (*Plan, error)

	// SetPlan caches the plan for the topic.
	SetPlan(ctx context.Context, topic string, plan *Plan) error
}
