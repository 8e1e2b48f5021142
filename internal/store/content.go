package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/domain"
)

// PathStructure is a fully planned learning path ready for persistence:
// the path record plus its courses, each course's sections, and each
// section's keywords (one card will be generated per keyword).
type PathStructure struct {
	Path    *domain.LearningPath
	Courses []CourseStructure
}

// CourseStructure pairs a course with its planned sections.
type CourseStructure struct {
	Course   *domain.Course
	Sections []*domain.Section
}

// ContentStore persists the content hierarchy and answers the structural
// queries the cascade engine needs for fan-out.
// Version: 1.0
type ContentStore interface {
	// SaveStructure persists a learning path with all its courses,
	// sections and membership edges in one shot. Used by the workflow's
	// saving_structure phase; a failure must not leave a partial subject,
	// so callers run this inside a transaction.
	SaveStructure(ctx context.Context, structure *PathStructure) error

	// SaveCard persists a generated card and links it into the section.
	SaveCard(ctx context.Context, sectionID uuid.UUID, card *domain.Card) error

	// CardExists reports whether the card exists at all, regardless of
	// section membership.
	CardExists(ctx context.Context, cardID uuid.UUID) (bool, error)

	// SectionsContainingCard returns the IDs of every section that
	// references the card. Shared-library semantics: one card may belong
	// to many sections.
	SectionsContainingCard(ctx context.Context, cardID uuid.UUID) ([]uuid.UUID, error)

	// CoursesContainingSections returns, for each given section, the IDs
	// of courses containing it, keyed by section ID.
	CoursesContainingSections(ctx context.Context, sectionIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)

	// PathsContainingCourses returns, for each given course, the IDs of
	// learning paths containing it, keyed by course ID.
	PathsContainingCourses(ctx context.Context, courseIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)

	// SectionsOfCourses returns all section IDs of each given course,
	// keyed by course ID. Used to take the mean over every child, not
	// just the affected ones.
	SectionsOfCourses(ctx context.Context, courseIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)

	// CoursesOfPaths returns all course IDs of each given path, keyed by
	// path ID.
	CoursesOfPaths(ctx context.Context, pathIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)

	// WithTx returns a new ContentStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ContentStore
}
