package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/pathlight/pathlight-api/internal/api/shared"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/progress"
	"github.com/pathlight/pathlight-api/internal/service"
)

// withUser injects the authenticated identity the way the auth middleware
// does, so handlers can be tested without real tokens.
func withUser(userID uuid.UUID, isAdmin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
			ctx = context.WithValue(ctx, shared.IsAdminContextKey, isAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// fakePathService implements service.PathService.
type fakePathService struct {
	generateFn func(ctx context.Context, ownerID uuid.UUID, topic, title string) (string, error)
}

func (f *fakePathService) GeneratePath(ctx context.Context, ownerID uuid.UUID, topic, title string) (string, error) {
	return f.generateFn(ctx, ownerID, topic, title)
}

// fakeTaskService implements service.TaskService.
type fakeTaskService struct {
	getFn    func(ctx context.Context, requesterID uuid.UUID, isAdmin bool, taskID string) (*domain.Task, error)
	listFn   func(ctx context.Context, requesterID uuid.UUID, offset, limit int) ([]*domain.Task, error)
	latestFn func(ctx context.Context, requesterID uuid.UUID, isAdmin bool, pathID uuid.UUID) (*domain.Task, error)
}

func (f *fakeTaskService) GetTask(ctx context.Context, requesterID uuid.UUID, isAdmin bool, taskID string) (*domain.Task, error) {
	return f.getFn(ctx, requesterID, isAdmin, taskID)
}

func (f *fakeTaskService) ListTasks(ctx context.Context, requesterID uuid.UUID, offset, limit int) ([]*domain.Task, error) {
	return f.listFn(ctx, requesterID, offset, limit)
}

func (f *fakeTaskService) GetLatestForPath(ctx context.Context, requesterID uuid.UUID, isAdmin bool, pathID uuid.UUID) (*domain.Task, error) {
	return f.latestFn(ctx, requesterID, isAdmin, pathID)
}

// fakeProgressService implements service.ProgressService.
type fakeProgressService struct {
	setFn func(ctx context.Context, userID, cardID uuid.UUID, completed bool) (*progress.Result, error)
}

func (f *fakeProgressService) SetCardCompletion(ctx context.Context, userID, cardID uuid.UUID, completed bool) (*progress.Result, error) {
	return f.setFn(ctx, userID, cardID, completed)
}

// Interface conformance checks for the fakes.
var (
	_ service.PathService     = (*fakePathService)(nil)
	_ service.TaskService     = (*fakeTaskService)(nil)
	_ service.ProgressService = (*fakeProgressService)(nil)
)
