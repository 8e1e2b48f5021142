package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pathlight/pathlight-api/internal/api/shared"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/service"
)

// TaskHandler serves task status polling requests.
type TaskHandler struct {
	taskService service.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// GetTask handles GET /api/tasks/{taskID} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		HandleAPIError(w, r, domain.NewValidationError("taskID", "is required", domain.ErrValidation), "")
		return
	}

	t, err := h.taskService.GetTask(r.Context(), userID, shared.GetIsAdmin(r.Context()), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// ListTasks handles GET /api/tasks requests with skip/limit pagination.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	skip := getQueryInt(r, "skip", 0)
	limit := getQueryInt(r, "limit", 0)

	tasks, err := h.taskService.ListTasks(r.Context(), userID, skip, limit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, taskToResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetLatestForPath handles GET /api/paths/{pathID}/tasks/latest requests,
// returning the most recent task that produced or is producing the path.
func (h *TaskHandler) GetLatestForPath(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	pathID, err := getPathUUID(r, "pathID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := h.taskService.GetLatestForPath(r.Context(), userID, shared.GetIsAdmin(r.Context()), pathID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}
