package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pathlight/pathlight-api/internal/api/shared"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/service"
)

// GeneratePathRequest represents the request body for starting a path
// generation task.
type GeneratePathRequest struct {
	Topic string `json:"topic" validate:"required,min=1,max=500"`
	Title string `json:"title,omitempty" validate:"max=200"`
}

// GenerationHandler handles path generation HTTP requests.
type GenerationHandler struct {
	pathService service.PathService
	validator   *validator.Validate
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(pathService service.PathService) *GenerationHandler {
	return &GenerationHandler{
		pathService: pathService,
		validator:   validator.New(),
	}
}

// GeneratePath handles POST /api/paths/generate requests. Work happens in
// the background; the response carries the task ID for polling.
func (h *GenerationHandler) GeneratePath(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req GeneratePathRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: topic is required")
		return
	}

	taskID, err := h.pathService.GeneratePath(r.Context(), userID, req.Topic, req.Title)
	if err != nil {
		slog.Error("failed to start path generation",
			"error", err,
			"user_id", userID)
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, GenerationAcceptedResponse{
		TaskID:  taskID,
		Status:  string(domain.TaskStatusPending),
		Message: "Path generation started",
	})
}
