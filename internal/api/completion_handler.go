package api

import (
	"net/http"

	"github.com/pathlight/pathlight-api/internal/api/shared"
	"github.com/pathlight/pathlight-api/internal/service"
)

// SetCompletionRequest represents the request body for updating a card's
// completion state.
type SetCompletionRequest struct {
	IsCompleted *bool `json:"is_completed" validate:"required"`
}

// CompletionHandler handles card completion HTTP requests.
type CompletionHandler struct {
	progressService service.ProgressService
}

// NewCompletionHandler creates a new CompletionHandler.
func NewCompletionHandler(progressService service.ProgressService) *CompletionHandler {
	return &CompletionHandler{progressService: progressService}
}

// SetCompletion handles PUT /api/cards/{cardID}/completion requests. The
// response echoes every progress node the cascade recomputed.
func (h *CompletionHandler) SetCompletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	cardID, err := getPathUUID(r, "cardID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req SetCompletionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if req.IsCompleted == nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "is_completed is required")
		return
	}

	result, err := h.progressService.SetCardCompletion(r.Context(), userID, cardID, *req.IsCompleted)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, cascadeToResponse(result))
}
