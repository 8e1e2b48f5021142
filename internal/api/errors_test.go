package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/service"
	"github.com/pathlight/pathlight-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden},
		{"task not found", service.ErrTaskNotFound, http.StatusNotFound},
		{"path not found", service.ErrPathNotFound, http.StatusNotFound},
		{"card not found", service.ErrCardNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"duplicate", store.ErrDuplicate, http.StatusConflict},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}

	t.Run("wrapped errors map by cause", func(t *testing.T) {
		t.Parallel()
		wrapped := domain.NewValidationError("topic", "cannot be empty", domain.ErrValidation)
		assert.Equal(t, http.StatusBadRequest, MapErrorToStatusCode(wrapped))
	})
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Task not found", GetSafeErrorMessage(service.ErrTaskNotFound))
	assert.Equal(t, "You do not have access to this resource", GetSafeErrorMessage(domain.ErrUnauthorized))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(errors.New("pq: ssl off")))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))

	// Field-level validation details are surfaced; raw internals are not.
	validationErr := domain.NewValidationError("topic", "cannot be empty", domain.ErrValidation)
	assert.Equal(t, "Invalid topic: cannot be empty", GetSafeErrorMessage(validationErr))
	assert.Equal(t, "Validation error", GetSafeErrorMessage(domain.ErrValidation))
}
