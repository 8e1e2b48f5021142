package service

import (
	"errors"
	"fmt"

	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/store"
)

// Common sentinel errors returned by the service layer.
var (
	// ErrTaskNotFound indicates that the task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPathNotFound indicates that the learning path does not exist.
	ErrPathNotFound = errors.New("learning path not found")

	// ErrCardNotFound indicates that the card does not exist.
	ErrCardNotFound = errors.New("card not found")
)

// ServiceError wraps errors from the service layer with context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "generate_path", "get_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
// Known sentinel errors pass through unwrapped so handlers can map them
// to status codes directly.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrPathNotFound),
		errors.Is(err, ErrCardNotFound),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrValidation):
		return err
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrPathNotFound):
		return ErrPathNotFound
	case errors.Is(err, store.ErrCardNotFound):
		return ErrCardNotFound
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
