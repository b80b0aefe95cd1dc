package api

import (
	"errors"
	"fmt"
	"net/http"

	"cutline/internal/services"
)

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// Unwrap exposes the services marker matching Kind.
func (e *Error) Unwrap() error {
	return markerForKind(e.Kind)
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func markerForKind(kind string) error {
	switch kind {
	case "version_conflict":
		return services.ErrVersionConflict
	case "not_found":
		return services.ErrNotFound
	case "invalid_state":
		return services.ErrInvalidState
	case "validation":
		return services.ErrValidation
	case "configuration":
		return services.ErrConfiguration
	case "render_timeout":
		return services.ErrRenderTimeout
	case "render":
		return services.ErrRender
	case "storage":
		return services.ErrStorage
	case "transient":
		return services.ErrTransient
	default:
		return nil
	}
}
