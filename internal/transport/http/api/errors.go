package api

import (
	"errors"
	"net/http"

	"accessgov/internal/domain/fault"
)

// FailFromError maps the engine's error taxonomy onto HTTP statuses in one
// place so handlers stay uniform.
func FailFromError(w http.ResponseWriter, err error, requestID string) {
	var validation *fault.ValidationError
	if errors.As(err, &validation) {
		FailWithDetails(w, http.StatusBadRequest, "validation_error", validation.Reason,
			map[string]any{"field": validation.Field}, requestID)
		return
	}

	var notFound *fault.NotFoundError
	if errors.As(err, &notFound) {
		Fail(w, http.StatusNotFound, "not_found", notFound.Error(), requestID)
		return
	}

	var forbidden *fault.AuthorizationError
	if errors.As(err, &forbidden) {
		Fail(w, http.StatusForbidden, "forbidden", forbidden.Error(), requestID)
		return
	}

	var conflict *fault.StateConflictError
	if errors.As(err, &conflict) {
		Fail(w, http.StatusConflict, "state_conflict", conflict.Error(), requestID)
		return
	}

	Fail(w, http.StatusInternalServerError, "internal_error", "the operation failed", requestID)
}
