package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/moogar0880/problems"
)

func writeProblem(w http.ResponseWriter, status int, problem *problems.Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	problem := problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(r.URL.Path).
		WithType("validation_error").
		WithDetail(detail)
	writeProblem(w, http.StatusBadRequest, problem)
}

func notFound(w http.ResponseWriter, r *http.Request, detail string) {
	problem := problems.NewStatusProblem(http.StatusNotFound).
		WithInstance(r.URL.Path).
		WithType("not_found").
		WithDetail(detail)
	writeProblem(w, http.StatusNotFound, problem)
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	problem := problems.NewStatusProblem(http.StatusInternalServerError).
		WithInstance(r.URL.Path).
		WithType("internal_error").
		WithError(err)
	writeProblem(w, http.StatusInternalServerError, problem)
}

// writeError maps a workflow error to a problem response and returns the
// status written.
func writeError(w http.ResponseWriter, r *http.Request, err error) int {
	switch {
	case errors.Is(err, domain.ErrGraphNotFound), errors.Is(err, domain.ErrNodeNotFound):
		notFound(w, r, err.Error())
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAction):
		badRequest(w, r, err.Error())
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJumpTargetUnreachable):
		problem := problems.NewStatusProblem(http.StatusConflict).
			WithInstance(r.URL.Path).
			WithType("jump_unreachable").
			WithDetail(err.Error())
		writeProblem(w, http.StatusConflict, problem)
		return http.StatusConflict
	default:
		internalError(w, r, fmt.Errorf("request failed: %w", err))
		return http.StatusInternalServerError
	}
}
