// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/productmanager/internal/shared"
)

// ErrorResponder maps domain errors to RFC7807 responses. Outside development the
// detail of unexpected failures is withheld.
type ErrorResponder struct {
	Logger      *slog.Logger
	Development bool
}

// RespondError maps domain errors to HTTP responses in production mode.
func RespondError(w http.ResponseWriter, err error) {
	ErrorResponder{}.Respond(w, nil, err)
}

// Respond writes the problem response for err.
func (e ErrorResponder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	problem := Classify(err)
	if problem.Status >= http.StatusInternalServerError {
		if e.Logger != nil {
			attrs := []any{slog.Any("error", err)}
			if r != nil {
				attrs = append(attrs, slog.String("method", r.Method), slog.String("path", r.URL.Path))
			}
			e.Logger.Error("request failed", attrs...)
		}
		if e.Development && err != nil {
			problem.Detail = err.Error()
		}
	}
	JSON(w, problem.Status, problem)
}

// Classify converts err into a problem document.
func Classify(err error) ProblemDetail {
	var (
		verr *shared.ValidationError
		ferr *shared.ForbiddenError
	)
	switch {
	case errors.As(err, &verr):
		return ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Code: "validation_failed", Detail: verr.Error(), Errors: verr.Fields}
	case errors.Is(err, shared.ErrValidation):
		return newProblem(http.StatusBadRequest, "Validation Failed", "validation_failed", err.Error())
	case errors.Is(err, shared.ErrSessionExpired):
		return newProblem(http.StatusUnauthorized, "Session Expired", "session_expired", shared.ErrSessionExpired.Error())
	case errors.Is(err, shared.ErrExpiredToken):
		return newProblem(http.StatusUnauthorized, "Unauthenticated", "token_expired", shared.ErrExpiredToken.Error())
	case errors.Is(err, shared.ErrInvalidToken):
		return newProblem(http.StatusUnauthorized, "Unauthenticated", "invalid_token", shared.ErrInvalidToken.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		return newProblem(http.StatusUnauthorized, "Unauthenticated", "invalid_credentials", shared.ErrInvalidCredentials.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		return newProblem(http.StatusUnauthorized, "Unauthenticated", "unauthenticated", shared.ErrUnauthenticated.Error())
	case errors.As(err, &ferr):
		p := newProblem(http.StatusForbidden, "Forbidden", "forbidden", ferr.Error())
		p.RequiredPermission = ferr.RequiredPermission
		p.RequiredRole = ferr.RequiredRole
		p.CurrentRole = ferr.CurrentRole
		return p
	case errors.Is(err, shared.ErrForbidden):
		return newProblem(http.StatusForbidden, "Forbidden", "forbidden", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		return newProblem(http.StatusNotFound, "Not Found", "not_found", err.Error())
	case errors.Is(err, shared.ErrReferential):
		return newProblem(http.StatusBadRequest, "Referenced Record", "referential", err.Error())
	case errors.Is(err, shared.ErrConstraint):
		return newProblem(http.StatusBadRequest, "Constraint Violation", "constraint", err.Error())
	default:
		return newProblem(http.StatusInternalServerError, "Internal Error", "internal", "")
	}
}

func newProblem(status int, title, code, detail string) ProblemDetail {
	return ProblemDetail{Title: title, Status: status, Code: code, Detail: detail}
}
