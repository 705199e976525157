// internal/handler/respond.go
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/hearthside/crm-backend/internal/apperrors"
)

// Err maps the error taxonomy onto HTTP statuses in one place:
// Unauthorized 401, Forbidden 403, NotFound 404, Validation 422,
// anything else 500.
func Err(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Unauthorized"})
	case errors.Is(err, apperrors.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, map[string]string{"error": "Forbidden"})
	case apperrors.IsNotFound(err):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Not Found"})
	case apperrors.IsValidation(err):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, map[string]string{"error": err.Error()})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Internal Server Error"})
	}
}

// BadBody rejects an unparseable request body with 422, matching how
// Err renders validation failures.
func BadBody(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnprocessableEntity)
	render.JSON(w, r, map[string]string{"error": "invalid request body"})
}
