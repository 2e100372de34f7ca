package web

import (
	"errors"
	"net/http"

	"github.com/vbonduro/fgsamples/internal/domain"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	case domain.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the text shown to the operator for err.
func messageFor(err error) string {
	var (
		verr *domain.ValidationError
		terr *domain.TransientError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, domain.ErrNotFound):
		return "Sample not found. It may have been moved or the confirmation expired."
	case errors.As(err, &terr):
		return terr.Message
	default:
		return "Something went wrong. Please try again."
	}
}

// fail renders err as a flash message for HTMX requests and as an error page
// otherwise.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
	}
	data := map[string]any{"Error": messageFor(err)}
	if isHTMX(r) {
		if err := s.renderPartial(w, status, "flash", data, "partials/flash.html"); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}
	if err := s.renderPage(w, status, data, "base.html", "pages/error.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}
