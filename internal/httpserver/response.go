package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"vanishbin/internal/apperror"
)

const msgInternal = "Internal server error"

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode json response", "error", err)
	}
}

// errorStatus maps an error to its HTTP status and client-safe message.
func (s *Server) errorStatus(err error) (int, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, msgInternal
	}
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, appErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		if s.opaqueNotFound {
			return http.StatusNotFound, string(apperror.ReasonMissing)
		}
		return http.StatusNotFound, appErr.Message
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := s.errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}
