package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"echvid/internal/accounts"
	"echvid/internal/acquire"
	"echvid/internal/logging"
	"echvid/internal/queue"
	"echvid/internal/services"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	details := services.Details(err)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &maxBytes):
		status = http.StatusRequestEntityTooLarge
		details.Message = fmt.Sprintf("request body exceeds %d bytes", maxBytes.Limit)
	case errors.Is(err, queue.ErrDuplicateJob), errors.Is(err, acquire.ErrFilenameTaken):
		status = http.StatusConflict
		details.Kind = "ConflictError"
	case errors.Is(err, queue.ErrInvalidSubmission), errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
		details.Kind = "ValidationError"
	case errors.Is(err, accounts.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrAcquisition), errors.Is(err, services.ErrNoAudio):
		status = http.StatusUnprocessableEntity
	}

	if status >= 500 {
		logging.ErrorWithContext(s.log(r.Context()), "request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.String(logging.FieldErrorHint, "check the daemon log for the underlying failure"),
			logging.Error(err),
		)
		if errors.Is(err, services.ErrStorage) || details.Kind == "InternalError" {
			details.Message = "internal server error"
		}
	}
	s.writeError(w, status, details.Message, details.Kind)
}

// decodeJSON reads a request body into dst and runs struct validation.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return services.Wrap(services.ErrValidation, "api", "decode", "Malformed JSON body", err)
	}
	if err := validate.Struct(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "validate", validationMessage(err), nil)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "bcp47_language_tag":
			parts = append(parts, field+" must be a language code")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
