package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/0xmhha/contractforge/internal/errors"
)

// ErrorResponse is the failure body of every route
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status of its code. Errors that are not
// service errors become E_INTERNAL.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := apperrors.AsServiceError(err)
	if !ok {
		se = &apperrors.ServiceError{Code: apperrors.EInternal, Msg: "Internal server error", Cause: err}
	}
	status := apperrors.HTTPStatus(se.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", string(se.Code)),
			zap.Error(err))
	}

	writeJSON(w, status, ErrorResponse{
		Error:     se.Msg,
		Code:      string(se.Code),
		Details:   se.Detail(),
		Retryable: se.Retryable,
	})
}

// decodeJSON reads a bounded JSON body into v
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperrors.Wrap(apperrors.EValidation, "Request body too large", err)
		case errors.Is(err, io.EOF):
			return apperrors.New(apperrors.EValidation, "Request body is required")
		default:
			return apperrors.Wrap(apperrors.EValidation, "Invalid JSON body", err)
		}
	}
	return nil
}
