package handler

import (
	"encoding/json"
	"net/http"

	"portal-auth/internal/models"
	"portal-auth/internal/util"

	"go.uber.org/zap"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse carries the error kind, never the internal error text.
func errorResponse(kind models.ErrorKind, message string, data interface{}) Response {
	return Response{
		Success: false,
		Data:    data,
		Error:   string(kind),
		Message: message,
	}
}

func respondWithJSON(logger *zap.Logger, w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithKind(logger *zap.Logger, w http.ResponseWriter, kind models.ErrorKind, message string, data interface{}) {
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Warn("HTTP error response",
			util.String("kind", string(kind)),
			util.Int("status_code", status),
			util.String("message", message),
		)
	}
	respondWithJSON(logger, w, status, errorResponse(kind, message, data))
}

// respondWithError classifies err and replies with a generic message for
// anything that is not a validation problem.
func respondWithError(logger *zap.Logger, w http.ResponseWriter, err error, message string) {
	kind := models.KindOf(err)
	if kind == models.KindValidation {
		message = err.Error()
	}
	if kind == models.KindInternal {
		logger.Error("Unhandled error", util.ErrorField(err))
	}
	respondWithKind(logger, w, kind, message, nil)
}

// statusFor determines the HTTP status code for an error kind
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindNone:
		return http.StatusOK
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindExpired:
		return http.StatusGone
	case models.KindMismatch:
		return http.StatusUnauthorized
	case models.KindRateLimit:
		return http.StatusTooManyRequests
	case models.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
