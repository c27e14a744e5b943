package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dd0wney/cluso-waternet/pkg/api/middleware"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// retryAfterSeconds is advertised when the ingestion queue is saturated
const retryAfterSeconds = 1

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	s.respondJSON(w, status, response)
}

// respondFault maps an engine error to its HTTP status. Kinds outside the
// taxonomy are logged in full and reported as a generic failure.
func (s *Server) respondFault(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorResponse{Message: err.Error()}
	switch {
	case fault.IsNotFound(err):
		resp.Code = http.StatusNotFound
	case fault.IsValidation(err):
		resp.Code = http.StatusBadRequest
	case fault.IsStateConflict(err):
		resp.Code = http.StatusConflict
	case errors.Is(err, fault.ErrQueueSaturated), errors.Is(err, fault.ErrNotReady):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		resp.Code = http.StatusServiceUnavailable
	case fault.IsResourceExhausted(err):
		resp.Code = http.StatusServiceUnavailable
	case fault.IsIntegrity(err):
		resp.Code = http.StatusConflict
	default:
		s.logger.Error("request failed",
			logging.Operation(op),
			logging.String("request_id", middleware.GetRequestID(r)),
			logging.Error(err))
		resp.Code = http.StatusInternalServerError
		resp.Message = op + " failed"
	}
	if kind := fault.KindOf(err); kind != fault.KindUnknown {
		resp.Kind = kind.String()
	}
	resp.Error = http.StatusText(resp.Code)
	resp.Retryable = fault.Retryable(err)
	s.respondJSON(w, resp.Code, resp)
}
