package http

import (
	"encoding/json"
	"net/http"

	"github.com/atinyakov/imagedash/internal/common"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every failed /api call.
type ErrorResponse struct {
	Error    string `json:"error"`
	Incident string `json:"incident,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError converts err into the uniform error body and logs the
// diagnostic detail under a fresh incident id the user can quote.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) string {
	status := common.StatusOf(err)
	if status < http.StatusBadRequest {
		status = http.StatusBadGateway
	}
	incident := uuid.NewString()

	fields := []zap.Field{
		zap.String("incident", incident),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if id := chiMiddleware.GetReqID(r.Context()); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if status >= http.StatusInternalServerError {
		log.Error("proxied call failed", fields...)
	} else {
		log.Info("proxied call rejected", fields...)
	}

	writeJSON(w, status, ErrorResponse{Error: common.DetailMessage(err), Incident: incident})
	return incident
}
