package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/http/dto"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError maps err onto the public error body. Server faults are logged
// with their details and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	appErr := apperrors.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", appErr.Code),
			zap.String("details", appErr.Details),
			zap.Error(err))
	}
	pub := appErr.Public()
	writeJSON(w, pub.Status, &dto.ErrorResponse{
		Error:     pub.Code,
		Message:   pub.Message,
		Details:   pub.Details,
		Timestamp: time.Now().UTC(),
	})
}

// decodeJSON binds the body and runs its binding tags.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := binding.JSON.Bind(r, v); err != nil {
		return apperrors.Validation("invalid request body", err.Error())
	}
	return nil
}
