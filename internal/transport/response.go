package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"go.uber.org/zap"
)

// WriteJSON writes payload with status. Encoding failures are logged against
// the request in ctx; the status line is already sent by then.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.GetLogger(ctx).Error("http: response encoding failed",
			zap.Int("status", status),
			zap.Error(err),
		)
	}
}

func WriteError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	WriteJSON(ctx, w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
