package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriteJSON(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := observability.Log
	observability.Log = zap.New(core)
	t.Cleanup(func() { observability.Log = prev })

	ctx := observability.WithFields(context.Background(), zap.String("request_id", "req-1"))

	tests := []struct {
		name     string
		payload  interface{}
		wantBody string
		wantLogs int
	}{
		{name: "object", payload: map[string]int{"n": 1}, wantBody: "{\"n\":1}\n"},
		{name: "no body", payload: nil, wantBody: ""},
		{name: "unencodable payload", payload: map[string]interface{}{"f": func() {}}, wantLogs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := logs.Len()
			rec := httptest.NewRecorder()
			WriteJSON(ctx, rec, http.StatusOK, tt.payload)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantLogs == 0 {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				assert.Equal(t, before, logs.Len())
				return
			}

			entries := logs.FilterMessage("http: response encoding failed").All()
			require.Len(t, entries, tt.wantLogs)
			assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
			assert.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
		})
	}
}
