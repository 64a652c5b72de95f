package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

func TestLoggingRecordsStatusAndRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "api-test", Level: zerolog.InfoLevel, Output: buf})
	handler := RequestID(logg)(Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payouts/run", nil)
	req.Header.Set(requestIDHeader, "req-77")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "request completed", line["message"])
	assert.Equal(t, "req-77", line["request_id"])
	assert.Equal(t, "/api/admin/v1/payouts/run", line["path"])
	assert.EqualValues(t, http.StatusAccepted, line["status"])
	assert.EqualValues(t, len("queued"), line["bytes"])
}
