package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"order_id": "o-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"order_id":"o-1"}}`, w.Body.String())
}

func TestWriteErrorExposesValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "line_items is required").
		WithDetails(map[string]string{"field": "line_items"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	got := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", got.Code)
	assert.Equal(t, "line_items is required", got.Message)
	assert.Equal(t, map[string]any{"field": "line_items"}, got.Details)
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("dial tcp 10.0.0.5:5432: refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	got := decodeError(t, w)
	assert.Equal(t, "INTERNAL_ERROR", got.Code)
	assert.Equal(t, "internal server error", got.Message)
	assert.Nil(t, got.Details)
}

func TestWriteErrorHidesIntegrityDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeIntegrity, "payout total drifted from ledger").
		WithDetails(map[string]any{"expected": "10.00", "actual": "9.99"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	got := decodeError(t, w)
	assert.Equal(t, "ledger integrity violation", got.Message)
	assert.Nil(t, got.Details)
}

func TestWriteErrorKeepsStateConflictMessage(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeStateConflict, "return case already exists").
		WithDetails(map[string]any{"case_number": "RC-PF-1-A"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	got := decodeError(t, w)
	assert.Equal(t, "return case already exists", got.Message)
	assert.Equal(t, "RC-PF-1-A", got.Details.(map[string]any)["case_number"])
}

func TestWriteErrorLogsRejectionsAsWarn(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &buf})
	ctx := logg.WithRequestID(context.Background(), "req-42")

	w := httptest.NewRecorder()
	WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not your sub-order"))

	assert.Equal(t, "req-42", decodeError(t, w).RequestID)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "request.rejected", entry["message"])
	assert.Equal(t, "FORBIDDEN", entry["error_code"])
	assert.Equal(t, float64(http.StatusForbidden), entry["http_status"])
	assert.NotContains(t, entry, "pg_code")
}

func TestWriteFileSetsAttachmentHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteFile(w, "text/csv", "orders.csv", []byte("a,b\n"))

	assert.Equal(t, `attachment; filename="orders.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Equal(t, "a,b\n", w.Body.String())
}
