package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMapsKindsToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", Validation("Email and name are required"), http.StatusBadRequest, "Email and name are required"},
		{"authentication", Authentication("Invalid signature", errors.New("bad mac")), http.StatusBadRequest, "Invalid signature"},
		{"not found", NotFound("Questionnaire not found", nil), http.StatusNotFound, "Questionnaire not found"},
		{"persistence", Persistence("Failed to save questionnaire", errors.New("conn reset")), http.StatusInternalServerError, "Failed to save questionnaire"},
		{"wrapped", fmt.Errorf("outer: %w", Validation("Missing intake ID")), http.StatusBadRequest, "Missing intake ID"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Write(rr, nil, tt.err)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.body, body["error"])
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("unique violation")
	err := Persistence("Failed to save questionnaire", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Contains(t, err.Error(), "unique violation")
}
