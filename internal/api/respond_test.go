package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestCompoundIDRequired(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	_, err := CompoundID(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeMissingCompoundID}))

	r.Header.Set(CompoundHeader, " c1 ")
	id, err := CompoundID(r)
	require.NoError(t, err)
	assert.Equal(t, "c1", id)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Duplicate("d1"), http.StatusConflict, apperr.CodeDuplicateDocument},
		{apperr.NotFound("missing"), http.StatusNotFound, apperr.CodeNotFound},
		{apperr.Validation(apperr.CodeUnknownTable, "bad"), http.StatusBadRequest, apperr.CodeUnknownTable},
		{apperr.Wrap(errors.New("dial"), apperr.KindExternalTimeout, apperr.CodeTimeout, "llm"), http.StatusGatewayTimeout, apperr.CodeTimeout},
		{errors.New("raw"), http.StatusInternalServerError, apperr.CodeInternal},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		Error(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		assert.Equal(t, tt.status, w.Code)
		env := decodeEnvelope(t, w)
		assert.Equal(t, "error", env.Status)
		require.NotNil(t, env.Error)
		assert.Equal(t, tt.code, env.Error.Code)
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("sql: connection string leaked"))
	assert.NotContains(t, w.Body.String(), "leaked")
}

func TestDecodeValidates(t *testing.T) {
	type body struct {
		Query string `json:"query" validate:"required"`
		TopK  int    `json:"top_k" validate:"omitempty,min=1,max=50"`
	}

	var b body
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"top_k": 100}`))
	err := Decode(r, &b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query (required)")
	assert.Contains(t, err.Error(), "top_k (max)")

	var ok body
	r = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"query":"hi"}`))
	require.NoError(t, Decode(r, &ok))
	assert.Equal(t, "hi", ok.Query)

	var malformed body
	r = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{`))
	assert.True(t, apperr.IsKind(Decode(r, &malformed), apperr.KindValidation))
}

func TestJSONEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"id": "x"})
	assert.Equal(t, http.StatusCreated, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "success", env.Status)
	assert.Nil(t, env.Error)
}
