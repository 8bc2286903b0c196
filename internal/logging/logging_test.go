package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestConfigureJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "warn", "json", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("hidden")
	log.Warn().Str("component", "ingest").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"ingest"`)
}

func TestVerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "error", "json", true)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "info", "json", false)

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/healthz"`)
}
