package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/usecase"
	xhttp "Nowcast/pkg/http"
	xlogger "Nowcast/pkg/logger"
)

func get(t *testing.T, s *xhttp.Server, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body.Data
}

func TestStatusBeforeRun(t *testing.T) {
	h := NewStatusEchoHandler(xlogger.NewNop(), usecase.NewProgress())
	s := xhttp.NewServer(h)

	code, data := get(t, s, "/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", data["state"])
	assert.EqualValues(t, 0, data["done"])

	code, data = get(t, s, "/api/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "idle", data["state"])
}
