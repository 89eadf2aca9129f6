package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"mcpcoordinator/internal/router"
)

func TestHTTPAdapter_HealthEndpoint(t *testing.T) {
	rt := newTestRouter(t)
	a := NewHTTPAdapter(rt, ":0")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	a.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPAdapter_RequestEndpointDispatchesToRouter(t *testing.T) {
	rt := newTestRouter(t)
	a := NewHTTPAdapter(rt, ":0")

	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp/request", bytes.NewReader(body))
	a.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp router.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
}

func TestHTTPAdapter_ToolCallConvenienceRouteRequiresSession(t *testing.T) {
	rt := newTestRouter(t)
	a := NewHTTPAdapter(rt, ":0")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/list_codebases", bytes.NewReader([]byte("{}")))
	a.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp router.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, router.ErrCodeUnauthenticated, resp.Error.Code)
}
