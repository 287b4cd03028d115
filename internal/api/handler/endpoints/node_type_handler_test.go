package endpoints

import (
	"net/http"
	"testing"

	"studio/internal/api/handler/response"
	"studio/internal/api/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTypeHandler_ListsPalette(t *testing.T) {
	s := newTestServer(service.SessionOptions{})

	w := s.do(t, http.MethodGet, "/api/v1/node-types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	types := decode[[]response.NodeType](t, w)
	require.Len(t, types, 33)
	assert.Equal(t, "input", string(types[0].Type))
	assert.Empty(t, types[0].Inputs)
}

func TestNodeTypeHandler_SingleTypeAndSchema(t *testing.T) {
	s := newTestServer(service.SessionOptions{})

	w := s.do(t, http.MethodGet, "/api/v1/node-types/concatenate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	concat := decode[response.NodeType](t, w)
	assert.Equal(t, []string{"input1", "input2"}, concat.Inputs)

	w = s.do(t, http.MethodGet, "/api/v1/node-types/dropout/schema", nil)
	require.Equal(t, http.StatusOK, w.Code)
	schema := decode[map[string]any](t, w)
	assert.Equal(t, "object", schema["type"])
	p := schema["properties"].(map[string]any)["p"].(map[string]any)
	assert.Equal(t, "number", p["type"])
	assert.Equal(t, 1.0, p["maximum"])

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/node-types/capsule", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/node-types/capsule/schema", nil).Code)
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(service.SessionOptions{})

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","worker":true}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "studio_graph_nodes")
}
