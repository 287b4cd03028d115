package endpoints

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"studio/internal/api/models"
	"studio/internal/api/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	mu       sync.Mutex
	sent     []models.Command
	starts   int
	startErr error
}

func (w *fakeWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
	return w.startErr
}

func (w *fakeWorker) Stop() {}

func (w *fakeWorker) Send(cmd models.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, cmd)
	return nil
}

func (w *fakeWorker) commands() []models.Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Command(nil), w.sent...)
}

type testServer struct {
	router   *gin.Engine
	graph    *service.GraphService
	session  *service.SessionService
	progress *service.ProgressService
	worker   *fakeWorker
}

func newTestServer(options service.SessionOptions) *testServer {
	gin.SetMode(gin.TestMode)
	registry := models.DefaultRegistry()
	s := &testServer{
		router:   gin.New(),
		graph:    service.NewGraphService(registry, zerolog.Nop()),
		progress: service.NewProgressService(zerolog.Nop(), false, 0),
		worker:   &fakeWorker{},
	}
	s.session = service.NewSessionService(s.worker, s.graph, s.progress, options, zerolog.Nop())

	GraphHandler(s.router, s.graph, nil)
	SessionHandler(s.router, s.session, s.progress, nil)
	NodeTypeHandler(s.router, registry)
	MetricsHandler(s.router, func() bool { return true })
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
