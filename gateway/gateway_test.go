package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickflow/brickflow/config"
	"github.com/brickflow/brickflow/health"
	"github.com/brickflow/brickflow/pipe"
	"github.com/brickflow/brickflow/pipestore"
	"github.com/brickflow/brickflow/testutil"
)

type testGateway struct {
	server  *Server
	ts      *httptest.Server
	store   *pipestore.Store
	monitor *health.Monitor
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	store, err := pipestore.NewStore(pipestore.NewMemKV())
	require.NoError(t, err)

	registry, err := testutil.TestRegistry()
	require.NoError(t, err)

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("store", "ok")

	server, err := NewServer(config.GatewayConfig{Addr: ":0"}, store, registry,
		WithMonitor(monitor))
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testGateway{server: server, ts: ts, store: store, monitor: monitor}
}

func (g *testGateway) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, g.ts.URL+path, reader)
	require.NoError(t, err)

	resp, err := g.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func storedPipeBody(t *testing.T, id string) *pipestore.StoredPipe {
	t.Helper()
	p, _, err := testutil.TestPipe("gateway test")
	require.NoError(t, err)
	rec, err := p.Serialize()
	require.NoError(t, err)
	return &pipestore.StoredPipe{ID: id, Pipe: rec}
}

func decodePipe(t *testing.T, resp *http.Response) *pipestore.StoredPipe {
	t.Helper()
	var sp pipestore.StoredPipe
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sp))
	return &sp
}

func TestGatewayCreateAndGetPipe(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "p1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodePipe(t, resp)
	assert.Equal(t, int64(1), created.Version)

	resp = g.request(t, http.MethodGet, "/api/pipes/p1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodePipe(t, resp)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, created.Pipe, got.Pipe)
}

func TestGatewayCreateValidation(t *testing.T) {
	g := newTestGateway(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{
			name: "missing ID",
			body: &pipestore.StoredPipe{},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown brick",
			body: &pipestore.StoredPipe{
				ID:   "p1",
				Pipe: mustRecord(t, `{"title":null,"description":null,"bricks":[{"name":"warp-drive","settings":{}}]}`),
			},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := g.request(t, http.MethodPost, "/api/pipes", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGatewayCreateMalformedJSON(t *testing.T) {
	g := newTestGateway(t)

	resp, err := g.ts.Client().Post(g.ts.URL+"/api/pipes", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewayCreateDuplicate(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "p1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "p1"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGatewayGetMissingPipe(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodGet, "/api/pipes/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGatewayUpdatePipe(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "p1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodePipe(t, resp)

	title := "renamed"
	created.Pipe.Title = &title
	resp = g.request(t, http.MethodPut, "/api/pipes/p1", created)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodePipe(t, resp)
	assert.Equal(t, int64(2), updated.Version)

	// Replaying the same version is a conflict
	resp = g.request(t, http.MethodPut, "/api/pipes/p1", created)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGatewayDeletePipe(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "p1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = g.request(t, http.MethodDelete, "/api/pipes/p1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = g.request(t, http.MethodDelete, "/api/pipes/p1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGatewayListPipes(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodGet, "/api/pipes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pipes []*pipestore.StoredPipe
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pipes))
	assert.Empty(t, pipes)

	g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "a"))
	g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "b"))

	resp = g.request(t, http.MethodGet, "/api/pipes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pipes))
	assert.Len(t, pipes, 2)
}

func TestGatewayPipeGraph(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "p1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = g.request(t, http.MethodGet, "/api/pipes/p1/graph", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/vnd.graphviz", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "strict digraph")
}

func TestGatewayHealthz(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Healthy)

	g.monitor.UpdateUnhealthy("nats", "connection lost")
	resp = g.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGatewayRequestID(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodGet, "/api/pipes", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, g.ts.URL+"/api/pipes", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err = g.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get("X-Request-ID"))
}

func TestGatewayWebSocketEvents(t *testing.T) {
	g := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(g.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the subscription to register before mutating
	require.Eventually(t, func() bool {
		return g.server.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	resp := g.request(t, http.MethodPost, "/api/pipes", storedPipeBody(t, "p1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, EventPipeCreated, event.Type)
	assert.Equal(t, "p1", event.PipeID)
	assert.Equal(t, int64(1), event.Version)
	assert.NotZero(t, event.Timestamp)
}

func TestGatewayRunShutdown(t *testing.T) {
	g := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.server.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func mustRecord(t *testing.T, raw string) (rec pipe.Record) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}
