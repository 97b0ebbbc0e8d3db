package statusserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mrmurphy/internal/engine"
	"github.com/xkilldash9x/mrmurphy/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticReporter engine.Status

func (s staticReporter) Status() engine.Status { return engine.Status(s) }

var status = staticReporter{
	SessionID: "abc",
	Policy:    engine.PolicyExplorer,
	Phase:     engine.PhaseRunning.String(),
	Nodes:     3,
	Edges:     2,
	Started:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node0", "state.json"), []byte(`{"title":"Setup"}`), 0o644))

	recorder := metrics.NewRecorder()
	h := NewHandler(status, recorder.Handler(), dir)

	t.Run("should report the session status", func(t *testing.T) {
		rec := get(t, h, "/status")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got engine.Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, engine.Status(status), got)
	})

	t.Run("should expose metrics", func(t *testing.T) {
		rec := get(t, h, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "murphy_nodes_discovered_total")
	})

	t.Run("should serve journal files", func(t *testing.T) {
		rec := get(t, h, "/journal/node0/state.json")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"title":"Setup"}`, rec.Body.String())

		assert.Equal(t, http.StatusNotFound, get(t, h, "/journal/node9/state.json").Code)
	})

	t.Run("should answer health checks", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, get(t, h, "/healthz").Code)
	})
}

func TestHandlerOptionalRoutes(t *testing.T) {
	h := NewHandler(status, nil, "")
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/journal/node0/state.json").Code)
}

func TestServerLifecycle(t *testing.T) {
	s, err := Start("127.0.0.1:0", NewHandler(status, nil, ""), zaptest.NewLogger(t))
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), `"session_id":"abc"`)
	client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestStartInvalidAddress(t *testing.T) {
	_, err := Start("256.0.0.1:http", NewHandler(status, nil, ""), nil)
	assert.Error(t, err)
}
