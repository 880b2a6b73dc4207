package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
)

const manifest = `modules:
  - id: docs
    name: Docs
    title: Documentation
    body: "<p>Read me</p>"
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.RateLimit.Enabled = false
	cfg.Registry.Watch = false
	cfg.Persistence.Debounce = 10 * time.Millisecond
	cfg.Persistence.FlushTimeout = time.Second
	return cfg
}

func request(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func closeServer(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func TestNewServerServesWorkspaceAPI(t *testing.T) {
	cfg := testConfig(t)
	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	defer closeServer(t, s)

	w := request(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = request(t, s.Handler(), http.MethodGet, "/workspaces/alice/layout", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Layout      types.Layout `json:"layout"`
		ActiveTabID string       `json:"active_tab_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "lay_default", body.Layout.ID)
	assert.Equal(t, "tab_analytics", body.ActiveTabID)

	w = request(t, s.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "workspace_")

	// Store routes only exist when this server owns the store
	w = request(t, s.Handler(), http.MethodGet, "/store/users/alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerSeedsManifestModules(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.Storage.DataDir, "modules")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs.yaml"), []byte(manifest), 0o600))

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	defer closeServer(t, s)

	w := request(t, s.Handler(), http.MethodGet, "/modules/docs", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServerPersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	w := request(t, s.Handler(), http.MethodPost, "/workspaces/alice/tabs",
		map[string]interface{}{"name": "Reports", "module_ref": map[string]string{"registry": "welcome"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	closeServer(t, s)

	s, err = NewServer(cfg, nil)
	require.NoError(t, err)
	defer closeServer(t, s)

	w = request(t, s.Handler(), http.MethodGet, "/workspaces/alice/layout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Layout types.Layout `json:"layout"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Layout.Tabs, 2)
	assert.Equal(t, "Reports", body.Layout.Tabs[1].Name)
}

func TestServerWithSQLiteRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Backend = config.BackendSQLite

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	defer closeServer(t, s)

	w := request(t, s.Handler(), http.MethodPost, "/workspaces/bob/layouts", map[string]string{"name": "Mine"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Remote pushes run in the background
	assert.Eventually(t, func() bool {
		w := request(t, s.Handler(), http.MethodGet, "/store/users/bob/layouts", nil)
		return w.Code == http.StatusOK && bytes.Contains(w.Body.Bytes(), []byte(`"Mine"`))
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStoreServer(t *testing.T) {
	cfg := testConfig(t)
	s, err := NewStoreServer(cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(context.Background())) }()

	w := request(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, s.Handler(), http.MethodGet, "/store/users/carol", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewServerRejectsUnwritableDataDir(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(cfg.Storage.DataDir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	cfg.Storage.DataDir = file

	_, err := NewServer(cfg, nil)
	assert.Error(t, err)
}
