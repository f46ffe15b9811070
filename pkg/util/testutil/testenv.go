package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/otelfleet/fleetmon/pkg/fleet"
	fleetsvc "github.com/otelfleet/fleetmon/pkg/services/fleet"
	"github.com/stretchr/testify/require"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// TestEnv is a monitor backed by an in-memory store and served by an
// httptest server. The store is exposed for direct assertions.
type TestEnv struct {
	Store       *fleet.Store
	FleetServer *fleetsvc.FleetServer

	Router     *mux.Router
	HTTPServer *httptest.Server
	BaseURL    string

	Logger *slog.Logger

	t *testing.T
}

func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return NewTestEnvWithStore(t, fleet.NewStore())
}

func NewTestEnvWithStore(t *testing.T, store *fleet.Store) *TestEnv {
	t.Helper()
	logger := slog.Default()

	env := &TestEnv{
		Store:  store,
		Logger: logger,
		t:      t,
	}
	env.FleetServer = fleetsvc.NewFleetServer(logger.With("service", "fleet"), store)

	env.Router = mux.NewRouter()
	env.FleetServer.ConfigureHTTP(env.Router)
	env.HTTPServer = httptest.NewServer(env.Router)
	env.BaseURL = env.HTTPServer.URL

	t.Cleanup(env.Close)
	return env
}

func (e *TestEnv) Close() {
	if e.HTTPServer != nil {
		e.HTTPServer.Close()
	}
}

// PostIngest sends body to /ingest and returns the response status.
func (e *TestEnv) PostIngest(body string) int {
	e.t.Helper()
	resp, err := e.HTTPServer.Client().Post(e.BaseURL+"/ingest", "application/json", bytes.NewBufferString(body))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

// GetFleet fetches and decodes /fleet.
func (e *TestEnv) GetFleet() fleetsvc.FleetResponse {
	e.t.Helper()
	resp, err := e.HTTPServer.Client().Get(e.BaseURL + "/fleet")
	require.NoError(e.t, err)
	defer resp.Body.Close()
	require.Equal(e.t, http.StatusOK, resp.StatusCode)

	var out fleetsvc.FleetResponse
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// GetText fetches path and returns the status and body.
func (e *TestEnv) GetText(path string) (int, http.Header, string) {
	e.t.Helper()
	resp, err := e.HTTPServer.Client().Get(e.BaseURL + path)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp.StatusCode, resp.Header, string(body)
}
