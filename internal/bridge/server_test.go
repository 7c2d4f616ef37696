package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sent struct {
	command string
	params  client.Params
}

// fakeOBS answers calls from a table and records emits.
type fakeOBS struct {
	mu      sync.Mutex
	replies map[string]client.Result
	calls   []sent
	emits   []sent
	state   client.State
	sendErr error
}

func newFakeOBS() *fakeOBS {
	return &fakeOBS{replies: map[string]client.Result{}, state: client.StateAuthenticated}
}

func (f *fakeOBS) Call(_ context.Context, command string, params client.Params) client.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{command, params})
	if res, ok := f.replies[command]; ok {
		res.Command, res.Params = command, params
		return res
	}
	return client.Result{Status: client.StatusError, Command: command, Params: params, Error: "invalid request type"}
}

func (f *fakeOBS) Send(command string, params client.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.emits = append(f.emits, sent{command, params})
	return nil
}

func (f *fakeOBS) State() client.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestCall_ReturnsResponseFields(t *testing.T) {
	obs := newFakeOBS()
	obs.replies["GetVolume"] = client.Result{
		Status: client.StatusOK,
		Raw:    json.RawMessage(`{"message-id":"1","status":"ok","name":"Mic","volume":0.5,"muted":false}`),
	}
	h := New(obs, Options{Log: zerolog.Nop()}).Handler()

	rec, out := do(t, h, http.MethodPost, "/call/GetVolume", `{"source":"Mic"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, 0.5, out["volume"])
	assert.NotContains(t, out, "message-id")
	require.Len(t, obs.calls, 1)
	assert.Equal(t, "GetVolume", obs.calls[0].command)
	assert.Equal(t, "Mic", obs.calls[0].params["source"])
}

func TestCall_ErrorResult(t *testing.T) {
	obs := newFakeOBS()
	h := New(obs, Options{Log: zerolog.Nop()}).Handler()

	rec, out := do(t, h, http.MethodPost, "/call/Nope", `{"x":1}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "Nope", out["command"])
	assert.Equal(t, "invalid request type", out["error"])
}

func TestCall_TimeoutMessage(t *testing.T) {
	obs := newFakeOBS()
	obs.replies["GetStats"] = client.Result{Status: client.StatusError, Error: client.ErrTimeout.Error()}
	h := New(obs, Options{Log: zerolog.Nop()}).Handler()

	_, out := do(t, h, http.MethodPost, "/call/GetStats", "", nil)
	assert.Equal(t, "The obs-websocket request timed out.", out["error"])
}

func TestCall_EmptyOrMalformedBodyMeansNoParams(t *testing.T) {
	obs := newFakeOBS()
	obs.replies["GetVersion"] = client.Result{Status: client.StatusOK, Raw: json.RawMessage(`{"status":"ok"}`)}
	h := New(obs, Options{Log: zerolog.Nop()}).Handler()

	do(t, h, http.MethodPost, "/call/GetVersion", "", nil)
	do(t, h, http.MethodPost, "/call/GetVersion", "not json", nil)

	require.Len(t, obs.calls, 2)
	assert.Nil(t, obs.calls[0].params)
	assert.Nil(t, obs.calls[1].params)
}

func TestEmit(t *testing.T) {
	obs := newFakeOBS()
	h := New(obs, Options{Log: zerolog.Nop()}).Handler()

	rec, out := do(t, h, http.MethodPost, "/emit/SetCurrentScene", `{"scene-name":"Live"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, out)
	require.Len(t, obs.emits, 1)
	assert.Equal(t, "SetCurrentScene", obs.emits[0].command)
	assert.Equal(t, "Live", obs.emits[0].params["scene-name"])
	assert.Empty(t, obs.calls)
}

func TestEmit_NotConnected(t *testing.T) {
	obs := newFakeOBS()
	obs.sendErr = client.ErrNotConnected
	h := New(obs, Options{Log: zerolog.Nop()}).Handler()

	rec, out := do(t, h, http.MethodPost, "/emit/StartStreaming", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not connected", out["error"])
}

func TestAuthKey(t *testing.T) {
	obs := newFakeOBS()
	obs.replies["GetVersion"] = client.Result{Status: client.StatusOK, Raw: json.RawMessage(`{"status":"ok"}`)}
	h := New(obs, Options{AuthKey: "sekrit", Log: zerolog.Nop()}).Handler()

	tests := []struct {
		name    string
		path    string
		header  http.Header
		code    int
		message string
	}{
		{"call missing", "/call/GetVersion", nil, http.StatusUnauthorized, "AuthKey header is required."},
		{"call wrong", "/call/GetVersion", http.Header{"Authkey": {"guess"}}, http.StatusUnauthorized, "Bad AuthKey"},
		{"emit missing", "/emit/GetVersion", nil, http.StatusUnauthorized, "AuthKey header is required."},
		{"emit wrong", "/emit/GetVersion", http.Header{"Authkey": {""}}, http.StatusUnauthorized, "Bad AuthKey"},
		{"call ok", "/call/GetVersion", http.Header{"Authkey": {"sekrit"}}, http.StatusOK, ""},
		{"emit ok", "/emit/GetVersion", http.Header{"Authkey": {"sekrit"}}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, h, http.MethodPost, tt.path, "", tt.header)
			assert.Equal(t, tt.code, rec.Code)
			if tt.message != "" {
				assert.Equal(t, "error", out["status"])
				assert.Equal(t, tt.message, out["error"])
			} else {
				assert.Equal(t, "ok", out["status"])
			}
		})
	}
	assert.Len(t, obs.calls, 1)
	assert.Len(t, obs.emits, 1)
}

func TestHealth(t *testing.T) {
	obs := newFakeOBS()
	h := New(obs, Options{AuthKey: "k", Log: zerolog.Nop()}).Handler()

	rec, out := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health needs no AuthKey")
	assert.Equal(t, "authenticated", out["obs"])

	obs.mu.Lock()
	obs.state = client.StateDisconnected
	obs.mu.Unlock()
	rec, out = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "disconnected", out["obs"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := New(newFakeOBS(), Options{Log: zerolog.Nop()}).Handler()
	do(t, h, http.MethodPost, "/emit/GetVersion", "", nil)

	rec, _ := do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "obsremote_bridge_requests_total")
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>panel</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.js"), []byte("connect()"), 0o644))
	h := New(newFakeOBS(), Options{StaticDir: dir, Log: zerolog.Nop()}).Handler()

	rec, _ := do(t, h, http.MethodGet, "/script.js", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "connect()")

	rec, _ = do(t, h, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "panel")
}

func TestCORSPreflight(t *testing.T) {
	h := New(newFakeOBS(), Options{AuthKey: "k", Log: zerolog.Nop()}).Handler()

	rec, _ := do(t, h, http.MethodOptions, "/call/GetVersion", "", http.Header{"Origin": {"http://panel.local"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://panel.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "AuthKey")
}
