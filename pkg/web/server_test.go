package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropeye/rig/internal/config"
	"github.com/cropeye/rig/pkg/camera"
	"github.com/cropeye/rig/pkg/plc"
	"github.com/cropeye/rig/pkg/route"
	"github.com/cropeye/rig/pkg/saver"
)

// fakeTransport answers modbus reads with zeros and records writes.
type fakeTransport struct {
	regWrites  int
	coilWrites int
}

func (f *fakeTransport) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return make([]byte, 2*quantity), nil
}

func (f *fakeTransport) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	f.regWrites++
	return nil, nil
}

func (f *fakeTransport) ReadCoils(address, quantity uint16) ([]byte, error) {
	return []byte{0}, nil
}

func (f *fakeTransport) WriteSingleCoil(address, value uint16) ([]byte, error) {
	f.coilWrites++
	return nil, nil
}

type nopCommander struct{}

func (nopCommander) WriteSpeeds(x, y, z *float64) (bool, error) { return true, nil }
func (nopCommander) WriteCoords(x, y, z *float64) (bool, error) { return true, nil }
func (nopCommander) Pulse(coil string) error                    { return nil }

// emptySource is a frame source with no frame yet.
type emptySource struct{}

func (emptySource) Snapshot() *camera.Frame { return nil }

type stubResolver struct{}

func (stubResolver) Resolve(string) (string, error) { return "cam0", nil }

// stubDevice never yields a frame; good enough to stand in for the
// preview session in handler tests.
type stubDevice struct{}

func (stubDevice) Read() (camera.Frame, bool) { return camera.Frame{}, false }
func (stubDevice) Close() error               { return nil }

func newTestServer(t *testing.T, c Components) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Routes = []route.Route{
		{Name: "survey", Points: []route.Waypoint{{X: 1}, {X: 2}}, Dwell: 0.01},
	}
	return NewServer(cfg, c)
}

func postJSON(t *testing.T, s *Server, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func TestServer_PLCEndpointsWithoutLink(t *testing.T) {
	s := newTestServer(t, Components{})

	code, body := postJSON(t, s, "/api/plc/speeds", `{"x": 10}`)
	assert.Equal(t, 503, code)
	assert.Contains(t, body["error"], "plc link")
}

func TestServer_StateWithoutSubsystems(t *testing.T) {
	s := newTestServer(t, Components{})

	req := httptest.NewRequest("GET", "/api/state", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Nil(t, payload["plc"])
}

func TestServer_WriteSpeeds(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestServer(t, Components{Link: plc.NewLink(ft)})

	code, body := postJSON(t, s, "/api/plc/speeds", `{"x": 120, "y": 80}`)
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["written"])
	assert.Equal(t, 2, ft.regWrites)
}

func TestServer_CoilValidation(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestServer(t, Components{Link: plc.NewLink(ft)})

	code, _ := postJSON(t, s, "/api/plc/coil", `{"action": "warp_drive", "pulse": true}`)
	assert.Equal(t, 400, code)

	code, _ = postJSON(t, s, "/api/plc/coil", `{"action": "light_on", "value": true}`)
	require.Equal(t, 200, code)
	assert.Equal(t, 1, ft.coilWrites)
}

func TestServer_RouteStart(t *testing.T) {
	s := newTestServer(t, Components{Runner: route.NewRunner(nopCommander{})})

	code, _ := postJSON(t, s, "/api/route/start", `{"name": "absent"}`)
	assert.Equal(t, 404, code)

	code, _ = postJSON(t, s, "/api/route/start", `{}`)
	assert.Equal(t, 400, code)

	code, body := postJSON(t, s, "/api/route/start", `{"name": "survey"}`)
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["running"])
}

func TestServer_CameraEndpointsWithoutCamera(t *testing.T) {
	s := newTestServer(t, Components{})

	code, _ := postJSON(t, s, "/api/camera/save", `{}`)
	assert.Equal(t, 503, code)

	code, _ = postJSON(t, s, "/api/camera/timed/start", ``)
	assert.Equal(t, 503, code)

	code, _ = postJSON(t, s, "/api/camera/focus", `{"value": 50}`)
	assert.Equal(t, 503, code)

	code, _ = postJSON(t, s, "/api/camera/autofocus", `{"enabled": false}`)
	assert.Equal(t, 503, code)
}

func TestServer_SaveParamsRebuildKeepsQuality(t *testing.T) {
	pool := saver.New(saver.Options{Workers: 2})
	pool.Start()
	rec := saver.NewRecorder(emptySource{}, pool, saver.RecorderOptions{
		SaveDir: t.TempDir(),
		Format:  "jpg",
	})
	s := newTestServer(t, Components{Recorder: rec})

	code, _ := postJSON(t, s, "/api/camera/params", `{"jpeg_quality": 50}`)
	require.Equal(t, 200, code)

	code, _ = postJSON(t, s, "/api/camera/params", `{"save_workers": 4}`)
	require.Equal(t, 200, code)

	fresh := rec.Pool()
	defer fresh.Stop()
	assert.Equal(t, 4, fresh.Workers())
	jq, pc := fresh.Quality()
	assert.Equal(t, 50, jq, "rebuilt pool keeps the configured jpeg quality")
	assert.Equal(t, 3, pc)
}

func TestServer_FocusEndpoints(t *testing.T) {
	store := camera.NewControlsStore(camera.Controls{Focus: 50, FocusMax: camera.DefaultFocusMax})
	preview, err := camera.Open(camera.SessionConfig{Keyword: "cam"}, stubResolver{},
		func(string, int, int) (camera.Device, error) { return stubDevice{}, nil })
	require.NoError(t, err)
	defer preview.Stop()
	s := newTestServer(t, Components{Preview: preview, PreviewControls: store})

	code, body := postJSON(t, s, "/api/camera/focus", `{"value": 500}`)
	require.Equal(t, 200, code)
	assert.EqualValues(t, 127, body["value"], "focus clamps to the device range")

	got := store.Get()
	require.NotNil(t, got.Autofocus)
	assert.False(t, *got.Autofocus, "manual focus turns autofocus off")
	assert.Equal(t, 127, got.Focus)

	code, body = postJSON(t, s, "/api/camera/autofocus", `{"enabled": true}`)
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["enabled"])

	got = store.Get()
	require.NotNil(t, got.Autofocus)
	assert.True(t, *got.Autofocus)
}
