package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/api/models"
	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/hal/simhal"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/metrics/exporters"
	"github.com/smazurov/audionode/internal/streams"
)

const (
	speakers hal.ObjectID = 0x101
	mic      hal.ObjectID = 0x102
)

type testEnv struct {
	svc    *simhal.Service
	bus    *events.Bus
	server *Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	svc := simhal.New(
		simhal.Device{ID: speakers, UID: "hw:0,0", Name: "Speakers", OutputChannels: 2, SampleRate: 48000, MinBuffer: 64, MaxBuffer: 4096},
		simhal.Device{ID: mic, UID: "hw:1,0", Name: "USB Mic", InputChannels: 1, SampleRate: 48000, MinBuffer: 64, MaxBuffer: 4096},
	)
	bus := events.New()
	bc, err := backend.New(svc, backend.Options{EventBus: bus})
	if err != nil {
		svc.Close()
		t.Fatal(err)
	}
	svcStreams := streams.NewService(bc, streams.NewMemoryStore())
	t.Cleanup(func() {
		svcStreams.Close()
		bc.Close()
		svc.Close()
	})

	opts.Backend = bc
	opts.Streams = svcStreams
	opts.EventBus = bus
	return &testEnv{svc: svc, bus: bus, server: NewServer(&opts)}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func basic(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, Options{AuthUsername: "admin", AuthPassword: "secret"})

	tests := []struct {
		name   string
		path   string
		header []string
		want   int
	}{
		{"health is open", "/api/health", nil, http.StatusOK},
		{"missing credentials", "/api/context", nil, http.StatusUnauthorized},
		{"wrong scheme", "/api/context", []string{"Authorization", "Bearer token"}, http.StatusUnauthorized},
		{"wrong password", "/api/context", []string{"Authorization", "Basic " + basic("admin", "nope")}, http.StatusUnauthorized},
		{"garbage", "/api/context", []string{"Authorization", "Basic !!!"}, http.StatusUnauthorized},
		{"valid header", "/api/context", []string{"Authorization", "Basic " + basic("admin", "secret")}, http.StatusOK},
		{"valid query", "/api/context?auth=" + basic("admin", "secret"), nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "", tt.header...)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, Options{})
	w := env.do(t, http.MethodOptions, "/api/streams", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
	if got := w.Header().Get("Vary"); got != "" {
		t.Errorf("vary = %q for a wildcard origin", got)
	}

	pinned := newTestEnv(t, Options{CORSOrigin: "http://console.local"})
	w = pinned.do(t, http.MethodGet, "/api/health", "")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://console.local" {
		t.Errorf("allow origin = %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("vary = %q", got)
	}
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"output", "input"}},
		{"?type=all", []string{"output", "input"}},
		{"?type=output", []string{"output"}},
		{"?type=input", []string{"input"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/devices"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			data := decode[models.DeviceListData](t, w)
			if data.Count != len(tt.want) {
				t.Fatalf("count = %d, want %d", data.Count, len(tt.want))
			}
			for i, typ := range tt.want {
				if data.Devices[i].Type != typ {
					t.Errorf("devices[%d].type = %s, want %s", i, data.Devices[i].Type, typ)
				}
				if !data.Devices[i].Preferred {
					t.Errorf("devices[%d] should be the preferred device", i)
				}
			}
		})
	}

	if w := env.do(t, http.MethodGet, "/api/devices?type=sideways", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid type status = %d", w.Code)
	}
}

func TestDefaultDevices(t *testing.T) {
	env := newTestEnv(t, Options{})
	data := decode[models.DefaultDevicesData](t, env.do(t, http.MethodGet, "/api/devices/default", ""))
	if hal.ObjectID(data.Output) != speakers || hal.ObjectID(data.Input) != mic {
		t.Errorf("defaults = %+v", data)
	}
}

func TestContext(t *testing.T) {
	env := newTestEnv(t, Options{})
	data := decode[models.ContextData](t, env.do(t, http.MethodGet, "/api/context", ""))
	if data.BackendID != "audionode-sim" || data.MaxChannels != 2 || data.MinLatency != 64 ||
		data.PreferredSampleRate != 48000 || data.ActiveStreams != 0 || data.Error != "" {
		t.Errorf("context = %+v", data)
	}
}

func TestLayoutConvert(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
		layout string
		labels int
	}{
		{"three front", `{"labels":["Left","Right","Center"]}`, http.StatusOK, "3f", 3},
		{"two labels are stereo", `{"labels":["Center","Mono"]}`, http.StatusOK, "stereo", 2},
		{"unknown label disqualifies", `{"labels":["Left","Right","Unknown"]}`, http.StatusOK, "undefined", 0},
		{"bad label name", `{"labels":["Left","Middle"]}`, http.StatusBadRequest, "", 0},
		{"empty", `{"labels":[]}`, http.StatusUnprocessableEntity, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/layout/convert", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			data := decode[models.LayoutData](t, w)
			if data.Layout != tt.layout || len(data.Labels) != tt.labels {
				t.Errorf("got %+v", data)
			}
		})
	}

	list := decode[models.LayoutListData](t, env.do(t, http.MethodGet, "/api/layouts", ""))
	if len(list.Layouts) == 0 || list.Layouts[0].Layout != "mono" {
		t.Errorf("layouts = %+v", list.Layouts)
	}
}

func TestStreamRoutes(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodPost, "/api/streams", `{"id":"kitchen","tone_hz":440}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	st := decode[streams.Status](t, w)
	if st.Spec.ID != "kitchen" || st.State != "initialized" || st.Output == nil {
		t.Errorf("created = %+v", st)
	}

	steps := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		state  string
	}{
		{"duplicate", http.MethodPost, "/api/streams", `{"id":"kitchen"}`, http.StatusConflict, ""},
		{"bad direction", http.MethodPost, "/api/streams", `{"id":"x","direction":"sideways"}`, http.StatusUnprocessableEntity, ""},
		{"unknown device", http.MethodPost, "/api/streams", `{"id":"y","output_device":"HDMI"}`, http.StatusNotFound, ""},
		{"start", http.MethodPost, "/api/streams/kitchen/start", "", http.StatusOK, "started"},
		{"get", http.MethodGet, "/api/streams/kitchen", "", http.StatusOK, "started"},
		{"volume", http.MethodPut, "/api/streams/kitchen/volume", `{"volume":0.5}`, http.StatusOK, "started"},
		{"volume out of range", http.MethodPut, "/api/streams/kitchen/volume", `{"volume":2}`, http.StatusUnprocessableEntity, ""},
		{"stop", http.MethodPost, "/api/streams/kitchen/stop", "", http.StatusOK, "stopped"},
		{"get unknown", http.MethodGet, "/api/streams/ghost", "", http.StatusNotFound, ""},
		{"start unknown", http.MethodPost, "/api/streams/ghost/start", "", http.StatusNotFound, ""},
	}
	for _, step := range steps {
		w := env.do(t, step.method, step.path, step.body)
		if w.Code != step.status {
			t.Fatalf("%s: status = %d, want %d: %s", step.name, w.Code, step.status, w.Body.String())
		}
		if step.state != "" {
			if got := decode[streams.Status](t, w).State; got != step.state {
				t.Errorf("%s: state = %q, want %q", step.name, got, step.state)
			}
		}
	}

	list := decode[models.StreamListData](t, env.do(t, http.MethodGet, "/api/streams", ""))
	if list.Count != 1 || list.Streams[0].Volume != 0.5 {
		t.Errorf("list = %+v", list)
	}

	if w := env.do(t, http.MethodDelete, "/api/streams/kitchen", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodDelete, "/api/streams/kitchen", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", w.Code)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{PrometheusHandler: exporters.HTTPHandler()})
	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics body lacks the Go collector")
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, Options{})
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()
	// The handler subscribes asynchronously and headers only go out with
	// the first event, so publish until one arrives.
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				env.bus.Publish(events.StreamReinitEvent{StreamID: "kitchen", Success: true})
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: stream-reinit" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var ev events.StreamReinitEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatal(err)
			}
			if ev.StreamID != "kitchen" || !ev.Success {
				t.Errorf("event = %+v", ev)
			}
			return
		}
	}
	t.Fatalf("stream ended without a stream-reinit event: %v", scanner.Err())
}

func TestMetricsSnapshot(t *testing.T) {
	env := newTestEnv(t, Options{})
	if w := env.do(t, http.MethodPost, "/api/streams", `{"id":"porch","tone_hz":440}`); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	metrics.SetFramesRendered("porch", 960)

	w := env.do(t, http.MethodGet, "/api/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := decode[models.MetricsData](t, w)
	if data.ActiveStreams != 1 {
		t.Errorf("active streams = %d, want 1", data.ActiveStreams)
	}
	var found bool
	for _, m := range data.Streams {
		if m.StreamID == "porch" {
			found = true
			if m.FramesRendered != 960 {
				t.Errorf("frames = %d, want 960", m.FramesRendered)
			}
		}
	}
	if !found {
		t.Errorf("porch missing from %+v", data.Streams)
	}

	if w := env.do(t, http.MethodDelete, "/api/streams/porch", ""); w.Code >= 300 {
		t.Fatalf("delete status = %d", w.Code)
	}
	data = decode[models.MetricsData](t, env.do(t, http.MethodGet, "/api/metrics", ""))
	for _, m := range data.Streams {
		if m.StreamID == "porch" {
			t.Error("deleted stream still reported")
		}
	}
}

func TestStatusConsole(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusOK},
		{"/streams", http.StatusOK},
		{"/app.js", http.StatusNotFound},
		{"/api/nothing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && !strings.Contains(w.Body.String(), "<title>audionode</title>") {
				t.Error("console page not served")
			}
		})
	}
}
