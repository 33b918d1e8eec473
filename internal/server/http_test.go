package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hutx/OpenGlass/internal/audio"
	"github.com/hutx/OpenGlass/internal/capture"
	"github.com/hutx/OpenGlass/internal/config"
	"github.com/hutx/OpenGlass/internal/metrics"
	"github.com/hutx/OpenGlass/internal/photo"
	"github.com/hutx/OpenGlass/internal/protocol"
	"github.com/hutx/OpenGlass/internal/store"
	"github.com/hutx/OpenGlass/internal/stream"
)

// fakeCapture is a CaptureController with a scripted recording
type fakeCapture struct {
	mu      sync.Mutex
	active  bool
	samples []int16
}

func (c *fakeCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return capture.ErrAlreadyCapturing
	}
	c.active = true
	return nil
}

func (c *fakeCapture) Stop() (*audio.Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil, capture.ErrNotCapturing
	}
	c.active = false
	if len(c.samples) == 0 {
		return nil, nil
	}

	data, err := audio.EncodeSamples(c.samples, audio.CaptureFormat)
	if err != nil {
		return nil, err
	}
	return &audio.Container{
		Bytes:     data,
		Format:    audio.CaptureFormat,
		Samples:   len(c.samples),
		Duration:  float64(len(c.samples)) / float64(audio.CaptureFormat.SampleRate),
		StartedAt: time.Now(),
		CreatedAt: time.Now(),
	}, nil
}

func (c *fakeCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeCapture) Duration() float64 {
	return 0
}

type testAPI struct {
	handler    http.Handler
	store      *store.Store
	dispatcher *stream.Dispatcher
	capture    *fakeCapture
}

func newTestAPI(t *testing.T, withCapture bool) *testAPI {
	t.Helper()

	st, err := store.Open(store.Options{InMemory: true}, testLogger())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	api := &testAPI{
		store:      st,
		dispatcher: newTestDispatcher(t),
	}

	var controller CaptureController
	if withCapture {
		api.capture = &fakeCapture{}
		controller = api.capture
	}

	appConfig := config.Default()
	h := NewHTTPServer(appConfig.HTTP, testLogger(), appConfig, api.dispatcher, nil, st, controller,
		metrics.NewMetrics(prometheus.NewRegistry()))
	api.handler = h.Handler()

	return api
}

func (a *testAPI) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(t, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	api := newTestAPI(t, false)

	api.dispatcher.Handle(protocol.ChannelPhoto, protocol.EncodeNotification(0, []byte{1}))
	api.dispatcher.Handle(protocol.ChannelPhoto, protocol.EndNotification())

	rec := api.do(t, http.MethodGet, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	channels := body["channels"].(map[string]interface{})
	photoStats := channels["photo"].(map[string]interface{})
	if photoStats["frames"].(float64) != 1 {
		t.Errorf("Expected 1 frame, got %v", photoStats["frames"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.do(t, http.MethodPost, "/health")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestArtifactEndpoints(t *testing.T) {
	api := newTestAPI(t, false)

	record, err := api.store.Put(stream.ImageArtifact(&photo.ImageFrame{
		Bytes:     []byte{0xFF, 0xD8},
		CreatedAt: time.Now(),
	}))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec := api.do(t, http.MethodGet, "/artifacts?kind=image")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["total"].(float64) != 1 {
		t.Errorf("Expected 1 image, got %v", body["total"])
	}

	rec = api.do(t, http.MethodGet, "/artifacts?kind=audio")
	if body := decodeBody(t, rec); body["total"].(float64) != 0 {
		t.Errorf("Expected no audio, got %v", body["total"])
	}

	if rec := api.do(t, http.MethodGet, "/artifacts?kind=video"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown kind, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/artifacts/"+record.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["id"] != record.ID || body["kind"] != "image" {
		t.Errorf("Unexpected record %v", body)
	}

	if rec := api.do(t, http.MethodDelete, "/artifacts/"+record.ID); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/artifacts/"+record.ID); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestCaptureEndpoints(t *testing.T) {
	api := newTestAPI(t, true)

	if rec := api.do(t, http.MethodPost, "/capture/stop"); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 when idle, got %d", rec.Code)
	}

	if rec := api.do(t, http.MethodPost, "/capture/start"); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/capture/start"); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 while capturing, got %d", rec.Code)
	}

	api.capture.samples = []int16{1, 2, 3}

	rec := api.do(t, http.MethodPost, "/capture/stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["recorded"] != true {
		t.Fatalf("Expected a stored recording, got %v", body)
	}

	records, err := api.store.List("audio")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].Source != "local" || records[0].Size != audio.WAVHeaderSize+6 {
		t.Errorf("Unexpected stored recording %+v", records)
	}
}

func TestCaptureStopWithoutSamples(t *testing.T) {
	api := newTestAPI(t, true)

	api.do(t, http.MethodPost, "/capture/start")
	rec := api.do(t, http.MethodPost, "/capture/stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["recorded"] != false {
		t.Errorf("Expected no recording, got %v", body)
	}

	if records, _ := api.store.List(""); len(records) != 0 {
		t.Errorf("Expected empty store, got %d records", len(records))
	}
}

func TestCaptureDisabled(t *testing.T) {
	api := newTestAPI(t, false)

	if rec := api.do(t, http.MethodPost, "/capture/start"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}

	rec := api.do(t, http.MethodGet, "/capture")
	if body := decodeBody(t, rec); body["enabled"] != false {
		t.Errorf("Expected capture disabled, got %v", body)
	}
}
