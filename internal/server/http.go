package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hutx/OpenGlass/internal/audio"
	"github.com/hutx/OpenGlass/internal/capture"
	"github.com/hutx/OpenGlass/internal/config"
	"github.com/hutx/OpenGlass/internal/metrics"
	"github.com/hutx/OpenGlass/internal/store"
	"github.com/hutx/OpenGlass/internal/stream"
)

// ArtifactStore is the part of the artifact store the API uses
type ArtifactStore interface {
	Put(artifact stream.Artifact) (*store.Record, error)
	Meta(id string) (*store.Record, error)
	List(kind string) ([]*store.Record, error)
	Delete(id string) error
}

// CaptureController starts and stops local recordings
type CaptureController interface {
	Start() error
	Stop() (*audio.Container, error)
	Active() bool
	Duration() float64
}

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server     *http.Server
	router     *mux.Router
	logger     *slog.Logger
	config     *config.Config
	dispatcher *stream.Dispatcher
	udpServer  *UDPServer
	artifacts  ArtifactStore
	capture    CaptureController
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. udpServer and capture may be
// nil; capture endpoints then report 503.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	dispatcher *stream.Dispatcher, udpServer *UDPServer, artifacts ArtifactStore,
	capture CaptureController, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		router:     mux.NewRouter(),
		logger:     logger,
		config:     appConfig,
		dispatcher: dispatcher,
		udpServer:  udpServer,
		artifacts:  artifacts,
		capture:    capture,
		metrics:    m,
		startTime:  time.Now(),
	}

	h.setupRoutes()

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() {
	r := h.router

	r.HandleFunc("/", h.withMetrics("/", h.handleRoot)).Methods(http.MethodGet)
	r.HandleFunc("/health", h.withMetrics("/health", h.handleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats)).Methods(http.MethodGet)
	r.HandleFunc("/config", h.withMetrics("/config", h.handleConfig)).Methods(http.MethodGet)

	// Artifact metadata
	r.HandleFunc("/artifacts", h.withMetrics("/artifacts", h.handleArtifacts)).Methods(http.MethodGet)
	r.HandleFunc("/artifacts/{id}", h.withMetrics("/artifacts/{id}", h.handleArtifact)).Methods(http.MethodGet)
	r.HandleFunc("/artifacts/{id}", h.withMetrics("/artifacts/{id}", h.handleDeleteArtifact)).Methods(http.MethodDelete)

	// Local capture control
	r.HandleFunc("/capture", h.withMetrics("/capture", h.handleCaptureStatus)).Methods(http.MethodGet)
	r.HandleFunc("/capture/start", h.withMetrics("/capture/start", h.handleCaptureStart)).Methods(http.MethodPost)
	r.HandleFunc("/capture/stop", h.withMetrics("/capture/stop", h.handleCaptureStop)).Methods(http.MethodPost)

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.Handler())
}

// Handler returns the router, used by tests
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"dispatcher": map[string]interface{}{
			"status": "running",
		},
		"local_capture": h.captureStatus(),
	}

	if h.udpServer != nil {
		udpStats := h.udpServer.GetStatistics()
		components["udp_server"] = map[string]interface{}{
			"status":             "running",
			"datagrams_received": udpStats.DatagramsReceived,
			"parse_errors":       udpStats.ParseErrors,
			"queues":             udpStats.Queues,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "openglass-relay",
			"version": "1.0.0",
		},
		"components": components,
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"channels":  h.dispatcher.Stats(),
	}

	if h.udpServer != nil {
		stats["udp"] = h.udpServer.GetStatistics()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
			"queue_size":   h.config.Server.QueueSize,
			"idle_timeout": h.config.Server.IdleTimeout,
		},
		"photo": map[string]interface{}{
			"max_frame_bytes": h.config.Photo.MaxFrameBytes,
		},
		"radio_audio": h.config.RadioAudio,
		"local_capture": map[string]interface{}{
			"sample_rate": h.config.LocalCapture.SampleRate,
			"channels":    h.config.LocalCapture.Channels,
			"bit_depth":   h.config.LocalCapture.BitDepth,
			"gain":        h.config.LocalCapture.Gain,
			"block_size":  h.config.LocalCapture.BlockSize,
			"enabled":     h.config.LocalCapture.Enabled(),
		},
		"storage": map[string]interface{}{
			"in_memory": h.config.Storage.InMemory,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleArtifacts implements GET /artifacts?kind=
func (h *HTTPServer) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != string(stream.KindImage) && kind != string(stream.KindAudio) {
		writeError(w, http.StatusBadRequest, "kind must be 'image' or 'audio'")
		return
	}

	records, err := h.artifacts.List(kind)
	if err != nil {
		h.logger.Error("Failed to list artifacts", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":     len(records),
		"artifacts": records,
	})
}

// handleArtifact implements GET /artifacts/{id}
func (h *HTTPServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	record, err := h.artifacts.Meta(id)
	if errors.Is(err, store.ErrArtifactNotFound) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to read artifact", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleDeleteArtifact implements DELETE /artifacts/{id}
func (h *HTTPServer) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.artifacts.Delete(id)
	if errors.Is(err, store.ErrArtifactNotFound) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete artifact", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to delete artifact")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPServer) captureStatus() map[string]interface{} {
	if h.capture == nil {
		return map[string]interface{}{"enabled": false}
	}
	return map[string]interface{}{
		"enabled":          true,
		"active":           h.capture.Active(),
		"duration_seconds": h.capture.Duration(),
	}
}

// handleCaptureStatus implements GET /capture
func (h *HTTPServer) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.captureStatus())
}

// handleCaptureStart implements POST /capture/start
func (h *HTTPServer) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	if h.capture == nil {
		writeError(w, http.StatusServiceUnavailable, "local capture is not configured")
		return
	}

	err := h.capture.Start()
	if errors.Is(err, capture.ErrAlreadyCapturing) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to start local capture", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start capture")
		return
	}

	h.metrics.SetCaptureActive(true)
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": true})
}

// handleCaptureStop implements POST /capture/stop. The recording is stored;
// the response carries its metadata, or recorded=false when it was empty.
func (h *HTTPServer) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if h.capture == nil {
		writeError(w, http.StatusServiceUnavailable, "local capture is not configured")
		return
	}

	record, err := StopCapture(h.capture, h.artifacts, h.metrics)
	if errors.Is(err, capture.ErrNotCapturing) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to stop local capture", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to stop capture")
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"active": false, "recorded": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":   false,
		"recorded": true,
		"artifact": record,
	})
}

// StopCapture stops the recording and stores the container, if any. It is
// shared by the API and the shutdown path.
func StopCapture(c CaptureController, artifacts ArtifactStore, m *metrics.Metrics) (*store.Record, error) {
	container, err := c.Stop()
	if err != nil {
		return nil, err
	}
	m.SetCaptureActive(false)

	if container == nil {
		return nil, nil
	}

	artifact := stream.LocalArtifact(container)
	m.RecordArtifact(string(artifact.Kind), string(artifact.Source), len(container.Bytes), container.Duration)

	record, err := artifacts.Put(artifact)
	if err != nil {
		m.RecordStoreError()
		return nil, fmt.Errorf("failed to store recording: %w", err)
	}
	return record, nil
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "OpenGlass capture relay",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                  "API documentation",
			"GET /health":            "Service health check",
			"GET /stats":             "Channel and ingest statistics",
			"GET /config":            "Service configuration",
			"GET /artifacts":         "List stored artifacts (?kind=image|audio)",
			"GET /artifacts/{id}":    "Artifact metadata",
			"DELETE /artifacts/{id}": "Delete an artifact",
			"GET /capture":           "Local capture status",
			"POST /capture/start":    "Start a local recording",
			"POST /capture/stop":     "Stop and store the local recording",
			"GET /metrics":           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
