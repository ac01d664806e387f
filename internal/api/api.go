// Package api exposes the telemetry report and its companions over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/torosent/connprobe/internal/changefeed"
	"github.com/torosent/connprobe/internal/health"
	"github.com/torosent/connprobe/internal/metrics"
	"github.com/torosent/connprobe/internal/telemetry"
)

// Telemetry is the report engine the handlers read and reset.
type Telemetry interface {
	Report() telemetry.Report
	Reset()
}

// Deps wires the handlers to their sources. Only Telemetry is required.
type Deps struct {
	Telemetry      Telemetry
	Probe          interface{ Stats() metrics.Stats }
	Health         interface{ Check() health.Result }
	ChangeFeed     interface{ Stats() changefeed.Stats }
	Metrics        http.Handler
	StreamInterval time.Duration
	Logger         *zap.Logger
}

// Handler serves the HTTP routes.
type Handler struct {
	deps     Deps
	router   *mux.Router
	quit     chan struct{}
	quitOnce sync.Once
}

// ProbeStats is the body of GET /probe/stats.
type ProbeStats struct {
	Probe      *metrics.Stats    `json:"probe,omitempty"`
	Health     *health.Result    `json:"health,omitempty"`
	ChangeFeed *changefeed.Stats `json:"changeFeed,omitempty"`
}

// New builds the router.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.StreamInterval <= 0 {
		deps.StreamInterval = 5 * time.Second
	}
	h := &Handler{deps: deps, router: mux.NewRouter(), quit: make(chan struct{})}

	r := h.router
	r.Use(h.logRequests)
	r.HandleFunc("/telemetry", h.report).Methods(http.MethodGet)
	r.HandleFunc("/telemetry/reset", h.reset).Methods(http.MethodPost)
	r.HandleFunc("/telemetry/stream", h.stream).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/probe/stats", h.probeStats).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Close ends open report streams. Register it with
// http.Server.RegisterOnShutdown since Shutdown leaves hijacked connections
// alone.
func (h *Handler) Close() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// NewServer returns an http.Server for h that closes h's streams on shutdown.
func NewServer(addr string, h *Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(h.Close)
	return srv
}

func (h *Handler) report(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Telemetry.Report())
}

func (h *Handler) reset(w http.ResponseWriter, _ *http.Request) {
	h.deps.Telemetry.Reset()
	h.deps.Logger.Info("telemetry reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Health == nil {
		writeJSON(w, http.StatusOK, health.Result{Status: health.StatusHealthy})
		return
	}
	res := h.deps.Health.Check()
	status := http.StatusOK
	if !res.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (h *Handler) probeStats(w http.ResponseWriter, _ *http.Request) {
	var body ProbeStats
	if h.deps.Probe != nil {
		s := h.deps.Probe.Stats()
		body.Probe = &s
	}
	if h.deps.Health != nil {
		res := h.deps.Health.Check()
		body.Health = &res
	}
	if h.deps.ChangeFeed != nil {
		s := h.deps.ChangeFeed.Stats()
		body.ChangeFeed = &s
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.deps.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
