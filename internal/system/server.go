// Package system implements the SystemManager: the process-level owner
// of a session's HTTP status/control surface. Grounded on the teacher's
// cmd/scanner/main.go setupHealthAndMetricsServer (mux.Router, /health,
// /ready, /live, /metrics via promhttp.Handler()), generalized with the
// session control endpoints spec.md §7 names (start/stop/pause/resume,
// dynamic add/remove).
package system

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/config"
	"github.com/yohannes916/mismartera-sub001/internal/coordinator"
)

// SystemManager owns the Coordinator for one session process and exposes
// it over HTTP.
type SystemManager struct {
	coord *coordinator.Coordinator
	repo  barrepo.Repository
	auth  *AuthManager
	cfg   config.SystemConfig
}

// New constructs a SystemManager wrapping coord.
func New(coord *coordinator.Coordinator, repo barrepo.Repository, cfg config.SystemConfig) *SystemManager {
	return &SystemManager{
		coord: coord,
		repo:  repo,
		auth:  NewAuthManager(cfg.JWTSecret),
		cfg:   cfg,
	}
}

// Router builds the full mux.Router: unauthenticated health/metrics
// endpoints plus JWT-gated session control endpoints.
func (m *SystemManager) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", m.handleHealth).Methods("GET")
	router.HandleFunc("/ready", m.handleReady).Methods("GET")
	router.HandleFunc("/live", m.handleLive).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())

	router.HandleFunc("/state", m.auth.requireAuth(m.handleState)).Methods("GET")
	router.HandleFunc("/session/start", m.auth.requireAuth(m.handleStart)).Methods("POST")
	router.HandleFunc("/session/stop", m.auth.requireAuth(m.handleStop)).Methods("POST")
	router.HandleFunc("/session/pause", m.auth.requireAuth(m.handlePause)).Methods("POST")
	router.HandleFunc("/session/resume", m.auth.requireAuth(m.handleResume)).Methods("POST")
	router.HandleFunc("/symbols", m.auth.requireAuth(m.handleAddSymbol)).Methods("POST")
	router.HandleFunc("/symbols/{symbol}", m.auth.requireAuth(m.handleRemoveSymbol)).Methods("DELETE")
	router.HandleFunc("/indicators", m.auth.requireAuth(m.handleAddIndicator)).Methods("POST")

	return router
}

// Serve builds an *http.Server bound to the Router; the caller starts it
// with ListenAndServe in its own goroutine and stops it with Shutdown,
// matching the teacher's health-server goroutine shape in
// cmd/scanner/main.go.
func (m *SystemManager) Serve() *http.Server {
	port := m.cfg.Port
	if port <= 0 {
		port = 8090
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      m.Router(),
		ReadTimeout:  m.cfg.ReadTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
