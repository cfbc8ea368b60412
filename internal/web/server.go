package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/state"
	"github.com/elys-network/rdm/internal/types"
)

// DataSource is the read side of the distribution history.
type DataSource interface {
	RecentSummaries(ctx context.Context, limit int) ([]types.CycleSummary, error)
	SummaryByID(ctx context.Context, id int64) (*types.CycleSummary, error)
	PerformanceMetrics(ctx context.Context) (*state.PerformanceMetrics, error)
	EpochClaims(ctx context.Context, epoch string) ([]state.EpochClaim, error)
	Ping() error
}

// StateSource serves the API from the Postgres state package.
type StateSource struct{}

func (StateSource) RecentSummaries(ctx context.Context, limit int) ([]types.CycleSummary, error) {
	return state.GetRecentSummaries(ctx, limit)
}

func (StateSource) SummaryByID(ctx context.Context, id int64) (*types.CycleSummary, error) {
	return state.GetSummaryByID(ctx, id)
}

func (StateSource) PerformanceMetrics(ctx context.Context) (*state.PerformanceMetrics, error) {
	return state.GetPerformanceMetrics(ctx)
}

func (StateSource) EpochClaims(ctx context.Context, epoch string) ([]state.EpochClaim, error) {
	return state.GetEpochClaims(ctx, epoch)
}

func (StateSource) Ping() error {
	return state.TestDBConnection()
}

// WebServer exposes distribution history and metrics over HTTP.
type WebServer struct {
	logger   zerolog.Logger
	router   *mux.Router
	handler  http.Handler
	port     string
	source   DataSource
	registry *prometheus.Registry
	server   *http.Server
	now      func() time.Time
}

// NewWebServer creates a new web server instance. registry may be nil, in
// which case /metrics is not served.
func NewWebServer(port string, source DataSource, registry *prometheus.Registry) *WebServer {
	if port == "" {
		port = "8080"
	}
	if source == nil {
		source = StateSource{}
	}

	ws := &WebServer{
		logger:   logger.GetForComponent("web_server"),
		router:   mux.NewRouter(),
		port:     port,
		source:   source,
		registry: registry,
		now:      time.Now,
	}

	ws.setupRoutes()
	return ws
}

// Handler returns the routed handler wrapped in the middlewares.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.registry != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(ws.registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/claims", ws.handleGetClaims).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformanceMetrics).Methods("GET")

	// Wrapped outside the router so preflight requests never hit a 405.
	ws.handler = ws.corsMiddleware(ws.loggingMiddleware(ws.router))
}

// Start starts the web server and blocks until it stops. A clean Shutdown
// returns nil.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth reports database and last-cycle health.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"last_cycle_failed": 0,
	}
	latest, err := ws.source.RecentSummaries(r.Context(), 1)
	if err == nil && len(latest) > 0 {
		cycle := latest[0]
		cycleInfo = map[string]interface{}{
			"current_cycle":     cycle.CycleNumber,
			"last_cycle_time":   cycle.FinishedAt,
			"last_cycle_epoch":  cycle.Epoch,
			"last_cycle_failed": cycle.Failed,
		}
	} else if err != nil {
		hasErrors = true
	}

	dbHealthy := ws.source.Ping() == nil
	if !dbHealthy {
		hasErrors = true
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": ws.now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "rdm-reward-distribution-manager",
			"version": "1.0.0",
		},
		"rdm_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"cycle_info":       cycleInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetCycles returns the most recent cycle summaries.
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	cycles, err := ws.source.RecentSummaries(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	response := map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	cycle, err := ws.source.SummaryByID(r.Context(), id)
	if errors.Is(err, state.ErrSummaryNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
		return
	}
	if err != nil {
		ws.logger.Error().Err(err).Int64("cycleId", id).Msg("Failed to get cycle")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycle")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycles, err := ws.source.RecentSummaries(r.Context(), 1)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}
	if len(cycles) == 0 {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

// handleGetClaims returns the ledger rows of an epoch, the current one by
// default.
func (ws *WebServer) handleGetClaims(w http.ResponseWriter, r *http.Request) {
	epoch := r.URL.Query().Get("epoch")
	if epoch == "" {
		epoch = types.EpochOf(ws.now())
	}

	claims, err := ws.source.EpochClaims(r.Context(), epoch)
	if err != nil {
		ws.logger.Error().Err(err).Str("epoch", epoch).Msg("Failed to get epoch claims")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve claims")
		return
	}

	response := map[string]interface{}{
		"epoch":  epoch,
		"claims": claims,
		"count":  len(claims),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := ws.source.PerformanceMetrics(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": ws.now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers for the read-only dashboard API.
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper captures the status code for logging.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
