package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/state"
	"github.com/elys-network/strategyvault/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

const adminHeader = "X-Admin-Token"

// Config holds the collaborators of the web server.
type Config struct {
	Port    string
	Manager vault.StrategyManager
	History History
	// Faucet, when set, exposes POST /api/faucet for funding simulated accounts.
	Faucet Faucet
	// Gatherer backs /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
	// AdminToken guards emergency withdrawals and the faucet. Empty disables the check.
	AdminToken string
}

// WebServer serves the strategy API
type WebServer struct {
	router     *mux.Router
	port       string
	manager    vault.StrategyManager
	history    History
	faucet     Faucet
	adminToken string
	started    time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("strategy manager cannot be nil")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       cfg.Port,
		manager:    cfg.Manager,
		history:    cfg.History,
		faucet:     cfg.Faucet,
		adminToken: cfg.AdminToken,
		started:    time.Now(),
	}

	server.setupRoutes(cfg.Gatherer)
	return server, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes(gatherer prometheus.Gatherer) {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api.HandleFunc("/strategies", ws.handleListStrategies).Methods("GET")
	api.HandleFunc("/strategies/{id}", ws.handleGetStrategy).Methods("GET")
	api.HandleFunc("/strategies/{id}/balances/{holder}", ws.handleGetBalance).Methods("GET")
	api.HandleFunc("/strategies/{id}/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/strategies/{id}/deposit/continue", ws.handleContinueDeposit).Methods("POST")
	api.HandleFunc("/strategies/{id}/withdraw", ws.handleWithdraw).Methods("POST")
	api.HandleFunc("/strategies/{id}/withdraw/continue", ws.handleContinueWithdrawal).Methods("POST")
	api.HandleFunc("/strategies/{id}/compound", ws.handleCompound).Methods("POST")
	api.HandleFunc("/strategies/{id}/yield", ws.handleRealizeYield).Methods("POST")
	api.HandleFunc("/strategies/{id}/worth", ws.handleUsdWorth).Methods("GET")
	api.HandleFunc("/strategies/{id}/rewards", ws.handleProtocolRewards).Methods("GET")
	api.HandleFunc("/strategies/{id}/emergency", ws.requireAdmin(ws.handleEmergencyWithdraw)).Methods("POST")

	api.HandleFunc("/strategies/{id}/yields", ws.handleGetYields).Methods("GET")
	api.HandleFunc("/strategies/{id}/performance", ws.handleGetPerformance).Methods("GET")
	api.HandleFunc("/strategies/{id}/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/strategies/{id}/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")

	if ws.faucet != nil {
		api.HandleFunc("/faucet", ws.requireAdmin(ws.handleFaucet)).Methods("POST")
	}

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		webLogger.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"failed_strategies": []string{},
	}
	if ws.history != nil {
		cycles, err := ws.history.Cycles(r.Context(), 1)
		if err != nil {
			hasErrors = true
		} else if len(cycles) > 0 {
			cycleInfo["current_cycle"] = cycles[0].CycleNumber
			cycleInfo["last_cycle_time"] = cycles[0].Timestamp
			cycleInfo["failed_strategies"] = cycles[0].FailedStrategies
		}
	}

	dbConfigured := state.DB != nil
	dbHealthy := false
	if dbConfigured {
		dbHealthy = state.TestDBConnection() == nil
		hasErrors = hasErrors || !dbHealthy
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"engine": map[string]interface{}{
			"strategies":          len(ws.manager.List()),
			"database_configured": dbConfigured,
			"database_healthy":    dbHealthy,
			"cycle_info":          cycleInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetCycles returns the most recent keeper cycles
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Cycle history is not available")
		return
	}
	limit := queryLimit(r, 20)

	cycles, err := ws.history.Cycles(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
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

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Cycle history is not available")
		return
	}
	cycles, err := ws.history.Cycles(r.Context(), 1)
	if err != nil || len(cycles) == 0 {
		webLogger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

func queryLimit(r *http.Request, def int) int {
	limit := def
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ws.adminToken != "" && r.Header.Get(adminHeader) != ws.adminToken {
			ws.writeErrorResponse(w, http.StatusForbidden, "Admin token required")
			return
		}
		next(w, r)
	}
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+adminHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
