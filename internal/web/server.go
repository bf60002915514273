package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/analyzer"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/state"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/utils"
	"github.com/elys-network/pegguard/internal/vault"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// DefaultAnnualizationFactor assumes one keeper cycle per minute.
const DefaultAnnualizationFactor = 525_600

var ErrInvalidConfig = errors.New("invalid web server configuration")

// Config wires the server to the controller and its stores.
type Config struct {
	Port     string
	Vault    vault.PegVault
	Recorder state.Recorder
	// Market enables POST /api/market/swap against the paper ledger when set.
	Market *ledger.Chain
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
	// AnnualizationFactor scales /api/volatility; zero means DefaultAnnualizationFactor.
	AnnualizationFactor float64
}

// WebServer serves the controller state, the keeper history and the metrics.
type WebServer struct {
	router *mux.Router
	port   string
	cfg    Config
	server *http.Server
	logger zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Vault == nil || cfg.Recorder == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("vault and recorder are required"))
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.AnnualizationFactor <= 0 {
		cfg.AnnualizationFactor = DefaultAnnualizationFactor
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   cfg.Port,
		cfg:    cfg,
		logger: logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	return server, nil
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	if ws.cfg.Gatherer != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(ws.cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/status", ws.handleGetStatus).Methods("GET")
	api.HandleFunc("/proposal", ws.handleGetProposal).Methods("GET")
	api.HandleFunc("/position", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformance).Methods("GET")
	api.HandleFunc("/volatility", ws.handleGetVolatility).Methods("GET")
	if ws.cfg.Market != nil {
		api.HandleFunc("/market/swap", ws.handleMarketSwap).Methods("POST", "OPTIONS")
	}

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server. It returns http.ErrServerClosed after Shutdown.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return ws.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	storeHealthy := true
	if err := ws.cfg.Recorder.Healthy(); err != nil {
		ws.logger.Warn().Err(err).Msg("Recorder health check failed")
		storeHealthy = false
		hasErrors = true
	}

	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"last_cycle_status": "unknown",
		"last_action":       nil,
	}
	latest, err := ws.cfg.Recorder.LatestCycle()
	if err == nil {
		status := "completed"
		if latest.ErrorMessage != "" {
			status = "failed"
			hasErrors = true
		}
		cycleInfo = map[string]interface{}{
			"current_cycle":     latest.CycleNumber,
			"last_cycle_time":   latest.Timestamp,
			"last_cycle_status": status,
			"last_action":       latest.Proposal.Action,
		}
	} else if !errors.Is(err, state.ErrCycleNotFound) {
		ws.logger.Warn().Err(err).Msg("Failed to read latest cycle")
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
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "pegguard",
			"version": "1.0.0",
		},
		"pegguard_status": map[string]interface{}{
			"store_healthy":     storeHealthy,
			"has_recent_errors": hasErrors,
			"cycle_info":        cycleInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetStatus returns the controller configuration and market state
func (ws *WebServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.cfg.Vault.Status())
}

// handleGetProposal returns what the keeper would submit right now
func (ws *WebServer) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := ws.cfg.Vault.DetermineNextAction()
	if err != nil {
		ws.logger.Warn().Err(err).Msg("Failed to determine next action")
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	response := map[string]interface{}{
		"proposal":  proposal,
		"encoded":   proposal.Encode(),
		"timestamp": time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPosition returns the LP position and idle reference balance
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"position":       ws.cfg.Vault.Position(),
		"idle_reference": ws.cfg.Vault.IdleReference(),
		"timestamp":      time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCycles returns paginated cycle data
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 100)

	cycles, err := ws.cfg.Recorder.RecentCycles(limit)
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

// handleGetCycle returns a specific cycle by ID
func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	cycle, err := ws.cfg.Recorder.CycleByID(id)
	if errors.Is(err, state.ErrCycleNotFound) {
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

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := ws.cfg.Recorder.LatestCycle()
	if errors.Is(err, state.ErrCycleNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve latest cycle")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetEvents returns recent controller events, optionally filtered by ?type=
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 100)

	var eventTypes []types.EventType
	for _, raw := range r.URL.Query()["type"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				eventTypes = append(eventTypes, types.EventType(strings.ToUpper(t)))
			}
		}
	}

	events, err := ws.cfg.Recorder.RecentEvents(limit, eventTypes...)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	response := map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPerformance returns aggregate keeper statistics
func (ws *WebServer) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := ws.cfg.Recorder.Performance()
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get peg performance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, perf)
}

// handleGetVolatility summarises the spot prices seen by recent cycles
func (ws *WebServer) handleGetVolatility(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 500, 10_000)

	history, err := ws.cfg.Recorder.PriceHistory(limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get price history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve price history")
		return
	}

	band := ws.cfg.Vault.Status().Band
	floor, err := utils.PriceToFloat64(band.Floor)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Invalid floor price")
		return
	}
	capPrice, err := utils.PriceToFloat64(band.Cap)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Invalid cap price")
		return
	}

	report, err := analyzer.CalculatePegVolatility(history, floor, capPrice, ws.cfg.AnnualizationFactor)
	if err != nil && !errors.Is(err, analyzer.ErrInsufficientData) {
		ws.logger.Error().Err(err).Msg("Failed to calculate volatility")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to calculate volatility")
		return
	}

	response := map[string]interface{}{
		"volatility":      report,
		"sufficient_data": err == nil,
		"floor_price":     floor,
		"cap_price":       capPrice,
		"timestamp":       time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// SwapRequest is an outside trade pushed into the paper market.
type SwapRequest struct {
	Trader   types.Address `json:"trader"`
	DenomIn  string        `json:"denom_in"`
	AmountIn string        `json:"amount_in"`
}

// handleMarketSwap lets an operator move the paper market like an external trader would
func (ws *WebServer) handleMarketSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Trader == "" || req.DenomIn == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "trader and denom_in are required")
		return
	}
	amountIn, ok := sdkmath.NewIntFromString(req.AmountIn)
	if !ok || !amountIn.IsPositive() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount_in must be a positive integer")
		return
	}

	var amountOut sdkmath.Int
	err := ws.cfg.Market.Atomic(func(st *ledger.State) error {
		out, err := st.SwapExactIn(req.Trader, req.DenomIn, amountIn)
		if err != nil {
			return err
		}
		amountOut = out
		return nil
	})
	if err != nil {
		ws.logger.Warn().Err(err).
			Str("trader", string(req.Trader)).
			Str("denomIn", req.DenomIn).
			Str("amountIn", amountIn.String()).
			Msg("Market swap rejected")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	response := map[string]interface{}{
		"amount_out": amountOut,
		"timestamp":  time.Now().UTC(),
	}
	if _, spot, err := ws.cfg.Vault.SpotPrice(); err == nil {
		response["spot_price"] = spot
	}

	ws.logger.Info().
		Str("trader", string(req.Trader)).
		Str("denomIn", req.DenomIn).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Msg("Market swap executed")
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// queryInt reads a positive integer query parameter, falling back to def when
// it is missing, malformed or above max.
func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		return def
	}
	return v
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
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

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

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

		ws.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remoteAddr", r.RemoteAddr).
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
