package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ictengine/ictalert/internal/alerter"
	"github.com/ictengine/ictalert/internal/collector"
	"github.com/ictengine/ictalert/internal/evaluator"
	"github.com/ictengine/ictalert/internal/metrics"
	"github.com/ictengine/ictalert/internal/types"
	"github.com/ictengine/ictalert/internal/version"
	"github.com/ictengine/ictalert/internal/webui"
	"github.com/rs/zerolog"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 1000
	defaultLogLimit    = 200
	maxBodyBytes       = 64 << 10
	shutdownTimeout    = 5 * time.Second
)

// ReloadFunc is called when a reload is requested
type ReloadFunc func() error

// HealthFunc reports telemetry collector health
type HealthFunc func() collector.Health

// Server exposes the alerting core over HTTP
type Server struct {
	manager    *alerter.Manager
	thresholds *evaluator.ThresholdManager
	logger     zerolog.Logger
	addr       string
	startTime  time.Time
	info       version.Info

	logBuffer *webui.LogBuffer
	metrics   *metrics.Registry

	mu         sync.RWMutex
	reloadFunc ReloadFunc
	healthFunc HealthFunc

	srv *http.Server
}

// NewServer creates a new API server listening on addr
func NewServer(manager *alerter.Manager, thresholds *evaluator.ThresholdManager, logger zerolog.Logger, addr string) *Server {
	return &Server{
		manager:    manager,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "api").Logger(),
		addr:       addr,
		startTime:  time.Now(),
		info:       version.Get(),
	}
}

// SetLogBuffer sets the log capture served by /api/logs
func (s *Server) SetLogBuffer(lb *webui.LogBuffer) {
	s.logBuffer = lb
}

// SetMetrics sets the registry served by /metrics
func (s *Server) SetMetrics(reg *metrics.Registry) {
	s.metrics = reg
}

// SetVersion overrides the reported build info
func (s *Server) SetVersion(info version.Info) {
	s.info = info
}

// SetReloadFunc sets the function to call when a reload is requested.
// Without one, /api/reload re-reads the threshold file.
func (s *Server) SetReloadFunc(fn ReloadFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadFunc = fn
}

// SetHealthFunc sets the telemetry health source reported by /status
func (s *Server) SetHealthFunc(fn HealthFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthFunc = fn
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/alerts/recent", s.handleRecentAlerts)
	mux.HandleFunc("/breaches", s.handleBreaches)
	mux.HandleFunc("/thresholds", s.handleThresholds)
	mux.HandleFunc("/metrics/evaluate", s.handleEvaluate)
	mux.HandleFunc("/api/logs", s.handleLogsAPI)
	mux.HandleFunc("/api/reload", s.handleReload)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("address", s.addr).
		Msg("Starting API server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// limitParam reads ?limit=N, clamped to [1, maxRecentLimit]
func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxRecentLimit {
		n = maxRecentLimit
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"time":    time.Now().UTC().Format(time.RFC3339),
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"version": s.info,
		"alerts":  s.manager.Stats(),
	}

	if s.thresholds != nil {
		status["thresholds"] = len(s.thresholds.Thresholds())
		status["active_cooldowns"] = s.thresholds.ActiveCooldowns()
	}

	s.mu.RLock()
	healthFunc := s.healthFunc
	s.mu.RUnlock()
	if healthFunc != nil {
		status["telemetry"] = healthFunc()
	}

	writeJSON(w, http.StatusOK, status)
}

type alertRequest struct {
	Category string         `json:"category"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Symbol   string         `json:"symbol"`
	Metadata map[string]any `json:"metadata"`
}

type deliveryResponse struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// handleAlerts records an alert submitted by an external producer
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req alertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Category == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "category and message are required")
		return
	}
	severity, err := types.ParseSeverity(req.Severity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := s.manager.Record(alerter.Request{
		Category: req.Category,
		Severity: severity,
		Message:  req.Message,
		Symbol:   req.Symbol,
		Metadata: req.Metadata,
	})
	if !out.Accepted {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success":  false,
			"accepted": false,
			"error":    "rate limit reached",
		})
		return
	}

	deliveries := make([]deliveryResponse, 0, len(out.Deliveries))
	for _, d := range out.Deliveries {
		resp := deliveryResponse{Channel: d.Channel, OK: d.OK()}
		if d.Err != nil {
			resp.Error = d.Err.Error()
		}
		deliveries = append(deliveries, resp)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":    true,
		"accepted":   true,
		"duplicate":  out.Duplicate,
		"notified":   out.Notified,
		"alert":      out.Alert.ToRecord(),
		"deliveries": deliveries,
	})
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	limit, err := limitParam(r, defaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts := s.manager.GetRecent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleBreaches(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	limit, err := limitParam(r, defaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	breaches := []evaluator.Breach{}
	if s.thresholds != nil {
		breaches = s.thresholds.History(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"breaches": breaches,
		"count":    len(breaches),
	})
}

type thresholdResponse struct {
	AlertType        string   `json:"alert_type"`
	Section          string   `json:"section"`
	Unit             string   `json:"unit,omitempty"`
	Warning          *float64 `json:"warning,omitempty"`
	Critical         *float64 `json:"critical,omitempty"`
	Emergency        *float64 `json:"emergency,omitempty"`
	Comparison       string   `json:"comparison"`
	EvaluationWindow float64  `json:"evaluation_window_seconds"`
	CooldownMinutes  float64  `json:"cooldown_minutes"`
	Enabled          bool     `json:"enabled"`
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	out := []thresholdResponse{}
	if s.thresholds != nil {
		for _, th := range s.thresholds.Thresholds() {
			out = append(out, thresholdResponse{
				AlertType:        th.AlertType,
				Section:          th.Section,
				Unit:             th.Unit,
				Warning:          th.Warning,
				Critical:         th.Critical,
				Emergency:        th.Emergency,
				Comparison:       th.Comparison,
				EvaluationWindow: th.EvaluationWindow.Seconds(),
				CooldownMinutes:  th.Cooldown.Minutes(),
				Enabled:          th.Enabled,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertType < out[j].AlertType })

	writeJSON(w, http.StatusOK, map[string]any{
		"thresholds": out,
		"count":      len(out),
	})
}

type evaluateRequest struct {
	AlertType string         `json:"alert_type"`
	Value     *float64       `json:"value"`
	Component string         `json:"component"`
	Metadata  map[string]any `json:"metadata"`
}

// handleEvaluate runs a metric through the threshold manager; a breach
// reaches the alert manager through the breach hook
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.thresholds == nil {
		writeError(w, http.StatusServiceUnavailable, "threshold manager not configured")
		return
	}

	var req evaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.AlertType == "" || req.Value == nil {
		writeError(w, http.StatusBadRequest, "alert_type and value are required")
		return
	}

	breach := s.thresholds.EvaluateMetric(req.AlertType, *req.Value, req.Component, req.Metadata)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"breached": breach != nil,
		"breach":   breach,
	})
}

func (s *Server) handleLogsAPI(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	q := webui.Query{
		Limit:     defaultLogLimit,
		MinLevel:  zerolog.DebugLevel,
		Component: r.URL.Query().Get("component"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := limitParam(r, defaultLogLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Limit = limit
	}
	if raw := r.URL.Query().Get("level"); raw != "" {
		lvl, err := zerolog.ParseLevel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.MinLevel = lvl
	}

	entries := []webui.LogEntry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.Recent(q)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	s.mu.RLock()
	fn := s.reloadFunc
	s.mu.RUnlock()
	if fn == nil && s.thresholds != nil {
		fn = s.thresholds.Reload
	}
	if fn == nil {
		writeError(w, http.StatusNotImplemented, "Reload not configured")
		return
	}

	s.logger.Info().Msg("Reload requested via API")
	if err := fn(); err != nil {
		s.logger.Error().Err(err).Msg("Reload failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"success": true}
	if s.thresholds != nil {
		resp["thresholds"] = len(s.thresholds.Thresholds())
	}
	s.logger.Info().Msg("Reload completed")
	writeJSON(w, http.StatusOK, resp)
}
