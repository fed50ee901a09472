package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"embervault/native/treasury"
	"embervault/services/treasuryd/storage"
)

// Engine is the subset of the treasury engine the HTTP surface drives. Admin
// calls act with the controller principal configured at construction.
type Engine interface {
	ExecuteYield(ctx context.Context) (*treasury.ExecutionResult, error)
	PendingYield(ctx context.Context) (*big.Int, error)
	CanExecuteYield(ctx context.Context) (bool, *big.Int, treasury.Reason, error)
	SplitPercentages() treasury.SplitPolicy
	ActiveStrategy() treasury.Strategy
	Guard() treasury.GuardParams
	Statistics() *treasury.LedgerSnapshot
	SetSplit(caller [20]byte, policy treasury.SplitPolicy) error
	SetStrategy(caller [20]byte, strategy treasury.Strategy) error
	SetSlippageTolerance(caller [20]byte, bps uint32) error
	SetMinYieldAmount(caller [20]byte, amount *big.Int) error
	SetMaxExecutionAmount(caller [20]byte, amount *big.Int) error
	SetMinExecutionInterval(caller [20]byte, interval time.Duration) error
	Pause(caller [20]byte) error
	Unpause(caller [20]byte) error
	SetEmergencyMode(caller [20]byte, enabled bool) error
}

// History reads and appends the persisted execution log.
type History interface {
	RecentExecutions(ctx context.Context, limit int) ([]storage.ExecutionRecord, error)
	RecordExecution(ctx context.Context, result *treasury.ExecutionResult) (string, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	Controller    [20]byte
	RateLimit     RateLimit
}

// Server hosts the read API, admin API, and operational endpoints for
// treasuryd.
type Server struct {
	cfg     Config
	engine  Engine
	history History
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
}

// New constructs the HTTP server.
func New(cfg Config, engine Engine, history History, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if auth == nil {
		return nil, fmt.Errorf("admin authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		history: history,
		logger:  logger,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
	}, nil
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/treasury", func(r chi.Router) {
		r.Get("/pending", s.handlePending)
		r.Get("/can-execute", s.handleCanExecute)
		r.Get("/stats", s.handleStats)
		r.Get("/split", s.handleGetSplit)
		r.Get("/strategy", s.handleGetStrategy)
		r.Get("/guard", s.handleGetGuard)
		r.Get("/executions", s.handleExecutions)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.limiter.Middleware)
			r.Post("/execute", s.handleExecute)
			r.Post("/split", s.handleSetSplit)
			r.Post("/strategy", s.handleSetStrategy)
			r.Post("/guard", s.handleSetGuard)
			r.Post("/pause", s.handlePause)
			r.Post("/unpause", s.handleUnpause)
			r.Post("/emergency-mode", s.handleEmergencyMode)
		})
	})

	return otelhttp.NewHandler(r, "treasuryd.http")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("treasuryd: http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.PendingYield(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pending": pending.String()})
}

func (s *Server) handleCanExecute(w http.ResponseWriter, r *http.Request) {
	ok, pending, reason, err := s.engine.CanExecuteYield(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"can_execute": ok, "pending": pending.String()}
	if reason != treasury.ReasonNone {
		resp["reason"] = string(reason)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Statistics()
	resp := map[string]any{
		"total_yield_processed":   stats.TotalYieldProcessed.String(),
		"total_governance_burned": stats.TotalGovernanceBurned.String(),
		"total_liquidity_created": stats.TotalLiquidityCreated.String(),
		"last_execution_height":   stats.LastExecutionHeight,
	}
	if !stats.LastExecutionTime.IsZero() {
		resp["last_execution_time"] = stats.LastExecutionTime.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func splitPayload(policy treasury.SplitPolicy) map[string]any {
	return map[string]any{
		"stable_bps":    policy.ToStable,
		"liquidity_bps": policy.ToLiquidity,
		"burn_bps":      policy.ToBurn,
		"stakers_bps":   policy.ToStakers,
		"compound_bps":  policy.ToCompound,
	}
}

func (s *Server) handleGetSplit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, splitPayload(s.engine.SplitPercentages()))
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"strategy": s.engine.ActiveStrategy().String()})
}

func (s *Server) handleGetGuard(w http.ResponseWriter, r *http.Request) {
	guard := s.engine.Guard()
	writeJSON(w, http.StatusOK, map[string]any{
		"min_yield_amount":       amountString(guard.MinYieldAmount),
		"max_execution_amount":   amountString(guard.MaxExecutionAmount),
		"min_execution_interval": guard.MinExecutionInterval.String(),
		"slippage_tolerance_bps": guard.SlippageToleranceBps,
		"paused":                 guard.Paused,
		"emergency_mode":         guard.EmergencyMode,
	})
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	records, err := s.history.RecentExecutions(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		payload = append(payload, map[string]any{
			"id":               rec.ID,
			"executed_at":      rec.ExecutedAt.UTC().Format(time.RFC3339),
			"height":           rec.Height,
			"total_yield":      rec.TotalYield,
			"to_stable":        rec.AmountToStable,
			"burned":           rec.AmountBurned,
			"liquidity":        rec.LiquidityCreated,
			"to_stakers":       rec.AmountToStakers,
			"compounded":       rec.AmountCompounded,
			"strategy":         rec.Strategy,
			"regime":           rec.Regime,
			"emergency":        rec.Emergency,
			"partial_failures": rec.PartialFailures,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ExecuteYield(r.Context())
	if err != nil && result == nil {
		s.writeError(w, err)
		return
	}
	if s.history != nil && result != nil {
		if _, recErr := s.history.RecordExecution(r.Context(), result); recErr != nil {
			s.logger.Error("treasuryd: record execution failed", "error", recErr)
		}
	}
	resp := map[string]any{
		"total_yield":      result.TotalYield.String(),
		"to_stable":        result.AmountToStable.String(),
		"burned":           result.AmountBurned.String(),
		"liquidity":        result.LiquidityCreated.String(),
		"to_stakers":       result.AmountToStakers.String(),
		"compounded":       result.AmountCompounded.String(),
		"strategy":         result.Strategy.String(),
		"regime":           result.Regime,
		"emergency":        result.Emergency,
		"degraded":         result.Degraded(),
		"partial_failures": len(result.Partials),
	}
	if err != nil {
		// Routing settled but the ledger mirror did not persist.
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetSplit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StableBps    uint32 `json:"stable_bps"`
		LiquidityBps uint32 `json:"liquidity_bps"`
		BurnBps      uint32 `json:"burn_bps"`
		StakersBps   uint32 `json:"stakers_bps"`
		CompoundBps  uint32 `json:"compound_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	policy := treasury.SplitPolicy{
		ToStable:    req.StableBps,
		ToLiquidity: req.LiquidityBps,
		ToBurn:      req.BurnBps,
		ToStakers:   req.StakersBps,
		ToCompound:  req.CompoundBps,
	}
	if err := s.engine.SetSplit(s.cfg.Controller, policy); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, splitPayload(policy))
}

func (s *Server) handleSetStrategy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	strategy, err := treasury.ParseStrategy(req.Strategy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.SetStrategy(s.cfg.Controller, strategy); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"strategy": strategy.String()})
}

func (s *Server) handleSetGuard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinYieldAmount       *string `json:"min_yield_amount"`
		MaxExecutionAmount   *string `json:"max_execution_amount"`
		MinExecutionInterval *string `json:"min_execution_interval"`
		SlippageToleranceBps *uint32 `json:"slippage_tolerance_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	caller := s.cfg.Controller
	if req.MinYieldAmount != nil {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(*req.MinYieldAmount), 10)
		if !ok {
			http.Error(w, "invalid min_yield_amount", http.StatusBadRequest)
			return
		}
		if err := s.engine.SetMinYieldAmount(caller, amount); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.MaxExecutionAmount != nil {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(*req.MaxExecutionAmount), 10)
		if !ok {
			http.Error(w, "invalid max_execution_amount", http.StatusBadRequest)
			return
		}
		if err := s.engine.SetMaxExecutionAmount(caller, amount); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.MinExecutionInterval != nil {
		interval, err := time.ParseDuration(strings.TrimSpace(*req.MinExecutionInterval))
		if err != nil {
			http.Error(w, "invalid min_execution_interval", http.StatusBadRequest)
			return
		}
		if err := s.engine.SetMinExecutionInterval(caller, interval); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.SlippageToleranceBps != nil {
		if err := s.engine.SetSlippageTolerance(caller, *req.SlippageToleranceBps); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.handleGetGuard(w, r)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(s.cfg.Controller); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unpause(s.cfg.Controller); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleEmergencyMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.engine.SetEmergencyMode(s.cfg.Controller, req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"emergency_mode": req.Enabled})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, treasury.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, treasury.ErrInvalidSplit),
		errors.Is(err, treasury.ErrSlippageOutOfRange),
		errors.Is(err, treasury.ErrInvalidStrategy),
		errors.Is(err, treasury.ErrInvalidAmount),
		errors.Is(err, treasury.ErrZeroAddress):
		status = http.StatusBadRequest
	case errors.Is(err, treasury.ErrPaused),
		errors.Is(err, treasury.ErrNoPendingYield),
		errors.Is(err, treasury.ErrBelowMinimumYield),
		errors.Is(err, treasury.ErrIntervalNotElapsed),
		errors.Is(err, treasury.ErrReentrantExecution):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("treasuryd: request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func amountString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
