package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/stocks-daily/internal/display"
	"github.com/trogers1052/stocks-daily/internal/models"
	"github.com/trogers1052/stocks-daily/internal/recorder"
	"github.com/trogers1052/stocks-daily/internal/session"
	"go.uber.org/zap"
)

// RunLister lists persisted forecast runs
type RunLister interface {
	ListForecastRuns(ctx context.Context, symbol string, limit int) ([]*models.ForecastRun, error)
}

// HistoryService serves price histories and discards corrected ones
type HistoryService interface {
	session.HistoryLoader
	Discard(ctx context.Context, symbol string) error
}

// HealthCheck reports the health of one dependency
type HealthCheck func(ctx context.Context) error

// Handler holds dependencies for HTTP handlers
type Handler struct {
	loader    HistoryService
	sessions  *session.Manager
	converter session.Converter
	runs      RunLister
	recorder  recorder.Recorder
	checks    map[string]HealthCheck
	logger    *zap.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithRuns serves persisted forecast runs
func WithRuns(r RunLister) Option {
	return func(h *Handler) { h.runs = r }
}

// WithRecorder serves the conversion audit log
func WithRecorder(r recorder.Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithHealthCheck adds a dependency to /health
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// NewHandler creates a new Handler
func NewHandler(loader HistoryService, sessions *session.Manager, converter session.Converter, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		loader:    loader,
		sessions:  sessions,
		converter: converter,
		recorder:  recorder.NewNoopRecorder(),
		checks:    make(map[string]HealthCheck),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	body := map[string]any{"status": "healthy", "dependencies": deps}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	respondJSON(w, status, body)
}

// GetTickers handles GET /api/v1/tickers
func (h *Handler) GetTickers(w http.ResponseWriter, r *http.Request) {
	bounds := h.sessions.Bounds()
	symbols := h.loader.Tickers()
	tickers := make([]models.Ticker, len(symbols))
	for i, s := range symbols {
		tickers[i] = models.NewTicker(s)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tickers":   tickers,
		"min_years": bounds.MinYears,
		"max_years": bounds.MaxYears,
	})
}

// GetHistory handles GET /api/v1/stocks/{symbol}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	tail, err := queryInt(r, "tail", display.DefaultTail)
	if err != nil {
		h.respondError(w, err)
		return
	}

	hist, err := h.loader.Load(r.Context(), symbol)
	if err != nil {
		h.respondError(w, err)
		return
	}
	view, err := display.RawData(hist, tail)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// DiscardHistory handles DELETE /api/v1/stocks/{symbol}/history
func (h *Handler) DiscardHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	if err := h.loader.Discard(r.Context(), symbol); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "invalidated": true})
}

// CreateForecast handles POST /api/v1/stocks/{symbol}/forecast
func (h *Handler) CreateForecast(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	var req struct {
		Years int `json:"years"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	tail, err := queryInt(r, "tail", display.DefaultTail)
	if err != nil {
		h.respondError(w, err)
		return
	}

	f, err := h.sessions.RunForecast(r.Context(), symbol, req.Years)
	if err != nil {
		h.respondError(w, err)
		return
	}
	view, err := display.Forecast(f, tail)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ListForecastRuns handles GET /api/v1/stocks/{symbol}/forecasts
func (h *Handler) ListForecastRuns(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	if !h.loader.Supports(symbol) {
		h.respondError(w, unknownTicker(symbol))
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if h.runs == nil {
		respondJSON(w, http.StatusOK, []*models.ForecastRun{})
		return
	}

	runs, err := h.runs.ListForecastRuns(r.Context(), symbol, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetCurrencies handles GET /api/v1/currencies
func (h *Handler) GetCurrencies(w http.ResponseWriter, r *http.Request) {
	list, err := h.converter.ListCurrencies(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// ConvertCurrency handles GET /api/v1/currencies/convert
func (h *Handler) ConvertCurrency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	conv, err := h.sessions.ConvertAmount(r.Context(), q.Get("from"), q.Get("to"), amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

// ListConversions handles GET /api/v1/currencies/conversions
func (h *Handler) ListConversions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		h.respondError(w, err)
		return
	}
	convs, err := h.recorder.RecentConversions(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, convs)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, badRequest("%s must be a positive integer", key)
	}
	return n, nil
}

func parseAmount(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, badRequest("amount is required")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, badRequest("amount must be a number")
	}
	return d, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	var reqErr *requestError
	message := err.Error()
	if errors.As(err, &reqErr) {
		message = reqErr.msg
	}
	respondJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}
