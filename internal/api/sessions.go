package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/stocks-daily/internal/display"
	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"
)

// sessionView is a session with its forecast rendered for the page. The
// outer Forecast shadows the raw model output of the embedded session.
type sessionView struct {
	*models.Session
	Forecast *display.ForecastView `json:"forecast,omitempty"`
}

func newSessionView(s *models.Session) *sessionView {
	v := &sessionView{Session: s}
	if s.Forecast != nil {
		fv, err := display.Forecast(s.Forecast, display.DefaultTail)
		if err == nil {
			v.Forecast = fv
		}
	}
	return v
}

// CreateSession handles POST /api/v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSessionView(s))
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(s))
}

// SelectTicker handles PUT /api/v1/sessions/{id}/ticker
func (h *Handler) SelectTicker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.Symbol == "" {
		h.respondError(w, badRequest("symbol is required"))
		return
	}

	s, err := h.sessions.SelectTicker(mux.Vars(r)["id"], strings.ToUpper(req.Symbol))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(s))
}

// SetHorizon handles PUT /api/v1/sessions/{id}/horizon
func (h *Handler) SetHorizon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Years int `json:"years"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	s, err := h.sessions.SetHorizon(mux.Vars(r)["id"], req.Years)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(s))
}

// Predict handles POST /api/v1/sessions/{id}/predict
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.sessions.Predict(r.Context(), id)
	if err != nil {
		h.logger.Info("session forecast failed", zap.String("session_id", id), zap.Error(err))
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(s))
}

// Convert handles POST /api/v1/sessions/{id}/convert
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		From   string          `json:"from"`
		To     string          `json:"to"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	s, err := h.sessions.Convert(r.Context(), mux.Vars(r)["id"], req.Amount, req.From, req.To)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(s))
}
