package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"nepse-journal/internal/analytics"
	apperrors "nepse-journal/internal/errors"
	"nepse-journal/internal/ledger"
	"nepse-journal/internal/models"
	"nepse-journal/internal/portfolio"
	"nepse-journal/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the per-user journal endpoints.
type Handler struct {
	portfolios *portfolio.Service
	ledger     *ledger.Service
	log        zerolog.Logger
	now        func() time.Time
}

// NewHandler creates a new journal handler.
func NewHandler(portfolios *portfolio.Service, ledgerSvc *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		portfolios: portfolios,
		ledger:     ledgerSvc,
		log:        log,
		now:        time.Now,
	}
}

// RegisterRoutes registers the journal routes under /api/users/{user}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolio", h.HandleGetPortfolio)
	r.Put("/portfolio", h.HandleUpdatePortfolio)
	r.Get("/balance", h.HandleGetBalance)
	r.Get("/history", h.HandleGetHistory)
	r.Get("/stats", h.HandleGetStats)

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.HandleListTransactions)
		r.Post("/", h.HandleAddTransaction)
		r.Delete("/{id}", h.HandleDeleteTransaction)
	})

	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleListTrades)
		r.Post("/", h.HandleCreateTrade)
		r.Get("/{id}", h.HandleGetTrade)
		r.Put("/{id}", h.HandleUpdateTrade)
		r.Delete("/{id}", h.HandleDeleteTrade)
	})

	r.Route("/strategies", func(r chi.Router) {
		r.Get("/", h.HandleListStrategies)
		r.Post("/", h.HandleCreateStrategy)
		r.Delete("/{id}", h.HandleDeleteStrategy)
	})
}

// HandleGetPortfolio handles GET /api/users/{user}/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	dash, err := h.portfolios.Dashboard(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dash)
}

// HandleUpdatePortfolio handles PUT /api/users/{user}/portfolio
func (h *Handler) HandleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	var in ledger.SettingsInput
	if !h.decode(w, r, &in) {
		return
	}

	p, err := h.ledger.UpdateSettings(r.Context(), chi.URLParam(r, "user"), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// BalanceResponse is the body of GET /api/users/{user}/balance.
type BalanceResponse struct {
	UserID   string `json:"user_id"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// HandleGetBalance handles GET /api/users/{user}/balance
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	balance, err := h.portfolios.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceResponse{
		UserID:   userID,
		Balance:  balance.StringFixed(2),
		Currency: models.Currency,
	})
}

// HandleGetHistory handles GET /api/users/{user}/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	points, err := h.portfolios.GetBalanceHistory(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, points)
}

// HandleGetStats handles GET /api/users/{user}/stats
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	trades, err := h.ledger.ListTrades(r.Context(), chi.URLParam(r, "user"), store.TradeFilter{})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, analytics.Compute(trades, h.now(), h.portfolios.Location()))
}

// HandleListTransactions handles GET /api/users/{user}/transactions
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limitParam(w, r)
	if !ok {
		return
	}

	txns, err := h.ledger.ListTransactions(r.Context(), chi.URLParam(r, "user"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, txns)
}

// MutationResponse pairs a written record with the reconciliation it caused.
type MutationResponse struct {
	Record    interface{}      `json:"record,omitempty"`
	Reconcile portfolio.Result `json:"reconcile"`
}

// HandleAddTransaction handles POST /api/users/{user}/transactions
func (h *Handler) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var in ledger.TransactionInput
	if !h.decode(w, r, &in) {
		return
	}

	txn, res, err := h.ledger.AddTransaction(r.Context(), chi.URLParam(r, "user"), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, MutationResponse{Record: txn, Reconcile: res})
}

// HandleDeleteTransaction handles DELETE /api/users/{user}/transactions/{id}
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	res, err := h.ledger.DeleteTransaction(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MutationResponse{Reconcile: res})
}

// HandleListTrades handles GET /api/users/{user}/trades
func (h *Handler) HandleListTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limitParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := store.TradeFilter{
		Symbol:     q.Get("symbol"),
		Status:     models.TradeStatus(q.Get("status")),
		StrategyID: q.Get("strategy_id"),
		Limit:      limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "status must be OPEN or CLOSED")
		return
	}

	trades, err := h.ledger.ListTrades(r.Context(), chi.URLParam(r, "user"), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// HandleCreateTrade handles POST /api/users/{user}/trades
func (h *Handler) HandleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var in ledger.TradeInput
	if !h.decode(w, r, &in) {
		return
	}

	result, err := h.ledger.CreateTrade(r.Context(), chi.URLParam(r, "user"), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// HandleGetTrade handles GET /api/users/{user}/trades/{id}
func (h *Handler) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.ledger.GetTrade(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trade)
}

// HandleUpdateTrade handles PUT /api/users/{user}/trades/{id}
func (h *Handler) HandleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	var in ledger.TradeInput
	if !h.decode(w, r, &in) {
		return
	}

	result, err := h.ledger.UpdateTrade(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleDeleteTrade handles DELETE /api/users/{user}/trades/{id}
func (h *Handler) HandleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	res, err := h.ledger.DeleteTrade(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MutationResponse{Reconcile: res})
}

// HandleListStrategies handles GET /api/users/{user}/strategies
func (h *Handler) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.ledger.ListStrategies(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if strategies == nil {
		strategies = []models.Strategy{}
	}
	h.writeJSON(w, http.StatusOK, strategies)
}

// HandleCreateStrategy handles POST /api/users/{user}/strategies
func (h *Handler) HandleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !h.decode(w, r, &request) {
		return
	}

	st, err := h.ledger.CreateStrategy(r.Context(), chi.URLParam(r, "user"), request.Name, request.Description)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, st)
}

// HandleDeleteStrategy handles DELETE /api/users/{user}/strategies/{id}
func (h *Handler) HandleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteStrategy(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecalculate handles POST /api/admin/recalculate
func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	report, err := h.portfolios.RecalculateAll(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

// writeServiceError maps domain errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.Is(err, apperrors.ErrInputValidation):
		status = http.StatusBadRequest
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrReadOnlyMode):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		h.writeError(w, status, "internal error")
		return
	}
	h.writeError(w, status, err.Error())
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
