package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/binary-amm/internal/auth"
	"github.com/atmx/binary-amm/internal/ledger"
	"github.com/atmx/binary-amm/internal/listing"
	"github.com/atmx/binary-amm/internal/model"
	"github.com/atmx/binary-amm/internal/store"
)

// Handler exposes the Service over HTTP.
type Handler struct {
	svc    *Service
	minter ledger.Minter // nil disables POST /admin/credit
}

// NewHandler creates the HTTP handler. Pass a non-nil minter only in
// development deployments.
func NewHandler(svc *Service, minter ledger.Minter) *Handler {
	return &Handler{svc: svc, minter: minter}
}

// Routes registers the API on r. The caller mounts it under /api/v1 behind
// auth.Signer.Middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/config", h.GetConfig)
	r.Get("/fees", h.GetFees)
	r.Post("/fees/withdraw", h.WithdrawFees)

	r.Get("/markets", h.ListMarkets)
	r.Post("/markets", h.CreateMarket)
	r.Route("/markets/{marketID}", func(r chi.Router) {
		r.Get("/", h.GetMarket)
		r.Get("/price", h.GetPrice)
		r.Get("/history", h.GetMarketHistory)
		r.Get("/claims", h.GetClaims)
		r.Get("/vault", h.GetVault)
		r.Post("/buy", h.Buy)
		r.Post("/resolve", h.Resolve)
		r.Post("/claim", h.Claim)
		r.Post("/sweep", h.Sweep)
	})

	r.Get("/portfolio/{userID}", h.GetPortfolio)

	if h.minter != nil {
		r.Post("/admin/credit", h.Credit)
	}
}

// --- Request types ---

// ResolveRequest is the body of POST /markets/{id}/resolve.
type ResolveRequest struct {
	OutcomeYes *bool `json:"outcome_yes"`
}

// AmountRequest is the body of POST /fees/withdraw.
type AmountRequest struct {
	Amount uint64 `json:"amount"`
}

// CreditRequest is the body of POST /admin/credit.
type CreditRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// --- Config & fees ---

// GetConfig handles GET /api/v1/config.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GetFees handles GET /api/v1/fees.
func (h *Handler) GetFees(w http.ResponseWriter, r *http.Request) {
	bal, err := h.svc.FeeBalance(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// WithdrawFees handles POST /api/v1/fees/withdraw.
func (h *Handler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	remaining, err := h.svc.WithdrawFees(r.Context(), caller, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"withdrawn": req.Amount, "remaining": remaining})
}

// --- Markets ---

// CreateMarket handles POST /api/v1/markets.
func (h *Handler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req listing.Listing
	if !decode(w, r, &req) {
		return
	}
	m, err := h.svc.CreateMarket(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMarkets handles GET /api/v1/markets with optional ?category= and
// ?resolved= filters.
func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	f := store.MarketFilter{Category: r.URL.Query().Get("category")}
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, "resolved must be true or false", http.StatusBadRequest)
			return
		}
		f.Resolved = &b
	}
	markets, err := h.svc.Markets(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}.
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	m, err := h.svc.Market(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetPrice handles GET /api/v1/markets/{marketID}/price.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Price(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetMarketHistory handles GET /api/v1/markets/{marketID}/history.
func (h *Handler) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	trades, err := h.svc.Trades(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []model.TradeEvent{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetClaims handles GET /api/v1/markets/{marketID}/claims.
func (h *Handler) GetClaims(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	claims, err := h.svc.Claims(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if claims == nil {
		claims = []model.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// GetVault handles GET /api/v1/markets/{marketID}/vault.
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	bal, err := h.svc.VaultBalance(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// --- Trading & settlement ---

// Buy handles POST /api/v1/markets/{marketID}/buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	var req BuyRequest
	if !decode(w, r, &req) {
		return
	}
	req.MarketID = id
	res, err := h.svc.Buy(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Resolve handles POST /api/v1/markets/{marketID}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OutcomeYes == nil {
		writeError(w, "outcome_yes is required", http.StatusBadRequest)
		return
	}
	m, err := h.svc.Resolve(r.Context(), caller, id, *req.OutcomeYes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Claim handles POST /api/v1/markets/{marketID}/claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Claim(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Sweep handles POST /api/v1/markets/{marketID}/sweep.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	id, ok := marketIDOf(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Sweep(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Portfolio ---

// GetPortfolio handles GET /api/v1/portfolio/{userID}.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userID")
	if user == "" {
		writeError(w, "user id is required", http.StatusBadRequest)
		return
	}
	p, err := h.svc.Portfolio(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Development ---

// Credit handles POST /api/v1/admin/credit. Only the authority may mint.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req CreditRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.svc.requireAuthority(r.Context(), caller); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Account == "" || req.Amount == 0 {
		writeError(w, "account and a positive amount are required", http.StatusBadRequest)
		return
	}
	if ledger.IsVault(req.Account) {
		writeError(w, "vault accounts cannot be credited", http.StatusBadRequest)
		return
	}
	if err := h.minter.Credit(r.Context(), req.Account, req.Amount); err != nil {
		writeServiceError(w, err)
		return
	}
	slog.Info("account credited", "account", req.Account, "amount", req.Amount, "by", caller)
	writeJSON(w, http.StatusOK, req)
}

// --- Helpers ---

func callerOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := auth.Identity(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return "", false
	}
	return id, true
}

func marketIDOf(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "market id must be an unsigned integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidParameter),
		errors.Is(err, model.ErrOverflow),
		errors.Is(err, model.ErrDivideByZero):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrMarketNotFound),
		errors.Is(err, model.ErrPositionNotFound),
		errors.Is(err, model.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrMarketExists),
		errors.Is(err, model.ErrMarketAlreadyResolved),
		errors.Is(err, model.ErrMarketNotYetExpired),
		errors.Is(err, model.ErrMarketExpired),
		errors.Is(err, model.ErrMarketNotResolved),
		errors.Is(err, model.ErrInsufficientLiquidity),
		errors.Is(err, model.ErrSlippageExceeded),
		errors.Is(err, model.ErrExposureLimitExceeded),
		errors.Is(err, model.ErrAlreadyClaimed),
		errors.Is(err, model.ErrNoWinningShares),
		errors.Is(err, model.ErrNoRemainingFunds),
		errors.Is(err, model.ErrClaimWindowOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeError(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
