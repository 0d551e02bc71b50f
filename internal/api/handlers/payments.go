package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/payhub-ph/payhub-backend/internal/api/httpx"
	"github.com/payhub-ph/payhub-backend/internal/middleware"
	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
	"github.com/payhub-ph/payhub-backend/internal/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
	balances *services.BalanceService
}

func NewPaymentHandler(p *services.PaymentService, b *services.BalanceService) *PaymentHandler {
	return &PaymentHandler{payments: p, balances: b}
}

type depositReq struct {
	Amount  string `json:"amount"`
	Channel string `json:"channel"`
}

func (h *PaymentHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing user", nil)
		return
	}
	var req depositReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid amount", nil)
		return
	}

	res, err := h.payments.CreateDeposit(r.Context(), uid, amount, models.PaymentChannel(req.Channel))
	if err != nil {
		writePaymentErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

type withdrawReq struct {
	Amount      string `json:"amount"`
	Channel     string `json:"channel"`
	AccountNo   string `json:"account_no"`
	AccountName string `json:"account_name"`
}

func (h *PaymentHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing user", nil)
		return
	}
	var req withdrawReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountNo == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid body", nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid amount", nil)
		return
	}

	t, err := h.payments.CreateWithdrawal(r.Context(), uid, services.WithdrawalInput{
		Amount:      amount,
		Channel:     models.PaymentChannel(req.Channel),
		AccountNo:   req.AccountNo,
		AccountName: req.AccountName,
	})
	if err != nil {
		writePaymentErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	t, err := h.payments.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil || t.UserID != uid {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	txs, err := h.payments.ListByUser(r.Context(), uid, limit, offset)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}

func (h *PaymentHandler) Balance(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	b, err := h.balances.Current(r.Context(), uid)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// AdminRefund is the manual correction endpoint; RequireRole("admin")
// guards the route.
func (h *PaymentHandler) AdminRefund(w http.ResponseWriter, r *http.Request) {
	t, err := h.payments.AdminRefund(r.Context(), chi.URLParam(r, "reference"))
	switch {
	case errors.Is(err, repo.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
	case errors.Is(err, repo.ErrStateConflict):
		httpx.WriteError(w, http.StatusConflict, "state_conflict", "transaction is not in a refundable state", nil)
	case err != nil:
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	default:
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

func writePaymentErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrUnsupportedChannel):
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, repo.ErrInsufficientFunds):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "insufficient_funds", "balance does not cover the amount", nil)
	default:
		httpx.WriteError(w, http.StatusBadGateway, "payment_failed", "payment could not be initiated", nil)
	}
}
