package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/payhub-ph/payhub-backend/internal/config"
	"github.com/payhub-ph/payhub-backend/internal/gateway"
	"github.com/payhub-ph/payhub-backend/internal/metrics"
	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
	"github.com/payhub-ph/payhub-backend/internal/services"
	"github.com/payhub-ph/payhub-backend/internal/sign"
)

// ackBody is the literal the gateway polls for. Anything else, a JSON
// envelope or an error status, counts as delivery failure and the
// gateway retries forever.
const ackBody = "success"

type CallbackHandler struct {
	settle     *services.SettlementService
	audit      repo.AuditLogs
	merchantID string
	secret     string
	allowedIPs []string
	log        *slog.Logger
}

func NewCallbackHandler(settle *services.SettlementService, audit repo.AuditLogs, cfg config.Config, log *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		settle:     settle,
		audit:      audit,
		merchantID: cfg.GatewayMerchantID,
		secret:     cfg.GatewaySecret,
		allowedIPs: cfg.CallbackAllowedIPs,
		log:        log,
	}
}

// Handle is the outer wrapper that guarantees the acknowledgement: the
// business outcome only reaches metrics and logs, never the response.
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	outcome := h.process(r)
	metrics.CallbacksTotal.WithLabelValues(outcome).Inc()

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(ackBody))
}

func (h *CallbackHandler) process(r *http.Request) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("callback panic", "err", rec)
			outcome = "error"
		}
	}()

	payload, err := gateway.ParseCallback(r)
	if err != nil {
		h.log.Warn("callback rejected: unparseable body", "err", err, "remote", r.RemoteAddr)
		return "rejected"
	}

	if len(h.allowedIPs) > 0 && !h.sourceAllowed(r.RemoteAddr) {
		h.log.Warn("callback rejected: source ip not allowed",
			"remote", r.RemoteAddr, "payload", payload.Params())
		h.recordRejection(r, payload, "source ip not allowed")
		return "rejected"
	}
	if payload.Merchant != h.merchantID {
		h.log.Warn("callback rejected: merchant mismatch",
			"merchant", payload.Merchant, "payload", payload.Params())
		h.recordRejection(r, payload, "merchant mismatch")
		return "rejected"
	}
	if !sign.Verify(payload.Params(), h.secret, payload.Sign, gateway.CallbackPolicy) {
		h.log.Warn("callback rejected: bad signature",
			"ref", payload.OrderID, "payload", payload.Params())
		h.recordRejection(r, payload, "bad signature")
		return "rejected"
	}

	snapshot, _ := json.Marshal(payload.Params())
	_, applied, err := h.settle.Apply(r.Context(), payload.OrderID, payload.Status, snapshot, "callback")
	switch {
	case errors.Is(err, repo.ErrNotFound):
		// Creation belongs to the request handler; a callback never
		// fabricates a transaction.
		h.log.Warn("callback for unknown reference", "ref", payload.OrderID)
		return "unknown_ref"
	case err != nil:
		h.log.Error("callback settle", "ref", payload.OrderID, "err", err)
		return "error"
	case applied:
		return "applied"
	default:
		return "duplicate"
	}
}

func (h *CallbackHandler) recordRejection(r *http.Request, p *gateway.CallbackPayload, reason string) {
	ref := p.OrderID
	_ = h.audit.Create(r.Context(), models.AuditLog{
		EntityType: "callback",
		EntityID:   &ref,
		Action:     "rejected",
		Details:    map[string]any{"reason": reason, "remote": r.RemoteAddr},
	})
}

func (h *CallbackHandler) sourceAllowed(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	for _, ip := range h.allowedIPs {
		if ip == host {
			return true
		}
	}
	return false
}
