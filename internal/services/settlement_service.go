package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/payhub-ph/payhub-backend/internal/gateway"
	"github.com/payhub-ph/payhub-backend/internal/metrics"
	"github.com/payhub-ph/payhub-backend/internal/models"
	repo "github.com/payhub-ph/payhub-backend/internal/repository"
)

// SettlementService is the one code path that converges a transaction on
// a gateway-reported status. Both the callback handler and the sweeper
// call Apply; neither carries its own status mapping or balance logic.
type SettlementService struct {
	trx   repo.Transactions
	audit repo.AuditLogs
	log   *slog.Logger
}

func NewSettlementService(t repo.Transactions, a repo.AuditLogs, log *slog.Logger) *SettlementService {
	return &SettlementService{trx: t, audit: a, log: log}
}

func (s *SettlementService) record(entityID, action, details string) {
	var det map[string]any
	if details != "" {
		det = map[string]any{"message": details}
	}
	_ = s.audit.Create(context.Background(), models.AuditLog{
		EntityType: "transaction",
		EntityID:   &entityID,
		Action:     action,
		Details:    det,
	})
}

// Apply canonicalizes rawStatus and drives the ledger transition.
// applied is true only when this call performed the terminal transition;
// duplicate and late reports come back applied=false with no error.
// repo.ErrNotFound propagates so the callback handler can ack-and-drop.
func (s *SettlementService) Apply(ctx context.Context, ref, rawStatus string, snapshot []byte, source string) (models.Transaction, bool, error) {
	canonical, known := gateway.CanonicalStatus(rawStatus)
	if !known {
		s.log.Warn("unknown gateway status", "ref", ref, "raw_status", rawStatus, "source", source)
		s.record(ref, "unknown_status", fmt.Sprintf("raw=%s source=%s", rawStatus, source))
		t, err := s.trx.GetByReference(ctx, ref)
		return t, false, err
	}

	if canonical == models.TxnProcessing {
		if err := s.trx.MarkProcessing(ctx, ref, snapshot); err != nil {
			return models.Transaction{}, false, err
		}
		t, err := s.trx.GetByReference(ctx, ref)
		return t, false, err
	}

	t, applied, err := s.trx.Settle(ctx, ref, canonical, snapshot, "")
	if err != nil {
		return models.Transaction{}, false, err
	}
	if !applied {
		// First-writer-wins: the transition happened elsewhere. A
		// conflicting terminal report is an anomaly worth keeping.
		if t.Status != canonical {
			s.log.Warn("conflicting terminal report ignored",
				"ref", ref, "persisted", t.Status, "reported", canonical, "source", source)
			s.record(ref, "conflicting_report", fmt.Sprintf("persisted=%s reported=%s source=%s", t.Status, canonical, source))
		} else {
			s.log.Debug("duplicate terminal report", "ref", ref, "status", canonical, "source", source)
		}
		return t, false, nil
	}

	metrics.TransactionsTotal.WithLabelValues(string(t.Kind), string(t.Status)).Inc()
	s.record(ref, "status_change", fmt.Sprintf("%s via %s", canonical, source))
	s.log.Info("transaction settled", "ref", ref, "status", canonical, "source", source)
	return t, true, nil
}

// ForceFail terminates a transaction that outlived the reconciliation
// window. Refund of a pre-debited withdrawal rides on the same settle
// path as every other failure.
func (s *SettlementService) ForceFail(ctx context.Context, ref, reason string) (models.Transaction, bool, error) {
	t, applied, err := s.trx.Settle(ctx, ref, models.TxnFailed, nil, reason)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if applied {
		metrics.TransactionsTotal.WithLabelValues(string(t.Kind), string(t.Status)).Inc()
		s.record(ref, "status_change", "failed: "+reason)
		s.log.Info("transaction force-failed", "ref", ref, "reason", reason)
	}
	return t, applied, nil
}
