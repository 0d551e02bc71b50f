package gateway

import "github.com/payhub-ph/payhub-backend/internal/models"

// CanonicalStatus maps the gateway's external status codes onto the
// ledger state machine. This is the only copy of the mapping; both the
// callback handler and the reconciliation sweeper go through it.
//
// ok is false for codes the gateway has never documented; callers keep
// the transaction in processing and log the anomaly rather than guess a
// terminal state.
func CanonicalStatus(code string) (models.TransactionStatus, bool) {
	switch code {
	case "5":
		return models.TxnCompleted, true
	case "3":
		return models.TxnFailed, true
	case "4":
		return models.TxnCancelled, true
	case "1", "2", "6", "10":
		return models.TxnProcessing, true
	default:
		return models.TxnProcessing, false
	}
}
