package repository

import (
	"context"
	"time"

	"github.com/payhub-ph/payhub-backend/internal/models"
)

type Users interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

type Balances interface {
	GetOrCreate(ctx context.Context, userID string) (models.Balance, error)
	Get(ctx context.Context, userID string) (models.Balance, error)
}

// Transactions owns the payment ledger and, through Settle, the user
// balance: a terminal transition and its balance effect commit in one
// database transaction or not at all.
type Transactions interface {
	// CreateDeposit inserts a pending deposit row.
	CreateDeposit(ctx context.Context, tx models.Transaction) (models.Transaction, error)

	// CreateWithdrawal inserts a pending withdrawal row and pre-debits
	// the user balance under a row lock. ErrInsufficientFunds when the
	// balance does not cover the amount.
	CreateWithdrawal(ctx context.Context, tx models.Transaction) (models.Transaction, error)

	GetByReference(ctx context.Context, ref string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)

	// MarkProcessing moves pending -> processing after the gateway
	// accepted the order, storing the response snapshot once.
	MarkProcessing(ctx context.Context, ref string, responseSnapshot []byte) error

	// ListUnsettled returns non-terminal transactions created before
	// olderThan; the sweeper's work queue. The sweeper itself decides
	// between re-probing and force-failing based on each row's age.
	ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error)

	// RecordSweepAttempt bumps retry_count and stores the probe error.
	RecordSweepAttempt(ctx context.Context, ref string, lastError string) error

	// Settle applies a terminal transition with first-writer-wins
	// semantics. When the current status is already terminal it returns
	// applied=false and changes nothing. When the transition carries a
	// balance effect (deposit completed: credit; withdrawal
	// failed/cancelled: refund of the pre-debit) the effect, its
	// applied-marker and the status update commit atomically.
	Settle(ctx context.Context, ref string, status models.TransactionStatus, snapshot []byte, reason string) (models.Transaction, bool, error)

	// AdminRefund is the manual correction path: any terminal status
	// except refunded may move to refunded. No balance effect.
	AdminRefund(ctx context.Context, ref string) (models.Transaction, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

// BalanceEffectFor derives the single permitted balance mutation for a
// terminal transition: the transaction amount, credited. Both the
// postgres Settle and the test fakes go through this rule; there is
// exactly one copy.
func BalanceEffectFor(kind models.TransactionKind, status models.TransactionStatus) (models.EffectKind, bool) {
	switch {
	case kind == models.KindDeposit && status == models.TxnCompleted:
		return models.EffectDepositCredit, true
	case kind == models.KindWithdrawal && (status == models.TxnFailed || status == models.TxnCancelled):
		return models.EffectWithdrawalRefund, true
	}
	return "", false
}
