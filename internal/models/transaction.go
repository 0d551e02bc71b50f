package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindWithdrawal TransactionKind = "withdrawal"
)

type TransactionStatus string

const (
	TxnPending    TransactionStatus = "pending"
	TxnProcessing TransactionStatus = "processing"
	TxnCompleted  TransactionStatus = "completed"
	TxnFailed     TransactionStatus = "failed"
	TxnCancelled  TransactionStatus = "cancelled"
	TxnRefunded   TransactionStatus = "refunded"
)

// IsTerminal reports whether no further automatic transition may occur.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxnCompleted, TxnFailed, TxnCancelled, TxnRefunded:
		return true
	}
	return false
}

type PaymentChannel string

const (
	ChannelGCashQR PaymentChannel = "gcash-qr"
	ChannelGCashH5 PaymentChannel = "gcash-h5"
	ChannelMaya    PaymentChannel = "paymaya-direct"
	ChannelManual  PaymentChannel = "manual"
)

// Transaction is one payment attempt against the aggregator. Rows are
// append-only: reference_id, user_id, kind and amount never change after
// creation; completed_at is written exactly once, on the first transition
// into a terminal status.
type Transaction struct {
	ID               string            `json:"id"`
	ReferenceID      string            `json:"reference_id"`
	UserID           string            `json:"user_id"`
	Kind             TransactionKind   `json:"kind"`
	Amount           decimal.Decimal   `json:"amount"`
	Channel          PaymentChannel    `json:"payment_channel"`
	Status           TransactionStatus `json:"status"`
	RequestSnapshot  []byte            `json:"-"`
	ResponseSnapshot []byte            `json:"-"`
	CallbackSnapshot []byte            `json:"-"`
	RetryCount       int               `json:"retry_count"`
	LastError        *string           `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// EffectKind keys the applied-effect marker that keeps a balance mutation
// at-most-once per transaction.
type EffectKind string

const (
	EffectDepositCredit    EffectKind = "deposit_credit"
	EffectWithdrawalRefund EffectKind = "withdrawal_refund"
)
