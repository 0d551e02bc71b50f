package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the single spendable ledger per user. It is mutated only
// through the repository settle/debit paths, never by handlers directly.
type Balance struct {
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}
