package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletType string

const (
	WalletNaira WalletType = "NAIRA"
	WalletUSD   WalletType = "USD"
)

// Wallet is one row per (user, currency type). Balance is mutated only
// through the ledger; LedgerBalance is written equal to Balance on every
// mutation and is reserved for future available-vs-pending semantics.
type Wallet struct {
	ID            int64           `json:"id" db:"id"`
	UserID        int64           `json:"userId" db:"user_id"`
	Type          WalletType      `json:"type" db:"type"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	LedgerBalance decimal.Decimal `json:"ledgerBalance" db:"ledger_balance"`
	IsLocked      bool            `json:"isLocked" db:"is_locked"`
	LockedReason  string          `json:"lockedReason,omitempty" db:"locked_reason"`
	DailySpent    decimal.Decimal `json:"dailySpent" db:"daily_spent"`
	MonthlySpent  decimal.Decimal `json:"monthlySpent" db:"monthly_spent"`
	LastResetAt   time.Time       `json:"lastResetAt" db:"last_reset_at"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}
