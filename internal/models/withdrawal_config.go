package models

import (
	"github.com/shopspring/decimal"
)

type FeeType string

const (
	FeeFlat       FeeType = "FLAT"
	FeePercentage FeeType = "PERCENTAGE"
)

// WithdrawalConfig is the tier-scoped fee and limit policy. A row with a
// null TierLevel is the global default. Read-only to the engine; admin
// tooling owns mutation.
type WithdrawalConfig struct {
	ID            int64               `json:"id" db:"id"`
	FeeType       FeeType             `json:"feeType" db:"fee_type"`
	FeeValue      decimal.Decimal     `json:"feeValue" db:"fee_value"`
	MinFee        decimal.Decimal     `json:"minFee" db:"min_fee"`
	MaxFee        decimal.NullDecimal `json:"maxFee" db:"max_fee"` // null = no upper clamp
	MinWithdrawal decimal.Decimal     `json:"minWithdrawal" db:"min_withdrawal"`
	MaxWithdrawal decimal.Decimal     `json:"maxWithdrawal" db:"max_withdrawal"`
	TierLevel     *KYCTier            `json:"tierLevel" db:"tier_level"` // nil = global default
	IsActive      bool                `json:"isActive" db:"is_active"`
}
