package wallet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	cardFeeRate      = decimal.NewFromFloat(0.015)
	cardFeeSurcharge = decimal.NewFromInt(100)
	cardFeeCap       = decimal.NewFromInt(2000)
	cardFeeThreshold = decimal.NewFromInt(2500)

	oneHundred = decimal.NewFromInt(100)
)

// CardDepositFee computes the card-charge fee: 1.5% below the surcharge
// threshold, otherwise 1.5% plus ₦100 capped at ₦2,000.
func CardDepositFee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(cardFeeRate)
	if amount.LessThan(cardFeeThreshold) {
		return fee
	}
	fee = fee.Add(cardFeeSurcharge)
	if fee.GreaterThan(cardFeeCap) {
		return cardFeeCap
	}
	return fee
}

// P2PFee is zero under current policy. The fee still flows through every
// record so a future change is confined to this function.
func P2PFee(amount decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// WithdrawalFee applies a config: flat value, or percentage of amount,
// clamped to [MinFee, MaxFee]. A null MaxFee means no upper clamp.
func WithdrawalFee(cfg *models.WithdrawalConfig, amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch cfg.FeeType {
	case models.FeeFlat:
		fee = cfg.FeeValue
	default:
		fee = amount.Mul(cfg.FeeValue).Div(oneHundred)
	}
	if fee.LessThan(cfg.MinFee) {
		fee = cfg.MinFee
	}
	if cfg.MaxFee.Valid && fee.GreaterThan(cfg.MaxFee.Decimal) {
		fee = cfg.MaxFee.Decimal
	}
	return fee
}

// DefaultWithdrawalConfig is the hardcoded fallback used when no active
// config row exists for the tier or globally.
func DefaultWithdrawalConfig() *models.WithdrawalConfig {
	return &models.WithdrawalConfig{
		FeeType:       models.FeePercentage,
		FeeValue:      decimal.NewFromFloat(1.5),
		MinFee:        decimal.NewFromInt(50),
		MaxFee:        decimal.NullDecimal{Decimal: decimal.NewFromInt(500), Valid: true},
		MinWithdrawal: decimal.NewFromInt(100),
		MaxWithdrawal: decimal.NewFromInt(50000),
		IsActive:      true,
	}
}

// WithdrawalConfigStore resolves the fee/limit policy for a tier, falling
// back tier config -> global config -> hardcoded default.
type WithdrawalConfigStore struct {
	db *sql.DB
}

func NewWithdrawalConfigStore(db *sql.DB) *WithdrawalConfigStore {
	return &WithdrawalConfigStore{db: db}
}

func (s *WithdrawalConfigStore) ForTier(ctx context.Context, tier models.KYCTier) (*models.WithdrawalConfig, error) {
	cfg, err := s.lookup(ctx, `
		SELECT id, fee_type, fee_value, min_fee, max_fee, min_withdrawal, max_withdrawal
		FROM withdrawal_configs
		WHERE tier_level = $1 AND is_active = true
		ORDER BY id DESC
		LIMIT 1`, int(tier))
	if err == nil {
		return cfg, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("withdrawal config lookup: %w", err)
	}

	cfg, err = s.lookup(ctx, `
		SELECT id, fee_type, fee_value, min_fee, max_fee, min_withdrawal, max_withdrawal
		FROM withdrawal_configs
		WHERE tier_level IS NULL AND is_active = true
		ORDER BY id DESC
		LIMIT 1`)
	if err == nil {
		return cfg, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("withdrawal config lookup: %w", err)
	}

	return DefaultWithdrawalConfig(), nil
}

func (s *WithdrawalConfigStore) lookup(ctx context.Context, query string, args ...any) (*models.WithdrawalConfig, error) {
	cfg := &models.WithdrawalConfig{IsActive: true}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&cfg.ID, &cfg.FeeType, &cfg.FeeValue, &cfg.MinFee, &cfg.MaxFee,
		&cfg.MinWithdrawal, &cfg.MaxWithdrawal,
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
