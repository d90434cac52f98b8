package wallet

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
)

const (
	AdjustCredit = "credit"
	AdjustDebit  = "debit"
)

// AdjustBalance is the support/ops escape hatch: a manual credit or debit
// outside the normal flows. A reason is mandatory, the mutation goes through
// the same ledger path as everything else, and the action is audited. Locked
// wallets can be adjusted, since adjustments are how locked funds get fixed.
func (s *Service) AdjustBalance(ctx context.Context, adminID, userID int64, direction, rawAmount, reason string) (*models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, NewValidationError("an adjustment reason is required")
	}
	if direction != AdjustCredit && direction != AdjustDebit {
		return nil, NewValidationError("direction must be %q or %q", AdjustCredit, AdjustDebit)
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	if _, err := s.userByID(ctx, userID); err != nil {
		return nil, err
	}

	delta := amount
	txnType := models.TxnDeposit
	if direction == AdjustDebit {
		delta = amount.Neg()
		txnType = models.TxnWithdrawal
	}

	reference := AdjustmentReference()
	mutation, err := s.ledger.ApplyEntry(ctx, Entry{
		Wallet:      WalletKey{UserID: userID, Type: models.WalletNaira},
		Delta:       delta,
		AllowLocked: true,
		Record: RecordSpec{
			Reference: reference,
			Type:      txnType,
			Status:    models.TxnCompleted,
			Amount:    amount,
			Fee:       decimal.Zero,
			Metadata: models.TransactionMetadata{
				Adjustment: &models.AdjustmentMetadata{
					AdminID:   adminID,
					Direction: direction,
					Reason:    reason,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLog{
		ActorID:      adminID,
		Action:       "wallet.adjustment." + direction,
		TargetUserID: userID,
		Reference:    reference,
		Details: map[string]any{
			"amount": amount.String(),
			"reason": reason,
		},
	})
	s.notifier.Notify(ctx, NotificationEvent{
		UserID:    userID,
		Type:      "wallet.adjusted",
		Reference: reference,
		Amount:    amount,
	})
	return mutation.Transaction, nil
}

// UnlockWallet clears a limit lock after review. Audited like adjustments.
func (s *Service) UnlockWallet(ctx context.Context, adminID, userID int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return NewValidationError("an unlock reason is required")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE wallets SET is_locked = false, locked_reason = NULL, updated_at = NOW()
		WHERE user_id = $1 AND type = $2 AND is_locked = true`,
		userID, string(models.WalletNaira))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the wallet does not exist or it was never locked.
		var locked bool
		err := s.db.QueryRowContext(ctx, `SELECT is_locked FROM wallets WHERE user_id = $1 AND type = $2`,
			userID, string(models.WalletNaira)).Scan(&locked)
		if err == sql.ErrNoRows {
			return ErrWalletNotFound
		}
		if err != nil {
			return err
		}
		return NewValidationError("wallet is not locked")
	}

	s.audit.Record(ctx, models.AuditLog{
		ActorID:      adminID,
		Action:       "wallet.unlock",
		TargetUserID: userID,
		Details:      map[string]any{"reason": reason},
	})
	return nil
}
