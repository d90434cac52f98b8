package wallet

import (
	"context"
	"database/sql"
	"log"

	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
)

// BankDetails identifies the external destination account for a payout.
type BankDetails struct {
	BankCode      string `json:"bankCode" validate:"required"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber" validate:"required,len=10,numeric"`
	AccountName   string `json:"accountName"`
	Narration     string `json:"narration"`
}

type WithdrawalReceipt struct {
	Reference    string          `json:"reference"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	TotalDebit   decimal.Decimal `json:"totalDebit"`
	Status       string          `json:"status"`
	TransferCode string          `json:"transferCode,omitempty"`
}

// Withdraw moves funds to an external bank account. The wallet is debited
// for amount plus fee before the provider call; if the provider then fails,
// a compensating reversal restores the balance and the withdrawal is marked
// FAILED. The daily limit is fail-closed: a breach rejects the request
// before any money moves.
func (s *Service) Withdraw(ctx context.Context, userID int64, rawAmount, pin string, bank BankDetails) (*WithdrawalReceipt, error) {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	if err := s.pins.VerifyPin(ctx, userID, pin); err != nil {
		return nil, err
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		return nil, NewValidationError("account is not active")
	}

	cfg, err := s.configs.ForTier(ctx, user.KYCTier)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(cfg.MinWithdrawal) {
		return nil, NewValidationError("minimum withdrawal is ₦%s", cfg.MinWithdrawal.StringFixed(2))
	}
	if amount.GreaterThan(cfg.MaxWithdrawal) {
		return nil, NewValidationError("maximum withdrawal is ₦%s", cfg.MaxWithdrawal.StringFixed(2))
	}

	check, err := s.limits.CheckDailyLimit(ctx, userID, amount, CategoryWithdrawal)
	if err != nil {
		return nil, err
	}
	if !check.CanProceed {
		return nil, &LimitExceededError{Category: CategoryWithdrawal, Limit: check.Limit, Spent: check.Spent}
	}

	if bank.AccountName == "" {
		name, err := s.provider.ResolveAccount(ctx, bank.BankCode, bank.AccountNumber)
		if err != nil {
			return nil, &ProviderError{Op: "resolve account", Err: err}
		}
		bank.AccountName = name
	}

	fee := WithdrawalFee(cfg, amount)
	total := amount.Add(fee)
	reference := WithdrawalReference()

	mutation, err := s.ledger.ApplyEntry(ctx, Entry{
		Wallet: WalletKey{UserID: userID, Type: models.WalletNaira},
		Delta:  total.Neg(),
		Record: RecordSpec{
			Reference: reference,
			Type:      models.TxnWithdrawal,
			Status:    models.TxnProcessing,
			Amount:    amount,
			Fee:       fee,
			Metadata: models.TransactionMetadata{
				Withdrawal: &models.WithdrawalMetadata{
					BankCode:      bank.BankCode,
					BankName:      bank.BankName,
					AccountNumber: bank.AccountNumber,
					AccountName:   bank.AccountName,
					Narration:     bank.Narration,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	txn := mutation.Transaction

	result, err := s.provider.InitiateTransfer(ctx, &TransferRequest{
		Reference:     reference,
		Amount:        amount,
		BankCode:      bank.BankCode,
		AccountNumber: bank.AccountNumber,
		AccountName:   bank.AccountName,
		Narration:     bank.Narration,
	})
	if err != nil {
		provErr := &ProviderError{Op: "transfer", Err: err}
		if revErr := s.reverseWithdrawal(ctx, userID, txn, provErr.Error()); revErr != nil {
			// The debit stands with the withdrawal still PROCESSING;
			// reconciliation picks these up.
			log.Printf("[WITHDRAWAL] CRITICAL: reversal of %s failed: %v", reference, revErr)
			return nil, revErr
		}
		return nil, provErr
	}

	if err := s.completeWithdrawal(ctx, reference, result.TransferCode); err != nil {
		log.Printf("[WITHDRAWAL] Failed to finalize %s after successful transfer: %v", reference, err)
	}

	if err := s.limits.IncrementDailySpend(ctx, userID, amount, CategoryWithdrawal); err != nil {
		log.Printf("[WITHDRAWAL] Failed to record daily spend for user %d: %v", userID, err)
	}
	s.notifier.Notify(ctx, NotificationEvent{
		UserID:    userID,
		Type:      "withdrawal.completed",
		Reference: reference,
		Amount:    amount,
	})

	return &WithdrawalReceipt{
		Reference:    reference,
		Amount:       amount,
		Fee:          fee,
		TotalDebit:   total,
		Status:       string(models.TxnCompleted),
		TransferCode: result.TransferCode,
	}, nil
}

func (s *Service) completeWithdrawal(ctx context.Context, reference, transferCode string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, metadata = jsonb_set(COALESCE(metadata, '{}'), '{withdrawal,transferCode}', to_jsonb($2::text)), updated_at = NOW()
		WHERE reference = $3 AND status = 'PROCESSING'`,
		string(models.TxnCompleted), transferCode, reference)
	return err
}

// reverseWithdrawal issues the compensating credit for a withdrawal whose
// provider transfer failed. The credit, the REVERSAL record and the FAILED
// annotation on the original row commit atomically, and the credit lands
// even if the wallet was locked in the meantime.
func (s *Service) reverseWithdrawal(ctx context.Context, userID int64, original *models.Transaction, reason string) error {
	reversalRef := ReversalReference()
	_, err := s.ledger.Apply(ctx, ApplyRequest{
		Entries: []Entry{{
			Wallet:      WalletKey{UserID: userID, Type: models.WalletNaira},
			Delta:       original.TotalAmount,
			AllowLocked: true,
			Record: RecordSpec{
				Reference: reversalRef,
				Type:      models.TxnReversal,
				Status:    models.TxnCompleted,
				Amount:    original.TotalAmount,
				Fee:       decimal.Zero,
				Metadata: models.TransactionMetadata{
					Reversal: &models.ReversalMetadata{
						ReversalOf: original.Reference,
						Reason:     reason,
					},
				},
			},
		}},
		After: func(tx *sql.Tx, _ *ApplyResult) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE transactions
				SET status = $1, metadata = jsonb_set(COALESCE(metadata, '{}'), '{withdrawal,failureReason}', to_jsonb($2::text)), updated_at = NOW()
				WHERE reference = $3 AND status = 'PROCESSING'`,
				string(models.TxnFailed), reason, original.Reference)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrTransactionNotFound
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	log.Printf("[WITHDRAWAL] Reversed %s with %s: %s", original.Reference, reversalRef, reason)
	s.notifier.Notify(ctx, NotificationEvent{
		UserID:    userID,
		Type:      "withdrawal.reversed",
		Reference: original.Reference,
		Amount:    original.TotalAmount,
		Message:   "Your withdrawal could not be completed and has been refunded.",
	})
	return nil
}
