package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
)

const depositLimitLockReason = "Daily deposit limit exceeded"

// DepositReceipt is returned from deposit initialization.
type DepositReceipt struct {
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	Fee              decimal.Decimal `json:"fee"`
	AuthorizationURL string          `json:"authorizationUrl,omitempty"`
	AccessCode       string          `json:"accessCode,omitempty"`
	Status           string          `json:"status"`
}

// InitializeDeposit opens a card funding attempt: a PENDING transaction is
// recorded up front so the reference exists before the user ever reaches
// the provider's checkout page. No balance changes here.
func (s *Service) InitializeDeposit(ctx context.Context, userID int64, rawAmount string) (*DepositReceipt, error) {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, err
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		return nil, NewValidationError("account is not active")
	}
	if _, err := s.GetWallet(ctx, userID, models.WalletNaira); err != nil {
		return nil, err
	}

	fee := CardDepositFee(amount)
	reference := DepositReference()

	metadata, err := marshalMetadata(models.TransactionMetadata{
		Deposit: &models.DepositMetadata{Channel: "card"},
	})
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(reference, user_id, wallet_type, type, status, amount, fee, total_amount, balance_before, balance_after, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, $9, NOW(), NOW())`,
		reference, userID, string(models.WalletNaira), string(models.TxnDeposit), string(models.TxnPending),
		amount, fee, amount.Add(fee), metadata)
	if err != nil {
		return nil, mapStoreError(err)
	}

	auth, err := s.provider.InitializeCharge(ctx, user.Email, reference, amount.Add(fee), s.callbackURL)
	if err != nil {
		s.markTransactionFailed(ctx, reference, "provider initialization failed")
		return nil, &ProviderError{Op: "initialize", Err: err}
	}

	return &DepositReceipt{
		Reference:        reference,
		Amount:           amount,
		Fee:              fee,
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Status:           string(models.TxnPending),
	}, nil
}

// VerifyDeposit confirms a card charge with the provider and settles the
// credit. Re-verifying an already settled reference is a success no-op.
func (s *Service) VerifyDeposit(ctx context.Context, userID int64, reference string) (*models.Transaction, error) {
	txn, err := s.GetTransaction(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	if txn.Status == models.TxnCompleted {
		return txn, nil
	}
	if txn.Status != models.TxnPending && txn.Status != models.TxnProcessing {
		return nil, NewValidationError("transaction %s is %s and cannot be verified", reference, txn.Status)
	}

	verification, err := s.provider.VerifyCharge(ctx, reference)
	if err != nil {
		return nil, &ProviderError{Op: "verify", Err: err}
	}
	if !verification.Successful() {
		s.markTransactionFailed(ctx, reference, fmt.Sprintf("charge %s", verification.Status))
		return nil, NewValidationError("payment was not successful: %s", verification.Status)
	}
	if !verification.Amount.Equal(txn.TotalAmount) {
		s.markTransactionFailed(ctx, reference,
			fmt.Sprintf("amount mismatch: charged %s, expected %s", verification.Amount, txn.TotalAmount))
		return nil, NewValidationError("charged amount ₦%s does not match the expected ₦%s",
			verification.Amount.StringFixed(2), txn.TotalAmount.StringFixed(2))
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	metadata := models.TransactionMetadata{
		Deposit: &models.DepositMetadata{
			Channel:     verification.Channel,
			PaidAt:      verification.PaidAt,
			ProviderFee: verification.Fees,
		},
	}
	return s.settleDeposit(ctx, user, settlement{
		Reference: reference,
		Amount:    txn.Amount,
		Fee:       txn.Fee,
		Metadata:  metadata,
		Finalize:  true,
	})
}

// CreditVirtualAccount settles an inbound bank transfer reported by the
// provider webhook. The provider's reference is the idempotency key: a
// replayed event finds the existing row and returns it unchanged.
func (s *Service) CreditVirtualAccount(ctx context.Context, accountNumber, providerReference string, rawAmount string, paidAt time.Time) (*models.Transaction, error) {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, err
	}

	existing, err := s.transactionByReference(ctx, providerReference)
	if err == nil {
		log.Printf("[DEPOSIT] Duplicate webhook for %s, already %s", providerReference, existing.Status)
		return existing, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	user, err := s.userByAccountNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	metadata := models.TransactionMetadata{
		Deposit: &models.DepositMetadata{
			Channel:       "bank_transfer",
			PaidAt:        &paidAt,
			AccountNumber: accountNumber,
		},
	}
	txn, err := s.settleDeposit(ctx, user, settlement{
		Reference: providerReference,
		Amount:    amount,
		Fee:       decimal.Zero,
		Metadata:  metadata,
	})
	if errors.Is(err, ErrDuplicateReference) {
		// Concurrent replay lost the insert race; the first writer won.
		return s.transactionByReference(ctx, providerReference)
	}
	return txn, err
}

type settlement struct {
	Reference string
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Metadata  models.TransactionMetadata
	Finalize  bool
}

// settleDeposit credits the wallet. Deposits fail open: a breach of the
// daily deposit limit still credits the funds but locks the wallet so
// nothing can leave it until support reviews the account.
func (s *Service) settleDeposit(ctx context.Context, user *models.User, stl settlement) (*models.Transaction, error) {
	check, err := s.limits.CheckDailyLimit(ctx, user.ID, stl.Amount, CategoryDeposit)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		Wallet:      WalletKey{UserID: user.ID, Type: models.WalletNaira},
		Delta:       stl.Amount,
		AllowLocked: true,
		Record: RecordSpec{
			Reference: stl.Reference,
			Type:      models.TxnDeposit,
			Status:    models.TxnCompleted,
			Amount:    stl.Amount,
			Fee:       stl.Fee,
			Metadata:  stl.Metadata,
			Finalize:  stl.Finalize,
		},
	}
	if !check.CanProceed && !check.Unlimited {
		entry.LockReason = depositLimitLockReason
		log.Printf("[DEPOSIT] User %d breached daily deposit limit (spent ₦%s of ₦%s), crediting and locking wallet",
			user.ID, check.Spent.StringFixed(2), check.Limit.StringFixed(2))
	}

	mutation, err := s.ledger.ApplyEntry(ctx, entry)
	if err != nil {
		return nil, err
	}

	if err := s.limits.IncrementDailySpend(ctx, user.ID, stl.Amount, CategoryDeposit); err != nil {
		log.Printf("[DEPOSIT] Failed to record daily spend for user %d: %v", user.ID, err)
	}
	s.notifier.Notify(ctx, NotificationEvent{
		UserID:    user.ID,
		Type:      "deposit.completed",
		Reference: stl.Reference,
		Amount:    stl.Amount,
	})
	if entry.LockReason != "" {
		s.notifier.Notify(ctx, NotificationEvent{
			UserID:    user.ID,
			Type:      "wallet.locked",
			Reference: stl.Reference,
			Amount:    stl.Amount,
			Message:   entry.LockReason,
		})
	}
	return mutation.Transaction, nil
}

func (s *Service) markTransactionFailed(ctx context.Context, reference, reason string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, metadata = jsonb_set(COALESCE(metadata, '{}'), '{failureReason}', to_jsonb($2::text)), updated_at = NOW()
		WHERE reference = $3 AND status IN ('PENDING', 'PROCESSING')`,
		string(models.TxnFailed), reason, reference)
	if err != nil {
		log.Printf("[WALLET] Failed to mark %s as failed: %v", reference, err)
	}
}
