package wallet

import (
	"context"
	"database/sql"

	"github.com/go-redis/redis/v8"
	"github.com/kobopay/backend/internal/models"
	"github.com/spf13/viper"
)

// Service is the wallet engine: every deposit, withdrawal, transfer and
// adjustment funnels through it, and through the Ledger underneath it.
type Service struct {
	db          *sql.DB
	ledger      *Ledger
	limits      LimitStore
	configs     *WithdrawalConfigStore
	provider    PaymentProvider
	pins        PinVerifier
	notifier    *Notifier
	audit       *AuditStore
	callbackURL string
}

func NewService(db *sql.DB, redisClient *redis.Client, provider PaymentProvider, pins PinVerifier) *Service {
	viper.SetDefault("payments.callback_url", "https://app.kobopay.ng/payments/callback")
	return &Service{
		db:          db,
		ledger:      NewLedger(db),
		limits:      NewRedisLimitStore(db, redisClient),
		configs:     NewWithdrawalConfigStore(db),
		provider:    provider,
		pins:        pins,
		notifier:    NewNotifier(redisClient),
		audit:       NewAuditStore(db),
		callbackURL: viper.GetString("payments.callback_url"),
	}
}

// WithLimitStore swaps the limit backend, primarily for tests.
func (s *Service) WithLimitStore(store LimitStore) *Service {
	s.limits = store
	return s
}

func (s *Service) userByID(ctx context.Context, userID int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, phone_number, tag, account_number, kyc_tier, status
		FROM users WHERE id = $1`, userID))
}

func (s *Service) userByTag(ctx context.Context, tag string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, phone_number, tag, account_number, kyc_tier, status
		FROM users WHERE tag = $1`, tag))
}

func (s *Service) userByAccountNumber(ctx context.Context, accountNumber string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, phone_number, tag, account_number, kyc_tier, status
		FROM users WHERE account_number = $1`, accountNumber))
}

func (s *Service) scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber,
		&u.Tag, &u.AccountNumber, &u.KYCTier, &u.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetWallet reads the current wallet snapshot without locking.
func (s *Service) GetWallet(ctx context.Context, userID int64, walletType models.WalletType) (*models.Wallet, error) {
	w := &models.Wallet{}
	var lockedReason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, balance, ledger_balance, is_locked, locked_reason, daily_spent, created_at, updated_at
		FROM wallets WHERE user_id = $1 AND type = $2`,
		userID, string(walletType),
	).Scan(&w.ID, &w.UserID, &w.Type, &w.Balance, &w.LedgerBalance,
		&w.IsLocked, &lockedReason, &w.DailySpent, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	w.LockedReason = lockedReason.String
	return w, nil
}

// GetTransaction looks a transaction up by reference, scoped to its owner.
func (s *Service) GetTransaction(ctx context.Context, userID int64, reference string) (*models.Transaction, error) {
	return s.scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT id, reference, user_id, wallet_type, type, status, amount, fee, total_amount,
		       balance_before, balance_after, metadata, created_at, updated_at
		FROM transactions WHERE reference = $1 AND user_id = $2`, reference, userID))
}

func (s *Service) transactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return s.scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT id, reference, user_id, wallet_type, type, status, amount, fee, total_amount,
		       balance_before, balance_after, metadata, created_at, updated_at
		FROM transactions WHERE reference = $1`, reference))
}

func (s *Service) scanTransaction(row *sql.Row) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var metadata []byte
	err := row.Scan(&txn.ID, &txn.Reference, &txn.UserID, &txn.WalletType, &txn.Type, &txn.Status,
		&txn.Amount, &txn.Fee, &txn.TotalAmount, &txn.BalanceBefore, &txn.BalanceAfter,
		&metadata, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := txn.Metadata.UnmarshalFrom(metadata); err != nil {
			return nil, err
		}
	}
	return txn, nil
}

// ListTransactions returns the user's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference, user_id, wallet_type, type, status, amount, fee, total_amount,
		       balance_before, balance_after, metadata, created_at, updated_at
		FROM transactions WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn := &models.Transaction{}
		var metadata []byte
		err := rows.Scan(&txn.ID, &txn.Reference, &txn.UserID, &txn.WalletType, &txn.Type, &txn.Status,
			&txn.Amount, &txn.Fee, &txn.TotalAmount, &txn.BalanceBefore, &txn.BalanceAfter,
			&metadata, &txn.CreatedAt, &txn.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := txn.Metadata.UnmarshalFrom(metadata); err != nil {
				return nil, err
			}
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// CheckLimit exposes the limit decision for a category without mutating
// anything, for the pre-flight check endpoint.
func (s *Service) CheckLimit(ctx context.Context, userID int64, amount string, category LimitCategory) (*LimitCheck, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	return s.limits.CheckDailyLimit(ctx, userID, value, category)
}
