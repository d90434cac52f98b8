package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
)

const (
	maxMutationAttempts = 3
	conflictBackoffBase = 100 * time.Millisecond
)

// WalletKey addresses a wallet by its composite key.
type WalletKey struct {
	UserID int64
	Type   models.WalletType
}

// RecordSpec describes the transaction row written alongside a balance
// mutation. When Finalize is set, an existing PENDING/PROCESSING row with
// the same reference is completed in place instead of inserting a new one.
type RecordSpec struct {
	Reference string
	Type      models.TransactionType
	Status    models.TransactionStatus
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Metadata  models.TransactionMetadata
	Finalize  bool
}

// Entry is one balance mutation: the wallet, the signed delta, and the
// record that must land in the same atomic unit. A non-empty LockReason
// locks the wallet as part of the mutation (fail-open-then-lock policy).
// AllowLocked permits credits onto a locked wallet; debits of a locked
// wallet are always rejected.
type Entry struct {
	Wallet      WalletKey
	Delta       decimal.Decimal
	Record      RecordSpec
	LockReason  string
	AllowLocked bool
}

type Mutation struct {
	Wallet      *models.Wallet
	Transaction *models.Transaction
}

type ApplyResult struct {
	Mutations []*Mutation
}

func (r *ApplyResult) First() *Mutation {
	if r == nil || len(r.Mutations) == 0 {
		return nil
	}
	return r.Mutations[0]
}

// ApplyRequest is a unit of work against the ledger. After, when set, runs
// inside the same database transaction after all entries have been applied
// (used for the P2P link row and failure annotations).
type ApplyRequest struct {
	Entries []Entry
	After   func(tx *sql.Tx, res *ApplyResult) error
}

// Ledger is the single code path allowed to change a wallet balance. Each
// Apply runs in one serializable transaction with the wallet rows locked
// FOR UPDATE, so concurrent mutators of the same wallet are totally ordered
// by commit order.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Apply executes the request, retrying the whole unit on write conflicts
// with exponential backoff before surfacing ErrConflictRetryExhausted.
func (l *Ledger) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	backoff := conflictBackoffBase
	for attempt := 1; attempt <= maxMutationAttempts; attempt++ {
		res, err := l.applyOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		log.Printf("[LEDGER] Write conflict on attempt %d/%d: %v", attempt, maxMutationAttempts, err)
		if attempt == maxMutationAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, ErrConflictRetryExhausted
}

// ApplyEntry is the single-wallet convenience form of Apply.
func (l *Ledger) ApplyEntry(ctx context.Context, entry Entry) (*Mutation, error) {
	res, err := l.Apply(ctx, ApplyRequest{Entries: []Entry{entry}})
	if err != nil {
		return nil, err
	}
	return res.First(), nil
}

func (l *Ledger) applyOnce(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer tx.Rollback()

	res := &ApplyResult{}
	for _, entry := range req.Entries {
		mutation, err := l.applyEntry(ctx, tx, entry)
		if err != nil {
			return nil, err
		}
		res.Mutations = append(res.Mutations, mutation)
	}

	if req.After != nil {
		if err := req.After(tx, res); err != nil {
			return nil, mapStoreError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapStoreError(err)
	}
	return res, nil
}

func (l *Ledger) applyEntry(ctx context.Context, tx *sql.Tx, entry Entry) (*Mutation, error) {
	w := &models.Wallet{UserID: entry.Wallet.UserID, Type: entry.Wallet.Type}
	var lockedReason sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance, is_locked, locked_reason
		FROM wallets
		WHERE user_id = $1 AND type = $2
		FOR UPDATE`,
		entry.Wallet.UserID, string(entry.Wallet.Type),
	).Scan(&w.ID, &w.Balance, &w.IsLocked, &lockedReason)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, mapStoreError(err)
	}
	w.LockedReason = lockedReason.String

	if entry.Delta.IsNegative() && w.IsLocked && !entry.AllowLocked {
		return nil, ErrWalletLocked
	}

	balanceBefore := w.Balance
	balanceAfter := balanceBefore.Add(entry.Delta)
	if balanceAfter.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	isLocked := w.IsLocked
	reason := w.LockedReason
	if entry.LockReason != "" {
		isLocked = true
		reason = entry.LockReason
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $1, ledger_balance = $1, is_locked = $2, locked_reason = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $4`,
		balanceAfter, isLocked, reason, w.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	w.Balance = balanceAfter
	w.LedgerBalance = balanceAfter
	w.IsLocked = isLocked
	w.LockedReason = reason

	txn, err := l.writeRecord(ctx, tx, entry, balanceBefore, balanceAfter)
	if err != nil {
		return nil, err
	}
	return &Mutation{Wallet: w, Transaction: txn}, nil
}

func marshalMetadata(m models.TransactionMetadata) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction metadata: %w", err)
	}
	return data, nil
}

func (l *Ledger) writeRecord(ctx context.Context, tx *sql.Tx, entry Entry, balanceBefore, balanceAfter decimal.Decimal) (*models.Transaction, error) {
	rec := entry.Record
	total := rec.Amount.Add(rec.Fee)
	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Reference:     rec.Reference,
		UserID:        entry.Wallet.UserID,
		WalletType:    entry.Wallet.Type,
		Type:          rec.Type,
		Status:        rec.Status,
		Amount:        rec.Amount,
		Fee:           rec.Fee,
		TotalAmount:   total,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Metadata:      rec.Metadata,
	}

	if rec.Finalize {
		err = tx.QueryRowContext(ctx, `
			UPDATE transactions
			SET status = $1, fee = $2, total_amount = $3, balance_before = $4, balance_after = $5, metadata = $6, updated_at = NOW()
			WHERE reference = $7 AND status IN ('PENDING', 'PROCESSING')
			RETURNING id`,
			string(rec.Status), rec.Fee, total, balanceBefore, balanceAfter, metadataJSON, rec.Reference,
		).Scan(&txn.ID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, ErrTransactionNotFound
			}
			return nil, mapStoreError(err)
		}
		return txn, nil
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions
		(reference, user_id, wallet_type, type, status, amount, fee, total_amount, balance_before, balance_after, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id`,
		rec.Reference, entry.Wallet.UserID, string(entry.Wallet.Type), string(rec.Type), string(rec.Status),
		rec.Amount, rec.Fee, total, balanceBefore, balanceAfter, metadataJSON,
	).Scan(&txn.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return txn, nil
}
