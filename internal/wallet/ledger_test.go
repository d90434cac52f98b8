package wallet

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kobopay/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const (
	selectWalletForUpdate = "SELECT id, balance, is_locked, locked_reason FROM wallets WHERE user_id = \\$1 AND type = \\$2 FOR UPDATE"
	updateWalletBalance   = "UPDATE wallets SET balance = \\$1, ledger_balance = \\$1"
	insertTransaction     = "INSERT INTO transactions"
)

func walletRow(id int64, balance string, locked bool) *sqlmock.Rows {
	var reason any
	if locked {
		reason = "Daily deposit limit exceeded"
	}
	return sqlmock.NewRows([]string{"id", "balance", "is_locked", "locked_reason"}).
		AddRow(id, balance, locked, reason)
}

func creditEntry(userID int64, amount int64) Entry {
	return Entry{
		Wallet: WalletKey{UserID: userID, Type: models.WalletNaira},
		Delta:  decimal.NewFromInt(amount),
		Record: RecordSpec{
			Reference: DepositReference(),
			Type:      models.TxnDeposit,
			Status:    models.TxnCompleted,
			Amount:    decimal.NewFromInt(amount),
			Fee:       decimal.Zero,
		},
	}
}

func TestLedger_ApplyEntry_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectWalletForUpdate).
		WithArgs(int64(1), "NAIRA").
		WillReturnRows(walletRow(10, "10000", false))
	mock.ExpectExec(updateWalletBalance).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTransaction).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(55))
	mock.ExpectCommit()

	mutation, err := ledger.ApplyEntry(context.Background(), creditEntry(1, 5000))
	assert.NoError(t, err)
	assert.True(t, decimal.NewFromInt(15000).Equal(mutation.Wallet.Balance))
	assert.True(t, decimal.NewFromInt(10000).Equal(mutation.Transaction.BalanceBefore))
	assert.True(t, decimal.NewFromInt(15000).Equal(mutation.Transaction.BalanceAfter))
	assert.Equal(t, int64(55), mutation.Transaction.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ApplyEntry_InsufficientBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectWalletForUpdate).
		WithArgs(int64(1), "NAIRA").
		WillReturnRows(walletRow(10, "100", false))
	mock.ExpectRollback()

	entry := creditEntry(1, 0)
	entry.Delta = decimal.NewFromInt(-500)
	entry.Record.Type = models.TxnWithdrawal
	entry.Record.Amount = decimal.NewFromInt(500)

	_, err = ledger.ApplyEntry(context.Background(), entry)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ApplyEntry_LockedWallet(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db)

	t.Run("debit of locked wallet rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "10000", true))
		mock.ExpectRollback()

		entry := creditEntry(1, 0)
		entry.Delta = decimal.NewFromInt(-500)
		entry.Record.Type = models.TxnWithdrawal
		entry.Record.Amount = decimal.NewFromInt(500)

		_, err := ledger.ApplyEntry(context.Background(), entry)
		assert.ErrorIs(t, err, ErrWalletLocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit lands on locked wallet with AllowLocked", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "10000", true))
		mock.ExpectExec(updateWalletBalance).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(56))
		mock.ExpectCommit()

		entry := creditEntry(1, 5000)
		entry.AllowLocked = true

		mutation, err := ledger.ApplyEntry(context.Background(), entry)
		assert.NoError(t, err)
		assert.True(t, mutation.Wallet.IsLocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedger_ApplyEntry_WalletNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectWalletForUpdate).
		WithArgs(int64(404), "NAIRA").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err = ledger.ApplyEntry(context.Background(), creditEntry(404, 100))
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestLedger_Apply_RetriesOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db)
	serializationFailure := &pq.Error{Code: "40001"}

	// First attempt fails at commit with a serialization failure.
	mock.ExpectBegin()
	mock.ExpectQuery(selectWalletForUpdate).
		WithArgs(int64(1), "NAIRA").
		WillReturnRows(walletRow(10, "10000", false))
	mock.ExpectExec(updateWalletBalance).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTransaction).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(57))
	mock.ExpectCommit().WillReturnError(serializationFailure)

	// Second attempt succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery(selectWalletForUpdate).
		WithArgs(int64(1), "NAIRA").
		WillReturnRows(walletRow(10, "10000", false))
	mock.ExpectExec(updateWalletBalance).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTransaction).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(58))
	mock.ExpectCommit()

	mutation, err := ledger.ApplyEntry(context.Background(), creditEntry(1, 5000))
	assert.NoError(t, err)
	assert.Equal(t, int64(58), mutation.Transaction.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Apply_ConflictRetryExhausted(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db)
	deadlock := &pq.Error{Code: "40P01"}

	for i := 0; i < maxMutationAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "10000", false))
		mock.ExpectExec(updateWalletBalance).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(60 + i))
		mock.ExpectCommit().WillReturnError(deadlock)
	}

	_, err = ledger.ApplyEntry(context.Background(), creditEntry(1, 5000))
	assert.ErrorIs(t, err, ErrConflictRetryExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Apply_FinalizeMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectWalletForUpdate).
		WithArgs(int64(1), "NAIRA").
		WillReturnRows(walletRow(10, "10000", false))
	mock.ExpectExec(updateWalletBalance).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE transactions SET status = \\$1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	entry := creditEntry(1, 5000)
	entry.Record.Finalize = true

	_, err = ledger.ApplyEntry(context.Background(), entry)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestMapStoreError(t *testing.T) {
	assert.ErrorIs(t, mapStoreError(&pq.Error{Code: "40001"}), ErrConflict)
	assert.ErrorIs(t, mapStoreError(&pq.Error{Code: "40P01"}), ErrConflict)
	assert.ErrorIs(t, mapStoreError(&pq.Error{Code: "23505"}), ErrDuplicateReference)
	assert.NoError(t, mapStoreError(nil))

	other := &pq.Error{Code: "23502"}
	assert.Equal(t, error(other), mapStoreError(other))
}
