package wallet

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAdjustBalance(t *testing.T) {
	t.Run("credit goes through the ledger and is audited", func(t *testing.T) {
		svc, dbMock, _, _, _ := newTestService(t)

		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "500", false))
		dbMock.ExpectExec(updateWalletBalance).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
		dbMock.ExpectCommit()

		dbMock.ExpectExec(`INSERT INTO audit_logs`).
			WithArgs(int64(99), "wallet.adjustment.credit", int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		txn, err := svc.AdjustBalance(context.Background(), 99, 1, AdjustCredit, "2500", "double charge refund")
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(txn.Reference, "ADJ-"))
		assert.Equal(t, models.TxnDeposit, txn.Type)
		assert.True(t, decimal.NewFromInt(3000).Equal(txn.BalanceAfter))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("debit works on a locked wallet", func(t *testing.T) {
		svc, dbMock, _, _, _ := newTestService(t)

		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "5000", true))
		dbMock.ExpectExec(updateWalletBalance).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
		dbMock.ExpectCommit()

		dbMock.ExpectExec(`INSERT INTO audit_logs`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		txn, err := svc.AdjustBalance(context.Background(), 99, 1, AdjustDebit, "1000", "fraud clawback")
		assert.NoError(t, err)
		assert.Equal(t, models.TxnWithdrawal, txn.Type)
		assert.True(t, decimal.NewFromInt(4000).Equal(txn.BalanceAfter))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("reason is mandatory", func(t *testing.T) {
		svc, dbMock, _, _, _ := newTestService(t)

		_, err := svc.AdjustBalance(context.Background(), 99, 1, AdjustCredit, "1000", "   ")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown direction rejected", func(t *testing.T) {
		svc, _, _, _, _ := newTestService(t)

		_, err := svc.AdjustBalance(context.Background(), 99, 1, "transfer", "1000", "reason")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("debit cannot overdraw", func(t *testing.T) {
		svc, dbMock, _, _, _ := newTestService(t)

		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "500", false))
		dbMock.ExpectRollback()

		_, err := svc.AdjustBalance(context.Background(), 99, 1, AdjustDebit, "1000", "clawback")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func TestUnlockWallet(t *testing.T) {
	t.Run("clears the lock and audits", func(t *testing.T) {
		svc, dbMock, _, _, _ := newTestService(t)

		dbMock.ExpectExec(`UPDATE wallets SET is_locked = false, locked_reason = NULL`).
			WithArgs(int64(1), "NAIRA").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(`INSERT INTO audit_logs`).
			WithArgs(int64(99), "wallet.unlock", int64(1), "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := svc.UnlockWallet(context.Background(), 99, 1, "limits reviewed, funds verified")
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("missing wallet", func(t *testing.T) {
		svc, dbMock, _, _, _ := newTestService(t)

		dbMock.ExpectExec(`UPDATE wallets SET is_locked = false, locked_reason = NULL`).
			WithArgs(int64(1), "NAIRA").
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectQuery(`SELECT is_locked FROM wallets WHERE user_id = \$1 AND type = \$2`).
			WithArgs(int64(1), "NAIRA").
			WillReturnError(sql.ErrNoRows)

		err := svc.UnlockWallet(context.Background(), 99, 1, "reviewed")
		assert.ErrorIs(t, err, ErrWalletNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("wallet exists but is not locked", func(t *testing.T) {
		svc, dbMock, _, _, _ := newTestService(t)

		dbMock.ExpectExec(`UPDATE wallets SET is_locked = false, locked_reason = NULL`).
			WithArgs(int64(1), "NAIRA").
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectQuery(`SELECT is_locked FROM wallets WHERE user_id = \$1 AND type = \$2`).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(sqlmock.NewRows([]string{"is_locked"}).AddRow(false))

		err := svc.UnlockWallet(context.Background(), 99, 1, "reviewed")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("reason is mandatory", func(t *testing.T) {
		svc, _, _, _, _ := newTestService(t)

		err := svc.UnlockWallet(context.Background(), 99, 1, "")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
	})
}
