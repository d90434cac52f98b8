package wallet

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func receiverRows(id int64, tier int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "phone_number", "tag", "account_number", "kyc_tier", "status"}).
		AddRow(id, "bola@example.com", "Bola", "Ade", "+2348098765432", "bolaade", "9087654321", tier, "ACTIVE")
}

func TestSendP2P(t *testing.T) {
	t.Run("both legs and the link row commit together", func(t *testing.T) {
		svc, dbMock, _, pins, limits := newTestService(t)

		pins.On("VerifyPin", mock.Anything, int64(1), "1234").Return(nil)
		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))
		dbMock.ExpectQuery(selectUserByTag).
			WithArgs("bolaade").
			WillReturnRows(receiverRows(2, 1))

		limits.On("CheckDailyLimit", mock.Anything, int64(1), mock.Anything, CategoryP2P).
			Return(allowWithin(100_000, 0), nil)
		limits.On("CheckDailyLimit", mock.Anything, int64(2), mock.Anything, CategoryDeposit).
			Return(allowWithin(200_000, 0), nil)

		dbMock.ExpectBegin()
		// Sender debit.
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "20000", false))
		dbMock.ExpectExec(updateWalletBalance).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
		// Receiver credit.
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(2), "NAIRA").
			WillReturnRows(walletRow(11, "500", false))
		dbMock.ExpectExec(updateWalletBalance).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(32))
		// Link row ties the two transaction ids together.
		dbMock.ExpectExec(`INSERT INTO p2p_transfers`).
			WithArgs(sqlmock.AnyArg(), int64(1), int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(),
				"COMPLETED", "lunch", int64(31), int64(32)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		limits.On("IncrementDailySpend", mock.Anything, int64(1), mock.Anything, CategoryP2P).
			Return(nil)
		limits.On("IncrementDailySpend", mock.Anything, int64(2), mock.Anything, CategoryDeposit).
			Return(nil)

		receipt, err := svc.SendP2P(context.Background(), 1, "bolaade", "5000", "1234", "lunch")
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(receipt.Reference, "P2P-"))
		assert.True(t, receipt.Fee.IsZero())
		assert.Equal(t, "bolaade", receipt.ReceiverTag)
		assert.Equal(t, "COMPLETED", receipt.Status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		limits.AssertExpectations(t)
	})

	t.Run("unverified sender cannot transfer at all", func(t *testing.T) {
		svc, dbMock, _, pins, _ := newTestService(t)

		pins.On("VerifyPin", mock.Anything, int64(1), "1234").Return(nil)
		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 0))

		_, err := svc.SendP2P(context.Background(), 1, "bolaade", "100", "1234", "")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
		assert.Contains(t, valErr.Message, "BVN")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("per transaction cap for the sender tier", func(t *testing.T) {
		svc, dbMock, _, pins, _ := newTestService(t)

		pins.On("VerifyPin", mock.Anything, int64(1), "1234").Return(nil)
		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))

		// Tier 1 caps single transfers at 100,000.
		_, err := svc.SendP2P(context.Background(), 1, "bolaade", "150000", "1234", "")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("self transfer rejected", func(t *testing.T) {
		svc, dbMock, _, pins, _ := newTestService(t)

		pins.On("VerifyPin", mock.Anything, int64(1), "1234").Return(nil)
		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))
		dbMock.ExpectQuery(selectUserByTag).
			WithArgs("adaobi").
			WillReturnRows(userRows(1, 1))

		_, err := svc.SendP2P(context.Background(), 1, "adaobi", "5000", "1234", "")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("sender daily limit is fail closed", func(t *testing.T) {
		svc, dbMock, _, pins, limits := newTestService(t)

		pins.On("VerifyPin", mock.Anything, int64(1), "1234").Return(nil)
		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))
		dbMock.ExpectQuery(selectUserByTag).
			WithArgs("bolaade").
			WillReturnRows(receiverRows(2, 1))
		limits.On("CheckDailyLimit", mock.Anything, int64(1), mock.Anything, CategoryP2P).
			Return(denyAt(100_000, 99_000), nil)

		_, err := svc.SendP2P(context.Background(), 1, "bolaade", "5000", "1234", "")
		var limitErr *LimitExceededError
		assert.ErrorAs(t, err, &limitErr)
		assert.Equal(t, CategoryP2P, limitErr.Category)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("receiver inbound breach credits then locks", func(t *testing.T) {
		svc, dbMock, redisMock, _, pins, limits := newNotifyingService(t)

		pins.On("VerifyPin", mock.Anything, int64(1), "1234").Return(nil)
		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))
		dbMock.ExpectQuery(selectUserByTag).
			WithArgs("bolaade").
			WillReturnRows(receiverRows(2, 0))

		limits.On("CheckDailyLimit", mock.Anything, int64(1), mock.Anything, CategoryP2P).
			Return(allowWithin(100_000, 0), nil)
		limits.On("CheckDailyLimit", mock.Anything, int64(2), mock.Anything, CategoryDeposit).
			Return(denyAt(50_000, 49_000), nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "20000", false))
		dbMock.ExpectExec(updateWalletBalance).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(2), "NAIRA").
			WillReturnRows(walletRow(11, "49000", false))
		dbMock.ExpectExec(updateWalletBalance).
			WithArgs(sqlmock.AnyArg(), true, p2pLimitLockReason, int64(11)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(insertTransaction).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(32))
		dbMock.ExpectExec(`INSERT INTO p2p_transfers`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		limits.On("IncrementDailySpend", mock.Anything, int64(1), mock.Anything, CategoryP2P).
			Return(nil)
		limits.On("IncrementDailySpend", mock.Anything, int64(2), mock.Anything, CategoryDeposit).
			Return(nil)

		// The lock leaves an audit trail and a dedicated event for the
		// receiver on top of the usual transfer notifications.
		dbMock.ExpectExec(`INSERT INTO audit_logs`).
			WithArgs(int64(1), "wallet.lock", int64(2), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		redisMock.Regexp().ExpectRPush(notificationQueue, `.*"type":"p2p\.sent".*`).SetVal(1)
		redisMock.Regexp().ExpectRPush(notificationQueue, `.*"type":"p2p\.received".*`).SetVal(1)
		redisMock.Regexp().ExpectRPush(notificationQueue, `.*"type":"wallet\.locked".*`).SetVal(1)

		receipt, err := svc.SendP2P(context.Background(), 1, "bolaade", "5000", "1234", "")
		assert.NoError(t, err)
		assert.Equal(t, "COMPLETED", receipt.Status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("sender with insufficient funds rolls back both legs", func(t *testing.T) {
		svc, dbMock, _, pins, limits := newTestService(t)

		pins.On("VerifyPin", mock.Anything, int64(1), "1234").Return(nil)
		dbMock.ExpectQuery(selectUserByID).
			WithArgs(int64(1)).
			WillReturnRows(userRows(1, 1))
		dbMock.ExpectQuery(selectUserByTag).
			WithArgs("bolaade").
			WillReturnRows(receiverRows(2, 1))
		limits.On("CheckDailyLimit", mock.Anything, int64(1), mock.Anything, CategoryP2P).
			Return(allowWithin(100_000, 0), nil)
		limits.On("CheckDailyLimit", mock.Anything, int64(2), mock.Anything, CategoryDeposit).
			Return(allowWithin(200_000, 0), nil)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(selectWalletForUpdate).
			WithArgs(int64(1), "NAIRA").
			WillReturnRows(walletRow(10, "1000", false))
		dbMock.ExpectRollback()

		_, err := svc.SendP2P(context.Background(), 1, "bolaade", "5000", "1234", "")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		limits.AssertNotCalled(t, "IncrementDailySpend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestResolveTag(t *testing.T) {
	svc, dbMock, _, _, _ := newTestService(t)

	dbMock.ExpectQuery(selectUserByTag).
		WithArgs("bolaade").
		WillReturnRows(receiverRows(2, 1))

	user, err := svc.ResolveTag(context.Background(), "bolaade")
	assert.NoError(t, err)
	assert.Equal(t, "Bola", user.FirstName)

	dbMock.ExpectQuery(selectUserByTag).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err = svc.ResolveTag(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
