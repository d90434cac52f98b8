package wallet

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestHashSecretRoundtrip(t *testing.T) {
	encoded, err := HashSecret("1234")
	assert.NoError(t, err)
	assert.Contains(t, encoded, "$")

	assert.True(t, VerifySecret("1234", encoded))
	assert.False(t, VerifySecret("4321", encoded))

	// Same secret hashes differently each time because of the random salt.
	again, err := HashSecret("1234")
	assert.NoError(t, err)
	assert.NotEqual(t, encoded, again)
	assert.True(t, VerifySecret("1234", again))
}

func TestVerifySecret_MalformedInput(t *testing.T) {
	assert.False(t, VerifySecret("1234", ""))
	assert.False(t, VerifySecret("1234", "no-separator"))
	assert.False(t, VerifySecret("1234", "!!!$???"))
}

func TestArgonPinVerifier(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	verifier := NewArgonPinVerifier(db)
	hashed, err := HashSecret("1234")
	assert.NoError(t, err)

	t.Run("correct pin", func(t *testing.T) {
		dbMock.ExpectQuery(`SELECT transaction_pin FROM users WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_pin"}).AddRow(hashed))

		assert.NoError(t, verifier.VerifyPin(context.Background(), 1, "1234"))
	})

	t.Run("wrong pin", func(t *testing.T) {
		dbMock.ExpectQuery(`SELECT transaction_pin FROM users WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_pin"}).AddRow(hashed))

		assert.ErrorIs(t, verifier.VerifyPin(context.Background(), 1, "0000"), ErrInvalidPin)
	})

	t.Run("pin never set", func(t *testing.T) {
		dbMock.ExpectQuery(`SELECT transaction_pin FROM users WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_pin"}).AddRow(nil))

		err := verifier.VerifyPin(context.Background(), 1, "1234")
		var valErr *ValidationError
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("unknown user", func(t *testing.T) {
		dbMock.ExpectQuery(`SELECT transaction_pin FROM users WHERE id = \$1`).
			WithArgs(int64(2)).
			WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, verifier.VerifyPin(context.Background(), 2, "1234"), ErrUserNotFound)
	})
}
