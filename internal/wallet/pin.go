package wallet

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

func init() {
	viper.SetDefault("security.argon2.time", 1)
	viper.SetDefault("security.argon2.memory", 64*1024)
	viper.SetDefault("security.argon2.threads", 4)
	viper.SetDefault("security.argon2.key_length", 32)
}

// HashSecret derives an argon2id hash, returned as base64(salt)$base64(hash).
func HashSecret(secret string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(secret), salt,
		viper.GetUint32("security.argon2.time"),
		viper.GetUint32("security.argon2.memory"),
		uint8(viper.GetUint32("security.argon2.threads")),
		viper.GetUint32("security.argon2.key_length"))
	return base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(hash), nil
}

// VerifySecret checks a candidate against a stored salt$hash pair in
// constant time.
func VerifySecret(secret, encoded string) bool {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	hash := argon2.IDKey([]byte(secret), salt,
		viper.GetUint32("security.argon2.time"),
		viper.GetUint32("security.argon2.memory"),
		uint8(viper.GetUint32("security.argon2.threads")),
		uint32(len(expected)))
	return subtle.ConstantTimeCompare(hash, expected) == 1
}

// ArgonPinVerifier checks transaction PINs against the hash stored on the
// user row.
type ArgonPinVerifier struct {
	db *sql.DB
}

func NewArgonPinVerifier(db *sql.DB) *ArgonPinVerifier {
	return &ArgonPinVerifier{db: db}
}

func (v *ArgonPinVerifier) VerifyPin(ctx context.Context, userID int64, pin string) error {
	var stored sql.NullString
	err := v.db.QueryRowContext(ctx, `SELECT transaction_pin FROM users WHERE id = $1`, userID).Scan(&stored)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		return err
	}
	if !stored.Valid || stored.String == "" {
		return NewValidationError("transaction PIN has not been set")
	}
	if !VerifySecret(pin, stored.String) {
		return ErrInvalidPin
	}
	return nil
}
