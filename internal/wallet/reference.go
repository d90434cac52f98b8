package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transaction references are human-traceable: operation prefix, UTC date,
// then twelve characters of a v4 UUID. Uniqueness is enforced by the
// transactions.reference constraint.

func DepositReference() string    { return newReference("DEP") }
func WithdrawalReference() string { return newReference("WTH") }
func P2PReference() string        { return newReference("P2P") }
func AdjustmentReference() string { return newReference("ADJ") }
func ReversalReference() string   { return newReference("RVSL") }

func newReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), id[:12])
}
