package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// P2PTransfer links the sender-side debit and receiver-side credit
// transactions of one wallet-to-wallet transfer under a single reference.
// Both legs settle atomically or neither does.
type P2PTransfer struct {
	ID                  int64             `json:"id" db:"id"`
	Reference           string            `json:"reference" db:"reference"`
	SenderID            int64             `json:"senderId" db:"sender_id"`
	ReceiverID          int64             `json:"receiverId" db:"receiver_id"`
	Amount              decimal.Decimal   `json:"amount" db:"amount"`
	Fee                 decimal.Decimal   `json:"fee" db:"fee"`
	Status              TransactionStatus `json:"status" db:"status"`
	Message             string            `json:"message,omitempty" db:"message"`
	DebitTransactionID  int64             `json:"debitTransactionId" db:"debit_transaction_id"`
	CreditTransactionID int64             `json:"creditTransactionId" db:"credit_transaction_id"`
	CreatedAt           time.Time         `json:"createdAt" db:"created_at"`
}
