package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxnDeposit    TransactionType = "DEPOSIT"
	TxnWithdrawal TransactionType = "WITHDRAWAL"
	TxnTransfer   TransactionType = "TRANSFER"
	// TxnReversal records the compensating credit issued when a provider
	// transfer fails after the wallet was already debited.
	TxnReversal TransactionType = "REVERSAL"
)

type TransactionStatus string

const (
	TxnPending    TransactionStatus = "PENDING"
	TxnProcessing TransactionStatus = "PROCESSING"
	TxnCompleted  TransactionStatus = "COMPLETED"
	TxnFailed     TransactionStatus = "FAILED"
	TxnCancelled  TransactionStatus = "CANCELLED"
)

// Transaction is one row per monetary movement. Reference is the global
// idempotency key and is never reused. A COMPLETED row is immutable except
// for metadata annotation.
type Transaction struct {
	ID            int64               `json:"id" db:"id"`
	Reference     string              `json:"reference" db:"reference"`
	UserID        int64               `json:"userId" db:"user_id"`
	WalletType    WalletType          `json:"walletType" db:"wallet_type"`
	Type          TransactionType     `json:"type" db:"type"`
	Status        TransactionStatus   `json:"status" db:"status"`
	Amount        decimal.Decimal     `json:"amount" db:"amount"`
	Fee           decimal.Decimal     `json:"fee" db:"fee"`
	TotalAmount   decimal.Decimal     `json:"totalAmount" db:"total_amount"`
	BalanceBefore decimal.Decimal     `json:"balanceBefore" db:"balance_before"`
	BalanceAfter  decimal.Decimal     `json:"balanceAfter" db:"balance_after"`
	Metadata      TransactionMetadata `json:"metadata" db:"metadata"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time           `json:"updatedAt" db:"updated_at"`
}

// TransactionMetadata is a tagged union: exactly one of the typed branches is
// set per transaction subtype. Raw carries forward-compatible payloads that
// have no typed shape yet.
type TransactionMetadata struct {
	Deposit    *DepositMetadata    `json:"deposit,omitempty"`
	Withdrawal *WithdrawalMetadata `json:"withdrawal,omitempty"`
	P2P        *P2PMetadata        `json:"p2p,omitempty"`
	Adjustment *AdjustmentMetadata `json:"adjustment,omitempty"`
	Reversal   *ReversalMetadata   `json:"reversal,omitempty"`
	Raw        json.RawMessage     `json:"raw,omitempty"`
}

// UnmarshalFrom decodes a raw jsonb column into the union, keeping the
// original bytes in Raw when no typed branch matches.
func (m *TransactionMetadata) UnmarshalFrom(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	if m.IsZero() {
		m.Raw = json.RawMessage(data)
	}
	return nil
}

func (m TransactionMetadata) IsZero() bool {
	return m.Deposit == nil && m.Withdrawal == nil && m.P2P == nil &&
		m.Adjustment == nil && m.Reversal == nil && len(m.Raw) == 0
}

type DepositMetadata struct {
	Channel       string          `json:"channel,omitempty"` // card, bank_transfer
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	AccountNumber string          `json:"accountNumber,omitempty"`
	ProviderFee   decimal.Decimal `json:"providerFee,omitempty"`
}

type WithdrawalMetadata struct {
	BankCode      string `json:"bankCode"`
	BankName      string `json:"bankName,omitempty"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Narration     string `json:"narration,omitempty"`
	TransferCode  string `json:"transferCode,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

type P2PMetadata struct {
	SenderID    int64  `json:"senderId"`
	ReceiverID  int64  `json:"receiverId"`
	SenderTag   string `json:"senderTag"`
	ReceiverTag string `json:"receiverTag"`
	Direction   string `json:"direction"` // debit or credit
	Message     string `json:"message,omitempty"`
}

type AdjustmentMetadata struct {
	AdminID   int64  `json:"adminId"`
	Direction string `json:"direction"` // credit or debit
	Reason    string `json:"reason"`
}

type ReversalMetadata struct {
	ReversalOf string `json:"reversalOf"` // reference of the reversed transaction
	Reason     string `json:"reason"`
}
