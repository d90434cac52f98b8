package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeAuthorization is a pending card charge handed back to the client to
// complete on the provider's checkout page.
type ChargeAuthorization struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
}

// ChargeVerification is the provider's verdict on a previously initialized
// charge.
type ChargeVerification struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Channel   string
	PaidAt    *time.Time
	Fees      decimal.Decimal
}

func (v *ChargeVerification) Successful() bool {
	return v.Status == "success"
}

// TransferRequest is an outbound payout to an external bank account.
type TransferRequest struct {
	Reference     string
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
	AccountName   string
	Narration     string
}

type TransferResult struct {
	TransferCode string
	Status       string
}

// PaymentProvider abstracts the external processor so the engine can be
// exercised against a mock. All calls are blocking and honor ctx deadlines.
type PaymentProvider interface {
	InitializeCharge(ctx context.Context, email, reference string, amount decimal.Decimal, callbackURL string) (*ChargeAuthorization, error)
	VerifyCharge(ctx context.Context, reference string) (*ChargeVerification, error)
	InitiateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error)
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (string, error)
}

// PinVerifier checks a user's transaction PIN before money leaves a wallet.
type PinVerifier interface {
	VerifyPin(ctx context.Context, userID int64, pin string) error
}
