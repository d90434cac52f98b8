package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kobopay/backend/internal/wallet"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("paystack.base_url", "https://api.paystack.co")
	viper.SetDefault("paystack.timeout", 30*time.Second)
}

// Paystack is the production PaymentProvider. Amounts cross the wire in
// kobo (integer minor units); the rest of the system works in naira.
type Paystack struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewPaystack() *Paystack {
	return &Paystack{
		baseURL:   viper.GetString("paystack.base_url"),
		secretKey: viper.GetString("paystack.secret_key"),
		client:    &http.Client{Timeout: viper.GetDuration("paystack.timeout")},
	}
}

// NewPaystackWithClient is used by tests to point at a stub server.
func NewPaystackWithClient(baseURL, secretKey string, client *http.Client) *Paystack {
	return &Paystack{baseURL: baseURL, secretKey: secretKey, client: client}
}

var hundred = decimal.NewFromInt(100)

func toKobo(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).IntPart()
}

func fromKobo(kobo int64) decimal.Decimal {
	return decimal.NewFromInt(kobo).Div(hundred)
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) call(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !envelope.Status {
		return fmt.Errorf("provider rejected request (HTTP %d): %s", resp.StatusCode, envelope.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func (p *Paystack) InitializeCharge(ctx context.Context, email, reference string, amount decimal.Decimal, callbackURL string) (*wallet.ChargeAuthorization, error) {
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	err := p.call(ctx, http.MethodPost, "/transaction/initialize", map[string]any{
		"email":        email,
		"amount":       toKobo(amount),
		"reference":    reference,
		"callback_url": callbackURL,
		"currency":     "NGN",
	}, &data)
	if err != nil {
		return nil, err
	}
	return &wallet.ChargeAuthorization{
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}, nil
}

func (p *Paystack) VerifyCharge(ctx context.Context, reference string) (*wallet.ChargeVerification, error) {
	var data struct {
		Status  string     `json:"status"`
		Amount  int64      `json:"amount"`
		Channel string     `json:"channel"`
		PaidAt  *time.Time `json:"paid_at"`
		Fees    int64      `json:"fees"`
	}
	err := p.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data)
	if err != nil {
		return nil, err
	}
	return &wallet.ChargeVerification{
		Reference: reference,
		Status:    data.Status,
		Amount:    fromKobo(data.Amount),
		Channel:   data.Channel,
		PaidAt:    data.PaidAt,
		Fees:      fromKobo(data.Fees),
	}, nil
}

func (p *Paystack) InitiateTransfer(ctx context.Context, req *wallet.TransferRequest) (*wallet.TransferResult, error) {
	recipient, err := p.createRecipient(ctx, req)
	if err != nil {
		return nil, err
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	err = p.call(ctx, http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    toKobo(req.Amount),
		"recipient": recipient,
		"reference": req.Reference,
		"reason":    req.Narration,
	}, &data)
	if err != nil {
		return nil, err
	}
	return &wallet.TransferResult{TransferCode: data.TransferCode, Status: data.Status}, nil
}

func (p *Paystack) createRecipient(ctx context.Context, req *wallet.TransferRequest) (string, error) {
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	err := p.call(ctx, http.MethodPost, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           req.AccountName,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       "NGN",
	}, &data)
	if err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

func (p *Paystack) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (string, error) {
	var data struct {
		AccountName string `json:"account_name"`
	}
	query := url.Values{"account_number": {accountNumber}, "bank_code": {bankCode}}
	err := p.call(ctx, http.MethodGet, "/bank/resolve?"+query.Encode(), nil, &data)
	if err != nil {
		return "", err
	}
	return data.AccountName, nil
}
