package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/kobopay/backend/internal/models"
	"github.com/kobopay/backend/internal/wallet"
	"github.com/spf13/viper"
)

type WalletService struct {
	db         *sql.DB
	engine     *wallet.Service
	settlement *SettlementService
	validator  *ValidationHelper
}

func NewWalletService(db *sql.DB, redisClient *redis.Client, engine *wallet.Service) *WalletService {
	return &WalletService{
		db:         db,
		engine:     engine,
		settlement: NewSettlementService(db),
		validator:  NewValidationHelper(),
	}
}

func userIDFromContext(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value("userID").(int64)
	return id, ok
}

// GetBalance returns the caller's NAIRA wallet
// @Summary Get wallet balance
// @Description Retrieve the authenticated user's wallet balance and lock state
// @Tags wallet
// @Produce json
// @Success 200 {object} models.Wallet
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /wallet [get]
func (ws *WalletService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	wlt, err := ws.engine.GetWallet(r.Context(), userID, models.WalletNaira)
	if err != nil {
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wlt)
}

// InitializeDeposit starts a card funding flow
// @Summary Initialize a card deposit
// @Description Create a pending deposit and return the provider checkout URL
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body object{amount=string} true "Deposit amount in naira"
// @Success 201 {object} wallet.DepositReceipt
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/deposits [post]
func (ws *WalletService) InitializeDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount string `json:"amount" validate:"required"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	receipt, err := ws.engine.InitializeDeposit(r.Context(), userID, req.Amount)
	if err != nil {
		log.Printf("[WALLET] Deposit initialization failed for user %d: %v", userID, err)
		sendWalletError(w, err)
		return
	}

	log.Printf("[WALLET] Deposit %s initialized for user %d", receipt.Reference, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(receipt)
}

// VerifyDeposit confirms a card deposit with the provider
// @Summary Verify a deposit
// @Description Confirm a pending card deposit and credit the wallet. Safe to retry.
// @Tags wallet
// @Produce json
// @Param reference path string true "Deposit reference"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /wallet/deposits/{reference}/verify [post]
func (ws *WalletService) VerifyDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	reference := chi.URLParam(r, "reference")

	txn, err := ws.engine.VerifyDeposit(r.Context(), userID, reference)
	if err != nil {
		log.Printf("[WALLET] Deposit verification failed for %s: %v", reference, err)
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// ProviderWebhook ingests provider events for virtual account funding
// @Summary Payment provider webhook
// @Description Receive charge.success events for virtual account deposits. Idempotent by provider reference.
// @Tags wallet
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} ErrorResponse
// @Router /webhooks/payments [post]
func (ws *WalletService) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if !verifyWebhookSignature(body, r.Header.Get("x-paystack-signature")) {
		log.Printf("[WEBHOOK] Signature verification failed from IP: %s", r.RemoteAddr)
		SendErrorResponse(w, "Invalid signature", http.StatusUnauthorized, nil)
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"` // kobo
			PaidAt    string `json:"paid_at"`
			Authorization struct {
				ReceiverBankAccountNumber string `json:"receiver_bank_account_number"`
			} `json:"authorization"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if event.Event != "charge.success" {
		log.Printf("[WEBHOOK] Ignoring event %s", event.Event)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
		return
	}

	paidAt, err := time.Parse(time.RFC3339, event.Data.PaidAt)
	if err != nil {
		paidAt = time.Now().UTC()
	}
	naira := strconv.FormatFloat(float64(event.Data.Amount)/100, 'f', 2, 64)

	_, err = ws.engine.CreditVirtualAccount(r.Context(),
		event.Data.Authorization.ReceiverBankAccountNumber,
		event.Data.Reference, naira, paidAt)
	if err != nil {
		log.Printf("[WEBHOOK] Failed to settle %s: %v", event.Data.Reference, err)
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "processed"})
}

func verifyWebhookSignature(body []byte, signature string) bool {
	secret := viper.GetString("paystack.secret_key")
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Withdraw sends funds to an external bank account
// @Summary Withdraw to bank
// @Description Debit the wallet and pay out to a bank account. Reversed automatically if the payout fails.
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body object{amount=string,pin=string,bankCode=string,accountNumber=string,accountName=string,narration=string} true "Withdrawal request"
// @Success 200 {object} wallet.WithdrawalReceipt
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/withdrawals [post]
func (ws *WalletService) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount        string `json:"amount" validate:"required"`
		Pin           string `json:"pin" validate:"required,len=4,numeric"`
		BankCode      string `json:"bankCode" validate:"required"`
		AccountNumber string `json:"accountNumber" validate:"required,len=10,numeric"`
		AccountName   string `json:"accountName"`
		Narration     string `json:"narration" validate:"omitempty,max=100"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	receipt, err := ws.engine.Withdraw(r.Context(), userID, req.Amount, req.Pin, wallet.BankDetails{
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Narration:     req.Narration,
	})
	if err != nil {
		log.Printf("[WALLET] Withdrawal failed for user %d: %v", userID, err)
		sendWalletError(w, err)
		return
	}

	log.Printf("[WALLET] Withdrawal %s completed for user %d", receipt.Reference, userID)

	// Settlement export happens off the request path.
	if txn, err := ws.engine.GetTransaction(r.Context(), userID, receipt.Reference); err == nil {
		go ws.settlement.ExportWithdrawal(context.Background(), txn)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}

// SendMoney transfers funds to another user by tag
// @Summary Send money to a user
// @Description Atomically move funds between two wallets on the platform
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body object{receiverTag=string,amount=string,pin=string,message=string} true "Transfer request"
// @Success 200 {object} wallet.P2PReceipt
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /wallet/transfers [post]
func (ws *WalletService) SendMoney(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ReceiverTag string `json:"receiverTag" validate:"required,min=3,max=30"`
		Amount      string `json:"amount" validate:"required"`
		Pin         string `json:"pin" validate:"required,len=4,numeric"`
		Message     string `json:"message" validate:"omitempty,max=140"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	receipt, err := ws.engine.SendP2P(r.Context(), userID, req.ReceiverTag, req.Amount, req.Pin, req.Message)
	if err != nil {
		log.Printf("[WALLET] P2P transfer failed for user %d: %v", userID, err)
		sendWalletError(w, err)
		return
	}

	log.Printf("[WALLET] P2P transfer %s completed for user %d", receipt.Reference, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}

// ResolveTag looks up the public identity behind a tag
// @Summary Resolve a user tag
// @Description Return the display name for a tag before sending money
// @Tags wallet
// @Produce json
// @Param tag path string true "User tag"
// @Success 200 {object} object{tag=string,name=string}
// @Failure 404 {object} ErrorResponse
// @Router /wallet/tags/{tag} [get]
func (ws *WalletService) ResolveTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")

	user, err := ws.engine.ResolveTag(r.Context(), tag)
	if err != nil {
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"tag":  user.Tag,
		"name": user.FirstName + " " + user.LastName,
	})
}

// ListTransactions returns the caller's transaction history
// @Summary List transactions
// @Description Get the authenticated user's transactions, newest first
// @Tags wallet
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /wallet/transactions [get]
func (ws *WalletService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := ws.engine.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("[WALLET] Failed to list transactions for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": txns,
		"count":        len(txns),
	})
}

// GetTransaction returns one transaction by reference
// @Summary Get transaction
// @Description Retrieve a transaction by reference, scoped to the caller
// @Tags wallet
// @Produce json
// @Param reference path string true "Transaction reference"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Router /wallet/transactions/{reference} [get]
func (ws *WalletService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txn, err := ws.engine.GetTransaction(r.Context(), userID, chi.URLParam(r, "reference"))
	if err != nil {
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// CheckLimit previews a limit decision without moving money
// @Summary Check a daily limit
// @Description Report remaining daily headroom for a category and amount
// @Tags wallet
// @Produce json
// @Param category query string true "deposit, withdrawal or p2p"
// @Param amount query string true "Amount in naira"
// @Success 200 {object} wallet.LimitCheck
// @Failure 400 {object} ErrorResponse
// @Router /wallet/limits/check [get]
func (ws *WalletService) CheckLimit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	category := wallet.LimitCategory(r.URL.Query().Get("category"))
	switch category {
	case wallet.CategoryDeposit, wallet.CategoryWithdrawal, wallet.CategoryP2P:
	default:
		SendErrorResponse(w, "category must be deposit, withdrawal or p2p", http.StatusBadRequest, nil)
		return
	}

	check, err := ws.engine.CheckLimit(r.Context(), userID, r.URL.Query().Get("amount"), category)
	if err != nil {
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(check)
}

// AdjustBalance applies a manual admin credit or debit
// @Summary Adjust a user's balance
// @Description Manually credit or debit a wallet with an audited reason. Admin only.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body object{userId=int,direction=string,amount=string,reason=string} true "Adjustment request"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /admin/wallets/adjust [post]
func (ws *WalletService) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		UserID    int64  `json:"userId" validate:"required"`
		Direction string `json:"direction" validate:"required,oneof=credit debit"`
		Amount    string `json:"amount" validate:"required"`
		Reason    string `json:"reason" validate:"required,min=5"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txn, err := ws.engine.AdjustBalance(r.Context(), adminID, req.UserID, req.Direction, req.Amount, req.Reason)
	if err != nil {
		log.Printf("[ADMIN] Adjustment by %d for user %d failed: %v", adminID, req.UserID, err)
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// UnlockWallet clears a wallet lock after review
// @Summary Unlock a wallet
// @Description Clear a limit lock on a user's wallet. Admin only.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body object{userId=int,reason=string} true "Unlock request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /admin/wallets/unlock [post]
func (ws *WalletService) UnlockWallet(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		UserID int64  `json:"userId" validate:"required"`
		Reason string `json:"reason" validate:"required,min=5"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := ws.engine.UnlockWallet(r.Context(), adminID, req.UserID, req.Reason); err != nil {
		log.Printf("[ADMIN] Unlock by %d for user %d failed: %v", adminID, req.UserID, err)
		sendWalletError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Wallet unlocked"})
}
