package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kobopay/backend/internal/wallet"
	"github.com/spf13/viper"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+2348012345678"` // User phone number
	Password    string `json:"password" validate:"required,min=6" example:"password123"` // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email" example:"user@example.com"`    // User email address
	Password    string `json:"password" validate:"required,min=6" example:"password123"`      // User password
	FirstName   string `json:"firstName" validate:"required,min=2" example:"John"`            // User first name
	LastName    string `json:"lastName" validate:"required,min=2" example:"Doe"`              // User last name
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+2348012345678"`      // Phone number
	Tag         string `json:"tag" validate:"required,min=3,max=30,alphanum" example:"johnd"` // Unique money tag
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string   `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  AuthUser `json:"user"`                                                    // User information
}

// AuthUser represents user information returned from auth endpoints
// @Description User structure
type AuthUser struct {
	ID            int64  `json:"id" example:"1"`                       // User ID
	Email         string `json:"email" example:"user@example.com"`     // User email
	FirstName     string `json:"firstName" example:"John"`             // User first name
	LastName      string `json:"lastName" example:"Doe"`               // User last name
	Tag           string `json:"tag" example:"johnd"`                  // Money tag
	AccountNumber string `json:"accountNumber" example:"9012345678"`   // Virtual account number
	PhoneNumber   string `json:"phoneNumber" example:"+2348012345678"` // User phone number
	KYCTier       string `json:"kycTier" example:"TIER_0"`             // Verification level
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user, provision their NAIRA wallet and virtual account number
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Email, phone or tag already exists"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		s.sendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	hashedPassword, err := wallet.HashSecret(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	accountNumber := generateAccountNumber()
	tag := strings.ToLower(req.Tag)

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRow(`
		INSERT INTO users (email, password, first_name, last_name, phone_number, tag, account_number, kyc_tier, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 'ACTIVE', NOW())
		RETURNING id`,
		strings.ToLower(req.Email), hashedPassword, req.FirstName, req.LastName,
		req.PhoneNumber, tag, accountNumber).Scan(&userID)
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Email, phone number or tag already exists", http.StatusConflict, nil)
		return
	}

	// Every user gets a NAIRA wallet at signup.
	_, err = tx.Exec(`
		INSERT INTO wallets (user_id, type, balance, ledger_balance, is_locked, daily_spent, created_at, updated_at)
		VALUES ($1, 'NAIRA', 0, 0, false, 0, NOW(), NOW())`, userID)
	if err != nil {
		log.Printf("[AUTH] Wallet creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create wallet", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %d, Email: %s", userID, req.Email)

	token, err := generateJWT(userID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", userID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User: AuthUser{
			ID: userID, Email: strings.ToLower(req.Email), FirstName: req.FirstName,
			LastName: req.LastName, Tag: tag, AccountNumber: accountNumber,
			PhoneNumber: req.PhoneNumber, KYCTier: "TIER_0",
		},
	}

	log.Printf("[AUTH] Registration successful for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with phone number and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		s.sendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user AuthUser
	var hashedPassword, status string
	var tier int
	err := s.db.QueryRow(`
		SELECT id, email, first_name, last_name, password, tag, account_number, phone_number, kyc_tier, status
		FROM users WHERE phone_number = $1`, req.PhoneNumber).
		Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &hashedPassword,
			&user.Tag, &user.AccountNumber, &user.PhoneNumber, &tier, &status)
	if err != nil {
		log.Printf("[AUTH] User not found for phone number: %s", req.PhoneNumber)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}
	user.KYCTier = fmt.Sprintf("TIER_%d", tier)

	if !wallet.VerifySecret(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.PhoneNumber)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if status == "SUSPENDED" {
		log.Printf("[AUTH] Suspended user attempted login: %d", user.ID)
		s.sendErrorResponse(w, "Account suspended, contact support", http.StatusForbidden, nil)
		return
	}

	token, err := generateJWT(user.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// SetTransactionPin sets or replaces the 4-digit transaction PIN
// @Summary Set transaction PIN
// @Description Set the 4-digit PIN required for withdrawals and transfers
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{pin=string} true "PIN request"
// @Success 200 {object} map[string]string "PIN set successfully"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Router /auth/transaction-pin [post]
func (s *AuthService) SetTransactionPin(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		s.sendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Pin string `json:"pin" validate:"required,len=4,numeric"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashed, err := wallet.HashSecret(req.Pin)
	if err != nil {
		log.Printf("[AUTH] PIN hashing failed for user %d: %v", userID, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	_, err = s.db.Exec(`UPDATE users SET transaction_pin = $1 WHERE id = $2`, hashed, userID)
	if err != nil {
		log.Printf("[AUTH] Failed to store PIN for user %d: %v", userID, err)
		s.sendErrorResponse(w, "Failed to set PIN", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Transaction PIN set for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Transaction PIN set"})
}

// ValidateBVN validates a BVN number and sends OTP
// @Summary Validate BVN
// @Description Validate a Bank Verification Number and send OTP for tier upgrade
// @Tags auth
// @Accept json
// @Produce json
// @Param request body map[string]string true "BVN validation request"
// @Success 200 {object} map[string]interface{} "OTP sent successfully"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Router /auth/validate-bvn [post]
func (s *AuthService) ValidateBVN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BVN         string `json:"bvn" validate:"required,len=11"`
		PhoneNumber string `json:"phoneNumber" validate:"required"`
	}

	if err := decodeJSON(w, r, &req); err != nil {
		s.sendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	otp := generateOTP()
	key := fmt.Sprintf("bvn_otp:%s", req.BVN)

	if s.redis != nil {
		if err := s.redis.Set(r.Context(), key, otp, 10*time.Minute).Err(); err != nil {
			log.Printf("[AUTH] Failed to store OTP in Redis: %v", err)
			s.sendErrorResponse(w, "Failed to generate OTP", http.StatusInternalServerError, nil)
			return
		}
	}

	log.Printf("[AUTH] OTP generated for BVN %s (Phone: %s)", req.BVN, req.PhoneNumber)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "OTP Sent Successfully",
		"valid":   true,
	})
}

// VerifyOTP verifies the OTP and upgrades the user to TIER_1
// @Summary Verify OTP
// @Description Verify OTP sent for BVN validation; on success the user moves to TIER_1
// @Tags auth
// @Accept json
// @Produce json
// @Param request body map[string]string true "OTP verification request"
// @Success 200 {object} map[string]interface{} "OTP verified successfully"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid or expired OTP"
// @Router /auth/verify-otp [post]
func (s *AuthService) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		s.sendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		BVN string `json:"bvn" validate:"required,len=11"`
		OTP string `json:"otp" validate:"required,len=8"`
	}

	if err := decodeJSON(w, r, &req); err != nil {
		s.sendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	key := fmt.Sprintf("bvn_otp:%s", req.BVN)

	if s.redis != nil {
		storedOTP, err := s.redis.Get(r.Context(), key).Result()
		if err != nil || storedOTP != req.OTP {
			log.Printf("[AUTH] Invalid or expired OTP for BVN %s", req.BVN)
			s.sendErrorResponse(w, "Invalid or expired OTP", http.StatusUnauthorized, nil)
			return
		}
		s.redis.Del(r.Context(), key)
	}

	_, err := s.db.Exec(`
		UPDATE users SET bvn = $1, kyc_tier = GREATEST(kyc_tier, 1) WHERE id = $2`,
		req.BVN, userID)
	if err != nil {
		log.Printf("[AUTH] Tier upgrade failed for user %d: %v", userID, err)
		s.sendErrorResponse(w, "Failed to upgrade verification level", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] BVN verified, user %d upgraded to TIER_1", userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "OTP Verified Successfully",
		"valid":   true,
	})
}

// GetUserAccount retrieves user account details from auth token
// @Summary Get user account details
// @Description Get authenticated user's account information
// @Tags auth
// @Produce json
// @Success 200 {object} AuthUser "User account details"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/account [get]
func (s *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		s.sendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user AuthUser
	var tier int
	err := s.db.QueryRow(`
		SELECT id, email, first_name, last_name, phone_number, tag, account_number, kyc_tier
		FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName,
			&user.PhoneNumber, &user.Tag, &user.AccountNumber, &tier)
	if err != nil {
		if err == sql.ErrNoRows {
			s.sendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Failed to fetch user details for ID %d: %v", userID, err)
			s.sendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		}
		return
	}
	user.KYCTier = fmt.Sprintf("TIER_%d", tier)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func generateJWT(userID int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"nameid":  userID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	b[0] = '9' // virtual account range
	for i := 1; i < len(b); i++ {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}

func generateOTP() string {
	b := make([]byte, 4)
	cryptorand.Read(b)
	return fmt.Sprintf("%08d", (int(b[0])<<24|int(b[1])<<16|int(b[2])<<8|int(b[3]))%100000000)
}
