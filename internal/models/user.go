package models

import (
	"time"
)

// KYCTier is the user verification level gating transaction limits.
type KYCTier int

const (
	Tier0 KYCTier = iota // unverified, cannot send transfers
	Tier1                // BVN verified
	Tier2                // identity document verified
	Tier3                // address verified, effectively unlimited
)

func (t KYCTier) String() string {
	switch t {
	case Tier0:
		return "TIER_0"
	case Tier1:
		return "TIER_1"
	case Tier2:
		return "TIER_2"
	case Tier3:
		return "TIER_3"
	}
	return "TIER_UNKNOWN"
}

const (
	UserStatusActive    = "ACTIVE"
	UserStatusSuspended = "SUSPENDED"
)

type User struct {
	ID            int64     `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	FirstName     string    `json:"firstName" db:"first_name"`
	LastName      string    `json:"lastName" db:"last_name"`
	PhoneNumber   string    `json:"phoneNumber" db:"phone_number"`
	BVN           string    `json:"-" db:"bvn"`
	Tag           string    `json:"tag" db:"tag"`
	AccountNumber string    `json:"accountNumber" db:"account_number"`
	KYCTier       KYCTier   `json:"kycTier" db:"kyc_tier"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
