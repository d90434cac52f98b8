package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kobopay/backend/internal/models"
	"github.com/shopspring/decimal"
)

type LimitCategory string

const (
	CategoryDeposit    LimitCategory = "deposit"
	CategoryWithdrawal LimitCategory = "withdrawal"
	CategoryP2P        LimitCategory = "p2p"
)

// LimitCheck is the admit/deny decision plus the figures surfaced to the
// user when an operation is rejected.
type LimitCheck struct {
	CanProceed bool            `json:"canProceed"`
	Unlimited  bool            `json:"unlimited"`
	Limit      decimal.Decimal `json:"limit"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
}

type LimitStore interface {
	CheckDailyLimit(ctx context.Context, userID int64, amount decimal.Decimal, category LimitCategory) (*LimitCheck, error)
	IncrementDailySpend(ctx context.Context, userID int64, amount decimal.Decimal, category LimitCategory) error
}

// Static per-tier daily caps in naira. A missing tier entry means unlimited
// (TIER_3 everywhere). TIER_0 has a zero P2P cap: it cannot send at all.
var dailyLimits = map[LimitCategory]map[models.KYCTier]decimal.Decimal{
	CategoryDeposit: {
		models.Tier0: decimal.NewFromInt(50_000),
		models.Tier1: decimal.NewFromInt(200_000),
		models.Tier2: decimal.NewFromInt(1_000_000),
	},
	CategoryWithdrawal: {
		models.Tier0: decimal.NewFromInt(20_000),
		models.Tier1: decimal.NewFromInt(100_000),
		models.Tier2: decimal.NewFromInt(500_000),
	},
	CategoryP2P: {
		models.Tier0: decimal.Zero,
		models.Tier1: decimal.NewFromInt(100_000),
		models.Tier2: decimal.NewFromInt(1_000_000),
	},
}

// Per-transaction P2P caps by tier; TIER_3 is uncapped.
var p2pTransactionCaps = map[models.KYCTier]decimal.Decimal{
	models.Tier0: decimal.Zero,
	models.Tier1: decimal.NewFromInt(100_000),
	models.Tier2: decimal.NewFromInt(1_000_000),
}

// DailyLimit returns the cap for a tier and category; ok=false means the
// tier is unlimited for that category.
func DailyLimit(tier models.KYCTier, category LimitCategory) (decimal.Decimal, bool) {
	limit, ok := dailyLimits[category][tier]
	return limit, ok
}

// P2PTransactionCap returns the per-transfer cap; ok=false means uncapped.
func P2PTransactionCap(tier models.KYCTier) (decimal.Decimal, bool) {
	cap, ok := p2pTransactionCaps[tier]
	return cap, ok
}

// RedisLimitStore keeps rolling daily spend counters in Redis, keyed by
// category, user and UTC date so the period boundary reset is implicit.
// When Redis is unavailable it falls back to summing today's completed
// transactions.
type RedisLimitStore struct {
	db    *sql.DB
	redis *redis.Client
}

func NewRedisLimitStore(db *sql.DB, redisClient *redis.Client) *RedisLimitStore {
	return &RedisLimitStore{db: db, redis: redisClient}
}

func dailySpendKey(userID int64, category LimitCategory, day time.Time) string {
	return fmt.Sprintf("daily_spend:%s:%d:%s", category, userID, day.UTC().Format("2006-01-02"))
}

func (s *RedisLimitStore) CheckDailyLimit(ctx context.Context, userID int64, amount decimal.Decimal, category LimitCategory) (*LimitCheck, error) {
	var tier models.KYCTier
	err := s.db.QueryRowContext(ctx, `SELECT kyc_tier FROM users WHERE id = $1`, userID).Scan(&tier)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("tier lookup: %w", err)
	}

	limit, capped := DailyLimit(tier, category)
	if !capped {
		return &LimitCheck{CanProceed: true, Unlimited: true}, nil
	}

	spent, err := s.spentToday(ctx, userID, category)
	if err != nil {
		return nil, err
	}

	remaining := limit.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &LimitCheck{
		CanProceed: spent.Add(amount).LessThanOrEqual(limit),
		Limit:      limit,
		Spent:      spent,
		Remaining:  remaining,
	}, nil
}

func (s *RedisLimitStore) IncrementDailySpend(ctx context.Context, userID int64, amount decimal.Decimal, category LimitCategory) error {
	if s.redis != nil {
		key := dailySpendKey(userID, category, time.Now())
		if err := s.redis.IncrByFloat(ctx, key, amount.InexactFloat64()).Err(); err != nil {
			return fmt.Errorf("increment daily spend: %w", err)
		}
		if err := s.redis.ExpireAt(ctx, key, endOfDay(time.Now())).Err(); err != nil {
			log.Printf("[LIMITS] Failed to set expiry on %s: %v", key, err)
		}
	}

	// Mirror spend categories onto the wallet row, best-effort.
	if category == CategoryWithdrawal || category == CategoryP2P {
		_, err := s.db.ExecContext(ctx, `
			UPDATE wallets SET daily_spent = daily_spent + $1, updated_at = NOW()
			WHERE user_id = $2 AND type = $3`,
			amount, userID, models.WalletNaira)
		if err != nil {
			log.Printf("[LIMITS] Failed to mirror daily spend for user %d: %v", userID, err)
		}
	}
	return nil
}

func (s *RedisLimitStore) spentToday(ctx context.Context, userID int64, category LimitCategory) (decimal.Decimal, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, dailySpendKey(userID, category, time.Now())).Result()
		if err == redis.Nil {
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("daily spend lookup: %w", err)
		}
		spent, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("daily spend parse: %w", err)
		}
		return spent, nil
	}
	return s.spentTodayFromStore(ctx, userID, category)
}

// spentTodayFromStore is the degraded path: incoming P2P credits count
// toward the deposit category, debit legs toward p2p.
func (s *RedisLimitStore) spentTodayFromStore(ctx context.Context, userID int64, category LimitCategory) (decimal.Decimal, error) {
	base := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND status = 'COMPLETED'
		  AND created_at >= date_trunc('day', NOW())`
	var cond string
	switch category {
	case CategoryDeposit:
		cond = ` AND (type = 'DEPOSIT' OR (type = 'TRANSFER' AND metadata->'p2p'->>'direction' = 'credit'))`
	case CategoryWithdrawal:
		cond = ` AND type = 'WITHDRAWAL'`
	case CategoryP2P:
		cond = ` AND type = 'TRANSFER' AND metadata->'p2p'->>'direction' = 'debit'`
	}

	var spent decimal.Decimal
	if err := s.db.QueryRowContext(ctx, base+cond, userID).Scan(&spent); err != nil {
		return decimal.Zero, fmt.Errorf("daily spend sum: %w", err)
	}
	return spent, nil
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
