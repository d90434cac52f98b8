package wallet

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const notificationQueue = "notification_queue"

// NotificationEvent is pushed onto the Redis queue for the notification
// worker to fan out as push/SMS/email.
type NotificationEvent struct {
	UserID    int64           `json:"userId"`
	Type      string          `json:"type"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notifier enqueues events best-effort: delivery failures are logged, never
// surfaced, and a nil Redis client turns it into a no-op.
type Notifier struct {
	redis *redis.Client
}

func NewNotifier(redisClient *redis.Client) *Notifier {
	return &Notifier{redis: redisClient}
}

func (n *Notifier) Notify(ctx context.Context, event NotificationEvent) {
	if n == nil || n.redis == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[NOTIFY] Failed to marshal event for user %d: %v", event.UserID, err)
		return
	}
	if err := n.redis.RPush(ctx, notificationQueue, string(payload)).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to enqueue %s for user %d: %v", event.Type, event.UserID, err)
	}
}
