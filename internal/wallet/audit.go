package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	"github.com/kobopay/backend/internal/models"
)

// AuditStore records privileged actions. Every write also lands in the
// application log so the trail survives a database outage.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Record(ctx context.Context, entry models.AuditLog) {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		details = []byte("{}")
	}
	log.Printf("AUDIT: actor=%d action=%s target=%d reference=%s details=%s",
		entry.ActorID, entry.Action, entry.TargetUserID, entry.Reference, details)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, action, target_user_id, reference, details, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		entry.ActorID, entry.Action, entry.TargetUserID, entry.Reference, details)
	if err != nil {
		log.Printf("[AUDIT] Failed to persist audit entry %s: %v", entry.Action, err)
	}
}
