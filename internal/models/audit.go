package models

import (
	"time"
)

// AuditLog is an append-only record of balance-affecting admin and system
// actions. The engine only ever writes these rows.
type AuditLog struct {
	ID           int64          `json:"id" db:"id"`
	ActorID      int64          `json:"actorId" db:"actor_id"`
	Action       string         `json:"action" db:"action"`
	TargetUserID int64          `json:"targetUserId" db:"target_user_id"`
	Reference    string         `json:"reference,omitempty" db:"reference"`
	Details      map[string]any `json:"details,omitempty" db:"details"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
}
