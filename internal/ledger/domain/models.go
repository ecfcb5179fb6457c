// Package domain defines the append-only owner balance audit trail.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AuditEntry records one balance movement for an owner. Entries are never
// updated or deleted; replaying them from zero reconstructs BalanceCents.
type AuditEntry struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	OwnerID           snowflake.ID `gorm:"not null;index"`
	Description       string       `gorm:"type:text;not null"`
	AmountChangeCents int64        `gorm:"not null"`
	NewBalanceCents   int64        `gorm:"not null"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

func (AuditEntry) TableName() string { return "ledger_audit_entries" }

// Service moves owner balances. Apply runs inside the caller's transaction so
// the balance change commits or rolls back with the business write that
// caused it.
type Service interface {
	Apply(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, deltaCents int64, description string) (int64, error)
	ListForOwner(ctx context.Context, ownerID snowflake.ID, from, to time.Time) ([]AuditEntry, error)
}
