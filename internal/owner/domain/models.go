// Package domain contains persistence models for owners, horses, and the
// ownership associations that drive invoice fan-out.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Owner is a financially responsible party. BalanceCents is the running
// receivable maintained incrementally by the ledger service; the audit trail
// is the system of record for reconstructing it.
type Owner struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	AccountNumber string       `gorm:"type:text;not null;uniqueIndex"`
	Name          string       `gorm:"type:text;not null"`
	Email         string       `gorm:"type:text"`
	BalanceCents  int64        `gorm:"not null;default:0"`
	// GatewayCredential is the owner-scoped secret the gateway adapter
	// presents when creating payment links.
	GatewayCredential string    `gorm:"type:text"`
	IsActive          bool      `gorm:"not null;default:true"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Owner) TableName() string { return "owners" }

// AccountPrefix is the display prefix used in human-readable invoice ids.
func (o Owner) AccountPrefix() string {
	if o.AccountNumber != "" {
		return o.AccountNumber
	}
	return fmt.Sprintf("OWNER%d", o.ID)
}

// Horse is the billable subject charges accrue against.
type Horse struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	IsActive  bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Horse) TableName() string { return "horses" }

// HorseOwner associates an owner with a horse at an ownership share in basis
// points (10000 = 100%). Shares may be fractional percentages.
type HorseOwner struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	HorseID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_horse_owners,priority:1"`
	OwnerID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_horse_owners,priority:2"`
	ShareBps  int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (HorseOwner) TableName() string { return "horse_owners" }
