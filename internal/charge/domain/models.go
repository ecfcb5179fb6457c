// Package domain contains persistence models for the charge ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ChargeStatus tracks a charge item through its lifecycle. OPEN items are
// editable and billable; CONSUMED items were used as source material for an
// invoice; INVOICED items are the invoice-scoped copies.
type ChargeStatus string

const (
	ChargeStatusOpen     ChargeStatus = "OPEN"
	ChargeStatusConsumed ChargeStatus = "CONSUMED"
	ChargeStatusInvoiced ChargeStatus = "INVOICED"
)

// ChargeItem is a single billable line for a horse. OwnerID and InvoiceID are
// nil until the item is copied onto an invoice. Amounts are int64 cents;
// quantity is stored in hundredths so fractional quantities stay exact.
type ChargeItem struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	HorseID        snowflake.ID  `gorm:"not null;index"`
	OwnerID        *snowflake.ID `gorm:"index"`
	InvoiceID      *snowflake.ID `gorm:"index"`
	ChargeCode     string        `gorm:"type:text;not null"`
	Description    string        `gorm:"type:text;not null"`
	ServiceDate    time.Time     `gorm:"not null"`
	QuantityCenti  int64         `gorm:"not null;default:100"`
	UnitPriceCents int64         `gorm:"not null"`
	AmountCents    int64         `gorm:"not null"`
	Taxable        bool          `gorm:"not null;default:false"`
	Notes          string        `gorm:"type:text"`
	Status         ChargeStatus  `gorm:"type:text;not null;default:'OPEN';index"`
	CreatedBy      string        `gorm:"type:text"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ChargeItem) TableName() string { return "charge_items" }
