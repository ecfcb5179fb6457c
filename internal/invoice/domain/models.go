// Package domain contains invoice models and the generator contract.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "UNPAID"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
)

// Invoice bills one owner for their share of one horse's charges. SequenceNo
// is unique within (owner, period); BalanceDueCents is always recomputed from
// GrandTotalCents and AmountPaidCents, never adjusted independently.
type Invoice struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	OwnerID         snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoices_owner_period_seq,priority:1"`
	HorseID         snowflake.ID  `gorm:"not null;index"`
	DisplayID       string        `gorm:"type:text;not null"`
	IssueDate       time.Time     `gorm:"not null"`
	PeriodYM        string        `gorm:"type:text;not null;uniqueIndex:ux_invoices_owner_period_seq,priority:2"`
	SequenceNo      int64         `gorm:"not null;uniqueIndex:ux_invoices_owner_period_seq,priority:3"`
	ShareBps        int64         `gorm:"not null"`
	SubtotalCents   int64         `gorm:"not null"`
	TaxTotalCents   int64         `gorm:"not null;default:0"`
	GrandTotalCents int64         `gorm:"not null"`
	AmountPaidCents int64         `gorm:"not null;default:0"`
	BalanceDueCents int64         `gorm:"not null"`
	Status          InvoiceStatus `gorm:"type:text;not null;default:'UNPAID';index"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceSequence is the per-(owner, period) counter backing sequence
// assignment. It is only ever touched by an atomic upsert-increment.
type InvoiceSequence struct {
	OwnerID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	PeriodYM string       `gorm:"primaryKey;type:text"`
	NextSeq  int64        `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

// PeriodKey formats an issue date as the two-digit-year two-digit-month
// period key, e.g. March 2026 -> "2603".
func PeriodKey(issueDate time.Time) string {
	t := issueDate.UTC()
	return fmt.Sprintf("%02d%02d", t.Year()%100, int(t.Month()))
}

// FormatDisplayID renders the human-readable invoice id.
func FormatDisplayID(accountPrefix, periodYM string, sequenceNo int64) string {
	return fmt.Sprintf("%s-%s-%04d", accountPrefix, periodYM, sequenceNo)
}
