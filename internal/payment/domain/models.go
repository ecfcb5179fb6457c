// Package domain contains payment records and the gateway event audit store.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Payment is an append-only record of money received against one invoice.
type Payment struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	InvoiceID   snowflake.ID `gorm:"not null;index"`
	OwnerID     snowflake.ID `gorm:"not null;index"`
	AmountCents int64        `gorm:"not null"`
	PaidOn      time.Time    `gorm:"not null"`
	Method      string       `gorm:"type:text;not null"`
	Reference   string       `gorm:"type:text"`
	Notes       string       `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Payment) TableName() string { return "payments" }

// Gateway event processing statuses. A row is written once per distinct
// gateway event id and its status is the audit trail of what ingestion did.
const (
	EventStatusProcessedPaid           = "processed_paid"
	EventStatusProcessedAlreadySettled = "processed_already_settled"
	EventStatusProcessedSucceeded      = "processed_succeeded"
	EventStatusProcessedRefunded       = "processed_refunded"
	EventStatusUnhandledType           = "unhandled_type"
	EventStatusFailedSignature         = "failed_signature"
	EventStatusFailedPayload           = "failed_payload"
)

// Gateway event types the receiver dispatches on.
const (
	EventTypeCheckoutCompleted = "checkout.session.completed"
	EventTypePaymentSucceeded  = "payment_intent.succeeded"
	EventTypeChargeRefunded    = "charge.refunded"
)

// GatewayEventRecord is the dedup store for inbound gateway events. The
// unique gateway_event_id is what absorbs duplicate webhook deliveries.
type GatewayEventRecord struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	GatewayEventID string         `gorm:"type:text;not null;uniqueIndex:ux_gateway_events_event_id"`
	EventType      string         `gorm:"type:text;not null"`
	Payload        datatypes.JSON `gorm:"not null"`
	Status         string         `gorm:"type:text;not null"`
	InvoiceID      *snowflake.ID  `gorm:"index"`
	ReceivedAt     time.Time      `gorm:"not null"`
	ProcessedAt    *time.Time
}

func (GatewayEventRecord) TableName() string { return "gateway_events" }
