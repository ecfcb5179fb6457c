package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	InvoiceID   snowflake.ID
	AmountCents int64
	PaidOn      time.Time
	Method      string
	Reference   string
	Notes       string
}

// Service records payments and settles invoices confirmed paid by the
// gateway. SettleFromGateway re-checks invoice status inside its own
// transaction so a webhook and a poller racing on the same invoice apply
// exactly one settlement; it reports false when there was nothing to settle.
type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Payment, error)
	SettleFromGateway(ctx context.Context, invoiceID snowflake.ID, method string) (bool, error)
	ListForInvoice(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
	ListEvents(ctx context.Context, limit int) ([]GatewayEventRecord, error)
}
