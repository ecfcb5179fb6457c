package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/paddockhq/stablebill/internal/charge/domain"
)

// GenerateRequest selects the OPEN charge items to bill. The whole selection
// is rejected if any item is not OPEN.
type GenerateRequest struct {
	ChargeItemIDs []snowflake.ID
}

// SkippedHorse reports a horse whose charges could not be billed. Skips are
// partial-success outcomes, not failures.
type SkippedHorse struct {
	HorseID snowflake.ID `json:"horse_id"`
	Reason  string       `json:"reason"`
}

type GenerateResult struct {
	Invoices []Invoice      `json:"invoices"`
	Skipped  []SkippedHorse `json:"skipped,omitempty"`
}

// ListRequest filters invoice listings. Zero values mean no filter.
type ListRequest struct {
	OwnerID snowflake.ID
	Status  InvoiceStatus
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Reverse(ctx context.Context, invoiceID snowflake.ID) error
	Get(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
	GetItems(ctx context.Context, invoiceID snowflake.ID) ([]chargedomain.ChargeItem, error)
	List(ctx context.Context, req ListRequest) ([]Invoice, error)
}
