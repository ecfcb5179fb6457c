package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ChargeLine is one line of a batch entry.
type ChargeLine struct {
	ChargeCode     string
	Description    string
	QuantityCenti  int64
	UnitPriceCents int64
	Taxable        bool
	Notes          string
}

// AddBatchRequest enters a batch of charges against one horse. The whole
// batch shares a service date and is accepted or rejected as a unit.
type AddBatchRequest struct {
	HorseID     snowflake.ID
	ServiceDate time.Time
	EnteredBy   string
	Lines       []ChargeLine
}

// UpdateChargeRequest mutates an OPEN charge item. Nil fields are unchanged.
type UpdateChargeRequest struct {
	ChargeID       snowflake.ID
	Description    *string
	QuantityCenti  *int64
	UnitPriceCents *int64
	Taxable        *bool
	Notes          *string
	ServiceDate    *time.Time
}

type Service interface {
	AddBatch(ctx context.Context, req AddBatchRequest) ([]ChargeItem, error)
	Update(ctx context.Context, req UpdateChargeRequest) (*ChargeItem, error)
	Delete(ctx context.Context, chargeID snowflake.ID) error
	ListForHorse(ctx context.Context, horseID snowflake.ID, status *ChargeStatus) ([]ChargeItem, error)
}
