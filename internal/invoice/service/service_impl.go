package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/paddockhq/stablebill/internal/charge/domain"
	"github.com/paddockhq/stablebill/internal/clock"
	invoicedomain "github.com/paddockhq/stablebill/internal/invoice/domain"
	ledgerdomain "github.com/paddockhq/stablebill/internal/ledger/domain"
	"github.com/paddockhq/stablebill/internal/money"
	ownerdomain "github.com/paddockhq/stablebill/internal/owner/domain"
	"github.com/paddockhq/stablebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sequenceRetryAttempts = 3

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
	}
}

// Generate consumes the selected OPEN charge items and produces one invoice
// per (horse, owner) pair. The whole batch runs in a single transaction; a
// sequence collision retries the batch up to sequenceRetryAttempts times.
func (s *Service) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (*invoicedomain.GenerateResult, error) {
	if len(req.ChargeItemIDs) == 0 {
		return nil, invoicedomain.ErrEmptySelection
	}

	var (
		result  *invoicedomain.GenerateResult
		lastErr error
	)
	for attempt := 1; attempt <= sequenceRetryAttempts; attempt++ {
		result, lastErr = s.generateOnce(ctx, req)
		if lastErr == nil {
			return result, nil
		}
		if !db.IsDuplicateKeyErr(lastErr) {
			return nil, lastErr
		}
		s.log.Warn("invoice sequence collision, retrying batch",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}
	return nil, fmt.Errorf("%w: %v", invoicedomain.ErrSequenceConflict, lastErr)
}

func (s *Service) generateOnce(ctx context.Context, req invoicedomain.GenerateRequest) (*invoicedomain.GenerateResult, error) {
	issueDate := s.clock.Now()
	period := invoicedomain.PeriodKey(issueDate)

	result := &invoicedomain.GenerateResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []chargedomain.ChargeItem
		if err := tx.Where("id IN ?", req.ChargeItemIDs).Find(&items).Error; err != nil {
			return err
		}
		if len(items) != len(req.ChargeItemIDs) {
			return chargedomain.ErrChargeNotFound
		}
		for _, item := range items {
			if item.Status != chargedomain.ChargeStatusOpen {
				return chargedomain.ErrChargeNotOpen
			}
		}

		byHorse := map[snowflake.ID][]chargedomain.ChargeItem{}
		for _, item := range items {
			byHorse[item.HorseID] = append(byHorse[item.HorseID], item)
		}
		horseIDs := make([]snowflake.ID, 0, len(byHorse))
		for horseID := range byHorse {
			horseIDs = append(horseIDs, horseID)
		}
		sort.Slice(horseIDs, func(i, j int) bool { return horseIDs[i] < horseIDs[j] })

		for _, horseID := range horseIDs {
			group := byHorse[horseID]

			var shares []ownerdomain.HorseOwner
			if err := tx.Where("horse_id = ?", horseID).Order("owner_id ASC").Find(&shares).Error; err != nil {
				return err
			}
			if len(shares) == 0 {
				s.log.Info("skipping horse with no owners",
					zap.String("horse_id", horseID.String()),
				)
				result.Skipped = append(result.Skipped, invoicedomain.SkippedHorse{
					HorseID: horseID,
					Reason:  "no responsible owners associated",
				})
				continue
			}

			for _, share := range shares {
				invoice, err := s.buildInvoice(ctx, tx, share, group, issueDate, period, len(shares) > 1)
				if err != nil {
					return err
				}
				result.Invoices = append(result.Invoices, *invoice)
			}
		}

		if len(result.Invoices) == 0 && len(result.Skipped) == 0 {
			return invoicedomain.ErrNothingToGenerate
		}

		// Every selected item is consumed, including those of skipped
		// horses; a skipped charge needs re-entry, not re-selection.
		now := s.clock.Now()
		if err := tx.Model(&chargedomain.ChargeItem{}).
			Where("id IN ?", req.ChargeItemIDs).
			Updates(map[string]any{
				"status":     chargedomain.ChargeStatusConsumed,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice batch generated",
		zap.Int("invoices", len(result.Invoices)),
		zap.Int("skipped_horses", len(result.Skipped)),
		zap.String("period", period),
	)
	return result, nil
}

// formatSharePercent renders basis points as a percentage, "6000" -> "60.00%".
func formatSharePercent(bps int64) string {
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}

func (s *Service) buildInvoice(
	ctx context.Context,
	tx *gorm.DB,
	share ownerdomain.HorseOwner,
	group []chargedomain.ChargeItem,
	issueDate time.Time,
	period string,
	sharedHorse bool,
) (*invoicedomain.Invoice, error) {
	var owner ownerdomain.Owner
	if err := tx.Where("id = ?", share.OwnerID).First(&owner).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ledgerdomain.ErrOwnerNotFound
		}
		return nil, err
	}

	seq, err := s.claimSequence(ctx, tx, share.OwnerID, period)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invoice := invoicedomain.Invoice{
		ID:         s.genID.Generate(),
		OwnerID:    share.OwnerID,
		HorseID:    share.HorseID,
		DisplayID:  invoicedomain.FormatDisplayID(owner.AccountPrefix(), period, seq),
		IssueDate:  issueDate,
		PeriodYM:   period,
		SequenceNo: seq,
		ShareBps:   share.ShareBps,
		Status:     invoicedomain.InvoiceStatusUnpaid,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var subtotal int64
	copies := make([]chargedomain.ChargeItem, 0, len(group))
	for _, item := range group {
		prorated := money.ProrateBps(item.AmountCents, share.ShareBps)
		subtotal += prorated
		ownerID := share.OwnerID
		invoiceID := invoice.ID
		description := item.Description
		if sharedHorse {
			description = fmt.Sprintf("%s (%s Share)", item.Description, formatSharePercent(share.ShareBps))
		}
		copies = append(copies, chargedomain.ChargeItem{
			ID:             s.genID.Generate(),
			HorseID:        item.HorseID,
			OwnerID:        &ownerID,
			InvoiceID:      &invoiceID,
			ChargeCode:     item.ChargeCode,
			Description:    description,
			ServiceDate:    item.ServiceDate,
			QuantityCenti:  item.QuantityCenti,
			UnitPriceCents: money.ProrateBps(item.UnitPriceCents, share.ShareBps),
			AmountCents:    prorated,
			Taxable:        item.Taxable,
			Notes:          item.Notes,
			Status:         chargedomain.ChargeStatusInvoiced,
			CreatedBy:      item.CreatedBy,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	invoice.SubtotalCents = subtotal
	invoice.TaxTotalCents = 0
	invoice.GrandTotalCents = invoice.SubtotalCents + invoice.TaxTotalCents
	invoice.BalanceDueCents = invoice.GrandTotalCents

	if err := tx.Create(&invoice).Error; err != nil {
		return nil, err
	}
	for i := range copies {
		if err := tx.Create(&copies[i]).Error; err != nil {
			return nil, err
		}
	}

	description := fmt.Sprintf("Invoice %s generated", invoice.DisplayID)
	if _, err := s.ledgerSvc.Apply(ctx, tx, share.OwnerID, invoice.GrandTotalCents, description); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// claimSequence atomically increments the (owner, period) counter and
// returns the claimed number. First use of a counter yields 1.
func (s *Service) claimSequence(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, period string) (int64, error) {
	var seq int64
	err := tx.WithContext(ctx).Raw(
		`INSERT INTO invoice_sequences (owner_id, period_ym, next_seq)
		 VALUES (?, ?, 1)
		 ON CONFLICT (owner_id, period_ym)
		 DO UPDATE SET next_seq = invoice_sequences.next_seq + 1
		 RETURNING next_seq`,
		ownerID, period,
	).Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		return 0, fmt.Errorf("sequence claim returned no row for owner %s period %s", ownerID, period)
	}
	return seq, nil
}

// Reverse deletes an invoice and subtracts its grand total from the owner
// balance. Source charge items stay CONSUMED; a reversed invoice is not
// re-billable.
func (s *Service) Reverse(ctx context.Context, invoiceID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		description := fmt.Sprintf("Invoice %s reversed", invoice.DisplayID)
		if _, err := s.ledgerSvc.Apply(ctx, tx, invoice.OwnerID, -invoice.GrandTotalCents, description); err != nil {
			return err
		}

		if err := tx.Delete(&chargedomain.ChargeItem{}, "invoice_id = ?", invoice.ID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&invoicedomain.Invoice{}, "id = ?", invoice.ID).Error; err != nil {
			return err
		}

		s.log.Info("invoice reversed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("display_id", invoice.DisplayID),
			zap.Int64("grand_total_cents", invoice.GrandTotalCents),
		)
		return nil
	})
}

func (s *Service) Get(ctx context.Context, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := s.db.WithContext(ctx).Where("id = ?", invoiceID).First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) GetItems(ctx context.Context, invoiceID snowflake.ID) ([]chargedomain.ChargeItem, error) {
	var items []chargedomain.ChargeItem
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("service_date ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	query := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if req.OwnerID != 0 {
		query = query.Where("owner_id = ?", req.OwnerID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	var invoices []invoicedomain.Invoice
	if err := query.Order("issue_date DESC, id DESC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) loadInvoiceForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT id, owner_id, horse_id, display_id, issue_date, period_ym, sequence_no,
		        share_bps, subtotal_cents, tax_total_cents, grand_total_cents,
		        amount_paid_cents, balance_due_cents, status, created_at, updated_at
		 FROM invoices
		 WHERE id = ?`+db.RowLockClause(tx),
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}
