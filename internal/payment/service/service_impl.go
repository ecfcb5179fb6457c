package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/paddockhq/stablebill/internal/clock"
	invoicedomain "github.com/paddockhq/stablebill/internal/invoice/domain"
	ledgerdomain "github.com/paddockhq/stablebill/internal/ledger/domain"
	paymentdomain "github.com/paddockhq/stablebill/internal/payment/domain"
	"github.com/paddockhq/stablebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
	}
}

// Record applies a manual payment. Overpayment is allowed and drives
// balance_due negative; the invoice flips to PAID whenever balance_due
// reaches zero or below.
func (s *Service) Record(ctx context.Context, req paymentdomain.RecordRequest) (*paymentdomain.Payment, error) {
	if req.AmountCents <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, paymentdomain.ErrEmptyMethod
	}
	if req.PaidOn.IsZero() {
		return nil, paymentdomain.ErrInvalidPaidOnDate
	}

	var payment *paymentdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		created, err := s.applyPayment(ctx, tx, invoice, req)
		if err != nil {
			return err
		}
		payment = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment recorded",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.Int64("amount_cents", req.AmountCents),
		zap.String("method", req.Method),
	)
	return payment, nil
}

// SettleFromGateway pays an invoice's full outstanding balance once the
// gateway confirms it. The status re-check happens under the row lock, so
// the second of two racing settlements (webhook vs poller) observes PAID
// and becomes a no-op.
func (s *Service) SettleFromGateway(ctx context.Context, invoiceID snowflake.ID, method string) (bool, error) {
	settled := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status != invoicedomain.InvoiceStatusUnpaid || invoice.BalanceDueCents <= 0 {
			return nil
		}

		_, err = s.applyPayment(ctx, tx, invoice, paymentdomain.RecordRequest{
			InvoiceID:   invoice.ID,
			AmountCents: invoice.BalanceDueCents,
			PaidOn:      s.clock.Now(),
			Method:      method,
			Reference:   "",
			Notes:       "settled on gateway confirmation",
		})
		if err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if settled {
		s.log.Info("invoice settled from gateway",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("method", method),
		)
	}
	return settled, nil
}

// applyPayment runs inside the caller's transaction with the invoice row
// already locked.
func (s *Service) applyPayment(
	ctx context.Context,
	tx *gorm.DB,
	invoice *invoicedomain.Invoice,
	req paymentdomain.RecordRequest,
) (*paymentdomain.Payment, error) {
	now := s.clock.Now()
	payment := paymentdomain.Payment{
		ID:          s.genID.Generate(),
		InvoiceID:   invoice.ID,
		OwnerID:     invoice.OwnerID,
		AmountCents: req.AmountCents,
		PaidOn:      req.PaidOn,
		Method:      strings.TrimSpace(req.Method),
		Reference:   req.Reference,
		Notes:       req.Notes,
		CreatedAt:   now,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, err
	}

	amountPaid := invoice.AmountPaidCents + req.AmountCents
	balanceDue := invoice.GrandTotalCents - amountPaid
	status := invoice.Status
	if balanceDue <= 0 {
		status = invoicedomain.InvoiceStatusPaid
	}
	if err := tx.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"amount_paid_cents": amountPaid,
			"balance_due_cents": balanceDue,
			"status":            status,
			"updated_at":        now,
		}).Error; err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Payment received on invoice %s (%s)", invoice.DisplayID, payment.Method)
	if _, err := s.ledgerSvc.Apply(ctx, tx, invoice.OwnerID, -req.AmountCents, description); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Service) ListForInvoice(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.Payment, error) {
	var payments []paymentdomain.Payment
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("paid_on ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) ListEvents(ctx context.Context, limit int) ([]paymentdomain.GatewayEventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []paymentdomain.GatewayEventRecord
	err := s.db.WithContext(ctx).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
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
