// Package statement produces owner statements and the accounts receivable
// aging report from the ledger audit trail and open invoices.
package statement

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/paddockhq/stablebill/internal/clock"
	"github.com/paddockhq/stablebill/internal/config"
	invoicedomain "github.com/paddockhq/stablebill/internal/invoice/domain"
	ledgerdomain "github.com/paddockhq/stablebill/internal/ledger/domain"
	ownerdomain "github.com/paddockhq/stablebill/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
	Billing   *config.BillingConfigHolder
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service
	billing   *config.BillingConfigHolder
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("statement.service"),
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
		billing:   p.Billing,
	}
}

// OwnerStatement lists an owner's balance movements over a date range with
// the opening and closing balance around them.
type OwnerStatement struct {
	OwnerID             snowflake.ID              `json:"owner_id"`
	OwnerName           string                    `json:"owner_name"`
	AccountNumber       string                    `json:"account_number"`
	From                time.Time                 `json:"from"`
	To                  time.Time                 `json:"to"`
	OpeningBalanceCents int64                     `json:"opening_balance_cents"`
	ClosingBalanceCents int64                     `json:"closing_balance_cents"`
	Entries             []ledgerdomain.AuditEntry `json:"entries"`
}

func (s *Service) OwnerStatement(ctx context.Context, ownerID snowflake.ID, from, to time.Time) (*OwnerStatement, error) {
	var owner ownerdomain.Owner
	if err := s.db.WithContext(ctx).Where("id = ?", ownerID).First(&owner).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ledgerdomain.ErrOwnerNotFound
		}
		return nil, err
	}
	if to.IsZero() {
		to = s.clock.Now()
	}

	entries, err := s.ledgerSvc.ListForOwner(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}

	// the audit trail carries the running balance, so the window's opening
	// balance falls out of its first entry
	statement := &OwnerStatement{
		OwnerID:       owner.ID,
		OwnerName:     owner.Name,
		AccountNumber: owner.AccountNumber,
		From:          from,
		To:            to,
		Entries:       entries,
	}
	if len(entries) == 0 {
		statement.OpeningBalanceCents = owner.BalanceCents
		statement.ClosingBalanceCents = owner.BalanceCents
		return statement, nil
	}
	first := entries[0]
	last := entries[len(entries)-1]
	statement.OpeningBalanceCents = first.NewBalanceCents - first.AmountChangeCents
	statement.ClosingBalanceCents = last.NewBalanceCents
	return statement, nil
}

// AgingLine is one owner's receivables split across the configured buckets.
type AgingLine struct {
	OwnerID       snowflake.ID     `json:"owner_id"`
	OwnerName     string           `json:"owner_name"`
	AccountNumber string           `json:"account_number"`
	Buckets       map[string]int64 `json:"buckets"`
	TotalCents    int64            `json:"total_cents"`
}

// AgingReport groups every unpaid invoice balance by how many days it has
// been outstanding.
type AgingReport struct {
	AsOf       time.Time   `json:"as_of"`
	Buckets    []string    `json:"buckets"`
	Lines      []AgingLine `json:"lines"`
	TotalCents int64       `json:"total_cents"`
}

type agingRow struct {
	OwnerID         snowflake.ID
	OwnerName       string
	AccountNumber   string
	IssueDate       time.Time
	BalanceDueCents int64
}

func (s *Service) ARAging(ctx context.Context) (*AgingReport, error) {
	asOf := s.clock.Now()
	buckets := s.billing.Get().AgingBuckets

	var rows []agingRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT i.owner_id, o.name AS owner_name, o.account_number, i.issue_date, i.balance_due_cents
		 FROM invoices i
		 JOIN owners o ON o.id = i.owner_id
		 WHERE i.status = ? AND i.balance_due_cents > 0
		 ORDER BY o.account_number ASC, i.issue_date ASC`,
		invoicedomain.InvoiceStatusUnpaid,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	report := &AgingReport{AsOf: asOf}
	for _, bucket := range buckets {
		report.Buckets = append(report.Buckets, bucket.Label)
	}

	byOwner := map[snowflake.ID]*AgingLine{}
	order := []snowflake.ID{}
	for _, row := range rows {
		line, ok := byOwner[row.OwnerID]
		if !ok {
			line = &AgingLine{
				OwnerID:       row.OwnerID,
				OwnerName:     row.OwnerName,
				AccountNumber: row.AccountNumber,
				Buckets:       map[string]int64{},
			}
			byOwner[row.OwnerID] = line
			order = append(order, row.OwnerID)
		}

		days := int(asOf.Sub(row.IssueDate.UTC()).Hours() / 24)
		label := classify(buckets, days)
		line.Buckets[label] += row.BalanceDueCents
		line.TotalCents += row.BalanceDueCents
		report.TotalCents += row.BalanceDueCents
	}
	for _, ownerID := range order {
		report.Lines = append(report.Lines, *byOwner[ownerID])
	}
	return report, nil
}

func classify(buckets []config.AgingBucket, days int) string {
	for _, bucket := range buckets {
		if days < bucket.MinDays {
			continue
		}
		if bucket.MaxDays == nil || days <= *bucket.MaxDays {
			return bucket.Label
		}
	}
	if len(buckets) == 0 {
		return "unbucketed"
	}
	return buckets[len(buckets)-1].Label
}

var Module = fx.Module("statement.service",
	fx.Provide(NewService),
)
