package statement_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/paddockhq/stablebill/internal/clock"
	"github.com/paddockhq/stablebill/internal/config"
	ledgerservice "github.com/paddockhq/stablebill/internal/ledger/service"
	"github.com/paddockhq/stablebill/internal/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE owners (
			id BIGINT PRIMARY KEY,
			account_number TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			balance_cents BIGINT NOT NULL DEFAULT 0,
			gateway_credential TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE invoices (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			horse_id BIGINT NOT NULL,
			display_id TEXT NOT NULL,
			issue_date TIMESTAMP NOT NULL,
			period_ym TEXT NOT NULL,
			sequence_no BIGINT NOT NULL,
			share_bps BIGINT NOT NULL,
			subtotal_cents BIGINT NOT NULL,
			tax_total_cents BIGINT NOT NULL DEFAULT 0,
			grand_total_cents BIGINT NOT NULL,
			amount_paid_cents BIGINT NOT NULL DEFAULT 0,
			balance_due_cents BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'UNPAID',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE ledger_audit_entries (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			description TEXT NOT NULL,
			amount_change_cents BIGINT NOT NULL,
			new_balance_cents BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newStatementService(t *testing.T, db *gorm.DB, asOf time.Time) (*statement.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(8)
	require.NoError(t, err)

	clk := clock.NewFakeClock(asOf)
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	svc := statement.NewService(statement.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clk,
		LedgerSvc: ledgerSvc,
		Billing:   config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	return svc, node
}

func seedOwner(t *testing.T, db *gorm.DB, node *snowflake.Node, account string, balance int64) snowflake.ID {
	t.Helper()

	id := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO owners (id, account_number, name, balance_cents, is_active, created_at, updated_at)
		 VALUES (?, ?, 'Owner', ?, TRUE, ?, ?)`,
		id, account, balance, time.Now().UTC(), time.Now().UTC(),
	).Error)
	return id
}

func seedAuditEntry(t *testing.T, db *gorm.DB, node *snowflake.Node, ownerID snowflake.ID, delta, newBalance int64, at time.Time) {
	t.Helper()

	require.NoError(t, db.Exec(
		`INSERT INTO ledger_audit_entries (id, owner_id, description, amount_change_cents, new_balance_cents, created_at)
		 VALUES (?, ?, 'seed', ?, ?, ?)`,
		node.Generate(), ownerID, delta, newBalance, at,
	).Error)
}

func seedUnpaidInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, ownerID snowflake.ID, balanceDue int64, issued time.Time) {
	t.Helper()

	require.NoError(t, db.Exec(
		`INSERT INTO invoices (id, owner_id, horse_id, display_id, issue_date, period_ym, sequence_no,
		        share_bps, subtotal_cents, tax_total_cents, grand_total_cents, amount_paid_cents,
		        balance_due_cents, status, created_at, updated_at)
		 VALUES (?, ?, 1, 'X', ?, '2603', 1, 10000, ?, 0, ?, 0, ?, 'UNPAID', ?, ?)`,
		node.Generate(), ownerID, issued, balanceDue, balanceDue, balanceDue, time.Now().UTC(), time.Now().UTC(),
	).Error)
}

func TestOwnerStatementBalances(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	asOf := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, node := newStatementService(t, db, asOf)

	ownerID := seedOwner(t, db, node, "SMITH01", 7000)
	seedAuditEntry(t, db, node, ownerID, 5000, 5000, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	seedAuditEntry(t, db, node, ownerID, 4000, 9000, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	seedAuditEntry(t, db, node, ownerID, -2000, 7000, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))

	got, err := svc.OwnerStatement(ctx, ownerID,
		time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, int64(5000), got.OpeningBalanceCents)
	assert.Equal(t, int64(7000), got.ClosingBalanceCents)
}

func TestOwnerStatementEmptyRange(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	asOf := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, node := newStatementService(t, db, asOf)

	ownerID := seedOwner(t, db, node, "SMITH01", 7000)

	got, err := svc.OwnerStatement(ctx, ownerID,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Empty(t, got.Entries)
	assert.Equal(t, int64(7000), got.OpeningBalanceCents)
	assert.Equal(t, int64(7000), got.ClosingBalanceCents)
}

func TestARAgingClassifiesByDaysOutstanding(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	asOf := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, node := newStatementService(t, db, asOf)

	ownerID := seedOwner(t, db, node, "SMITH01", 0)
	seedUnpaidInvoice(t, db, node, ownerID, 1000, asOf.AddDate(0, 0, -10)) // current
	seedUnpaidInvoice(t, db, node, ownerID, 2000, asOf.AddDate(0, 0, -45)) // 31-60
	seedUnpaidInvoice(t, db, node, ownerID, 3000, asOf.AddDate(0, 0, -75)) // 61-90
	seedUnpaidInvoice(t, db, node, ownerID, 4000, asOf.AddDate(0, 0, -120)) // 90+

	report, err := svc.ARAging(ctx)
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)

	line := report.Lines[0]
	assert.Equal(t, int64(1000), line.Buckets["current"])
	assert.Equal(t, int64(2000), line.Buckets["31-60"])
	assert.Equal(t, int64(3000), line.Buckets["61-90"])
	assert.Equal(t, int64(4000), line.Buckets["90+"])
	assert.Equal(t, int64(10000), line.TotalCents)
	assert.Equal(t, int64(10000), report.TotalCents)
}

func TestARAgingIgnoresPaidInvoices(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	asOf := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, node := newStatementService(t, db, asOf)

	ownerID := seedOwner(t, db, node, "SMITH01", 0)
	seedUnpaidInvoice(t, db, node, ownerID, 1000, asOf.AddDate(0, 0, -10))
	require.NoError(t, db.Exec(`UPDATE invoices SET status = 'PAID', balance_due_cents = 0`).Error)

	report, err := svc.ARAging(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.Zero(t, report.TotalCents)
}

func TestARAgingHonorsConfiguredBuckets(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	asOf := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(asOf)
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	week := 7
	svc := statement.NewService(statement.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clk,
		LedgerSvc: ledgerSvc,
		Billing: config.NewStaticBillingConfigHolder(config.BillingConfig{
			AgingBuckets: []config.AgingBucket{
				{Label: "week", MinDays: 0, MaxDays: &week},
				{Label: "older", MinDays: 8, MaxDays: nil},
			},
		}),
	})

	ownerID := seedOwner(t, db, node, "SMITH01", 0)
	seedUnpaidInvoice(t, db, node, ownerID, 500, asOf.AddDate(0, 0, -3))
	seedUnpaidInvoice(t, db, node, ownerID, 900, asOf.AddDate(0, 0, -30))

	report, err := svc.ARAging(ctx)
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, int64(500), report.Lines[0].Buckets["week"])
	assert.Equal(t, int64(900), report.Lines[0].Buckets["older"])
}
