package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/paddockhq/stablebill/internal/clock"
	"github.com/paddockhq/stablebill/internal/config"
	invoicedomain "github.com/paddockhq/stablebill/internal/invoice/domain"
	ledgerservice "github.com/paddockhq/stablebill/internal/ledger/service"
	paymentdomain "github.com/paddockhq/stablebill/internal/payment/domain"
	paymentservice "github.com/paddockhq/stablebill/internal/payment/service"
	paymentwebhook "github.com/paddockhq/stablebill/internal/payment/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

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
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			owner_id BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			paid_on TIMESTAMP NOT NULL,
			method TEXT NOT NULL,
			reference TEXT,
			notes TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE ledger_audit_entries (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			description TEXT NOT NULL,
			amount_change_cents BIGINT NOT NULL,
			new_balance_cents BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE gateway_events (
			id BIGINT PRIMARY KEY,
			gateway_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			invoice_id BIGINT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_gateway_events_event_id ON gateway_events(gateway_event_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newWebhookService(t *testing.T, db *gorm.DB) (*paymentwebhook.Service, paymentdomain.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 21, 14, 0, 0, 0, time.UTC))
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		LedgerSvc: ledgerSvc,
	})
	webhookSvc := paymentwebhook.NewService(paymentwebhook.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		PaymentSvc: paymentSvc,
		Cfg:        config.Config{WebhookSecret: testSecret},
	})
	return webhookSvc, paymentSvc, node
}

func seedInvoice(t *testing.T, db *gorm.DB, invoiceID, ownerID snowflake.ID, grandTotal int64) {
	t.Helper()

	err := db.Exec(
		`INSERT INTO owners (id, account_number, name, balance_cents, is_active, created_at, updated_at)
		 VALUES (?, ?, 'Owner', ?, TRUE, ?, ?)`,
		ownerID, fmt.Sprintf("ACC%d", ownerID), grandTotal, time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	err = db.Exec(
		`INSERT INTO invoices (id, owner_id, horse_id, display_id, issue_date, period_ym, sequence_no,
		        share_bps, subtotal_cents, tax_total_cents, grand_total_cents, amount_paid_cents,
		        balance_due_cents, status, created_at, updated_at)
		 VALUES (?, ?, 1, 'ACC-2603-0001', ?, '2603', 1, 10000, ?, 0, ?, 0, ?, 'UNPAID', ?, ?)`,
		invoiceID, ownerID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		grandTotal, grandTotal, grandTotal, time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
}

func signPayload(secret string, payload []byte, at time.Time) string {
	signed := fmt.Sprintf("%d.%s", at.Unix(), string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func signedHeaders(secret string, payload []byte) http.Header {
	headers := http.Header{}
	headers.Set("Gateway-Signature", signPayload(secret, payload, time.Date(2026, 3, 21, 14, 0, 0, 0, time.UTC)))
	return headers
}

func checkoutPayload(eventID string, invoiceID snowflake.ID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":"checkout.session.completed","data":{"object":{"payment_status":%q,"metadata":{"invoice_id":%q,"owner_identifier":"ACC1"}}}}`,
		eventID, paymentStatus, invoiceID.String(),
	))
}

func TestIngestSettlesInvoice(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, paymentSvc, node := newWebhookService(t, db)

	ownerID := node.Generate()
	invoiceID := node.Generate()
	seedInvoice(t, db, invoiceID, ownerID, 12500)

	payload := checkoutPayload("evt_001", invoiceID, "paid")
	record, err := webhookSvc.Ingest(ctx, payload, signedHeaders(testSecret, payload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if record.Status != paymentdomain.EventStatusProcessedPaid {
		t.Fatalf("expected processed_paid, got %s", record.Status)
	}
	if record.InvoiceID == nil || *record.InvoiceID != invoiceID {
		t.Fatalf("expected event linked to invoice %s", invoiceID)
	}

	var invoice invoicedomain.Invoice
	if err := db.Where("id = ?", invoiceID).First(&invoice).Error; err != nil {
		t.Fatalf("read invoice: %v", err)
	}
	if invoice.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected invoice PAID, got %s", invoice.Status)
	}

	payments, err := paymentSvc.ListForInvoice(ctx, invoiceID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || payments[0].Method != "gateway-confirmed" {
		t.Fatalf("expected one gateway-confirmed payment, got %+v", payments)
	}
}

func TestIngestReplayIsAbsorbed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, paymentSvc, node := newWebhookService(t, db)

	ownerID := node.Generate()
	invoiceID := node.Generate()
	seedInvoice(t, db, invoiceID, ownerID, 12500)

	payload := checkoutPayload("evt_replay", invoiceID, "paid")
	headers := signedHeaders(testSecret, payload)

	if _, err := webhookSvc.Ingest(ctx, payload, headers); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, err := webhookSvc.Ingest(ctx, payload, headers)
		if !errors.Is(err, paymentdomain.ErrDuplicateEvent) {
			t.Fatalf("replay %d: expected ErrDuplicateEvent, got %v", i+1, err)
		}
	}

	payments, err := paymentSvc.ListForInvoice(ctx, invoiceID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected exactly 1 payment after replays, got %d", len(payments))
	}

	var eventCount int64
	if err := db.Raw(`SELECT COUNT(*) FROM gateway_events`).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 event record, got %d", eventCount)
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, _, node := newWebhookService(t, db)

	payload := checkoutPayload("evt_bad_sig", node.Generate(), "paid")
	headers := http.Header{}
	headers.Set("Gateway-Signature", "t=1700000000,v1=deadbeef")

	record, err := webhookSvc.Ingest(ctx, payload, headers)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if record == nil || record.Status != paymentdomain.EventStatusFailedSignature {
		t.Fatalf("expected failed_signature audit record, got %+v", record)
	}

	var paymentCount int64
	if err := db.Raw(`SELECT COUNT(*) FROM payments`).Scan(&paymentCount).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if paymentCount != 0 {
		t.Fatalf("bad signature must not create payments, got %d", paymentCount)
	}
}

func TestIngestRejectsMissingSignatureHeader(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, _, node := newWebhookService(t, db)

	payload := checkoutPayload("evt_no_header", node.Generate(), "paid")
	_, err := webhookSvc.Ingest(ctx, payload, http.Header{})
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestIngestRecordsUnparseablePayload(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, _, _ := newWebhookService(t, db)

	payload := []byte(`{"not valid`)
	record, err := webhookSvc.Ingest(ctx, payload, signedHeaders(testSecret, payload))
	if !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if record == nil || record.Status != paymentdomain.EventStatusFailedPayload {
		t.Fatalf("expected failed_payload audit record, got %+v", record)
	}
}

func TestIngestUnhandledType(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, _, _ := newWebhookService(t, db)

	payload := []byte(`{"id":"evt_other","type":"customer.created","data":{"object":{}}}`)
	record, err := webhookSvc.Ingest(ctx, payload, signedHeaders(testSecret, payload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if record.Status != paymentdomain.EventStatusUnhandledType {
		t.Fatalf("expected unhandled_type, got %s", record.Status)
	}
}

func TestIngestAlreadyPaidInvoice(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, _, node := newWebhookService(t, db)

	ownerID := node.Generate()
	invoiceID := node.Generate()
	seedInvoice(t, db, invoiceID, ownerID, 5000)
	if err := db.Exec(
		`UPDATE invoices SET status = 'PAID', amount_paid_cents = 5000, balance_due_cents = 0 WHERE id = ?`,
		invoiceID,
	).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	payload := checkoutPayload("evt_late", invoiceID, "paid")
	record, err := webhookSvc.Ingest(ctx, payload, signedHeaders(testSecret, payload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if record.Status != paymentdomain.EventStatusProcessedAlreadySettled {
		t.Fatalf("expected processed_already_settled, got %s", record.Status)
	}

	var paymentCount int64
	if err := db.Raw(`SELECT COUNT(*) FROM payments`).Scan(&paymentCount).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if paymentCount != 0 {
		t.Fatalf("already-paid invoice must not receive another payment, got %d", paymentCount)
	}
}

func TestIngestRefundedEventLogOnly(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	webhookSvc, _, _ := newWebhookService(t, db)

	payload := []byte(`{"id":"evt_refund","type":"charge.refunded","data":{"object":{}}}`)
	record, err := webhookSvc.Ingest(ctx, payload, signedHeaders(testSecret, payload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if record.Status != paymentdomain.EventStatusProcessedRefunded {
		t.Fatalf("expected processed_refunded, got %s", record.Status)
	}
}
