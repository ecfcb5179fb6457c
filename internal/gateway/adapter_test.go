package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/paddockhq/stablebill/internal/config"
	"github.com/paddockhq/stablebill/internal/gateway"
	"go.uber.org/zap"
)

func newAdapter(t *testing.T, baseURL string) *gateway.Adapter {
	t.Helper()

	return gateway.NewAdapter(gateway.Params{
		Cfg: config.Config{
			GatewayBaseURL: baseURL,
			GatewayTimeout: 2 * time.Second,
		},
		Log: zap.NewNop(),
	})
}

func testNode(t *testing.T) *snowflake.Node {
	t.Helper()

	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestCreatePaymentLink(t *testing.T) {
	node := testNode(t)
	invoiceID := node.Generate()

	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/create-payment-link" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "created",
			"url":     "https://pay.example/link/abc",
		})
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	url, err := adapter.CreatePaymentLink(context.Background(), gateway.CreatePaymentLinkRequest{
		InvoiceID:       invoiceID,
		AmountCents:     12500,
		Description:     "Invoice SMITH01-2603-0001",
		Credential:      "sk_live_abc",
		OwnerIdentifier: "SMITH01",
		Email:           "owner@example.com",
	})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if url != "https://pay.example/link/abc" {
		t.Fatalf("unexpected url %q", url)
	}

	if captured["invoice_id"] != invoiceID.String() {
		t.Fatalf("invoice id not embedded: %v", captured["invoice_id"])
	}
	if captured["owner_identifier"] != "SMITH01" {
		t.Fatalf("owner identifier not embedded: %v", captured["owner_identifier"])
	}
	if captured["amount"] != float64(12500) {
		t.Fatalf("unexpected amount: %v", captured["amount"])
	}
}

func TestCreatePaymentLinkErrorMapping(t *testing.T) {
	node := testNode(t)

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"auth", http.StatusUnauthorized, `{}`, gateway.ErrGatewayAuth},
		{"forbidden", http.StatusForbidden, `{}`, gateway.ErrGatewayAuth},
		{"validation", http.StatusBadRequest, `{"success":false,"message":"bad amount"}`, gateway.ErrGatewayValidation},
		{"server", http.StatusInternalServerError, `{}`, gateway.ErrGatewayTransport},
		{"bad gateway", http.StatusBadGateway, `{}`, gateway.ErrGatewayTransport},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			adapter := newAdapter(t, server.URL)
			_, err := adapter.CreatePaymentLink(context.Background(), gateway.CreatePaymentLinkRequest{
				InvoiceID:       node.Generate(),
				AmountCents:     100,
				Credential:      "sk_test",
				OwnerIdentifier: "SMITH01",
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreatePaymentLinkLocalValidation(t *testing.T) {
	node := testNode(t)
	adapter := newAdapter(t, "http://localhost:1")

	_, err := adapter.CreatePaymentLink(context.Background(), gateway.CreatePaymentLinkRequest{
		InvoiceID:   node.Generate(),
		AmountCents: 100,
	})
	if !errors.Is(err, gateway.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	_, err = adapter.CreatePaymentLink(context.Background(), gateway.CreatePaymentLinkRequest{
		InvoiceID:       node.Generate(),
		AmountCents:     0,
		Credential:      "sk_test",
		OwnerIdentifier: "SMITH01",
	})
	if !errors.Is(err, gateway.ErrGatewayValidation) {
		t.Fatalf("expected ErrGatewayValidation, got %v", err)
	}
}

func TestCreatePaymentLinkNetworkFailure(t *testing.T) {
	node := testNode(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	adapter := newAdapter(t, server.URL)
	_, err := adapter.CreatePaymentLink(context.Background(), gateway.CreatePaymentLinkRequest{
		InvoiceID:       node.Generate(),
		AmountCents:     100,
		Credential:      "sk_test",
		OwnerIdentifier: "SMITH01",
	})
	if !errors.Is(err, gateway.ErrGatewayTransport) {
		t.Fatalf("expected ErrGatewayTransport, got %v", err)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	node := testNode(t)
	invoiceID := node.Generate()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/payment-status/SMITH01/" + invoiceID.String()
		if r.URL.Path != want {
			t.Fatalf("unexpected path %s, want %s", r.URL.Path, want)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"invoice_id":       invoiceID.String(),
			"is_paid":          true,
			"owner_identifier": "SMITH01",
		})
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	paid, err := adapter.GetPaymentStatus(context.Background(), "SMITH01", invoiceID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !paid {
		t.Fatalf("expected paid=true")
	}
}

func TestGetPaymentStatusUnknownInvoice(t *testing.T) {
	node := testNode(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := newAdapter(t, server.URL)
	_, err := adapter.GetPaymentStatus(context.Background(), "SMITH01", node.Generate())
	if !errors.Is(err, gateway.ErrGatewayValidation) {
		t.Fatalf("expected ErrGatewayValidation, got %v", err)
	}
}

func TestWithRetryRecoversFromTransportErrors(t *testing.T) {
	calls := 0
	err := gateway.WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return gateway.ErrGatewayTransport
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	err := gateway.WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return gateway.ErrGatewayAuth
	})
	if !errors.Is(err, gateway.ErrGatewayAuth) {
		t.Fatalf("expected ErrGatewayAuth, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("auth errors must not be retried, got %d calls", calls)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gateway.WithRetry(ctx, 5, time.Minute, func(ctx context.Context) error {
		return gateway.ErrGatewayTransport
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
