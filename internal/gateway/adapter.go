// Package gateway is the HTTP client for the external payment gateway. It
// creates payable links for invoices and answers paid/unpaid status queries;
// it never touches the database.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/paddockhq/stablebill/internal/config"
	obsmetrics "github.com/paddockhq/stablebill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Adapter struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewAdapter(p Params) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(p.Cfg.GatewayBaseURL, "/"),
		client:  &http.Client{Timeout: p.Cfg.GatewayTimeout},
		log:     p.Log.Named("gateway.adapter"),
		metrics: p.Metrics,
	}
}

func (a *Adapter) recordCall(ctx context.Context, endpoint string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrGatewayAuth):
		outcome = "auth"
	case errors.Is(err, ErrGatewayValidation), errors.Is(err, ErrMissingCredential):
		outcome = "validation"
	default:
		outcome = "transport"
	}
	a.metrics.RecordGatewayCall(ctx, endpoint, outcome)
}

type CreatePaymentLinkRequest struct {
	InvoiceID       snowflake.ID
	AmountCents     int64
	Description     string
	Credential      string
	OwnerIdentifier string
	Email           string
}

type createLinkBody struct {
	Credential      string `json:"credential"`
	InvoiceID       string `json:"invoice_id"`
	AmountCents     int64  `json:"amount"`
	Description     string `json:"description"`
	OwnerIdentifier string `json:"owner_identifier"`
	Email           string `json:"email,omitempty"`
}

type createLinkResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

type paymentStatusResponse struct {
	InvoiceID       string `json:"invoice_id"`
	IsPaid          bool   `json:"is_paid"`
	OwnerIdentifier string `json:"owner_identifier"`
}

// CreatePaymentLink asks the gateway for a payable URL. The invoice id and
// owner identifier ride along as metadata so the webhook can resolve the
// event back to the invoice.
func (a *Adapter) CreatePaymentLink(ctx context.Context, req CreatePaymentLinkRequest) (linkURL string, err error) {
	defer func() { a.recordCall(ctx, "create-payment-link", err) }()

	if strings.TrimSpace(req.Credential) == "" {
		return "", ErrMissingCredential
	}
	if req.AmountCents <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrGatewayValidation)
	}

	body := createLinkBody{
		Credential:      req.Credential,
		InvoiceID:       req.InvoiceID.String(),
		AmountCents:     req.AmountCents,
		Description:     req.Description,
		OwnerIdentifier: req.OwnerIdentifier,
		Email:           req.Email,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/create-payment-link", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrGatewayAuth
	case resp.StatusCode == http.StatusBadRequest:
		var decoded createLinkResponse
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
		if decoded.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrGatewayValidation, decoded.Message)
		}
		return "", ErrGatewayValidation
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: gateway returned %s", ErrGatewayTransport, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: unexpected status %s", ErrGatewayTransport, resp.Status)
	}

	var decoded createLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrGatewayTransport, err)
	}
	if !decoded.Success || decoded.URL == "" {
		return "", fmt.Errorf("%w: %s", ErrGatewayValidation, decoded.Message)
	}

	a.log.Info("payment link created",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("owner_identifier", req.OwnerIdentifier),
	)
	return decoded.URL, nil
}

// GetPaymentStatus is a read-only paid/unpaid probe used by the reconciler.
func (a *Adapter) GetPaymentStatus(ctx context.Context, ownerIdentifier string, invoiceID snowflake.ID) (paid bool, err error) {
	defer func() { a.recordCall(ctx, "payment-status", err) }()

	endpoint := fmt.Sprintf("%s/payment-status/%s/%s",
		a.baseURL,
		url.PathEscape(ownerIdentifier),
		url.PathEscape(invoiceID.String()),
	)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGatewayTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, ErrGatewayAuth
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return false, fmt.Errorf("%w: gateway returned %s", ErrGatewayValidation, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("%w: gateway returned %s", ErrGatewayTransport, resp.Status)
	}

	var decoded paymentStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("%w: malformed response: %v", ErrGatewayTransport, err)
	}
	return decoded.IsPaid, nil
}

var Module = fx.Module("gateway",
	fx.Provide(NewAdapter),
)
