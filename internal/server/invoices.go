package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/paddockhq/stablebill/internal/gateway"
	invoicedomain "github.com/paddockhq/stablebill/internal/invoice/domain"
	ledgerdomain "github.com/paddockhq/stablebill/internal/ledger/domain"
	ownerdomain "github.com/paddockhq/stablebill/internal/owner/domain"
	"gorm.io/gorm"
)

type generateInvoicesRequest struct {
	ChargeItemIDs []string `json:"charge_item_ids"`
}

func (s *Server) GenerateInvoices(c *gin.Context) {
	var req generateInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ids := make([]snowflake.ID, 0, len(req.ChargeItemIDs))
	for _, raw := range req.ChargeItemIDs {
		id, err := parseSnowflakeParam(raw)
		if err != nil {
			AbortWithError(c, newValidationError("charge_item_ids", "invalid_id", "invalid charge item id"))
			return
		}
		ids = append(ids, id)
	}

	result, err := s.invoiceSvc.Generate(c.Request.Context(), invoicedomain.GenerateRequest{ChargeItemIDs: ids})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListRequest

	ownerID, err := parseOptionalSnowflakeID(c.Query("owner_id"))
	if err != nil {
		AbortWithError(c, newValidationError("owner_id", "invalid_id", "invalid owner id"))
		return
	}
	if ownerID != nil {
		req.OwnerID = *ownerID
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := invoicedomain.InvoiceStatus(strings.ToUpper(raw))
		switch status {
		case invoicedomain.InvoiceStatusUnpaid, invoicedomain.InvoiceStatusPaid:
			req.Status = status
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "unknown invoice status"))
			return
		}
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid invoice id"))
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.invoiceSvc.GetItems(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payments, err := s.paymentSvc.ListForInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"invoice":  inv,
		"items":    items,
		"payments": payments,
	}})
}

func (s *Server) ReverseInvoice(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid invoice id"))
		return
	}

	if err := s.invoiceSvc.Reverse(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reversed"})
}

// CreateInvoicePaymentLink asks the gateway for a payable URL for an unpaid
// invoice. The invoice and owner are read before the outbound call; no
// transaction is held while the gateway is in flight.
func (s *Server) CreateInvoicePaymentLink(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid invoice id"))
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if inv.Status != invoicedomain.InvoiceStatusUnpaid || inv.BalanceDueCents <= 0 {
		AbortWithError(c, newValidationError("id", "invoice_settled", "invoice has no balance due"))
		return
	}

	var owner ownerdomain.Owner
	if err := s.db.WithContext(c.Request.Context()).First(&owner, "id = ?", inv.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			AbortWithError(c, ledgerdomain.ErrOwnerNotFound)
			return
		}
		AbortWithError(c, err)
		return
	}

	var link string
	err = gateway.WithRetry(c.Request.Context(), 3, 500*time.Millisecond, func(ctx context.Context) error {
		var callErr error
		link, callErr = s.gatewaySvc.CreatePaymentLink(ctx, gateway.CreatePaymentLinkRequest{
			InvoiceID:       inv.ID,
			AmountCents:     inv.BalanceDueCents,
			Description:     fmt.Sprintf("Invoice %s", inv.DisplayID),
			Credential:      owner.GatewayCredential,
			OwnerIdentifier: owner.AccountNumber,
			Email:           owner.Email,
		})
		return callErr
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"invoice_id": inv.ID.String(),
		"url":        link,
	}})
}
