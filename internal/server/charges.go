package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	chargedomain "github.com/paddockhq/stablebill/internal/charge/domain"
)

type chargeLineRequest struct {
	ChargeCode     string `json:"charge_code"`
	Description    string `json:"description"`
	QuantityCenti  int64  `json:"quantity_centi"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Taxable        bool   `json:"taxable"`
	Notes          string `json:"notes"`
}

type createChargesRequest struct {
	ServiceDate string              `json:"service_date"`
	EnteredBy   string              `json:"entered_by"`
	Lines       []chargeLineRequest `json:"lines"`
}

func (s *Server) CreateCharges(c *gin.Context) {
	horseID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid horse id"))
		return
	}

	var req createChargesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	serviceDate, err := time.Parse(dateOnlyLayout, strings.TrimSpace(req.ServiceDate))
	if err != nil {
		AbortWithError(c, newValidationError("service_date", "invalid_date", "service_date must be YYYY-MM-DD"))
		return
	}

	lines := make([]chargedomain.ChargeLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, chargedomain.ChargeLine{
			ChargeCode:     line.ChargeCode,
			Description:    line.Description,
			QuantityCenti:  line.QuantityCenti,
			UnitPriceCents: line.UnitPriceCents,
			Taxable:        line.Taxable,
			Notes:          line.Notes,
		})
	}

	items, err := s.chargeSvc.AddBatch(c.Request.Context(), chargedomain.AddBatchRequest{
		HorseID:     horseID,
		ServiceDate: serviceDate,
		EnteredBy:   req.EnteredBy,
		Lines:       lines,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": items})
}

func (s *Server) ListHorseCharges(c *gin.Context) {
	horseID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid horse id"))
		return
	}

	var status *chargedomain.ChargeStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		parsed := chargedomain.ChargeStatus(strings.ToUpper(raw))
		switch parsed {
		case chargedomain.ChargeStatusOpen, chargedomain.ChargeStatusConsumed, chargedomain.ChargeStatusInvoiced:
			status = &parsed
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "unknown charge status"))
			return
		}
	}

	items, err := s.chargeSvc.ListForHorse(c.Request.Context(), horseID, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

type updateChargeRequest struct {
	Description    *string `json:"description"`
	QuantityCenti  *int64  `json:"quantity_centi"`
	UnitPriceCents *int64  `json:"unit_price_cents"`
	Taxable        *bool   `json:"taxable"`
	Notes          *string `json:"notes"`
	ServiceDate    *string `json:"service_date"`
}

func (s *Server) UpdateCharge(c *gin.Context) {
	chargeID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid charge id"))
		return
	}

	var req updateChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := chargedomain.UpdateChargeRequest{
		ChargeID:       chargeID,
		Description:    req.Description,
		QuantityCenti:  req.QuantityCenti,
		UnitPriceCents: req.UnitPriceCents,
		Taxable:        req.Taxable,
		Notes:          req.Notes,
	}
	if req.ServiceDate != nil {
		parsed, err := time.Parse(dateOnlyLayout, strings.TrimSpace(*req.ServiceDate))
		if err != nil {
			AbortWithError(c, newValidationError("service_date", "invalid_date", "service_date must be YYYY-MM-DD"))
			return
		}
		update.ServiceDate = &parsed
	}

	item, err := s.chargeSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteCharge(c *gin.Context) {
	chargeID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid charge id"))
		return
	}

	if err := s.chargeSvc.Delete(c.Request.Context(), chargeID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
