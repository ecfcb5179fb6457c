// Package webhook verifies, deduplicates, and dispatches inbound gateway
// events.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/paddockhq/stablebill/internal/clock"
	"github.com/paddockhq/stablebill/internal/config"
	paymentdomain "github.com/paddockhq/stablebill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	PaymentSvc paymentdomain.Service
	Cfg        config.Config
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	paymentSvc paymentdomain.Service
	secret     string
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		paymentSvc: p.PaymentSvc,
		secret:     strings.TrimSpace(p.Cfg.WebhookSecret),
	}
}

// gatewayEvent is the gateway's event envelope. The metadata the adapter
// embedded at link-creation time is how an event resolves to an invoice.
type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			PaymentStatus string `json:"payment_status"`
			Metadata      struct {
				InvoiceID       string `json:"invoice_id"`
				OwnerIdentifier string `json:"owner_identifier"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Ingest processes one webhook delivery. The event is durably recorded
// before any business effect; replays of an already-recorded event id
// return ErrDuplicateEvent and change nothing.
func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.GatewayEventRecord, error) {
	if err := s.verifySignature(payload, headers); err != nil {
		record := s.recordFailure(ctx, payload, paymentdomain.EventStatusFailedSignature)
		s.log.Warn("webhook signature rejected", zap.Error(err))
		if record == nil {
			return nil, err
		}
		return record, err
	}

	var event gatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil || strings.TrimSpace(event.ID) == "" {
		record := s.recordFailure(ctx, payload, paymentdomain.EventStatusFailedPayload)
		if record == nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return record, paymentdomain.ErrInvalidPayload
	}

	record := paymentdomain.GatewayEventRecord{
		ID:             s.genID.Generate(),
		GatewayEventID: strings.TrimSpace(event.ID),
		EventType:      strings.TrimSpace(event.Type),
		Payload:        datatypes.JSON(payload),
		Status:         paymentdomain.EventStatusUnhandledType,
		ReceivedAt:     s.clock.Now(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_event_id"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Info("duplicate gateway event absorbed",
			zap.String("gateway_event_id", record.GatewayEventID),
		)
		return nil, paymentdomain.ErrDuplicateEvent
	}

	status, invoiceID := s.dispatch(ctx, &event)
	now := s.clock.Now()
	updates := map[string]any{
		"status":       status,
		"processed_at": now,
	}
	if invoiceID != nil {
		updates["invoice_id"] = *invoiceID
	}
	if err := s.db.WithContext(ctx).Model(&paymentdomain.GatewayEventRecord{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	record.Status = status
	record.InvoiceID = invoiceID
	record.ProcessedAt = &now
	return &record, nil
}

func (s *Service) dispatch(ctx context.Context, event *gatewayEvent) (string, *snowflake.ID) {
	switch strings.TrimSpace(event.Type) {
	case paymentdomain.EventTypeCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case paymentdomain.EventTypePaymentSucceeded:
		s.log.Info("payment intent succeeded", zap.String("gateway_event_id", event.ID))
		return paymentdomain.EventStatusProcessedSucceeded, nil
	case paymentdomain.EventTypeChargeRefunded:
		s.log.Info("charge refunded", zap.String("gateway_event_id", event.ID))
		return paymentdomain.EventStatusProcessedRefunded, nil
	default:
		s.log.Info("unhandled gateway event type",
			zap.String("gateway_event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return paymentdomain.EventStatusUnhandledType, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *gatewayEvent) (string, *snowflake.ID) {
	if !strings.EqualFold(event.Data.Object.PaymentStatus, "paid") {
		return paymentdomain.EventStatusProcessedAlreadySettled, nil
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(event.Data.Object.Metadata.InvoiceID))
	if err != nil || invoiceID == 0 {
		s.log.Warn("checkout event without resolvable invoice",
			zap.String("gateway_event_id", event.ID),
		)
		return paymentdomain.EventStatusProcessedAlreadySettled, nil
	}

	settled, err := s.paymentSvc.SettleFromGateway(ctx, invoiceID, "gateway-confirmed")
	if err != nil {
		s.log.Warn("gateway settlement failed",
			zap.String("gateway_event_id", event.ID),
			zap.String("invoice_id", invoiceID.String()),
			zap.Error(err),
		)
		return paymentdomain.EventStatusProcessedAlreadySettled, &invoiceID
	}
	if !settled {
		return paymentdomain.EventStatusProcessedAlreadySettled, &invoiceID
	}
	return paymentdomain.EventStatusProcessedPaid, &invoiceID
}

// recordFailure persists a rejected delivery for audit. The event id, when
// it cannot be trusted or parsed, is a generated placeholder so the unique
// index never blocks the write.
func (s *Service) recordFailure(ctx context.Context, payload []byte, status string) *paymentdomain.GatewayEventRecord {
	eventID := fmt.Sprintf("rejected_%s", uuid.NewString())
	if !json.Valid(payload) {
		payload = []byte(fmt.Sprintf("%q", string(payload)))
	}
	record := paymentdomain.GatewayEventRecord{
		ID:             s.genID.Generate(),
		GatewayEventID: eventID,
		EventType:      "",
		Payload:        datatypes.JSON(payload),
		Status:         status,
		ReceivedAt:     s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.log.Error("failed to record rejected webhook", zap.Error(err))
		return nil
	}
	return &record
}

func (s *Service) verifySignature(payload []byte, headers http.Header) error {
	if s.secret == "" {
		return paymentdomain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Gateway-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(s.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}
