package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/paddockhq/stablebill/internal/charge/domain"
	"github.com/paddockhq/stablebill/internal/clock"
	"github.com/paddockhq/stablebill/internal/money"
	ownerdomain "github.com/paddockhq/stablebill/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) chargedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("charge.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

const maxDescriptionLen = 500

func (s *Service) validateLine(line chargedomain.ChargeLine, lineNo int) error {
	if strings.TrimSpace(line.ChargeCode) == "" {
		return fmt.Errorf("line %d: charge code is required: %w", lineNo, chargedomain.ErrInvalidCharge)
	}
	desc := strings.TrimSpace(line.Description)
	if desc == "" {
		return fmt.Errorf("line %d: description is required: %w", lineNo, chargedomain.ErrInvalidCharge)
	}
	if len(desc) > maxDescriptionLen {
		return fmt.Errorf("line %d: description cannot exceed %d characters: %w", lineNo, maxDescriptionLen, chargedomain.ErrInvalidCharge)
	}
	if line.QuantityCenti <= 0 {
		return fmt.Errorf("line %d: quantity must be greater than zero: %w", lineNo, chargedomain.ErrInvalidCharge)
	}
	if line.UnitPriceCents < 0 {
		return fmt.Errorf("line %d: unit price cannot be negative: %w", lineNo, chargedomain.ErrInvalidCharge)
	}
	return nil
}

func (s *Service) AddBatch(ctx context.Context, req chargedomain.AddBatchRequest) ([]chargedomain.ChargeItem, error) {
	if len(req.Lines) == 0 {
		return nil, chargedomain.ErrEmptyBatch
	}
	if req.HorseID == 0 {
		return nil, fmt.Errorf("horse id is required: %w", chargedomain.ErrInvalidCharge)
	}
	now := s.clock.Now()
	if req.ServiceDate.IsZero() {
		return nil, fmt.Errorf("service date is required: %w", chargedomain.ErrInvalidCharge)
	}
	if req.ServiceDate.After(now) {
		return nil, fmt.Errorf("service date cannot be in the future: %w", chargedomain.ErrInvalidCharge)
	}
	for i, line := range req.Lines {
		if err := s.validateLine(line, i+1); err != nil {
			return nil, err
		}
	}

	items := make([]chargedomain.ChargeItem, 0, len(req.Lines))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var horse ownerdomain.Horse
		if err := tx.Where("id = ?", req.HorseID).First(&horse).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return chargedomain.ErrHorseNotFound
			}
			return err
		}

		for _, line := range req.Lines {
			item := chargedomain.ChargeItem{
				ID:             s.genID.Generate(),
				HorseID:        req.HorseID,
				ChargeCode:     strings.TrimSpace(line.ChargeCode),
				Description:    strings.TrimSpace(line.Description),
				ServiceDate:    req.ServiceDate,
				QuantityCenti:  line.QuantityCenti,
				UnitPriceCents: line.UnitPriceCents,
				AmountCents:    money.LineTotal(line.QuantityCenti, line.UnitPriceCents),
				Taxable:        line.Taxable,
				Notes:          line.Notes,
				Status:         chargedomain.ChargeStatusOpen,
				CreatedBy:      req.EnteredBy,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("charge batch added",
		zap.String("horse_id", req.HorseID.String()),
		zap.Int("lines", len(items)),
	)
	return items, nil
}

func (s *Service) Update(ctx context.Context, req chargedomain.UpdateChargeRequest) (*chargedomain.ChargeItem, error) {
	var updated chargedomain.ChargeItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item chargedomain.ChargeItem
		if err := tx.Where("id = ?", req.ChargeID).First(&item).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return chargedomain.ErrChargeNotFound
			}
			return err
		}
		if item.Status != chargedomain.ChargeStatusOpen {
			return chargedomain.ErrChargeNotOpen
		}

		if req.Description != nil {
			item.Description = strings.TrimSpace(*req.Description)
		}
		if req.QuantityCenti != nil {
			item.QuantityCenti = *req.QuantityCenti
		}
		if req.UnitPriceCents != nil {
			item.UnitPriceCents = *req.UnitPriceCents
		}
		if req.Taxable != nil {
			item.Taxable = *req.Taxable
		}
		if req.Notes != nil {
			item.Notes = *req.Notes
		}
		if req.ServiceDate != nil {
			item.ServiceDate = *req.ServiceDate
		}
		if item.Description == "" || item.QuantityCenti <= 0 || item.UnitPriceCents < 0 {
			return chargedomain.ErrInvalidCharge
		}
		item.AmountCents = money.LineTotal(item.QuantityCenti, item.UnitPriceCents)
		item.UpdatedAt = s.clock.Now()

		if err := tx.Save(&item).Error; err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) Delete(ctx context.Context, chargeID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item chargedomain.ChargeItem
		if err := tx.Where("id = ?", chargeID).First(&item).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return chargedomain.ErrChargeNotFound
			}
			return err
		}
		if item.Status != chargedomain.ChargeStatusOpen {
			return chargedomain.ErrChargeNotOpen
		}
		return tx.Delete(&chargedomain.ChargeItem{}, "id = ?", chargeID).Error
	})
}

func (s *Service) ListForHorse(ctx context.Context, horseID snowflake.ID, status *chargedomain.ChargeStatus) ([]chargedomain.ChargeItem, error) {
	query := s.db.WithContext(ctx).Where("horse_id = ?", horseID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var items []chargedomain.ChargeItem
	if err := query.Order("service_date DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
