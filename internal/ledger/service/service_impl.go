package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/paddockhq/stablebill/internal/clock"
	ledgerdomain "github.com/paddockhq/stablebill/internal/ledger/domain"
	obsmetrics "github.com/paddockhq/stablebill/internal/observability/metrics"
	ownerdomain "github.com/paddockhq/stablebill/internal/owner/domain"
	"github.com/paddockhq/stablebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Apply locks the owner row, moves the running balance by deltaCents, and
// appends the audit entry. tx must be an open transaction owned by the
// caller; the movement becomes visible only when that transaction commits.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, deltaCents int64, description string) (int64, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return 0, ledgerdomain.ErrEmptyDescription
	}

	var owner ownerdomain.Owner
	err := tx.WithContext(ctx).Raw(
		`SELECT id, account_number, name, email, balance_cents, gateway_credential, is_active, created_at, updated_at
		 FROM owners
		 WHERE id = ?`+db.RowLockClause(tx),
		ownerID,
	).Scan(&owner).Error
	if err != nil {
		return 0, err
	}
	if owner.ID == 0 {
		return 0, ledgerdomain.ErrOwnerNotFound
	}

	newBalance := owner.BalanceCents + deltaCents
	if err := tx.WithContext(ctx).Model(&ownerdomain.Owner{}).
		Where("id = ?", ownerID).
		Updates(map[string]any{
			"balance_cents": newBalance,
			"updated_at":    s.clock.Now(),
		}).Error; err != nil {
		return 0, err
	}

	entry := ledgerdomain.AuditEntry{
		ID:                s.genID.Generate(),
		OwnerID:           ownerID,
		Description:       description,
		AmountChangeCents: deltaCents,
		NewBalanceCents:   newBalance,
		CreatedAt:         s.clock.Now(),
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return 0, err
	}

	direction := "credit"
	if deltaCents < 0 {
		direction = "debit"
	}
	s.metrics.RecordLedgerEntry(ctx, direction)

	s.log.Debug("balance applied",
		zap.String("owner_id", ownerID.String()),
		zap.Int64("delta_cents", deltaCents),
		zap.Int64("new_balance_cents", newBalance),
	)
	return newBalance, nil
}

func (s *Service) ListForOwner(ctx context.Context, ownerID snowflake.ID, from, to time.Time) ([]ledgerdomain.AuditEntry, error) {
	query := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to.UTC())
	}
	var entries []ledgerdomain.AuditEntry
	if err := query.Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
