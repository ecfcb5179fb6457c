// Package reconciler periodically re-queries the gateway for invoices the
// system believes are unpaid, covering missed or duplicate webhook
// deliveries.
package reconciler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/paddockhq/stablebill/internal/config"
	"github.com/paddockhq/stablebill/internal/gateway"
	obsmetrics "github.com/paddockhq/stablebill/internal/observability/metrics"
	paymentdomain "github.com/paddockhq/stablebill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tickLockKey  = "stablebill:reconcile:tick"
	settleMethod = "gateway-confirmed (sync)"
)

// StatusClient answers paid/unpaid for one invoice. Satisfied by the
// gateway adapter; stubbed in tests.
type StatusClient interface {
	GetPaymentStatus(ctx context.Context, ownerIdentifier string, invoiceID snowflake.ID) (bool, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Gateway    StatusClient
	PaymentSvc paymentdomain.Service
	Locker     *Locker `optional:"true"`
}

type Poller struct {
	db         *gorm.DB
	log        *zap.Logger
	gateway    StatusClient
	paymentSvc paymentdomain.Service
	locker     *Locker
	interval   time.Duration
	batchSize  int
	metrics    *obsmetrics.BillingMetrics

	stop chan struct{}
	done chan struct{}
}

func NewPoller(p Params) *Poller {
	interval := p.Cfg.ReconcileInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batchSize := p.Cfg.ReconcileBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Poller{
		db:         p.DB,
		log:        p.Log.Named("reconciler"),
		gateway:    p.Gateway,
		paymentSvc: p.PaymentSvc,
		locker:     p.Locker,
		interval:   interval,
		batchSize:  batchSize,
		metrics:    obsmetrics.Billing(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (p *Poller) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.interval)
			p.Tick(ctx)
			cancel()
		}
	}
}

// candidateRow pairs an unpaid invoice with the owner identity the gateway
// knows it by.
type candidateRow struct {
	InvoiceID     snowflake.ID
	AccountNumber string
}

// Tick runs one reconciliation pass. Exported so tests can drive passes
// without the ticker.
func (p *Poller) Tick(ctx context.Context) {
	p.metrics.RecordReconcileTick()

	token, acquired, err := p.locker.TryLock(ctx, tickLockKey, p.interval)
	if err != nil {
		p.log.Warn("reconcile lock unavailable", zap.Error(err))
		return
	}
	if !acquired {
		p.log.Debug("reconcile tick held by another instance")
		return
	}
	defer func() {
		if err := p.locker.Release(ctx, tickLockKey, token); err != nil {
			p.log.Warn("reconcile lock release failed", zap.Error(err))
		}
	}()

	var candidates []candidateRow
	err = p.db.WithContext(ctx).Raw(
		`SELECT i.id AS invoice_id, o.account_number
		 FROM invoices i
		 JOIN owners o ON o.id = i.owner_id
		 WHERE i.status = 'UNPAID'
		   AND i.balance_due_cents > 0
		   AND o.gateway_credential <> ''
		 ORDER BY i.issue_date ASC
		 LIMIT ?`,
		p.batchSize,
	).Scan(&candidates).Error
	if err != nil {
		p.log.Error("reconcile candidate query failed", zap.Error(err))
		p.metrics.RecordReconcileError()
		return
	}
	if len(candidates) == 0 {
		return
	}

	settled := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return
		}
		// gateway call happens outside any transaction; the settle below
		// opens its own short one
		paid, err := p.gateway.GetPaymentStatus(ctx, candidate.AccountNumber, candidate.InvoiceID)
		if err != nil {
			p.log.Warn("gateway status query failed",
				zap.String("invoice_id", candidate.InvoiceID.String()),
				zap.Error(err),
			)
			p.metrics.RecordReconcileError()
			continue
		}
		if !paid {
			continue
		}

		applied, err := p.paymentSvc.SettleFromGateway(ctx, candidate.InvoiceID, settleMethod)
		if err != nil {
			p.log.Warn("reconcile settlement failed",
				zap.String("invoice_id", candidate.InvoiceID.String()),
				zap.Error(err),
			)
			p.metrics.RecordReconcileError()
			continue
		}
		if applied {
			settled++
			p.metrics.RecordReconcileSettled()
		}
	}

	if settled > 0 {
		p.log.Info("reconcile tick settled invoices",
			zap.Int("candidates", len(candidates)),
			zap.Int("settled", settled),
		)
	}
}

func registerHooks(lc fx.Lifecycle, p *Poller) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go p.run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(p.stop)
			select {
			case <-p.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

var Module = fx.Module("reconciler",
	fx.Provide(NewLocker),
	fx.Provide(func(a *gateway.Adapter) StatusClient { return a }),
	fx.Provide(NewPoller),
	fx.Invoke(registerHooks),
)
