package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/paddockhq/stablebill/internal/charge"
	chargedomain "github.com/paddockhq/stablebill/internal/charge/domain"
	"github.com/paddockhq/stablebill/internal/config"
	"github.com/paddockhq/stablebill/internal/gateway"
	"github.com/paddockhq/stablebill/internal/invoice"
	invoicedomain "github.com/paddockhq/stablebill/internal/invoice/domain"
	"github.com/paddockhq/stablebill/internal/ledger"
	"github.com/paddockhq/stablebill/internal/observability"
	obslogger "github.com/paddockhq/stablebill/internal/observability/logger"
	obsmetrics "github.com/paddockhq/stablebill/internal/observability/metrics"
	obstracing "github.com/paddockhq/stablebill/internal/observability/tracing"
	"github.com/paddockhq/stablebill/internal/payment"
	paymentdomain "github.com/paddockhq/stablebill/internal/payment/domain"
	"github.com/paddockhq/stablebill/internal/payment/webhook"
	"github.com/paddockhq/stablebill/internal/statement"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	charge.Module,
	invoice.Module,
	ledger.Module,
	payment.Module,
	gateway.Module,
	statement.Module,
	fx.Invoke(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	chargeSvc    chargedomain.Service
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	webhookSvc   *webhook.Service
	gatewaySvc   *gateway.Adapter
	statementSvc *statement.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	ChargeSvc    chargedomain.Service
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	WebhookSvc   *webhook.Service
	GatewaySvc   *gateway.Adapter
	StatementSvc *statement.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		chargeSvc:    p.ChargeSvc,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		webhookSvc:   p.WebhookSvc,
		gatewaySvc:   p.GatewaySvc,
		statementSvc: p.StatementSvc,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Charges --------
	api.POST("/horses/:id/charges", s.CreateCharges)
	api.GET("/horses/:id/charges", s.ListHorseCharges)
	api.PATCH("/charges/:id", s.UpdateCharge)
	api.DELETE("/charges/:id", s.DeleteCharge)

	// -------- Invoices --------
	api.POST("/invoices/generate", s.GenerateInvoices)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.DELETE("/invoices/:id", s.ReverseInvoice)
	api.POST("/invoices/:id/payment-link", s.CreateInvoicePaymentLink)

	// -------- Payments --------
	api.POST("/payments", s.RecordPayment)
	api.GET("/gateway-events", s.ListGatewayEvents)

	// -------- Reporting --------
	api.GET("/owners/:id/statement", s.GetOwnerStatement)
	api.GET("/reports/ar-aging", s.GetARAging)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/payment-webhook", s.HandlePaymentWebhook)
}
