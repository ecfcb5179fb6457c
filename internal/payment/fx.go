package payment

import (
	"github.com/paddockhq/stablebill/internal/payment/service"
	"github.com/paddockhq/stablebill/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
)
