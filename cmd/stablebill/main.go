package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/paddockhq/stablebill/internal/clock"
	"github.com/paddockhq/stablebill/internal/config"
	"github.com/paddockhq/stablebill/internal/migration"
	"github.com/paddockhq/stablebill/internal/observability"
	"github.com/paddockhq/stablebill/internal/reconciler"
	"github.com/paddockhq/stablebill/internal/server"
	"github.com/paddockhq/stablebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Billing domain plus the HTTP surface. server.Module pulls in the
		// charge, invoice, ledger, payment, gateway and statement services.
		server.Module,
		reconciler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
