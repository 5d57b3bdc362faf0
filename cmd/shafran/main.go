package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/clock"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/migration"
	"github.com/shafran/commerce/internal/observability"
	"github.com/shafran/commerce/internal/reconcile"
	"github.com/shafran/commerce/internal/server"
	"github.com/shafran/commerce/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Module,
		reconcile.Module,
		migration.Module,
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
