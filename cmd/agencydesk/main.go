package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agencydesk/internal/access"
	"github.com/smallbiznis/agencydesk/internal/approval"
	"github.com/smallbiznis/agencydesk/internal/audit"
	"github.com/smallbiznis/agencydesk/internal/auth"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/migration"
	"github.com/smallbiznis/agencydesk/internal/observability"
	"github.com/smallbiznis/agencydesk/internal/ratelimit"
	"github.com/smallbiznis/agencydesk/internal/reconcile"
	"github.com/smallbiznis/agencydesk/internal/registration"
	"github.com/smallbiznis/agencydesk/internal/roster"
	"github.com/smallbiznis/agencydesk/internal/seed"
	"github.com/smallbiznis/agencydesk/internal/server"
	"github.com/smallbiznis/agencydesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,

		// Domains
		authorization.Module,
		audit.Module,
		auth.Module,
		registration.Module,
		roster.Module,
		approval.Module,
		access.Module,

		// Schema, first admin, background sweep
		seed.Module,
		migration.Module,
		reconcile.Module,

		server.Module,
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
