package migration

import (
	"context"

	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger, bootstrap *seed.Bootstrapper) error {
		log = log.Named("migration")
		if err := Migrate(conn, cfg, log); err != nil {
			return err
		}
		return bootstrap.EnsureAdmin(context.Background(), cfg)
	}),
)
