package schema

import (
	"rewards-controlplane/pkg/config"
	"rewards-controlplane/services/account"
	"rewards-controlplane/services/cart"
	"rewards-controlplane/services/catalog"
	"rewards-controlplane/services/ledger"
	"rewards-controlplane/services/notification"
	"rewards-controlplane/services/order"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates the schema on start when DATABASE.AUTO_MIGRATE is set.
var Module = fx.Module("schema",
	fx.Invoke(migrateOnStart),
)

// Models lists every table owned by the service, parents before children.
func Models() []any {
	return []any{
		&account.Account{},
		&catalog.Product{},
		&cart.CartItem{},
		&order.Order{},
		&order.OrderLine{},
		&ledger.LedgerEntry{},
		&notification.Notification{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func migrateOnStart(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	if err := Migrate(db); err != nil {
		zap.L().Error("[DB] auto migrate failed", zap.Error(err))
		return err
	}
	zap.L().Info("[DB] schema migrated", zap.Int("tables", len(Models())))
	return nil
}
