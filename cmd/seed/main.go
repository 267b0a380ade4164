package main

import (
	"context"
	"log"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/db"
	"rewards-controlplane/pkg/gen"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/hashistack/secretmanager"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/services/account"
	"rewards-controlplane/services/catalog"
	"rewards-controlplane/services/ledger"
	"rewards-controlplane/services/schema"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// seed creates a demo administrator, two employees with opening balances and a small
// product list. Running it twice is harmless: existing emails are skipped.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		account.Module,
		catalog.Module,
		ledger.Module,
		fx.Invoke(run),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

type seedAccount struct {
	params  account.CreateParams
	opening int64
}

var accounts = []seedAccount{
	{params: account.CreateParams{Name: "Rewards Admin", Email: "admin@example.com", Role: account.RoleAdministrator}},
	{params: account.CreateParams{Name: "Ana Torres", Email: "ana@example.com", Role: account.RoleEmployee}, opening: 500},
	{params: account.CreateParams{Name: "Luis Rojas", Email: "luis@example.com", Role: account.RoleEmployee}, opening: 250},
}

var products = []catalog.CreateParams{
	{Name: "Coffee mug", PointsPrice: 30, Stock: 50},
	{Name: "Hoodie", PointsPrice: 180, Stock: 20},
	{Name: "Wireless earbuds", PointsPrice: 450, Stock: 5},
}

func run(db *gorm.DB, accountSvc *account.Service, catalogSvc *catalog.Service, ledgerSvc *ledger.Service) error {
	ctx := context.Background()

	if err := schema.Migrate(db); err != nil {
		return err
	}

	var admin *account.Account
	for _, a := range accounts {
		acc, err := accountSvc.Create(ctx, a.params)
		if errutil.Is(err, errutil.StatusConflict) {
			zap.L().Info("account exists, skipping", zap.String("email", a.params.Email))
			continue
		}
		if err != nil {
			return err
		}
		if acc.Role == account.RoleAdministrator {
			admin = acc
		}

		if a.opening == 0 || admin == nil {
			continue
		}
		if _, err := ledgerSvc.AdjustPoints(ctx, ledger.AdjustParams{
			UserID:      acc.ID,
			Amount:      a.opening,
			Description: "Opening balance",
			AdminID:     admin.ID,
		}); err != nil {
			return err
		}
	}

	if admin == nil {
		zap.L().Info("seed data already present")
		return nil
	}

	for _, p := range products {
		if _, err := catalogSvc.Create(ctx, p); err != nil {
			return err
		}
	}

	zap.L().Info("seed completed", zap.Int("accounts", len(accounts)), zap.Int("products", len(products)))
	return nil
}
