package schema

import (
	"testing"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMigrateOnStart(t *testing.T) {
	db := testutil.NewTestDB(t)

	cfg := &config.Config{}
	require.NoError(t, migrateOnStart(cfg, db))
	require.False(t, db.Migrator().HasTable("orders"))

	cfg.Database.AutoMigrate = true
	require.NoError(t, migrateOnStart(cfg, db))
	for _, table := range []string{"accounts", "products", "cart_items", "orders", "order_lines", "ledger_entries", "notifications"} {
		require.True(t, db.Migrator().HasTable(table), table)
	}

	// idempotent
	require.NoError(t, Migrate(db))
}
