package catalog

import (
	"context"
	"testing"

	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Product{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node})
}

func TestGetProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateParams{Name: "Mug", PointsPrice: 30, Stock: 5})
	require.NoError(t, err)

	got, err := svc.GetProduct(ctx, nil, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(30), got.PointsPrice)

	_, err = svc.GetProduct(ctx, nil, snowflake.ID(99))
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	require.NoError(t, svc.db.Model(&Product{}).Where("id = ?", p.ID).Update("is_active", false).Error)
	_, err = svc.GetProduct(ctx, nil, p.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestAdjustStock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateParams{Name: "Mug", PointsPrice: 30, Stock: 2})
	require.NoError(t, err)

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.AdjustStock(ctx, tx, p.ID, -2)
	})
	require.NoError(t, err)

	stock, err := svc.StockOf(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, stock)

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.AdjustStock(ctx, tx, p.ID, -1)
	})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientStock))

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.AdjustStock(ctx, tx, p.ID, 3)
	})
	require.NoError(t, err)

	stock, err = svc.StockOf(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), stock)

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.AdjustStock(ctx, tx, snowflake.ID(7), -1)
	})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestUpdatePrice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateParams{Name: "Mug", PointsPrice: 30, Stock: 2})
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePrice(ctx, p.ID, 45))
	got, err := svc.GetProduct(ctx, nil, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(45), got.PointsPrice)

	require.True(t, errutil.Is(svc.UpdatePrice(ctx, p.ID, 0), errutil.StatusValidationFailed))
	require.True(t, errutil.Is(svc.UpdatePrice(ctx, snowflake.ID(5), 10), errutil.StatusNotFound))
}

func TestAdjustStockRejectsOverdraw(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateParams{Name: "Mug", PointsPrice: 30, Stock: 1})
	require.NoError(t, err)

	// Two withdrawals in one transaction with no read in between: the
	// conditional update alone has to refuse the second.
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		if err := svc.AdjustStock(ctx, tx, p.ID, -1); err != nil {
			return err
		}
		return svc.AdjustStock(ctx, tx, p.ID, -1)
	})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientStock))

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.AdjustStock(ctx, tx, p.ID, -2)
	})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientStock))

	stock, err := svc.StockOf(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stock)
}

func TestZeroProductIDMatchesNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateParams{Name: "Mug", PointsPrice: 30, Stock: 5})
	require.NoError(t, err)

	_, err = svc.GetProduct(ctx, nil, 0)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, err = svc.StockOf(ctx, 0)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.GetProduct(ctx, tx, 0); err != nil {
			return err
		}
		return svc.AdjustStock(ctx, tx, 0, -1)
	})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return svc.AdjustStock(ctx, tx, 0, -1)
	})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	stock, err := svc.StockOf(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), stock)
}
