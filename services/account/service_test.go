package account

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
	db := testutil.NewTestDB(t, &Account{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node})
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, CreateParams{Name: " Ana ", Email: "Ana@Example.com", Role: RoleEmployee})
	require.NoError(t, err)
	require.Equal(t, "Ana", acc.Name)
	require.Equal(t, "ana@example.com", acc.Email)
	require.Zero(t, acc.PointsBalance)

	got, err := svc.Get(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{Name: "", Email: "x@example.com", Role: RoleEmployee})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = svc.Create(ctx, CreateParams{Name: "X", Email: "x@example.com", Role: "Guest"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@example.com", Role: RoleEmployee})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateParams{Name: "Ana B", Email: "ANA@example.com", Role: RoleEmployee})
	require.True(t, errutil.Is(err, errutil.StatusConflict))
}

func TestGetUnknownAccount(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), snowflake.ID(12345))
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestLockInsideTransaction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@example.com", Role: RoleEmployee})
	require.NoError(t, err)

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		locked, err := svc.Lock(ctx, tx, acc.ID)
		require.NoError(t, err)
		require.Equal(t, acc.Email, locked.Email)

		_, err = svc.Lock(ctx, tx, snowflake.ID(1))
		require.True(t, errutil.Is(err, errutil.StatusNotFound))
		return nil
	})
	require.NoError(t, err)
}

func TestZeroAccountIDMatchesNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@example.com", Role: RoleEmployee})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 0)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Lock(ctx, tx, 0)
		return err
	})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestListAdministrators(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a1, err := svc.Create(ctx, CreateParams{Name: "Admin 1", Email: "a1@example.com", Role: RoleAdministrator})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{Name: "Emp", Email: "e@example.com", Role: RoleEmployee})
	require.NoError(t, err)
	a2, err := svc.Create(ctx, CreateParams{Name: "Admin 2", Email: "a2@example.com", Role: RoleAdministrator})
	require.NoError(t, err)

	admins, err := svc.ListAdministrators(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	require.ElementsMatch(t, []snowflake.ID{a1.ID, a2.ID}, []snowflake.ID{admins[0].ID, admins[1].ID})

	byID, err := svc.ListByIDs(ctx, []snowflake.ID{a1.ID, a2.ID})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	require.Equal(t, "Admin 2", byID[a2.ID].Name)
}
