package ledger

import (
	"context"
	"errors"
	"testing"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/db/pagination"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/repository"
	"rewards-controlplane/services/account"
	"rewards-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	findByIDFn    func(ctx context.Context, id any, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID any, resource any) error
	batchCreateFn func(ctx context.Context, resources []*T) error
	batchUpdateFn func(ctx context.Context, resources []*T) error
	countFn       func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindByID(ctx context.Context, id any, opts ...option.QueryOption) (*T, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID any, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if m.batchUpdateFn != nil {
		return m.batchUpdateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	accounts *account.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &account.Account{}, &LedgerEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	accounts := account.NewService(account.ServiceParams{DB: db, Node: node})
	return &fixture{
		db:       db,
		svc:      NewService(ServiceParams{DB: db, Node: node, Accounts: accounts}),
		accounts: accounts,
	}
}

func (f *fixture) newAccount(t *testing.T, email string, role account.Role) *account.Account {
	t.Helper()
	acc, err := f.accounts.Create(context.Background(), account.CreateParams{Name: email, Email: email, Role: role})
	require.NoError(t, err)
	return acc
}

func (f *fixture) requireBalanced(t *testing.T, userID snowflake.ID, want int64) {
	t.Helper()
	ctx := context.Background()

	balance, err := f.svc.BalanceOf(ctx, userID)
	require.NoError(t, err)
	sum, err := f.svc.SumOf(ctx, userID)
	require.NoError(t, err)

	require.Equal(t, want, balance)
	require.Equal(t, balance, sum)
}

func TestNewService(t *testing.T) {
	f := newFixture(t)
	require.NotNil(t, f.svc.ledger)
	require.NotNil(t, f.svc.accounts)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)

	_, err := f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: 0, ReasonCode: ReasonManualAdjustment})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: 10, ReasonCode: "BONUS"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: snowflake.ID(404), Amount: 10, ReasonCode: ReasonManualAdjustment})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	f.requireBalanced(t, user.ID, 0)
}

func TestZeroBeneficiaryMatchesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)
	orderID := snowflake.ID(77)

	_, err := f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: 100, ReasonCode: ReasonManualAdjustment})
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: -10, ReasonCode: ReasonRedemption, RelatedOrderID: &orderID})
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: 0, Amount: -10, ReasonCode: ReasonManualAdjustment})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, err = f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: 0, Amount: 10, ReasonCode: ReasonManualAdjustment})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	entries, _, err := f.svc.ListEntries(ctx, 0, pagination.Pagination{})
	require.NoError(t, err)
	require.Empty(t, entries)

	report, err := f.svc.VerifyChain(ctx, 0)
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Zero(t, report.Entries)

	byOrder, err := f.svc.EntriesForOrder(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, byOrder)

	f.requireBalanced(t, user.ID, 90)
}

func TestAppendPairsEntryWithBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)
	orderID := snowflake.ID(77)

	first, err := f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: 100, ReasonCode: ReasonManualAdjustment, Description: "welcome"})
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Sequence)
	require.Equal(t, GenesisHash, first.PreviousHash)

	second, err := f.svc.Append(ctx, nil, AppendParams{
		BeneficiaryUserID: user.ID,
		Amount:            -60,
		ReasonCode:        ReasonRedemption,
		RelatedOrderID:    &orderID,
		Metadata:          map[string]any{"order_code": "ORD-1"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), second.Sequence)
	require.Equal(t, first.Hash, second.PreviousHash)

	f.requireBalanced(t, user.ID, 40)

	entries, err := f.svc.EntriesForOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(-60), entries[0].Amount)
}

func TestAppendRejectsOverdraftWithoutWritingEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)

	_, err := f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: 50, ReasonCode: ReasonManualAdjustment})
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: -51, ReasonCode: ReasonRedemption})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientPoints))

	f.requireBalanced(t, user.ID, 50)

	entries, _, err := f.svc.ListEntries(ctx, user.ID, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestAppendRollsBackWithCallerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)
	boom := errors.New("boom")

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.svc.Append(ctx, tx, AppendParams{BeneficiaryUserID: user.ID, Amount: 30, ReasonCode: ReasonManualAdjustment}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	f.requireBalanced(t, user.ID, 0)
}

func TestAdjustPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)
	admin := f.newAccount(t, "boss@example.com", account.RoleAdministrator)

	_, err := f.svc.AdjustPoints(ctx, AdjustParams{UserID: user.ID, Amount: 0, Description: "x", AdminID: admin.ID})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = f.svc.AdjustPoints(ctx, AdjustParams{UserID: user.ID, Amount: 10, Description: "   ", AdminID: admin.ID})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	entry, err := f.svc.AdjustPoints(ctx, AdjustParams{UserID: user.ID, Amount: 25, Description: "quarterly bonus", AdminID: admin.ID})
	require.NoError(t, err)
	require.Equal(t, ReasonManualAdjustment, entry.ReasonCode)
	require.NotNil(t, entry.CreatedByAdminID)
	require.Equal(t, admin.ID, *entry.CreatedByAdminID)
	require.Nil(t, entry.RelatedOrderID)

	_, err = f.svc.AdjustPoints(ctx, AdjustParams{UserID: user.ID, Amount: -30, Description: "correction", AdminID: admin.ID})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientPoints))

	_, err = f.svc.AdjustPoints(ctx, AdjustParams{UserID: user.ID, Amount: -25, Description: "correction", AdminID: admin.ID})
	require.NoError(t, err)

	f.requireBalanced(t, user.ID, 0)
}

func TestVerifyChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)

	for _, amount := range []int64{100, -30, 20, -40} {
		_, err := f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: amount, ReasonCode: ReasonManualAdjustment})
		require.NoError(t, err)
	}

	report, err := f.svc.VerifyChain(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, 4, report.Entries)

	entries, _, err := f.svc.ListEntries(ctx, user.ID, pagination.Pagination{})
	require.NoError(t, err)
	tampered := entries[1] // sequence 3
	require.NoError(t, f.db.Model(&LedgerEntry{}).Where("id = ?", tampered.ID).Update("amount", 2000).Error)

	report, err = f.svc.VerifyChain(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Equal(t, tampered.ID, *report.BrokenEntryID)
	require.Equal(t, "hash mismatch", report.Reason)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.newAccount(t, "ana@example.com", account.RoleEmployee)
	bob := f.newAccount(t, "bob@example.com", account.RoleEmployee)

	_, err := f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: ana.ID, Amount: 100, ReasonCode: ReasonManualAdjustment})
	require.NoError(t, err)

	drifts, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)

	// simulate an out-of-band write
	require.NoError(t, f.db.Model(&account.Account{}).Where("id = ?", bob.ID).Update("points_balance", 5).Error)

	drifts, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, bob.ID, drifts[0].UserID)
	require.Equal(t, int64(5), drifts[0].PointsBalance)
	require.Zero(t, drifts[0].LedgerSum)

	require.NoError(t, f.svc.HandleReconcileTask(ctx, NewReconcileTask()))
}

func TestListEntriesPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newAccount(t, "ana@example.com", account.RoleEmployee)

	for i := 1; i <= 5; i++ {
		_, err := f.svc.Append(ctx, nil, AppendParams{BeneficiaryUserID: user.ID, Amount: int64(i), ReasonCode: ReasonManualAdjustment})
		require.NoError(t, err)
	}

	page1, info, err := f.svc.ListEntries(ctx, user.ID, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.True(t, info.HasMore)
	require.Equal(t, int64(5), page1[0].Amount)
	require.Equal(t, int64(4), page1[1].Amount)

	page2, info, err := f.svc.ListEntries(ctx, user.ID, pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Equal(t, int64(3), page2[0].Amount)

	page3, info, err := f.svc.ListEntries(ctx, user.ID, pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.False(t, info.HasMore)

	_, _, err = f.svc.ListEntries(ctx, user.ID, pagination.Pagination{Cursor: "%%%"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestListEntriesPropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	svc := &Service{
		ledger: &repoMock[LedgerEntry]{
			findFn: func(ctx context.Context, _ *LedgerEntry, opts ...option.QueryOption) ([]*LedgerEntry, error) {
				return nil, boom
			},
		},
	}

	_, _, err := svc.ListEntries(context.Background(), snowflake.ID(1), pagination.Pagination{})
	require.ErrorIs(t, err, boom)
}

func TestGenerateHashIsDeterministic(t *testing.T) {
	admin := snowflake.ID(9)
	entry := &LedgerEntry{
		ID:                snowflake.ID(1),
		BeneficiaryUserID: snowflake.ID(2),
		Sequence:          1,
		Amount:            -60,
		ReasonCode:        ReasonRedemption,
		CreatedByAdminID:  &admin,
		PreviousHash:      GenesisHash,
		CreatedAt:         entryTime(),
	}

	hash := entry.GenerateHash()
	require.Len(t, hash, 64)
	require.Equal(t, hash, entry.GenerateHash())

	entry.Amount = -61
	require.NotEqual(t, hash, entry.GenerateHash())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a cron spec", &fakeEnqueuer{})
	require.Error(t, err)

	enq := &fakeEnqueuer{}
	s, err := NewScheduler("@every 1h", enq)
	require.NoError(t, err)

	s.enqueue()
	require.Len(t, enq.tasks, 1)
	require.Equal(t, "ledger:reconcile", enq.tasks[0].Type())
}
