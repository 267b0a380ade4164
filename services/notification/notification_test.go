package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.NewTestDB(t, &Notification{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewStore(StoreParams{DB: db, Node: node})
}

func TestStoreInboxAndMarkRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := snowflake.ID(10)
	orderID := snowflake.ID(99)

	require.NoError(t, store.Notify(ctx, Message{RecipientUserID: user, Title: "first"}))
	require.NoError(t, store.Notify(ctx, Message{RecipientUserID: user, Title: "second", RelatedOrderID: &orderID}))
	require.NoError(t, store.Notify(ctx, Message{RecipientUserID: snowflake.ID(11), Title: "other"}))

	inbox, err := store.Inbox(ctx, user)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	require.Equal(t, "second", inbox[0].Title)
	require.Equal(t, orderID, *inbox[0].RelatedOrderID)
	require.False(t, inbox[0].IsRead)

	require.NoError(t, store.MarkRead(ctx, user, inbox[0].ID))
	require.NoError(t, store.MarkRead(ctx, user, inbox[0].ID))
	require.True(t, errutil.Is(store.MarkRead(ctx, snowflake.ID(11), inbox[0].ID), errutil.StatusNotFound))
	require.True(t, errutil.Is(store.MarkRead(ctx, user, 0), errutil.StatusNotFound))
	require.True(t, errutil.Is(store.MarkRead(ctx, 0, inbox[1].ID), errutil.StatusNotFound))

	inbox, err = store.Inbox(ctx, user)
	require.NoError(t, err)
	require.True(t, inbox[0].IsRead)

	require.True(t, errutil.Is(store.Notify(ctx, Message{Title: "nobody"}), errutil.StatusValidationFailed))
}

func TestInboxIsCapped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < InboxLimit+5; i++ {
		require.NoError(t, store.Notify(ctx, Message{RecipientUserID: snowflake.ID(1), Title: "n"}))
	}

	inbox, err := store.Inbox(ctx, snowflake.ID(1))
	require.NoError(t, err)
	require.Len(t, inbox, InboxLimit)
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
	fail map[snowflake.ID]bool
}

func (s *recordingSink) Notify(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[msg.RecipientUserID] {
		return errors.New("unreachable")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func TestBroadcastIsBestEffort(t *testing.T) {
	sink := &recordingSink{fail: map[snowflake.ID]bool{2: true}}
	recipients := []snowflake.ID{1, 2, 3, 4}

	failed := Broadcast(context.Background(), sink, recipients, func(id snowflake.ID) Message {
		return Message{RecipientUserID: id, Title: "New order received"}
	})

	require.Equal(t, 1, failed)
	require.Len(t, sink.msgs, 3)

	got := make([]snowflake.ID, 0, len(sink.msgs))
	for _, m := range sink.msgs {
		got = append(got, m.RecipientUserID)
	}
	require.ElementsMatch(t, []snowflake.ID{1, 3, 4}, got)

	require.Zero(t, Broadcast(context.Background(), sink, nil, nil))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "1"}, nil
}

func TestDispatcherRoundTripThroughWorker(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	enq := &fakeEnqueuer{}
	orderID := snowflake.ID(5)

	d := NewDispatcher(enq, "notifications")
	require.NoError(t, d.Notify(ctx, Message{RecipientUserID: snowflake.ID(3), Title: "hello", Body: "world", RelatedOrderID: &orderID}))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, "notification:deliver", enq.tasks[0].Type())

	var payload Message
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, "hello", payload.Title)

	w := NewDeliveryWorker(store)
	require.NoError(t, w.HandleDeliverTask(ctx, enq.tasks[0]))

	inbox, err := store.Inbox(ctx, snowflake.ID(3))
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "world", inbox[0].Body)

	err = w.HandleDeliverTask(ctx, asynq.NewTask("notification:deliver", []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	enq.err = errors.New("redis down")
	require.Error(t, d.Notify(ctx, Message{RecipientUserID: snowflake.ID(3), Title: "x"}))
}

func TestNewSinkSelection(t *testing.T) {
	store := newTestStore(t)
	cfg := &config.Config{}

	require.Same(t, store, NewSink(SinkParams{Config: cfg, Store: store}))

	cfg.Notification.Async = true
	cfg.Notification.Queue = "notifications"
	_, ok := NewSink(SinkParams{Config: cfg, Store: store, Enqueuer: &fakeEnqueuer{}}).(*Dispatcher)
	require.True(t, ok)
}
