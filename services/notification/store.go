package notification

import (
	"context"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const InboxLimit = 20

// Store is the in-app inbox. It is also the synchronous Sink.
type Store struct {
	node          *snowflake.Node
	notifications repository.Repository[Notification]
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		node:          p.Node,
		notifications: repository.ProvideStore[Notification](p.DB),
	}
}

func (s *Store) Notify(ctx context.Context, msg Message) error {
	if msg.RecipientUserID == 0 || msg.Title == "" {
		return errutil.ValidationFailed("recipient and title are required", nil)
	}

	return s.notifications.Create(ctx, &Notification{
		ID:             s.node.Generate(),
		UserID:         msg.RecipientUserID,
		Title:          msg.Title,
		Body:           msg.Body,
		RelatedOrderID: msg.RelatedOrderID,
	})
}

// Inbox returns the user's latest notifications, newest first.
func (s *Store) Inbox(ctx context.Context, userID snowflake.ID) ([]*Notification, error) {
	return s.notifications.Find(ctx, &Notification{},
		option.Equal("user_id", userID),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "desc", Allow: map[string]bool{"id": true}}),
		option.WithLimit(InboxLimit),
	)
}

func (s *Store) MarkRead(ctx context.Context, userID, id snowflake.ID) error {
	n, err := s.notifications.FindByID(ctx, id, option.Equal("user_id", userID))
	if err != nil {
		return err
	}
	if n == nil {
		return errutil.NotFound("notification not found", nil)
	}
	if n.IsRead {
		return nil
	}

	updates := map[string]any{"is_read": true}
	return s.notifications.Update(ctx, id, &updates)
}
