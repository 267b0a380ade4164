package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=sink.go -destination=notificationmock/sink.go -package=notificationmock

// Message is an opaque notification addressed to one user.
type Message struct {
	RecipientUserID snowflake.ID  `json:"recipient_user_id"`
	Title           string        `json:"title"`
	Body            string        `json:"body"`
	RelatedOrderID  *snowflake.ID `json:"related_order_id,omitempty"`
}

// Sink delivers messages. Callers treat failures as non-fatal.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}
