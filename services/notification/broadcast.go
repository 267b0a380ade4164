package notification

import (
	"context"

	"rewards-controlplane/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const broadcastConcurrency = 8

// Broadcast sends one message per recipient concurrently. Delivery order is unspecified
// and failures are logged, never returned. It returns the number of failed deliveries.
func Broadcast(ctx context.Context, sink Sink, recipients []snowflake.ID, build func(recipient snowflake.ID) Message) int {
	var (
		g        errgroup.Group
		failures = make(chan struct{}, len(recipients))
	)
	g.SetLimit(broadcastConcurrency)

	for _, recipient := range recipients {
		g.Go(func() error {
			msg := build(recipient)
			if err := sink.Notify(ctx, msg); err != nil {
				logger.WithTrace(ctx).Warn("notification delivery failed",
					zap.String("recipient_user_id", recipient.String()),
					zap.String("title", msg.Title),
					zap.Error(err),
				)
				failures <- struct{}{}
			}
			return nil
		})
	}

	_ = g.Wait()
	close(failures)
	return len(failures)
}
