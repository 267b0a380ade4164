package order

import (
	"fmt"

	"rewards-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
)

type template struct {
	title string
	body  string
}

var statusTemplates = map[Status]template{
	StatusAprobado:  {"Your order #%s has been approved", "Your redemption request was approved by an administrator."},
	StatusEnviado:   {"Your order #%s is on its way", "Your order has shipped."},
	StatusEntregado: {"Your order #%s has been delivered", "Delivered successfully."},
	StatusRechazado: {"Your order #%s has been rejected", "Your points have been refunded."},
	StatusCancelado: {"Your order #%s has been cancelled", "Your points have been refunded."},
	StatusPendiente: {"Your order #%s is pending review again", "Your order was reactivated and its points were debited again."},
}

const newOrderTitle = "New order received"

// statusMessage builds the owner notification for an order that just entered o.Status.
// Titles name the order id; the human code only appears in the admin broadcast.
func statusMessage(o *Order) notification.Message {
	t := statusTemplates[o.Status]
	id := o.ID
	return notification.Message{
		RecipientUserID: o.UserID,
		Title:           fmt.Sprintf(t.title, o.ID.String()),
		Body:            t.body,
		RelatedOrderID:  &id,
	}
}

func newOrderMessage(o *Order, userName string, admin snowflake.ID) notification.Message {
	id := o.ID
	return notification.Message{
		RecipientUserID: admin,
		Title:           newOrderTitle,
		Body:            newOrderBody(o, userName),
		RelatedOrderID:  &id,
	}
}

func newOrderBody(o *Order, userName string) string {
	if o.Code == "" {
		return fmt.Sprintf("Order #%s from %s for %d points is waiting for review.", o.ID, userName, o.TotalPoints)
	}
	return fmt.Sprintf("Order #%s (%s) from %s for %d points is waiting for review.", o.ID, o.Code, userName, o.TotalPoints)
}
