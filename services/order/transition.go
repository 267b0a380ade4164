package order

import (
	"context"
	"fmt"
	"time"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/services/ledger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// transitionEffect is the side effect of moving between two statuses. Sign is applied
// to the order total for the ledger and to every line quantity for stock.
type transitionEffect struct {
	name         string
	sign         int64
	checkBalance bool
}

type refundKey struct {
	fromRefunded bool
	toRefunded   bool
}

var transitionTable = map[refundKey]transitionEffect{
	{fromRefunded: false, toRefunded: true}:  {name: "refund", sign: +1},
	{fromRefunded: true, toRefunded: false}:  {name: "reactivation", sign: -1, checkBalance: true},
	{fromRefunded: false, toRefunded: false}: {name: "status_only"},
	{fromRefunded: true, toRefunded: true}:   {name: "status_only"},
}

func effectOf(from, to Status) transitionEffect {
	return transitionTable[refundKey{fromRefunded: from.Refunded(), toRefunded: to.Refunded()}]
}

// SetStatus moves an order to a new status, applying the refund or reactivation effect
// in the same transaction. Setting the current status again is a no-op.
func (s *Service) SetStatus(ctx context.Context, p SetStatusParams) (*Order, error) {
	ctx, span := tracer.Start(ctx, "order.SetStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", p.OrderID.String()),
		attribute.String("status", string(p.Status)),
	)

	if !p.Status.Valid() {
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown order status %q", p.Status), nil)
	}

	zapLog := logger.WithTrace(ctx).With(
		zap.String("order_id", p.OrderID.String()),
		zap.String("admin_id", p.AdminID.String()),
		zap.String("status", string(p.Status)),
	)

	var (
		result   *Order
		previous Status
		noop     bool
		effect   transitionEffect
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.orders.WithTrx(tx).FindByID(ctx, p.OrderID,
			option.WithLockingUpdate(),
			option.WithPreload("Lines"),
		)
		if err != nil {
			return err
		}
		if o == nil {
			return errutil.NotFound("order not found", nil)
		}

		previous = o.Status
		result = o
		if o.Status == p.Status {
			noop = true
			return nil
		}

		effect = effectOf(o.Status, p.Status)
		if err := s.applyEffect(ctx, tx, o, p, effect); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]any{
			"status":     p.Status,
			"updated_at": now,
		}
		if p.Status.StampsApproval() {
			adminID := p.AdminID
			updates["approved_by_admin_id"] = adminID
			updates["approved_at"] = now
			o.ApprovedByAdminID = &adminID
			o.ApprovedAt = &now
		}

		res := tx.WithContext(ctx).
			Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, previous).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("order status changed concurrently, retry", nil)
		}

		o.Status = p.Status
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zapLog.Warn("status transition failed", zap.Error(err))
		return nil, err
	}

	if noop {
		zapLog.Debug("status unchanged")
		return result, nil
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(previous)),
		attribute.String("to", string(p.Status)),
		attribute.String("effect", effect.name),
	))
	zapLog.Info("order status changed", zap.String("from", string(previous)), zap.String("effect", effect.name))

	if err := s.sink.Notify(ctx, statusMessage(result)); err != nil {
		zapLog.Warn("failed to notify order owner", zap.Error(err))
	}

	return result, nil
}

func (s *Service) applyEffect(ctx context.Context, tx *gorm.DB, o *Order, p SetStatusParams, effect transitionEffect) error {
	if effect.sign == 0 {
		return nil
	}

	if effect.checkBalance {
		acc, err := s.accounts.Lock(ctx, tx, o.UserID)
		if err != nil {
			return err
		}
		if acc.PointsBalance < o.TotalPoints {
			return errutil.InsufficientPoints(fmt.Sprintf(
				"reactivating order #%s needs %d points, the user has %d (short by %d)",
				o.DisplayID(), o.TotalPoints, acc.PointsBalance, o.TotalPoints-acc.PointsBalance,
			))
		}
	}

	for _, line := range o.Lines {
		if err := s.catalog.AdjustStock(ctx, tx, line.ProductID, effect.sign*line.Quantity); err != nil {
			return err
		}
	}

	adminID := p.AdminID
	orderID := o.ID
	_, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
		BeneficiaryUserID: o.UserID,
		Amount:            effect.sign * o.TotalPoints,
		ReasonCode:        ledger.ReasonRefundAdjustment,
		Description:       fmt.Sprintf("Order #%s %s: %s to %s", o.DisplayID(), effect.name, o.Status, p.Status),
		CreatedByAdminID:  &adminID,
		RelatedOrderID:    &orderID,
	})
	return err
}
