package order

import (
	"context"
	"fmt"

	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/services/ledger"
	"rewards-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateFromSingleProduct redeems quantity units of one product.
func (s *Service) CreateFromSingleProduct(ctx context.Context, userID, productID snowflake.ID, quantity int64) (*Order, error) {
	return s.checkout(ctx, userID, func(ctx context.Context, tx *gorm.DB) ([]LineRequest, error) {
		return []LineRequest{{ProductID: productID, Quantity: quantity}}, nil
	}, false)
}

// CreateFromCart redeems the whole cart and empties it in the same transaction.
func (s *Service) CreateFromCart(ctx context.Context, userID snowflake.ID) (*Order, error) {
	return s.checkout(ctx, userID, func(ctx context.Context, tx *gorm.DB) ([]LineRequest, error) {
		items, err := s.cart.Items(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, errutil.ValidationFailed("cart is empty", nil)
		}

		lines := make([]LineRequest, 0, len(items))
		for _, item := range items {
			lines = append(lines, LineRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		return lines, nil
	}, true)
}

type lineSource func(ctx context.Context, tx *gorm.DB) ([]LineRequest, error)

func (s *Service) checkout(ctx context.Context, userID snowflake.ID, source lineSource, fromCart bool) (*Order, error) {
	ctx, span := tracer.Start(ctx, "order.Checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID.String()),
		attribute.Bool("from_cart", fromCart),
	)

	zapLog := logger.WithTrace(ctx).With(
		zap.String("user_id", userID.String()),
		zap.Bool("from_cart", fromCart),
	)

	orderID := s.node.Generate()
	code := s.nextCode(ctx, orderID)

	var (
		created  *Order
		userName string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := s.accounts.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		userName = acc.Name

		requests, err := source(ctx, tx)
		if err != nil {
			return err
		}

		o := &Order{
			ID:     orderID,
			Code:   code,
			UserID: userID,
			Status: StatusPendiente,
			Lines:  make([]OrderLine, 0, len(requests)),
		}

		for _, req := range requests {
			if req.Quantity <= 0 {
				return errutil.ValidationFailed("quantity must be positive", nil)
			}

			product, err := s.catalog.GetProduct(ctx, tx, req.ProductID)
			if err != nil {
				return err
			}
			if product.Stock < req.Quantity {
				return errutil.InsufficientStock(fmt.Sprintf("only %d units of %s in stock, %d requested", product.Stock, product.Name, req.Quantity))
			}

			o.Lines = append(o.Lines, OrderLine{
				ID:                   s.node.Generate(),
				OrderID:              orderID,
				ProductID:            product.ID,
				ProductName:          product.Name,
				Quantity:             req.Quantity,
				UnitPointsAtPurchase: product.PointsPrice,
			})
		}
		o.TotalPoints = o.LinesTotal()

		if acc.PointsBalance < o.TotalPoints {
			return errutil.InsufficientPoints(fmt.Sprintf("order needs %d points but the balance is %d", o.TotalPoints, acc.PointsBalance))
		}

		for _, line := range o.Lines {
			if err := s.catalog.AdjustStock(ctx, tx, line.ProductID, -line.Quantity); err != nil {
				return err
			}
		}

		if err := s.orders.WithTrx(tx).Create(ctx, o); err != nil {
			zapLog.Error("failed to create order", zap.Error(err))
			return err
		}

		if _, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
			BeneficiaryUserID: userID,
			Amount:            -o.TotalPoints,
			ReasonCode:        ledger.ReasonRedemption,
			Description:       fmt.Sprintf("Redemption of order #%s", o.DisplayID()),
			RelatedOrderID:    &orderID,
			Metadata: map[string]any{
				"order_code": o.Code,
				"lines":      len(o.Lines),
			},
		}); err != nil {
			return err
		}

		if fromCart {
			if err := s.cart.Clear(ctx, tx, userID); err != nil {
				return err
			}
		}

		created = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zapLog.Warn("checkout failed", zap.Error(err))
		return nil, err
	}

	s.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("from_cart", fromCart)))
	zapLog.Info("order created",
		zap.String("order_id", created.ID.String()),
		zap.String("code", created.Code),
		zap.Int64("total_points", created.TotalPoints),
	)

	s.notifyAdministrators(ctx, created, userName)
	return created, nil
}

// nextCode asks the sequence generator for a display code. Codes are cosmetic, so a
// generator failure falls back to the id based code.
func (s *Service) nextCode(ctx context.Context, id snowflake.ID) string {
	if s.codes == nil {
		return fallbackCode(id)
	}

	code, err := s.codes.NextOrderCode(ctx)
	if err != nil {
		logger.WithTrace(ctx).Warn("order code generator unavailable", zap.Error(err))
		return fallbackCode(id)
	}
	return code
}

func (s *Service) notifyAdministrators(ctx context.Context, o *Order, userName string) {
	admins, err := s.accounts.ListAdministrators(ctx)
	if err != nil {
		logger.WithTrace(ctx).Warn("failed to list administrators", zap.String("order_id", o.ID.String()), zap.Error(err))
		return
	}

	recipients := make([]snowflake.ID, 0, len(admins))
	for _, a := range admins {
		recipients = append(recipients, a.ID)
	}

	notification.Broadcast(ctx, s.sink, recipients, func(admin snowflake.ID) notification.Message {
		return newOrderMessage(o, userName, admin)
	})
}
