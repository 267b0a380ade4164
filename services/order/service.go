package order

import (
	"context"
	"strconv"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/db/pagination"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/pkg/repository"
	"rewards-controlplane/pkg/sequence"
	"rewards-controlplane/services/account"
	"rewards-controlplane/services/cart"
	"rewards-controlplane/services/catalog"
	"rewards-controlplane/services/ledger"
	"rewards-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	tracer = otel.Tracer("rewards-controlplane/order")
	meter  = otel.Meter("rewards-controlplane/order")
)

type Accounts interface {
	Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*account.Account, error)
	ListAdministrators(ctx context.Context) ([]*account.Account, error)
	ListByIDs(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]*account.Account, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*catalog.Product, error)
	AdjustStock(ctx context.Context, tx *gorm.DB, id snowflake.ID, delta int64) error
}

type Cart interface {
	Items(ctx context.Context, tx *gorm.DB, userID snowflake.ID) ([]*cart.CartItem, error)
	Clear(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error
}

type Ledger interface {
	Append(ctx context.Context, tx *gorm.DB, p ledger.AppendParams) (*ledger.LedgerEntry, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	accounts Accounts
	catalog  Catalog
	cart     Cart
	ledger   Ledger
	sink     notification.Sink
	codes    sequence.Generator

	orders repository.Repository[Order]

	ordersCreated metric.Int64Counter
	transitions   metric.Int64Counter
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Accounts *account.Service
	Catalog  *catalog.Service
	Cart     *cart.Service
	Ledger   *ledger.Service
	Sink     notification.Sink
	Codes    sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	return newService(p.DB, p.Node, p.Accounts, p.Catalog, p.Cart, p.Ledger, p.Sink, p.Codes)
}

func newService(db *gorm.DB, node *snowflake.Node, accounts Accounts, catalog Catalog, cart Cart, ledger Ledger, sink notification.Sink, codes sequence.Generator) (*Service, error) {
	ordersCreated, err := meter.Int64Counter("orders_created_total",
		metric.WithDescription("Redemption orders created"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("order_transitions_total",
		metric.WithDescription("Effective order status transitions"),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:            db,
		node:          node,
		accounts:      accounts,
		catalog:       catalog,
		cart:          cart,
		ledger:        ledger,
		sink:          sink,
		codes:         codes,
		orders:        repository.ProvideStore[Order](db),
		ordersCreated: ordersCreated,
		transitions:   transitions,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, id snowflake.ID) (*Order, error) {
	o, err := s.orders.FindByID(ctx, id, option.WithPreload("Lines"))
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errutil.NotFound("order not found", nil)
	}
	return o, nil
}

// GetOrderView returns the order together with its owner's name.
func (s *Service) GetOrderView(ctx context.Context, id snowflake.ID) (*OrderView, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.withOwners(ctx, []*Order{o})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (s *Service) ListUserOrders(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]*Order, *pagination.PageInfo, error) {
	return s.list(ctx, &Order{}, page, option.Equal("user_id", userID))
}

// ListOrders is the administrator listing, newest first, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, p ListParams) ([]*OrderView, *pagination.PageInfo, error) {
	query := &Order{}
	if p.Status != "" {
		if !p.Status.Valid() {
			return nil, nil, errutil.ValidationFailed("unknown status filter", nil)
		}
		query.Status = p.Status
	}

	orders, info, err := s.list(ctx, query, pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit})
	if err != nil {
		return nil, nil, err
	}

	views, err := s.withOwners(ctx, orders)
	if err != nil {
		return nil, nil, err
	}
	return views, info, nil
}

func (s *Service) list(ctx context.Context, query *Order, page pagination.Pagination, filters ...option.QueryOption) ([]*Order, *pagination.PageInfo, error) {
	page = page.Normalize()

	opts := []option.QueryOption{
		option.WithPreload("Lines"),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "desc", Allow: map[string]bool{"id": true}}),
		option.WithLimit(page.Limit + 1),
	}
	opts = append(opts, filters...)
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", err)
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.LT, Value: id}))
	}

	rows, err := s.orders.Find(ctx, query, opts...)
	if err != nil {
		logger.WithTrace(ctx).Error("failed to list orders", zap.Error(err))
		return nil, nil, err
	}

	data, info := pagination.BuildCursorPage(rows, page.Limit, func(o *Order) pagination.Cursor {
		return pagination.Cursor{ID: o.ID.String()}
	})
	return data, info, nil
}

func (s *Service) withOwners(ctx context.Context, orders []*Order) ([]*OrderView, error) {
	ids := make([]snowflake.ID, 0, len(orders))
	seen := make(map[snowflake.ID]bool, len(orders))
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			ids = append(ids, o.UserID)
		}
	}

	owners, err := s.accounts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		view := &OrderView{Order: o}
		if acc, ok := owners[o.UserID]; ok {
			view.UserName = acc.Name
		}
		views = append(views, view)
	}
	return views, nil
}
