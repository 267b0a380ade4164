package cart

import (
	"context"
	"fmt"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/pkg/repository"
	"rewards-controlplane/services/catalog"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductReader is the slice of the catalog the cart needs.
type ProductReader interface {
	GetProduct(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*catalog.Product, error)
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	catalog ProductReader
	items   repository.Repository[CartItem]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Catalog *catalog.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		catalog: p.Catalog,
		items:   repository.ProvideStore[CartItem](p.DB),
	}
}

func (s *Service) repo(tx *gorm.DB) repository.Repository[CartItem] {
	if tx == nil {
		return s.items
	}
	return s.items.WithTrx(tx)
}

// Items lists the user's cart, oldest first.
func (s *Service) Items(ctx context.Context, tx *gorm.DB, userID snowflake.ID) ([]*CartItem, error) {
	return s.repo(tx).Find(ctx, &CartItem{},
		option.Equal("user_id", userID),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "asc", Allow: map[string]bool{"id": true}}),
	)
}

// Add puts quantity units of a product in the cart, merging with an existing line. The
// stock check here is advisory; checkout re-validates under lock.
func (s *Service) Add(ctx context.Context, userID, productID snowflake.ID, quantity int64) (*CartItem, error) {
	if quantity <= 0 {
		return nil, errutil.ValidationFailed("quantity must be positive", nil)
	}

	product, err := s.catalog.GetProduct(ctx, nil, productID)
	if err != nil {
		return nil, err
	}

	var item *CartItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.items.WithTrx(tx)

		existing, err := repo.FindOne(ctx, &CartItem{},
			option.Equal("user_id", userID),
			option.Equal("product_id", productID),
			option.WithLockingUpdate(),
		)
		if err != nil {
			return err
		}

		total := quantity
		if existing != nil {
			total += existing.Quantity
		}
		if total > product.Stock {
			return errutil.InsufficientStock(fmt.Sprintf("only %d units of %s available", product.Stock, product.Name))
		}

		if existing == nil {
			item = &CartItem{
				ID:        s.node.Generate(),
				UserID:    userID,
				ProductID: productID,
				Quantity:  total,
			}
			return repo.Create(ctx, item)
		}

		updates := map[string]any{"quantity": total}
		if err := repo.Update(ctx, existing.ID, &updates); err != nil {
			return err
		}
		existing.Quantity = total
		item = existing
		return nil
	})
	if err != nil {
		logger.WithTrace(ctx).Warn("failed to add cart item",
			zap.String("user_id", userID.String()),
			zap.String("product_id", productID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return item, nil
}

func (s *Service) Remove(ctx context.Context, userID, productID snowflake.ID) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("cart item not found", nil)
	}
	return nil
}

// Clear empties the user's cart inside tx.
func (s *Service) Clear(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	return tx.WithContext(ctx).Where("user_id = ?", userID).Delete(&CartItem{}).Error
}
