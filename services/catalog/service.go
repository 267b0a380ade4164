package catalog

import (
	"context"
	"fmt"
	"time"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	products repository.Repository[Product]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		products: repository.ProvideStore[Product](p.DB),
	}
}

type CreateParams struct {
	Name        string
	PointsPrice int64
	Stock       int64
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*Product, error) {
	if p.Name == "" || p.PointsPrice <= 0 || p.Stock < 0 {
		return nil, errutil.ValidationFailed("invalid product", nil)
	}

	product := &Product{
		ID:          s.node.Generate(),
		Name:        p.Name,
		PointsPrice: p.PointsPrice,
		Stock:       p.Stock,
		IsActive:    true,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// GetProduct returns an active product. With a non-nil tx the row stays locked until the
// transaction ends.
func (s *Service) GetProduct(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Product, error) {
	repo := s.products
	var opts []option.QueryOption
	if tx != nil {
		repo = repo.WithTrx(tx)
		opts = append(opts, option.WithLockingUpdate())
	}

	product, err := repo.FindByID(ctx, id, opts...)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, errutil.NotFound(fmt.Sprintf("product %s not found", id), nil)
	}
	return product, nil
}

// AdjustStock applies delta with a conditional update so stock never drops below zero.
func (s *Service) AdjustStock(ctx context.Context, tx *gorm.DB, id snowflake.ID, delta int64) error {
	if delta == 0 {
		return nil
	}

	res := tx.WithContext(ctx).
		Model(&Product{}).
		Where("id = ? AND stock + ? >= 0", id, delta).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		product, err := s.products.WithTrx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		if product == nil {
			return errutil.NotFound(fmt.Sprintf("product %s not found", id), nil)
		}
		return errutil.InsufficientStock(fmt.Sprintf("insufficient stock for product %s", id))
	}
	return nil
}

// UpdatePrice changes the current price. Existing orders keep their snapshot.
func (s *Service) UpdatePrice(ctx context.Context, id snowflake.ID, price int64) error {
	if price <= 0 {
		return errutil.ValidationFailed("points price must be positive", nil)
	}
	updates := map[string]any{"points_price": price}
	if err := s.products.Update(ctx, id, &updates); err != nil {
		if err == gorm.ErrRecordNotFound {
			return errutil.NotFound("product not found", err)
		}
		return err
	}
	return nil
}

func (s *Service) StockOf(ctx context.Context, id snowflake.ID) (int64, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if product == nil {
		return 0, errutil.NotFound("product not found", nil)
	}
	return product.Stock, nil
}
