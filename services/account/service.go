package account

import (
	"context"
	"strings"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	accounts repository.Repository[Account]
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
		accounts: repository.ProvideStore[Account](p.DB),
	}
}

type CreateParams struct {
	Name  string
	Email string
	Role  Role
}

// Create registers an account with a zero balance. Opening balances are granted through
// the ledger, never written here.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Account, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Name == "" || p.Email == "" {
		return nil, errutil.ValidationFailed("name and email are required", nil)
	}
	if !p.Role.Valid() {
		return nil, errutil.ValidationFailed("unknown role", nil)
	}

	existing, err := s.accounts.FindOne(ctx, &Account{Email: p.Email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("email already registered", nil)
	}

	acc := &Account{
		ID:    s.node.Generate(),
		Name:  p.Name,
		Email: p.Email,
		Role:  p.Role,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		logger.WithTrace(ctx).Error("failed to create account", zap.String("email", p.Email), zap.Error(err))
		return nil, err
	}

	return acc, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*Account, error) {
	return s.get(ctx, s.accounts, id)
}

// Lock reads the account with a row lock held until tx ends.
func (s *Service) Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Account, error) {
	return s.get(ctx, s.accounts.WithTrx(tx), id, option.WithLockingUpdate())
}

func (s *Service) get(ctx context.Context, repo repository.Repository[Account], id snowflake.ID, opts ...option.QueryOption) (*Account, error) {
	acc, err := repo.FindByID(ctx, id, opts...)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	return acc, nil
}

func (s *Service) ListAdministrators(ctx context.Context) ([]*Account, error) {
	return s.accounts.Find(ctx, &Account{Role: RoleAdministrator},
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "asc", Allow: map[string]bool{"id": true}}),
	)
}

func (s *Service) ListByIDs(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]*Account, error) {
	out := make(map[snowflake.ID]*Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.accounts.Find(ctx, &Account{}, option.ApplyOperator(option.Condition{
		Field:    "id",
		Operator: option.IN,
		Value:    ids,
	}))
	if err != nil {
		return nil, err
	}
	for _, acc := range rows {
		out[acc.ID] = acc
	}
	return out, nil
}

func (s *Service) List(ctx context.Context) ([]*Account, error) {
	return s.accounts.Find(ctx, &Account{})
}
