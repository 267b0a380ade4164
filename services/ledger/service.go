package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"rewards-controlplane/pkg/db/option"
	"rewards-controlplane/pkg/db/pagination"
	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/pkg/logger"
	"rewards-controlplane/pkg/repository"
	"rewards-controlplane/services/account"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("rewards-controlplane/ledger")

// AccountLocker resolves and row-locks the beneficiary of an entry.
type AccountLocker interface {
	Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*account.Account, error)
	Get(ctx context.Context, id snowflake.ID) (*account.Account, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	accounts AccountLocker

	ledger repository.Repository[LedgerEntry]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		accounts: p.Accounts,
		ledger:   repository.ProvideStore[LedgerEntry](p.DB),
	}
}

// Append writes one entry and applies the same delta to the beneficiary balance. With a
// nil tx it opens its own transaction.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, p AppendParams) (*LedgerEntry, error) {
	if p.Amount == 0 {
		return nil, errutil.ValidationFailed("amount must be non-zero", nil)
	}
	if !p.ReasonCode.Valid() {
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown reason code %q", p.ReasonCode), nil)
	}

	if tx == nil {
		var entry *LedgerEntry
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			entry, err = s.append(ctx, tx, p)
			return err
		})
		return entry, err
	}

	return s.append(ctx, tx, p)
}

func (s *Service) append(ctx context.Context, tx *gorm.DB, p AppendParams) (*LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "ledger.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("beneficiary_user_id", p.BeneficiaryUserID.String()),
		attribute.Int64("amount", p.Amount),
		attribute.String("reason_code", p.ReasonCode.String()),
	)

	zapLog := logger.WithTrace(ctx).With(
		zap.String("beneficiary_user_id", p.BeneficiaryUserID.String()),
		zap.Int64("amount", p.Amount),
		zap.String("reason_code", p.ReasonCode.String()),
	)

	// the account lock serialises every chain append for this beneficiary
	if _, err := s.accounts.Lock(ctx, tx, p.BeneficiaryUserID); err != nil {
		return nil, err
	}

	last, err := s.lastEntry(ctx, tx, p.BeneficiaryUserID)
	if err != nil {
		zapLog.Error("failed to query last entry", zap.Error(err))
		return nil, err
	}

	previousHash := GenesisHash
	var sequence int64 = 1
	if last != nil {
		previousHash = last.Hash
		sequence = last.Sequence + 1
	}

	var metadata datatypes.JSON
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("invalid metadata", err)
		}
		metadata = datatypes.JSON(b)
	}

	entry := &LedgerEntry{
		ID:                s.node.Generate(),
		BeneficiaryUserID: p.BeneficiaryUserID,
		Sequence:          sequence,
		Amount:            p.Amount,
		ReasonCode:        p.ReasonCode,
		Description:       p.Description,
		CreatedByAdminID:  p.CreatedByAdminID,
		RelatedOrderID:    p.RelatedOrderID,
		PreviousHash:      previousHash,
		Metadata:          metadata,
		CreatedAt:         entryTime(),
	}
	entry.Hash = entry.GenerateHash()

	if err := s.ledger.WithTrx(tx).Create(ctx, entry); err != nil {
		zapLog.Error("failed to insert ledger entry", zap.Error(err))
		return nil, err
	}

	if err := applyBalance(ctx, tx, p.BeneficiaryUserID, p.Amount); err != nil {
		zapLog.Warn("balance projection rejected", zap.Error(err))
		return nil, err
	}

	zapLog.Debug("ledger entry appended", zap.String("entry_id", entry.ID.String()), zap.Int64("sequence", sequence))
	return entry, nil
}

func (s *Service) lastEntry(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*LedgerEntry, error) {
	return s.ledger.WithTrx(tx).FindOne(ctx, &LedgerEntry{},
		option.Equal("beneficiary_user_id", userID),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "desc",
			Allow:   map[string]bool{"sequence": true},
		}),
	)
}

// BalanceOf returns the projected balance.
func (s *Service) BalanceOf(ctx context.Context, userID snowflake.ID) (int64, error) {
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.PointsBalance, nil
}

// SumOf returns the raw sum of the user's entries.
func (s *Service) SumOf(ctx context.Context, userID snowflake.ID) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Where("beneficiary_user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// ListEntries pages through a user's entries, newest first. The cursor carries the
// chain sequence of the last returned entry.
func (s *Service) ListEntries(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]*LedgerEntry, *pagination.PageInfo, error) {
	page = page.Normalize()

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "desc", Allow: map[string]bool{"sequence": true}}),
		option.WithLimit(page.Limit + 1),
	}

	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", err)
		}
		seq, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "sequence", Operator: option.LT, Value: seq}))
	}

	opts = append(opts, option.Equal("beneficiary_user_id", userID))
	rows, err := s.ledger.Find(ctx, &LedgerEntry{}, opts...)
	if err != nil {
		logger.WithTrace(ctx).Error("failed to query list entries", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, nil, err
	}

	data, info := pagination.BuildCursorPage(rows, page.Limit, func(e *LedgerEntry) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(e.Sequence, 10)}
	})
	return data, info, nil
}

func (s *Service) EntriesForOrder(ctx context.Context, orderID snowflake.ID) ([]*LedgerEntry, error) {
	return s.ledger.Find(ctx, &LedgerEntry{},
		option.Equal("related_order_id", orderID),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "asc", Allow: map[string]bool{"id": true}}),
	)
}

// VerifyChain recomputes every hash of the user's chain and reports the first entry that
// does not match.
func (s *Service) VerifyChain(ctx context.Context, userID snowflake.ID) (*ChainReport, error) {
	ctx, span := tracer.Start(ctx, "ledger.VerifyChain")
	defer span.End()

	entries, err := s.ledger.Find(ctx, &LedgerEntry{},
		option.Equal("beneficiary_user_id", userID),
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "asc", Allow: map[string]bool{"sequence": true}}),
	)
	if err != nil {
		logger.WithTrace(ctx).Error("failed to query Find entries", zap.Error(err))
		return nil, err
	}

	report := &ChainReport{UserID: userID, Valid: true, Entries: len(entries)}
	lastHash := GenesisHash
	for i, entry := range entries {
		reason := ""
		switch {
		case entry.Sequence != int64(i+1):
			reason = fmt.Sprintf("sequence gap: expected %d got %d", i+1, entry.Sequence)
		case entry.PreviousHash != lastHash:
			reason = "previous hash mismatch"
		case entry.Hash != entry.GenerateHash():
			reason = "hash mismatch"
		}
		if reason != "" {
			id := entry.ID
			report.Valid = false
			report.BrokenEntryID = &id
			report.Reason = reason
			return report, nil
		}
		lastHash = entry.Hash
	}

	return report, nil
}

// Reconcile lists every account whose projected balance differs from its ledger sum.
// Drift is reported, never corrected.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	ctx, span := tracer.Start(ctx, "ledger.Reconcile")
	defer span.End()

	var drifts []Drift
	err := s.db.WithContext(ctx).Raw(`
SELECT a.id AS user_id, a.points_balance AS points_balance, COALESCE(SUM(l.amount), 0) AS ledger_sum
FROM accounts a
LEFT JOIN ledger_entries l ON l.beneficiary_user_id = a.id
GROUP BY a.id, a.points_balance
HAVING a.points_balance <> COALESCE(SUM(l.amount), 0)`).Scan(&drifts).Error
	if err != nil {
		return nil, err
	}

	for _, d := range drifts {
		logger.WithTrace(ctx).Error("balance drift detected",
			zap.String("user_id", d.UserID.String()),
			zap.Int64("points_balance", d.PointsBalance),
			zap.Int64("ledger_sum", d.LedgerSum),
		)
	}
	span.SetAttributes(attribute.Int("drift_count", len(drifts)))

	return drifts, nil
}

// AdjustPoints records an administrator's manual grant or deduction.
func (s *Service) AdjustPoints(ctx context.Context, p AdjustParams) (*LedgerEntry, error) {
	p.Description = strings.TrimSpace(p.Description)
	if p.Amount == 0 {
		return nil, errutil.ValidationFailed("amount must be a non-zero integer", nil)
	}
	if p.Description == "" {
		return nil, errutil.ValidationFailed("description is required", nil)
	}
	if p.AdminID == 0 {
		return nil, errutil.ValidationFailed("acting administrator is required", nil)
	}

	adminID := p.AdminID
	entry, err := s.Append(ctx, nil, AppendParams{
		BeneficiaryUserID: p.UserID,
		Amount:            p.Amount,
		ReasonCode:        ReasonManualAdjustment,
		Description:       p.Description,
		CreatedByAdminID:  &adminID,
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx).Info("manual points adjustment",
		zap.String("user_id", p.UserID.String()),
		zap.String("admin_id", p.AdminID.String()),
		zap.Int64("amount", p.Amount),
	)
	return entry, nil
}
