package ledger

import (
	"context"
	"fmt"
	"time"

	"rewards-controlplane/pkg/errutil"
	"rewards-controlplane/services/account"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// applyBalance is the only writer of accounts.points_balance. It runs inside the same
// transaction as the entry insert, so a balance change without an entry cannot commit.
func applyBalance(ctx context.Context, tx *gorm.DB, userID snowflake.ID, delta int64) error {
	res := tx.WithContext(ctx).
		Model(&account.Account{}).
		Where("id = ? AND points_balance + ? >= 0", userID, delta).
		Updates(map[string]any{
			"points_balance": gorm.Expr("points_balance + ?", delta),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.InsufficientPoints(fmt.Sprintf("insufficient points for a movement of %d", delta))
	}
	return nil
}
