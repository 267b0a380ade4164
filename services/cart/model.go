package cart

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CartItem struct {
	ID        snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID snowflake.ID `gorm:"column:product_id;not null;uniqueIndex:idx_cart_user_product" json:"product_id"`
	Quantity  int64        `gorm:"column:quantity;not null;check:quantity > 0" json:"quantity"`
	CreatedAt time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
