package notification

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Notification struct {
	ID             snowflake.ID  `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	UserID         snowflake.ID  `gorm:"column:user_id;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Title          string        `gorm:"column:title;size:255;not null" json:"title"`
	Body           string        `gorm:"column:body;size:1000" json:"body"`
	RelatedOrderID *snowflake.ID `gorm:"column:related_order_id" json:"related_order_id,omitempty"`
	IsRead         bool          `gorm:"column:is_read;not null;default:false" json:"is_read"`
	CreatedAt      time.Time     `gorm:"column:created_at;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
