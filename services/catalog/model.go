package catalog

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Product struct {
	ID          snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Name        string       `gorm:"column:name;size:200;not null" json:"name"`
	PointsPrice int64        `gorm:"column:points_price;not null;check:points_price > 0" json:"points_price"`
	Stock       int64        `gorm:"column:stock;not null;default:0;check:stock >= 0" json:"stock"`
	IsActive    bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
