package account

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleEmployee      Role = "Employee"
	RoleAdministrator Role = "Administrator"
)

func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleAdministrator
}

// Account is a platform user. PointsBalance is written only by the ledger projector.
type Account struct {
	ID            snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Name          string       `gorm:"column:name;size:150;not null" json:"name"`
	Email         string       `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	Role          Role         `gorm:"column:role;size:32;not null;index" json:"role"`
	PointsBalance int64        `gorm:"column:points_balance;not null;default:0;check:points_balance >= 0" json:"points_balance"`
	CreatedAt     time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
