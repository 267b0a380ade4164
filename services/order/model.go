package order

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPendiente Status = "Pendiente"
	StatusAprobado  Status = "Aprobado"
	StatusEnviado   Status = "Enviado"
	StatusEntregado Status = "Entregado"
	StatusRechazado Status = "Rechazado"
	StatusCancelado Status = "Cancelado"
)

var statuses = map[Status]struct {
	refunded       bool
	stampsApproval bool
}{
	StatusPendiente: {},
	StatusAprobado:  {stampsApproval: true},
	StatusEnviado:   {},
	StatusEntregado: {},
	StatusRechazado: {refunded: true, stampsApproval: true},
	StatusCancelado: {refunded: true, stampsApproval: true},
}

func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// Refunded reports whether an order in this status has its points and stock returned.
func (s Status) Refunded() bool {
	return statuses[s].refunded
}

func (s Status) StampsApproval() bool {
	return statuses[s].stampsApproval
}

type Order struct {
	ID                snowflake.ID  `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Code              string        `gorm:"column:code;size:32;uniqueIndex;not null" json:"code"`
	UserID            snowflake.ID  `gorm:"column:user_id;not null;index" json:"user_id"`
	Status            Status        `gorm:"column:status;size:32;not null;index" json:"status"`
	TotalPoints       int64         `gorm:"column:total_points;not null" json:"total_points"`
	ApprovedByAdminID *snowflake.ID `gorm:"column:approved_by_admin_id" json:"approved_by_admin_id,omitempty"`
	ApprovedAt        *time.Time    `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CreatedAt         time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"column:updated_at" json:"updated_at"`
	Lines             []OrderLine   `gorm:"foreignKey:OrderID;references:ID" json:"lines,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// DisplayID is the identifier shown to people: the order code, or the raw id for orders
// created without one.
func (o *Order) DisplayID() string {
	if o.Code != "" {
		return o.Code
	}
	return o.ID.String()
}

// LinesTotal sums the snapshotted line prices.
func (o *Order) LinesTotal() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.Subtotal()
	}
	return total
}

// OrderLine is immutable once written.
type OrderLine struct {
	ID                   snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	OrderID              snowflake.ID `gorm:"column:order_id;not null;index" json:"order_id"`
	ProductID            snowflake.ID `gorm:"column:product_id;not null" json:"product_id"`
	ProductName          string       `gorm:"column:product_name;size:200" json:"product_name"`
	Quantity             int64        `gorm:"column:quantity;not null" json:"quantity"`
	UnitPointsAtPurchase int64        `gorm:"column:unit_points_at_purchase;not null" json:"unit_points_at_purchase"`
}

func (OrderLine) TableName() string {
	return "order_lines"
}

func (l OrderLine) Subtotal() int64 {
	return l.UnitPointsAtPurchase * l.Quantity
}

// OrderView is an order with its owner's name, as listed to administrators.
type OrderView struct {
	*Order
	UserName string `json:"user_name"`
}

type LineRequest struct {
	ProductID snowflake.ID
	Quantity  int64
}

type SetStatusParams struct {
	OrderID snowflake.ID
	Status  Status
	AdminID snowflake.ID
}

type ListParams struct {
	Status Status
	Cursor string
	Limit  int
}

func fallbackCode(id snowflake.ID) string {
	return fmt.Sprintf("ORD-%s", id)
}
