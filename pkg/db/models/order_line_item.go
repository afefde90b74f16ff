package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLineItem is one purchased design within a customer order. Rows are
// immutable once the order is created.
type OrderLineItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductDesignID   uuid.UUID       `gorm:"column:product_design_id;type:uuid;not null"`
	ProviderVariantID *int64          `gorm:"column:provider_variant_id"`
	Quantity          int             `gorm:"column:quantity;not null"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	TotalPrice        decimal.Decimal `gorm:"column:total_price;type:numeric(10,2);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderLineItem) TableName() string { return "order_items" }
