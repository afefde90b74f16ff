package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamprint-backend/pkg/enums"
)

// CustomerOrder is the buyer-facing order that is paid through Stripe and
// fulfilled through Printify.
type CustomerOrder struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email                string                  `gorm:"column:email;not null"`
	FirstName            string                  `gorm:"column:first_name;not null"`
	LastName             string                  `gorm:"column:last_name;not null"`
	Phone                *string                 `gorm:"column:phone"`
	TotalAmount          decimal.Decimal         `gorm:"column:total_amount;type:numeric(10,2);not null"`
	PaymentStatus        enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	FulfillmentStatus    enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'pending'"`
	StripeSessionID      *string                 `gorm:"column:stripe_session_id"`
	PaymentReference     *string                 `gorm:"column:payment_reference"`
	FulfillmentReference *string                 `gorm:"column:fulfillment_reference"`
	ProviderProductID    *string                 `gorm:"column:provider_product_id"`
	FulfillmentError     *string                 `gorm:"column:fulfillment_error"`
	PaidAt               *time.Time              `gorm:"column:paid_at"`
	FulfilledAt          *time.Time              `gorm:"column:fulfilled_at"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (CustomerOrder) TableName() string { return "customer_orders" }

// IsFulfilled reports whether a provider order id has been recorded.
func (o *CustomerOrder) IsFulfilled() bool {
	return o != nil && o.FulfillmentReference != nil && *o.FulfillmentReference != ""
}
