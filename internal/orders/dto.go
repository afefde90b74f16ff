package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
)

// Bundle is everything fulfillment needs to know about one order.
type Bundle struct {
	Order   *models.CustomerOrder
	Items   []models.OrderLineItem
	Address *models.ShippingAddress
	Designs map[uuid.UUID]models.ProductDesign
}

// Design returns the design referenced by item.
func (b *Bundle) Design(item models.OrderLineItem) (models.ProductDesign, bool) {
	if b == nil {
		return models.ProductDesign{}, false
	}
	design, ok := b.Designs[item.ProductDesignID]
	return design, ok
}

// PaymentConfirmation identifies an order confirmed as paid by Stripe. The
// order is located by OrderID, then SessionID, then PaymentReference.
type PaymentConfirmation struct {
	OrderID          uuid.UUID
	SessionID        string
	PaymentReference string
	Source           string
}

// PaymentFailure identifies an order whose payment was declined.
type PaymentFailure struct {
	OrderID          uuid.UUID
	PaymentReference string
}

// CreateOrderInput carries a priced order ready to persist.
type CreateOrderInput struct {
	Email       string
	FirstName   string
	LastName    string
	Phone       *string
	TotalAmount decimal.Decimal
	Items       []CreateLineItemInput
	Address     CreateAddressInput
}

type CreateLineItemInput struct {
	ProductDesignID   uuid.UUID
	ProviderVariantID *int64
	Quantity          int
	UnitPrice         decimal.Decimal
}

type CreateAddressInput struct {
	FirstName string
	LastName  string
	Address1  string
	Address2  *string
	City      string
	State     string
	Zip       string
	Country   string
}
