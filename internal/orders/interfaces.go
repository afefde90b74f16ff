package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
)

// Repository defines persistence operations for customer orders and the
// records hanging off them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.CustomerOrder) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	CreateShippingAddress(ctx context.Context, address *models.ShippingAddress) error

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.CustomerOrder, error)
	FindOrderBySessionID(ctx context.Context, sessionID string) (*models.CustomerOrder, error)
	FindOrderByPaymentReference(ctx context.Context, reference string) (*models.CustomerOrder, error)
	FindLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	FindShippingAddress(ctx context.Context, orderID uuid.UUID) (*models.ShippingAddress, error)
	FindDesign(ctx context.Context, designID uuid.UUID) (*models.ProductDesign, error)
	FindDesigns(ctx context.Context, designIDs []uuid.UUID) ([]models.ProductDesign, error)
	ListRetryable(ctx context.Context, paidBefore time.Time, limit int) ([]models.CustomerOrder, error)

	AttachCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, update PaymentUpdate) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, update PaymentUpdate) (bool, error)
	SetFulfillmentReference(ctx context.Context, orderID uuid.UUID, reference string, productID *string, at time.Time) (bool, error)
	SetFulfillmentError(ctx context.Context, orderID uuid.UUID, diagnostic string) (bool, error)
	ClearFulfillmentError(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// PaymentUpdate carries the Stripe identifiers recorded with a payment
// status change. Empty fields are left untouched.
type PaymentUpdate struct {
	PaymentReference string
	SessionID        string
	At               time.Time
}
