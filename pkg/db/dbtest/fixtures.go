package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
)

// OrderFixture describes a seeded order. Zero values get sensible defaults.
type OrderFixture struct {
	OrderID           uuid.UUID
	DesignID          uuid.UUID
	BlueprintID       int64
	PrintProviderID   int64
	ArtworkImageID    string
	DefaultVariantID  *int64
	DefaultColor      *string
	PreferredVariant  *int64
	Quantity          int
	PaymentStatus     enums.PaymentStatus
	FulfillmentStatus enums.FulfillmentStatus
	Reference         *string
	SessionID         *string
	PaymentReference  *string
	PaidAt            *time.Time
}

// Seeded reports the ids written by SeedOrder.
type Seeded struct {
	OrderID  uuid.UUID
	DesignID uuid.UUID
	ItemID   uuid.UUID
}

// SeedOrder writes a design, an order, one line item and a shipping address.
func SeedOrder(t testing.TB, conn *gorm.DB, fx OrderFixture) Seeded {
	t.Helper()
	if fx.OrderID == uuid.Nil {
		fx.OrderID = uuid.New()
	}
	if fx.DesignID == uuid.Nil {
		fx.DesignID = uuid.New()
	}
	if fx.BlueprintID == 0 {
		fx.BlueprintID = 6
	}
	if fx.PrintProviderID == 0 {
		fx.PrintProviderID = 99
	}
	if fx.ArtworkImageID == "" {
		fx.ArtworkImageID = "img_" + fx.DesignID.String()[:8]
	}
	if fx.Quantity == 0 {
		fx.Quantity = 1
	}
	if fx.PaymentStatus == "" {
		fx.PaymentStatus = enums.PaymentStatusPaid
	}
	if fx.FulfillmentStatus == "" {
		fx.FulfillmentStatus = enums.FulfillmentStatusPending
	}
	if fx.PaidAt == nil && fx.PaymentStatus == enums.PaymentStatusPaid {
		paid := time.Now().UTC().Add(-time.Hour)
		fx.PaidAt = &paid
	}

	unit := decimal.RequireFromString("25.00")
	design := models.ProductDesign{
		ID:               fx.DesignID,
		Name:             "Team Tee",
		ProductType:      "t-shirt",
		BlueprintID:      fx.BlueprintID,
		PrintProviderID:  fx.PrintProviderID,
		ArtworkImageID:   fx.ArtworkImageID,
		BasePrice:        decimal.RequireFromString("18.00"),
		DefaultVariantID: fx.DefaultVariantID,
		DefaultColor:     fx.DefaultColor,
		Status:           "active",
	}
	require.NoError(t, conn.Create(&design).Error)

	order := models.CustomerOrder{
		ID:                   fx.OrderID,
		Email:                "coach@example.com",
		FirstName:            "Dana",
		LastName:             "Reyes",
		TotalAmount:          unit.Mul(decimal.NewFromInt(int64(fx.Quantity))),
		PaymentStatus:        fx.PaymentStatus,
		FulfillmentStatus:    fx.FulfillmentStatus,
		StripeSessionID:      fx.SessionID,
		PaymentReference:     fx.PaymentReference,
		FulfillmentReference: fx.Reference,
		PaidAt:               fx.PaidAt,
	}
	require.NoError(t, conn.Create(&order).Error)

	item := models.OrderLineItem{
		ID:                uuid.New(),
		OrderID:           fx.OrderID,
		ProductDesignID:   fx.DesignID,
		ProviderVariantID: fx.PreferredVariant,
		Quantity:          fx.Quantity,
		UnitPrice:         unit,
		TotalPrice:        unit.Mul(decimal.NewFromInt(int64(fx.Quantity))),
	}
	require.NoError(t, conn.Create(&item).Error)

	address := models.ShippingAddress{
		ID:        uuid.New(),
		OrderID:   fx.OrderID,
		FirstName: "Dana",
		LastName:  "Reyes",
		Address1:  "12 Field St",
		City:      "Austin",
		State:     "TX",
		Zip:       "73301",
		Country:   models.DefaultCountry,
	}
	require.NoError(t, conn.Create(&address).Error)

	return Seeded{OrderID: fx.OrderID, DesignID: fx.DesignID, ItemID: item.ID}
}

// LoadOrder reads the current row for orderID.
func LoadOrder(t testing.TB, conn *gorm.DB, orderID uuid.UUID) models.CustomerOrder {
	t.Helper()
	var order models.CustomerOrder
	require.NoError(t, conn.Where("id = ?", orderID).First(&order).Error)
	return order
}
