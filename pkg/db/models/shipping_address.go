package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCountry is stored when the buyer omits a country.
const DefaultCountry = "US"

// ShippingAddress is the single delivery address attached to an order.
type ShippingAddress struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	FirstName string    `gorm:"column:first_name;not null"`
	LastName  string    `gorm:"column:last_name;not null"`
	Address1  string    `gorm:"column:address1;not null"`
	Address2  *string   `gorm:"column:address2"`
	City      string    `gorm:"column:city;not null"`
	State     string    `gorm:"column:state;not null"`
	Zip       string    `gorm:"column:zip;not null"`
	Country   string    `gorm:"column:country;not null;default:'US'"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ShippingAddress) TableName() string { return "shipping_addresses" }
