package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamprint-backend/pkg/types"
)

// ProductDesign binds uploaded team artwork to a Printify blueprint and print
// provider. The fulfillment pipeline only reads it.
type ProductDesign struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string                `gorm:"column:name;not null"`
	Description      *string               `gorm:"column:description"`
	ProductType      string                `gorm:"column:product_type;not null"`
	BlueprintID      int64                 `gorm:"column:blueprint_id;not null"`
	PrintProviderID  int64                 `gorm:"column:print_provider_id;not null"`
	ArtworkImageID   string                `gorm:"column:artwork_image_id;not null"`
	MockupImageURL   *string               `gorm:"column:mockup_image_url"`
	BasePrice        decimal.Decimal       `gorm:"column:base_price;type:numeric(10,2);not null"`
	MarkupPercentage *decimal.Decimal      `gorm:"column:markup_percentage;type:numeric(5,2)"`
	DefaultVariantID *int64                `gorm:"column:default_variant_id"`
	DefaultColor     *string               `gorm:"column:default_color"`
	PrintPlacement   *types.PrintPlacement `gorm:"column:print_placement;type:jsonb;serializer:json"`
	TeamInfo         types.JSONMap         `gorm:"column:team_info;type:jsonb;serializer:json"`
	Status           string                `gorm:"column:status;not null;default:'active'"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductDesign) TableName() string { return "product_designs" }
