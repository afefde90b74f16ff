package printify

// Variant is a purchasable catalog variant for one blueprint/print provider
// pair.
type Variant struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Available bool   `json:"available"`
	Price     *int64 `json:"price,omitempty"`
}

// Address is the provider's shipping address shape. Optional fields are sent
// as empty strings because the provider rejects null.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
	Region    string `json:"region"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
}

// PlacedImage positions an uploaded artwork on a print area.
type PlacedImage struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
	Angle float64 `json:"angle"`
}

// OrderLineItem references either an existing product or an inline
// blueprint/print provider pair.
type OrderLineItem struct {
	ProductID       string                   `json:"product_id,omitempty"`
	BlueprintID     int64                    `json:"blueprint_id,omitempty"`
	PrintProviderID int64                    `json:"print_provider_id,omitempty"`
	VariantID       int64                    `json:"variant_id"`
	Quantity        int                      `json:"quantity"`
	PrintAreas      map[string][]PlacedImage `json:"print_areas,omitempty"`
}

// OrderRequest is the body of POST /shops/{shop_id}/orders.json.
type OrderRequest struct {
	ExternalID               string          `json:"external_id"`
	Label                    string          `json:"label"`
	LineItems                []OrderLineItem `json:"line_items"`
	ShippingMethod           int             `json:"shipping_method"`
	SendShippingNotification bool            `json:"send_shipping_notification"`
	AddressTo                Address         `json:"address_to"`
}

type ProductVariant struct {
	ID        int64 `json:"id"`
	Price     int64 `json:"price"`
	IsEnabled bool  `json:"is_enabled"`
}

type Placeholder struct {
	Position string        `json:"position"`
	Images   []PlacedImage `json:"images"`
}

type ProductPrintArea struct {
	VariantIDs   []int64       `json:"variant_ids"`
	Placeholders []Placeholder `json:"placeholders"`
}

// ProductRequest is the body of POST /shops/{shop_id}/products.json.
type ProductRequest struct {
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	BlueprintID     int64              `json:"blueprint_id"`
	PrintProviderID int64              `json:"print_provider_id"`
	Variants        []ProductVariant   `json:"variants"`
	PrintAreas      []ProductPrintArea `json:"print_areas"`
}
