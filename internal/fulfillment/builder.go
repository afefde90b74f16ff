package fulfillment

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamprint-backend/internal/orders"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/printify"
)

const (
	standardShippingMethod = 1
	labelPrefix            = "TP-"
	labelIDLength          = 8
)

// BuildOrderPayload maps an order bundle to a provider order. selections maps
// line item ids to provider variant ids. When productIDs maps a design id to a
// created product, that line references the product instead of the inline
// blueprint.
func BuildOrderPayload(bundle *orders.Bundle, selections map[uuid.UUID]int64, productIDs map[uuid.UUID]string) printify.OrderRequest {
	order := bundle.Order
	req := printify.OrderRequest{
		ExternalID:     order.ID.String(),
		Label:          OrderLabel(order.ID),
		LineItems:      make([]printify.OrderLineItem, 0, len(bundle.Items)),
		ShippingMethod: standardShippingMethod,
		AddressTo:      buildAddress(order, bundle.Address),
	}
	for _, item := range bundle.Items {
		design, _ := bundle.Design(item)
		line := printify.OrderLineItem{
			VariantID: selections[item.ID],
			Quantity:  item.Quantity,
		}
		if productID, ok := productIDs[design.ID]; ok && productID != "" {
			line.ProductID = productID
		} else {
			line.BlueprintID = design.BlueprintID
			line.PrintProviderID = design.PrintProviderID
			placement := design.PrintPlacement.Resolve()
			line.PrintAreas = map[string][]printify.PlacedImage{
				placement.Position: {placedImage(design.ArtworkImageID, placement.X, placement.Y, placement.Scale, placement.Angle)},
			}
		}
		req.LineItems = append(req.LineItems, line)
	}
	return req
}

// BuildProductPayload maps one design to a provider product enabling
// variantIDs at unitPrice.
func BuildProductPayload(order *models.CustomerOrder, design models.ProductDesign, variantIDs []int64, unitPrice decimal.Decimal) printify.ProductRequest {
	price := unitPrice.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	ids := dedupe(variantIDs)
	variants := make([]printify.ProductVariant, 0, len(ids))
	for _, id := range ids {
		variants = append(variants, printify.ProductVariant{ID: id, Price: price, IsEnabled: true})
	}
	placement := design.PrintPlacement.Resolve()
	description := ""
	if design.Description != nil {
		description = *design.Description
	}
	return printify.ProductRequest{
		Title:           productTitle(order, design),
		Description:     description,
		BlueprintID:     design.BlueprintID,
		PrintProviderID: design.PrintProviderID,
		Variants:        variants,
		PrintAreas: []printify.ProductPrintArea{{
			VariantIDs: ids,
			Placeholders: []printify.Placeholder{{
				Position: placement.Position,
				Images:   []printify.PlacedImage{placedImage(design.ArtworkImageID, placement.X, placement.Y, placement.Scale, placement.Angle)},
			}},
		}},
	}
}

// OrderLabel is the short human label shown in the provider dashboard.
func OrderLabel(orderID uuid.UUID) string {
	id := strings.ReplaceAll(orderID.String(), "-", "")
	if len(id) > labelIDLength {
		id = id[:labelIDLength]
	}
	return labelPrefix + strings.ToUpper(id)
}

func buildAddress(order *models.CustomerOrder, address *models.ShippingAddress) printify.Address {
	out := printify.Address{
		Email:     order.Email,
		Phone:     deref(order.Phone),
		FirstName: order.FirstName,
		LastName:  order.LastName,
		Country:   models.DefaultCountry,
	}
	if address == nil {
		return out
	}
	if address.FirstName != "" {
		out.FirstName = address.FirstName
	}
	if address.LastName != "" {
		out.LastName = address.LastName
	}
	if country := strings.TrimSpace(address.Country); country != "" {
		out.Country = country
	}
	out.Region = address.State
	out.Address1 = address.Address1
	out.Address2 = deref(address.Address2)
	out.City = address.City
	out.Zip = address.Zip
	return out
}

func placedImage(imageID string, x, y, scale float64, angle int) printify.PlacedImage {
	return printify.PlacedImage{ID: imageID, X: x, Y: y, Scale: scale, Angle: float64(angle)}
}

func productTitle(order *models.CustomerOrder, design models.ProductDesign) string {
	name := strings.TrimSpace(design.Name)
	if name == "" {
		name = design.ProductType
	}
	if order == nil {
		return name
	}
	return name + " " + OrderLabel(order.ID)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
