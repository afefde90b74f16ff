package checkout

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
)

var hundred = decimal.NewFromInt(100)

// DiscountTier applies Percent off every unit once an order reaches MinQty
// units.
type DiscountTier struct {
	MinQty  int
	Percent decimal.Decimal
}

// Pricing computes server-side unit prices for a design.
type Pricing struct {
	DefaultMarkup decimal.Decimal
	Tiers         []DiscountTier
}

// PricingFromConfig builds the pricing rules from checkout settings.
func PricingFromConfig(cfg config.CheckoutConfig) Pricing {
	p := Pricing{DefaultMarkup: decimal.NewFromFloat(cfg.DefaultMarkupPct)}
	if cfg.BulkTierOneQty > 0 {
		p.Tiers = append(p.Tiers, DiscountTier{MinQty: cfg.BulkTierOneQty, Percent: decimal.NewFromFloat(cfg.BulkTierOnePercent)})
	}
	if cfg.BulkTierTwoQty > 0 {
		p.Tiers = append(p.Tiers, DiscountTier{MinQty: cfg.BulkTierTwoQty, Percent: decimal.NewFromFloat(cfg.BulkTierTwoPercent)})
	}
	return p
}

// DiscountPercent returns the largest tier reached by totalQty.
func (p Pricing) DiscountPercent(totalQty int) decimal.Decimal {
	tiers := append([]DiscountTier(nil), p.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQty > tiers[j].MinQty })
	for _, tier := range tiers {
		if totalQty >= tier.MinQty {
			return tier.Percent
		}
	}
	return decimal.Zero
}

// UnitPrice is base × (1 + markup%) less the bulk discount, rounded to cents.
func (p Pricing) UnitPrice(design *models.ProductDesign, totalQty int) decimal.Decimal {
	markup := p.DefaultMarkup
	if design.MarkupPercentage != nil {
		markup = *design.MarkupPercentage
	}
	price := design.BasePrice.Mul(decimal.NewFromInt(1).Add(markup.Div(hundred)))
	if discount := p.DiscountPercent(totalQty); discount.IsPositive() {
		price = price.Mul(decimal.NewFromInt(1).Sub(discount.Div(hundred)))
	}
	return price.Round(2)
}

// Cents converts a dollar amount to the integer minor unit Stripe expects.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
