package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/teamprint-backend/internal/orders"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

type orderCreator interface {
	FindDesign(ctx context.Context, designID uuid.UUID) (*models.ProductDesign, error)
	Create(ctx context.Context, input orders.CreateOrderInput) (*models.CustomerOrder, error)
	AttachCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
}

// Input is a buyer's checkout request for one design.
type Input struct {
	DesignID uuid.UUID
	Items    []ItemInput
	Customer CustomerInput
	Shipping ShippingInput
}

type ItemInput struct {
	Quantity  int
	VariantID *int64
}

type CustomerInput struct {
	Email     string
	FirstName string
	LastName  string
	Phone     *string
}

type ShippingInput struct {
	Address1 string
	Address2 *string
	City     string
	State    string
	Zip      string
	Country  string
}

// Started is returned once the order exists and the buyer can be redirected.
type Started struct {
	OrderID     uuid.UUID
	SessionID   string
	CheckoutURL string
	Total       decimal.Decimal
}

type ServiceParams struct {
	Orders     orderCreator
	Sessions   SessionCreator
	Pricing    Pricing
	Currency   string
	SuccessURL string
	CancelURL  string
	Logger     *logger.Logger
}

// Service prices a design, persists the pending order and opens a Stripe
// Checkout Session for it.
type Service struct {
	orders     orderCreator
	sessions   SessionCreator
	pricing    Pricing
	currency   string
	successURL string
	cancelURL  string
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout session creator required")
	}
	if params.SuccessURL == "" || params.CancelURL == "" {
		return nil, fmt.Errorf("checkout redirect urls required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Service{
		orders:     params.Orders,
		sessions:   params.Sessions,
		pricing:    params.Pricing,
		currency:   currency,
		successURL: params.SuccessURL,
		cancelURL:  params.CancelURL,
		logg:       params.Logger,
	}, nil
}

// Start creates the order and its checkout session. The order stays pending
// until the payment webhook confirms it.
func (s *Service) Start(ctx context.Context, input Input) (*Started, error) {
	totalQty := 0
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		totalQty += item.Quantity
	}
	if totalQty == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	design, err := s.orders.FindDesign(ctx, input.DesignID)
	if err != nil {
		return nil, err
	}
	if design.Status != "" && design.Status != "active" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product design is not available").
			WithDetails(map[string]any{"status": design.Status})
	}

	unit := s.pricing.UnitPrice(design, totalQty)
	total := unit.Mul(decimal.NewFromInt(int64(totalQty)))

	order, err := s.orders.Create(ctx, buildOrderInput(input, unit, total))
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())

	sess, err := s.sessions.Create(ctx, s.sessionParams(order, design, input.Items, unit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	if err := s.orders.AttachCheckoutSession(ctx, order.ID, sess.ID); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"stripe_session_id": sess.ID,
		"total_amount":      total.StringFixed(2),
	}), "checkout.session_created")
	return &Started{OrderID: order.ID, SessionID: sess.ID, CheckoutURL: sess.URL, Total: total}, nil
}

func buildOrderInput(input Input, unit, total decimal.Decimal) orders.CreateOrderInput {
	items := make([]orders.CreateLineItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, orders.CreateLineItemInput{
			ProductDesignID:   input.DesignID,
			ProviderVariantID: item.VariantID,
			Quantity:          item.Quantity,
			UnitPrice:         unit,
		})
	}
	return orders.CreateOrderInput{
		Email:       input.Customer.Email,
		FirstName:   input.Customer.FirstName,
		LastName:    input.Customer.LastName,
		Phone:       input.Customer.Phone,
		TotalAmount: total,
		Items:       items,
		Address: orders.CreateAddressInput{
			FirstName: input.Customer.FirstName,
			LastName:  input.Customer.LastName,
			Address1:  input.Shipping.Address1,
			Address2:  input.Shipping.Address2,
			City:      input.Shipping.City,
			State:     input.Shipping.State,
			Zip:       input.Shipping.Zip,
			Country:   input.Shipping.Country,
		},
	}
}

func (s *Service) sessionParams(order *models.CustomerOrder, design *models.ProductDesign, items []ItemInput, unit decimal.Decimal) *stripe.CheckoutSessionParams {
	metadata := map[string]string{
		"order_id":  order.ID.String(),
		"design_id": design.ID.String(),
	}
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name:        stripe.String(design.Name),
		Description: stripe.String(productDescription(design)),
	}
	if design.MockupImageURL != nil && *design.MockupImageURL != "" {
		product.Images = []*string{design.MockupImageURL}
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				UnitAmount:  stripe.Int64(Cents(unit)),
				ProductData: product,
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	return &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(order.Email),
		ClientReferenceID:  stripe.String(order.ID.String()),
		SuccessURL:         stripe.String(s.successURL),
		CancelURL:          stripe.String(s.cancelURL),
		LineItems:          lineItems,
		Metadata:           metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
}

func productDescription(design *models.ProductDesign) string {
	team := "your team"
	if name := strings.TrimSpace(design.TeamInfo.String("name")); name != "" {
		team = name
	}
	return fmt.Sprintf("Custom %s for %s", design.ProductType, team)
}
