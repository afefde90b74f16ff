package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamprint-backend/api/responses"
	"github.com/angelmondragon/teamprint-backend/api/validators"
	"github.com/angelmondragon/teamprint-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

type checkoutStarter interface {
	Start(ctx context.Context, input checkout.Input) (*checkout.Started, error)
}

// Checkout prices a design order server-side, persists it and returns the
// hosted payment page the buyer is redirected to.
func Checkout(svc checkoutStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		started, err := svc.Start(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:     started.OrderID,
			SessionID:   started.SessionID,
			CheckoutURL: started.CheckoutURL,
			Total:       started.Total.StringFixed(2),
		})
	}
}

type checkoutRequest struct {
	DesignID uuid.UUID             `json:"design_id" validate:"required"`
	Items    []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	Customer checkoutCustomer      `json:"customer" validate:"required"`
	Shipping checkoutShipping      `json:"shipping" validate:"required"`
}

type checkoutItemRequest struct {
	Quantity  int    `json:"quantity" validate:"required,min=1,max=500"`
	VariantID *int64 `json:"variant_id,omitempty" validate:"omitempty,min=1"`
}

type checkoutCustomer struct {
	Email     string  `json:"email" validate:"required,email"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type checkoutShipping struct {
	Address1 string  `json:"address1" validate:"required,max=200"`
	Address2 *string `json:"address2,omitempty" validate:"omitempty,max=200"`
	City     string  `json:"city" validate:"required,max=100"`
	State    string  `json:"state" validate:"required,max=100"`
	Zip      string  `json:"zip" validate:"required,max=20"`
	Country  string  `json:"country" validate:"required,len=2"`
}

func (req checkoutRequest) toInput() checkout.Input {
	items := make([]checkout.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkout.ItemInput{Quantity: item.Quantity, VariantID: item.VariantID})
	}
	return checkout.Input{
		DesignID: req.DesignID,
		Items:    items,
		Customer: checkout.CustomerInput{
			Email:     strings.ToLower(validators.SanitizeString(req.Customer.Email, 254)),
			FirstName: validators.SanitizeString(req.Customer.FirstName, 100),
			LastName:  validators.SanitizeString(req.Customer.LastName, 100),
			Phone:     sanitizeOptional(req.Customer.Phone, 32),
		},
		Shipping: checkout.ShippingInput{
			Address1: validators.SanitizeString(req.Shipping.Address1, 200),
			Address2: sanitizeOptional(req.Shipping.Address2, 200),
			City:     validators.SanitizeString(req.Shipping.City, 100),
			State:    validators.SanitizeString(req.Shipping.State, 100),
			Zip:      validators.SanitizeString(req.Shipping.Zip, 20),
			Country:  strings.ToUpper(validators.SanitizeString(req.Shipping.Country, 2)),
		},
	}
}

func sanitizeOptional(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxLen)
	if clean == "" {
		return nil
	}
	return &clean
}

type checkoutResponse struct {
	OrderID     uuid.UUID `json:"order_id"`
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url"`
	Total       string    `json:"total"`
}
