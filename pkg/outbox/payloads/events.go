package payloads

import "github.com/google/uuid"

// OrderPaidEvent announces that a customer order moved to paid and is ready
// for fulfillment.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	StripeSessionID  string    `json:"stripe_session_id,omitempty"`
}
