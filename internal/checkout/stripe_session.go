package checkout

import (
	"context"

	"github.com/stripe/stripe-go/v84"

	pkgstripe "github.com/angelmondragon/teamprint-backend/pkg/stripe"
)

// SessionCreator opens hosted Stripe Checkout sessions.
type SessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessions struct {
	client *pkgstripe.Client
}

// NewStripeSessions returns nil when Stripe is not configured.
func NewStripeSessions(client *pkgstripe.Client) SessionCreator {
	if client == nil {
		return nil
	}
	return stripeSessions{client: client}
}

func (s stripeSessions) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.client.CreateCheckoutSession(ctx, params)
}
