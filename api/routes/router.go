package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/teamprint-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/teamprint-backend/api/controllers/webhooks"
	"github.com/angelmondragon/teamprint-backend/api/middleware"
	"github.com/angelmondragon/teamprint-backend/internal/checkout"
	"github.com/angelmondragon/teamprint-backend/internal/fulfillment"
	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/redis"
)

// How long a keyed POST replays its first response.
const (
	checkoutReplayTTL    = 24 * time.Hour
	fulfillmentReplayTTL = 6 * time.Hour
)

type CheckoutService interface {
	Start(ctx context.Context, input checkout.Input) (*checkout.Started, error)
}

type FulfillmentService interface {
	Fulfill(ctx context.Context, orderID uuid.UUID) (*fulfillment.Result, error)
}

type FulfillmentResetter interface {
	ResetFulfillment(ctx context.Context, orderID uuid.UUID) error
}

type StripeEventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type StripeEventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type StripeSigner interface {
	SigningSecret() string
}

// Params carries everything the API routes dispatch to.
type Params struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Idempotency  redis.IdempotencyStore
	Checkout     CheckoutService
	Fulfillment  FulfillmentService
	Orders       FulfillmentResetter
	StripeEvents StripeEventHandler
	StripeGuard  StripeEventGuard
	StripeSigner StripeSigner
	Metrics      http.Handler
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.AllowedOrigins()))
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeEvents, p.StripeSigner, p.StripeGuard, logg))

		r.Group(func(r chi.Router) {
			checkoutReplay := middleware.Idempotency(p.Idempotency, logg, checkoutReplayTTL)
			fulfillReplay := middleware.Idempotency(p.Idempotency, logg, fulfillmentReplayTTL)

			r.With(checkoutReplay).Post("/checkout", controllers.Checkout(p.Checkout, logg))
			r.With(fulfillReplay).Post("/fulfill-order", controllers.FulfillOrder(p.Fulfillment, logg))
			r.With(fulfillReplay).Post("/orders/{orderId}/fulfill", controllers.FulfillOrderByPath(p.Fulfillment, logg))
			r.With(middleware.AdminToken(cfg.App.AdminToken, logg), fulfillReplay).
				Post("/orders/{orderId}/fulfillment/reset", controllers.ResetFulfillment(p.Orders, logg))
		})
	})

	return r
}
