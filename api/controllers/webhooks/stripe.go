package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/teamprint-backend/api/responses"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

const (
	maxWebhookBody  = 1 << 16
	signatureHeader = "Stripe-Signature"
)

type paymentEventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSecret interface {
	SigningSecret() string
}

var received = map[string]bool{"received": true}

// Events are accepted regardless of the account's pinned API version; the
// handler only reads checkout session fields that are stable across versions.
var constructOptions = webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}

type stripeReceiver struct {
	events paymentEventHandler
	signer signingSecret
	guard  eventGuard
	logg   *logger.Logger
}

// StripeWebhook verifies and applies Stripe payment events. Each event id is
// applied once; a failed handler clears the marker so Stripe's redelivery is
// processed again.
func StripeWebhook(svc paymentEventHandler, client signingSecret, guard eventGuard, logg *logger.Logger) http.HandlerFunc {
	recv := &stripeReceiver{events: svc, signer: client, guard: guard, logg: logg}
	return recv.serve
}

func (s *stripeReceiver) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.events == nil || s.signer == nil || s.guard == nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
		return
	}

	event, err := s.verify(w, r)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	ctx = s.logg.WithEventID(ctx, event.ID)
	ctx = s.logg.WithField(ctx, "event_type", string(event.Type))

	if err := s.applyOnce(ctx, &event); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	responses.WriteSuccess(w, received)
}

// verify reads the bounded body and checks the signature against the
// configured secret.
func (s *stripeReceiver) verify(w http.ResponseWriter, r *http.Request) (stripe.Event, error) {
	header := r.Header.Get(signatureHeader)
	if header == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, s.signer.SigningSecret(), constructOptions)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe signature invalid")
	}
	return event, nil
}

func (s *stripeReceiver) applyOnce(ctx context.Context, event *stripe.Event) error {
	seen, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		s.logg.Info(ctx, "stripe.event_duplicate")
		return nil
	}

	if err := s.events.HandleEvent(ctx, event); err != nil {
		if clearErr := s.guard.Delete(ctx, event.ID); clearErr != nil {
			s.logg.Error(ctx, "stripe.guard_clear_failed", clearErr)
		}
		return err
	}
	s.logg.Info(ctx, "stripe.event_processed")
	return nil
}
