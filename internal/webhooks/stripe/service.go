package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/teamprint-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

const (
	eventSource      = "stripe_webhook"
	metadataOrderKey = "order_id"
)

type paymentRecorder interface {
	MarkPaid(ctx context.Context, confirmation orders.PaymentConfirmation) (bool, error)
	MarkPaymentFailed(ctx context.Context, failure orders.PaymentFailure) (bool, error)
}

type ServiceParams struct {
	Orders paymentRecorder
	Logger *logger.Logger
}

// Service applies Stripe payment events to customer orders.
type Service struct {
	orders paymentRecorder
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

// HandleEvent routes a verified event. Event types that do not affect
// payment state are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.sessionPaid(ctx, event.Type, &session)
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		_, err := s.orders.MarkPaid(ctx, orders.PaymentConfirmation{
			OrderID:          orderIDFromMetadata(intent.Metadata),
			PaymentReference: intent.ID,
			Source:           eventSource,
		})
		return err
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		if intent.LastPaymentError != nil {
			s.logg.Warn(s.logg.WithField(ctx, "decline_code", string(intent.LastPaymentError.DeclineCode)), "stripe.payment_failed")
		}
		_, err := s.orders.MarkPaymentFailed(ctx, orders.PaymentFailure{
			OrderID:          orderIDFromMetadata(intent.Metadata),
			PaymentReference: intent.ID,
		})
		return err
	default:
		s.logg.Debug(ctx, "stripe.event_ignored")
		return nil
	}
}

// sessionPaid marks the order paid once the session has collected payment.
// Sessions completed with a delayed payment method are confirmed later by
// checkout.session.async_payment_succeeded.
func (s *Service) sessionPaid(ctx context.Context, eventType stripe.EventType, session *stripe.CheckoutSession) error {
	if eventType == stripe.EventTypeCheckoutSessionCompleted &&
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.logg.Info(s.logg.WithField(ctx, "stripe_session_id", session.ID), "stripe.checkout_awaiting_payment")
		return nil
	}
	reference := ""
	if session.PaymentIntent != nil {
		reference = session.PaymentIntent.ID
	}
	orderID := orderIDFromMetadata(session.Metadata)
	if orderID == uuid.Nil {
		orderID = parseOrderID(session.ClientReferenceID)
	}
	_, err := s.orders.MarkPaid(ctx, orders.PaymentConfirmation{
		OrderID:          orderID,
		SessionID:        session.ID,
		PaymentReference: reference,
		Source:           eventSource,
	})
	return err
}

func orderIDFromMetadata(metadata map[string]string) uuid.UUID {
	return parseOrderID(metadata[metadataOrderKey])
}

func parseOrderID(raw string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil
	}
	return id
}
