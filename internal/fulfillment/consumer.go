package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/payloads"
)

const consumerName = "order-fulfillment"

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type processedGuard interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

type fulfiller interface {
	Fulfill(ctx context.Context, orderID uuid.UUID) (*Result, error)
}

// ConsumerParams groups the order_paid consumer dependencies.
type ConsumerParams struct {
	Subscription subscriber
	Guard        processedGuard
	Decoders     payloadDecoder
	Fulfiller    fulfiller
	Logger       *logger.Logger
}

// Consumer turns order_paid messages into fulfillment attempts.
type Consumer struct {
	subscription subscriber
	guard        processedGuard
	decoders     payloadDecoder
	fulfiller    fulfiller
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Decoders == nil {
		return nil, fmt.Errorf("payload decoders required")
	}
	if params.Fulfiller == nil {
		return nil, fmt.Errorf("fulfiller required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: params.Subscription,
		guard:        params.Guard,
		decoders:     params.Decoders,
		fulfiller:    params.Fulfiller,
		logg:         params.Logger,
	}, nil
}

// Run receives messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventOrderPaid) {
		c.logg.Debug(logCtx, "skipping event not handled by fulfillment")
		return processResult{}
	}

	envelope, err := outbox.ParseEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{}
	}
	logCtx = c.logg.WithEventID(logCtx, envelope.EventID)

	decoded, err := c.decoders.Decode(enums.EventOrderPaid, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order_paid payload", err)
		return processResult{}
	}
	event, ok := decoded.(*payloads.OrderPaidEvent)
	if !ok || event.OrderID == uuid.Nil {
		c.logg.Warn(logCtx, "order_paid payload missing order id")
		return processResult{}
	}
	logCtx = c.logg.WithOrderID(logCtx, event.OrderID.String())

	claimed, err := c.guard.Claim(ctx, consumerName, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if _, err := c.fulfiller.Fulfill(logCtx, event.OrderID); err != nil {
		if pkgerrors.IsRetryable(err) {
			if delErr := c.guard.Release(ctx, consumerName, envelope.EventID); delErr != nil {
				c.logg.Error(logCtx, "failed to clear idempotency marker", delErr)
			}
			return processResult{nack: true}
		}
		// Fatal outcomes are already recorded on the order; redelivery would not change them.
		return processResult{}
	}
	return processResult{}
}
