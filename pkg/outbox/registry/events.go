// Package registry describes every outbox event type: which aggregate emits
// it, which topic carries it and how its payload decodes.
package registry

import (
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/payloads"
)

// schema is one payload version of an event type.
type schema struct {
	eventType     enums.OutboxEventType
	aggregateType enums.OutboxAggregateType
	version       int
	newPayload    func() any
}

// orderSchemas lists the events routed to the orders topic.
var orderSchemas = []schema{
	{
		eventType:     enums.EventOrderPaid,
		aggregateType: enums.AggregateCustomerOrder,
		version:       1,
		newPayload:    func() any { return &payloads.OrderPaidEvent{} },
	},
}
