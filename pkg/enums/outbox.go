package enums

// OutboxAggregateType is outbox_events.aggregate_type.
type OutboxAggregateType string

// OutboxEventType is outbox_events.event_type and the Pub/Sub event_type
// attribute.
type OutboxEventType string

const (
	AggregateCustomerOrder OutboxAggregateType = "customer_order"

	EventOrderPaid OutboxEventType = "order_paid"
)

var (
	aggregateTypes   = []OutboxAggregateType{AggregateCustomerOrder}
	outboxEventTypes = []OutboxEventType{EventOrderPaid}
)

func (a OutboxAggregateType) IsValid() bool {
	_, err := ParseOutboxAggregateType(string(a))
	return err == nil
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

func (e OutboxEventType) IsValid() bool {
	_, err := ParseOutboxEventType(string(e))
	return err == nil
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, outboxEventTypes)
}
