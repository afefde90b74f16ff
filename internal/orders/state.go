package orders

import (
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
)

// State is the lifecycle position derived from an order's stored columns.
// The fulfilling state only exists while a worker holds the order lock and
// is never derived from a row.
type State string

const (
	StateCreated          State = "created"
	StatePaid             State = "paid"
	StateFulfilling       State = "fulfilling"
	StateFulfilled        State = "fulfilled"
	StateFulfillmentError State = "fulfillment_error"
	StatePaymentFailed    State = "payment_failed"
)

// StateOf derives the lifecycle state of order. A stored provider reference
// wins over every other column.
func StateOf(order *models.CustomerOrder) State {
	if order == nil {
		return StateCreated
	}
	if order.IsFulfilled() {
		return StateFulfilled
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusPaid:
		if order.FulfillmentStatus == enums.FulfillmentStatusError {
			return StateFulfillmentError
		}
		return StatePaid
	case enums.PaymentStatusFailed:
		return StatePaymentFailed
	default:
		return StateCreated
	}
}
