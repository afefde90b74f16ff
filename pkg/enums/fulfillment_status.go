package enums

// FulfillmentStatus is customer_orders.fulfillment_status.
type FulfillmentStatus string

const (
	FulfillmentStatusPending    FulfillmentStatus = "pending"
	FulfillmentStatusProcessing FulfillmentStatus = "processing"
	FulfillmentStatusShipped    FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered  FulfillmentStatus = "delivered"
	FulfillmentStatusError      FulfillmentStatus = "error"
)

var fulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPending,
	FulfillmentStatusProcessing,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
	FulfillmentStatusError,
}

func (f FulfillmentStatus) String() string { return string(f) }

func (f FulfillmentStatus) IsValid() bool {
	_, err := ParseFulfillmentStatus(string(f))
	return err == nil
}

func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	return parse("fulfillment status", value, fulfillmentStatuses)
}
