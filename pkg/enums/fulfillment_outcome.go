package enums

// FulfillmentOutcome is the kind reported for a single fulfillment attempt.
type FulfillmentOutcome string

const (
	FulfillmentOutcomeSuccess          FulfillmentOutcome = "success"
	FulfillmentOutcomeFallback         FulfillmentOutcome = "fallback"
	FulfillmentOutcomeAlreadyFulfilled FulfillmentOutcome = "already_fulfilled"
	FulfillmentOutcomeError            FulfillmentOutcome = "error"
)

// String implements fmt.Stringer.
func (o FulfillmentOutcome) String() string {
	return string(o)
}

// Succeeded reports whether the order holds a provider reference after the attempt.
func (o FulfillmentOutcome) Succeeded() bool {
	return o == FulfillmentOutcomeSuccess || o == FulfillmentOutcomeFallback || o == FulfillmentOutcomeAlreadyFulfilled
}
