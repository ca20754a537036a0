package enum

// Topic is the platform notification topic of an inbound webhook.
type Topic string

const (
	TopicOrdersPaid   Topic = "orders/paid"
	TopicOrdersCreate Topic = "orders/create"

	TopicCheckoutSessionCompleted     Topic = "checkout.session.completed"
	TopicCheckoutSessionAsyncSucceeded Topic = "checkout.session.async_payment_succeeded"
)
