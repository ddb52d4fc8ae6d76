package events

import "context"

// Event topics emitted by the order engine. Consumers (mail, push, analytics)
// subscribe to these; delivery is best-effort and never blocks an order.
const (
	TopicOrderCreated     = "order.created"
	TopicOrderStatus      = "order.status_changed"
	TopicPaymentConfirmed = "order.payment_confirmed"
	TopicOrderCancelled   = "order.cancelled"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
	Close() error
}
