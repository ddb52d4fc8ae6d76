package domain

import (
	"errors"
	"fmt"
	"time"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusFailed     OrderStatus = "failed"
)

var ErrIllegalTransition = errors.New("illegal status transition")

// legalTransitions is the full lifecycle: the main chain
// pending → processing → confirmed → shipped → delivered, cancellation from
// any pre-shipment state, and failed for payment failure out of pending.
var legalTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
	StatusFailed:     {},
}

func IsValidStatus(s OrderStatus) bool {
	_, ok := legalTransitions[s]
	return ok
}

func IsTerminal(s OrderStatus) bool {
	next, ok := legalTransitions[s]
	return ok && len(next) == 0
}

// IsCancellable reports whether an order in status s may still be cancelled.
func IsCancellable(s OrderStatus) bool {
	for _, next := range legalTransitions[s] {
		if next == StatusCancelled {
			return true
		}
	}
	return false
}

// CanTransition validates a status move against the lifecycle table. The
// caller must leave the persisted status untouched when this fails.
func CanTransition(from, to OrderStatus) error {
	if !IsValidStatus(from) || !IsValidStatus(to) {
		return fmt.Errorf("%w: unknown status in %s -> %s", ErrIllegalTransition, from, to)
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// StatusHistoryEntry is one append-only audit line per attempted-and-accepted
// transition.
type StatusHistoryEntry struct {
	ID                string      `json:"id"`
	OrderID           string      `json:"-"`
	PreviousStatus    OrderStatus `json:"previous_status"`
	NewStatus         OrderStatus `json:"new_status"`
	Actor             string      `json:"actor"`
	Note              string      `json:"note,omitempty"`
	IsSystemGenerated bool        `json:"is_system_generated"`
	CreatedAt         time.Time   `json:"created_at"`
}
