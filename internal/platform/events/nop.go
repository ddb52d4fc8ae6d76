package events

import "context"

type nopPublisher struct{}

// NewNopPublisher returns a Publisher that discards everything. Used when no
// broker is configured and in tests.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) PublishEvent(ctx context.Context, topic, key string, event any) error {
	return nil
}

func (nopPublisher) Close() error {
	return nil
}
