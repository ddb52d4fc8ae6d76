package cache

import "context"

type nopInvalidator struct{}

// NewNopInvalidator returns an Invalidator that does nothing. Used when no
// cache is configured and in tests.
func NewNopInvalidator() Invalidator {
	return nopInvalidator{}
}

func (nopInvalidator) InvalidatePattern(ctx context.Context, pattern string) error {
	return nil
}
