package cache

import "context"

// Invalidator removes cached entries by key pattern after a committed state
// change. The cache is never read as a source of truth, so a failed
// invalidation is logged by the caller and otherwise ignored.
type Invalidator interface {
	InvalidatePattern(ctx context.Context, pattern string) error
}
