// Package history keeps a log of dispatched generation requests.
//
// Two stores are provided: MemoryStore for single-process use and tests, and
// PostgresStore when a database is configured. Both satisfy core.Recorder.
package history

import (
	"context"
	"time"

	"github.com/JonMunkholm/synthgen/internal/core"
)

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

// Store records submissions and answers simple queries over them.
type Store interface {
	Record(ctx context.Context, s core.Submission) error
	// Recent returns up to limit submissions, newest first.
	Recent(ctx context.Context, limit int) ([]core.Submission, error)
	// Prune deletes submissions created before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
