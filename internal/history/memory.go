package history

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/synthgen/internal/core"
)

// DefaultMemoryCapacity is the number of submissions a MemoryStore keeps.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent submissions in memory. When full, the
// oldest entry is dropped.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []core.Submission // oldest first
	capacity int
}

// NewMemoryStore creates a store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (m *MemoryStore) Record(ctx context.Context, s core.Submission) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, s)
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]core.Submission, error) {
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(limit, len(m.entries))
	out := make([]core.Submission, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	var removed int64
	for _, s := range m.entries {
		if s.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.entries = kept
	return removed, nil
}

// Len returns the number of stored submissions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
