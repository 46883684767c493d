package stream

import (
	"sync"
	"time"
)

// HeaderGate throttles section banners. A banner is emitted only when its
// label has not been shown this process run and at least minGap elapsed
// since the last banner of any kind. Suppressing a banner never suppresses
// content, only the visual separator.
type HeaderGate struct {
	mu     sync.Mutex
	seen   map[string]bool
	last   time.Time
	minGap time.Duration
	now    func() time.Time
}

// DefaultHeaderGap is the minimum spacing between banners.
const DefaultHeaderGap = 5 * time.Second

// NewHeaderGate creates a gate with the given minimum banner spacing.
func NewHeaderGate(minGap time.Duration) *HeaderGate {
	return &HeaderGate{
		seen:   make(map[string]bool),
		minGap: minGap,
		now:    time.Now,
	}
}

// Allow reports whether a banner with this label may be shown now, and
// records it when allowed.
func (g *HeaderGate) Allow(label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen[label] {
		return false
	}
	now := g.now()
	if !g.last.IsZero() && now.Sub(g.last) < g.minGap {
		return false
	}
	g.seen[label] = true
	g.last = now
	return true
}
