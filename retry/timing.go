package retry

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TimingStats per-operation duration counters. Process-lifetime, never reset.
type TimingStats struct {
	CallCount int
	Total     time.Duration
	Min       time.Duration
	Max       time.Duration
}

func (s *TimingStats) update(d time.Duration) {
	if s.CallCount == 0 {
		s.Min = time.Duration(math.MaxInt64)
	}
	s.CallCount++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// Average returns the mean call duration, zero when nothing was recorded.
func (s *TimingStats) Average() time.Duration {
	if s.CallCount == 0 {
		return 0
	}
	return s.Total / time.Duration(s.CallCount)
}

// TimingManager collects TimingStats keyed by operation name.
type TimingManager struct {
	mu    sync.Mutex
	stats map[string]*TimingStats
	log   zerolog.Logger
}

func NewTimingManager(log zerolog.Logger) *TimingManager {
	return &TimingManager{stats: make(map[string]*TimingStats), log: log}
}

// Record adds one observation and logs the running stats at debug level.
func (m *TimingManager) Record(name string, d time.Duration) {
	m.mu.Lock()
	s, ok := m.stats[name]
	if !ok {
		s = &TimingStats{}
		m.stats[name] = s
	}
	s.update(d)
	snapshot := *s
	m.mu.Unlock()

	m.log.Debug().Str("op", name).
		Int("calls", snapshot.CallCount).
		Dur("avg", snapshot.Average()).
		Dur("min", snapshot.Min).
		Dur("max", snapshot.Max).
		Dur("total", snapshot.Total).
		Msg("timing")
}

// Stats returns a copy of the stats for one operation.
func (m *TimingManager) Stats(name string) TimingStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[name]; ok {
		return *s
	}
	return TimingStats{}
}

// All returns a snapshot of every operation's stats.
func (m *TimingManager) All() map[string]TimingStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]TimingStats, len(m.stats))
	for name, s := range m.stats {
		out[name] = *s
	}
	return out
}

// Timed runs fn and records its duration under name.
func (m *TimingManager) Timed(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.Record(name, time.Since(start))
	return err
}
