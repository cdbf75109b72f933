package transfer

import (
	"sync"
	"time"
)

// DefaultSampleInterval is the minimum spacing between throughput recomputations
const DefaultSampleInterval = time.Second

// Sample is a cumulative byte count observed at a point in time
type Sample struct {
	Bytes int64
	At    time.Time
}

// Throughput returns bytes per second between two samples
func Throughput(prev, cur Sample) float64 {
	elapsed := cur.At.Sub(prev.At).Seconds()
	if elapsed <= 0 || cur.Bytes < prev.Bytes {
		return 0
	}
	return float64(cur.Bytes-prev.Bytes) / elapsed
}

// ETA returns the remaining time at the given throughput. The boolean is false
// when the total is unknown or nothing is moving.
func ETA(total, transferred int64, throughput float64) (time.Duration, bool) {
	if total < 0 || throughput <= 0 {
		return 0, false
	}
	remaining := total - transferred
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(float64(remaining) / throughput * float64(time.Second)), true
}

// Snapshot is the reporter's view of one download
type Snapshot struct {
	Transferred int64
	Total       int64
	Rate        float64 // bytes per second
	ETA         time.Duration
	ETAKnown    bool
}

// Percent returns completion in [0, 100], or -1 when the total is unknown
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		if s.Total == 0 && s.Transferred == 0 {
			return 100
		}
		return -1
	}
	return float64(s.Transferred) / float64(s.Total) * 100
}

// Meter turns per-chunk byte counts into throughput and ETA. The rate is only
// recomputed once Interval has passed since the previous sample, so frequent
// chunk callbacks do not produce sub-second noise.
type Meter struct {
	Interval time.Duration

	mu       sync.Mutex
	last     Sample
	snapshot Snapshot
	now      func() time.Time
}

// NewMeter creates a meter using DefaultSampleInterval
func NewMeter() *Meter {
	return &Meter{
		Interval: DefaultSampleInterval,
		now:      time.Now,
		snapshot: Snapshot{Total: UnknownSize},
	}
}

// Observe records a cumulative byte count and returns the current snapshot.
// The boolean reports whether the rate was recomputed.
func (m *Meter) Observe(transferred, total int64) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now == nil {
		m.now = time.Now
	}
	now := m.now()
	if m.last.At.IsZero() || transferred < m.last.Bytes {
		// First sample of an attempt
		m.last = Sample{Bytes: transferred, At: now}
	}

	m.snapshot.Transferred = transferred
	m.snapshot.Total = total

	updated := false
	if now.Sub(m.last.At) >= m.Interval {
		cur := Sample{Bytes: transferred, At: now}
		m.snapshot.Rate = Throughput(m.last, cur)
		m.last = cur
		updated = true
	}
	m.snapshot.ETA, m.snapshot.ETAKnown = ETA(total, transferred, m.snapshot.Rate)

	return m.snapshot, updated
}

// Snapshot returns the last computed view
func (m *Meter) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Reset clears the rate, used on pause and on a fresh attempt
func (m *Meter) Reset() {
	m.mu.Lock()
	m.last = Sample{}
	m.snapshot.Rate = 0
	m.snapshot.ETA = 0
	m.snapshot.ETAKnown = false
	m.mu.Unlock()
}
