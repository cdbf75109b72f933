package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThroughput(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		prev Sample
		cur  Sample
		want float64
	}{
		{"steady", Sample{0, base}, Sample{2048, base.Add(2 * time.Second)}, 1024},
		{"no elapsed time", Sample{0, base}, Sample{2048, base}, 0},
		{"counter reset", Sample{4096, base}, Sample{1024, base.Add(time.Second)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Throughput(tt.prev, tt.cur), 0.001)
		})
	}
}

func TestETA(t *testing.T) {
	eta, ok := ETA(10_000, 4_000, 1_000)
	assert.True(t, ok)
	assert.Equal(t, 6*time.Second, eta)

	_, ok = ETA(UnknownSize, 4_000, 1_000)
	assert.False(t, ok, "unknown total has no eta")

	_, ok = ETA(10_000, 4_000, 0)
	assert.False(t, ok, "stalled transfer has no eta")

	eta, ok = ETA(10_000, 10_000, 500)
	assert.True(t, ok)
	assert.Zero(t, eta)
}

func TestSnapshot_Percent(t *testing.T) {
	assert.Equal(t, 50.0, Snapshot{Transferred: 50, Total: 100}.Percent())
	assert.Equal(t, -1.0, Snapshot{Transferred: 50, Total: UnknownSize}.Percent())
	assert.Equal(t, 100.0, Snapshot{Transferred: 0, Total: 0}.Percent())
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMeter_SamplesOncePerInterval(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMeter()
	m.now = clock.Now

	_, updated := m.Observe(0, 100_000)
	assert.False(t, updated)

	clock.Advance(300 * time.Millisecond)
	snap, updated := m.Observe(8192, 100_000)
	assert.False(t, updated, "sub-second samples are ignored")
	assert.Zero(t, snap.Rate)
	assert.Equal(t, int64(8192), snap.Transferred)

	clock.Advance(700 * time.Millisecond)
	snap, updated = m.Observe(10_000, 100_000)
	assert.True(t, updated)
	assert.InDelta(t, 10_000, snap.Rate, 0.001)
	assert.True(t, snap.ETAKnown)
	assert.Equal(t, 9*time.Second, snap.ETA)

	clock.Advance(2 * time.Second)
	snap, updated = m.Observe(30_000, 100_000)
	assert.True(t, updated)
	assert.InDelta(t, 10_000, snap.Rate, 0.001)
	assert.Equal(t, snap, m.Snapshot())
}

func TestMeter_ResetAndNewAttempt(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMeter()
	m.now = clock.Now

	m.Observe(0, UnknownSize)
	clock.Advance(time.Second)
	snap, _ := m.Observe(5_000, UnknownSize)
	assert.InDelta(t, 5_000, snap.Rate, 0.001)
	assert.False(t, snap.ETAKnown)

	m.Reset()
	assert.Zero(t, m.Snapshot().Rate)

	// A fresh attempt restarts the counter from zero
	clock.Advance(time.Second)
	snap, updated := m.Observe(1_000, UnknownSize)
	assert.False(t, updated)
	assert.Zero(t, snap.Rate)
}
