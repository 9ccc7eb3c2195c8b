package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/Chichichkin/LogServer/internal/logging"
)

const VelocityWindow = time.Second

// Tier maps every velocity >= MinVelocity (up to the next tier) to a flush strategy.
type Tier struct {
	MinVelocity int           `koanf:"min_velocity" validate:"gte=0"`
	Interval    time.Duration `koanf:"interval" validate:"gt=0"`
	BatchSize   int           `koanf:"batch_size" validate:"gte=1"`
}

func DefaultTiers() []Tier {
	return []Tier{
		{MinVelocity: 0, Interval: 100 * time.Millisecond, BatchSize: 10},
		{MinVelocity: 10, Interval: 500 * time.Millisecond, BatchSize: 50},
		{MinVelocity: 100, Interval: 1000 * time.Millisecond, BatchSize: 500},
	}
}

type channelMetrics struct {
	entriesTotal    int64
	bytesWritten    int64
	flushCount      int64
	avgFlushLatency float64 // milliseconds
	lastEntryTime   time.Time
	window          []time.Time
}

// ChannelSnapshot is a point-in-time copy of a channel's counters with the computed velocity.
type ChannelSnapshot struct {
	EntriesTotal    int64     `json:"entriesTotal"`
	BytesWritten    int64     `json:"bytesWritten"`
	FlushCount      int64     `json:"flushCount"`
	AvgFlushLatency float64   `json:"avgFlushLatencyMs"`
	LastEntryTime   time.Time `json:"lastEntryTime"`
	Velocity        int       `json:"velocity"`
}

type Tracker struct {
	mu         sync.Mutex
	channels   map[string]*channelMetrics
	tiers      []Tier
	now        func() time.Time
	collectors *Collectors
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithTiers replaces the velocity tiers. An empty slice keeps the defaults.
func WithTiers(tiers []Tier) Option {
	return func(t *Tracker) {
		if len(tiers) == 0 {
			return
		}
		sorted := make([]Tier, len(tiers))
		copy(sorted, tiers)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinVelocity < sorted[j].MinVelocity })
		t.tiers = sorted
	}
}

func WithCollectors(c *Collectors) Option {
	return func(t *Tracker) { t.collectors = c }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		channels: make(map[string]*channelMetrics),
		tiers:    DefaultTiers(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) getOrCreate(channel string) *channelMetrics {
	m, ok := t.channels[channel]
	if !ok {
		m = &channelMetrics{}
		t.channels[channel] = m
	}
	return m
}

// prune drops timestamps at or before now-VelocityWindow. Timestamps are appended in order.
func (m *channelMetrics) prune(now time.Time) {
	cutoff := now.Add(-VelocityWindow)
	i := sort.Search(len(m.window), func(i int) bool { return m.window[i].After(cutoff) })
	if i == 0 {
		return
	}
	m.window = append(m.window[:0], m.window[i:]...)
}

func (t *Tracker) RecordEntry(channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	m := t.getOrCreate(channel)
	m.entriesTotal++
	m.lastEntryTime = now
	m.window = append(m.window, now)
	m.prune(now)

	t.collectors.entryRecorded(channel)
}

func (t *Tracker) RecordFlush(channel string, count, bytes int, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.getOrCreate(channel)
	latencyMs := float64(latency) / float64(time.Millisecond)
	if m.flushCount == 0 {
		m.avgFlushLatency = latencyMs
	} else {
		m.avgFlushLatency = m.avgFlushLatency*0.9 + latencyMs*0.1
	}
	m.bytesWritten += int64(bytes)
	m.flushCount++

	t.collectors.flushRecorded(channel, count, bytes, latency)
}

// Velocity returns the number of arrivals in the trailing second.
func (t *Tracker) Velocity(channel string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.velocityLocked(channel)
}

func (t *Tracker) velocityLocked(channel string) int {
	m, ok := t.channels[channel]
	if !ok {
		return 0
	}
	m.prune(t.now())
	return len(m.window)
}

func (t *Tracker) FlushStrategy(channel string) logging.FlushStrategy {
	return t.StrategyFor(t.Velocity(channel))
}

// StrategyFor maps a velocity to the strategy of the highest tier it reaches.
func (t *Tracker) StrategyFor(velocity int) logging.FlushStrategy {
	tier := t.tiers[0]
	for _, candidate := range t.tiers[1:] {
		if velocity < candidate.MinVelocity {
			break
		}
		tier = candidate
	}
	return logging.FlushStrategy{Interval: tier.Interval, BatchSize: tier.BatchSize}
}

func (t *Tracker) snapshotLocked(channel string, m *channelMetrics) ChannelSnapshot {
	return ChannelSnapshot{
		EntriesTotal:    m.entriesTotal,
		BytesWritten:    m.bytesWritten,
		FlushCount:      m.flushCount,
		AvgFlushLatency: m.avgFlushLatency,
		LastEntryTime:   m.lastEntryTime,
		Velocity:        t.velocityLocked(channel),
	}
}

func (t *Tracker) AllMetrics() map[string]ChannelSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make(map[string]ChannelSnapshot, len(t.channels))
	for channel, m := range t.channels {
		result[channel] = t.snapshotLocked(channel, m)
	}
	return result
}

func (t *Tracker) ChannelMetrics(channel string) (ChannelSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.channels[channel]
	if !ok {
		return ChannelSnapshot{}, false
	}
	return t.snapshotLocked(channel, m), true
}

// Reset forgets every channel. Meant for test isolation.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels = make(map[string]*channelMetrics)
}
