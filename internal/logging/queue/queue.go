package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Chichichkin/LogServer/internal/applog"
	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/metrics"
)

var ErrInvalidEntry = errors.New("log entry has no channel")

// StrategySource is the part of the metrics tracker the queue depends on.
type StrategySource interface {
	RecordEntry(channel string)
	FlushStrategy(channel string) logging.FlushStrategy
}

type channelQueue struct {
	channel   string
	entries   []logging.LogEntry
	timer     *time.Timer
	timerSeq  uint64
	lastFlush time.Time

	failures int
	retryAt  time.Time
	backoff  *backoff.ExponentialBackOff
	dropped  int64

	// serializes writes of this channel so batches reach the writer in swap order
	flushMu sync.Mutex
}

type QueueStat struct {
	Depth     int       `json:"depth"`
	LastFlush time.Time `json:"lastFlush"`
	Failures  int       `json:"failures"`
	Dropped   int64     `json:"dropped"`
}

// Manager owns one queue per channel and decides when their entries are handed to the writer.
type Manager struct {
	writer     logging.BatchWriter
	tracker    StrategySource
	policy     RetryPolicy
	collectors *metrics.Collectors

	mu       sync.Mutex
	queues   map[string]*channelQueue
	shutdown bool
}

type Option func(*Manager)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

func WithCollectors(c *metrics.Collectors) Option {
	return func(m *Manager) { m.collectors = c }
}

func NewManager(writer logging.BatchWriter, tracker StrategySource, opts ...Option) *Manager {
	m := &Manager{
		writer:  writer,
		tracker: tracker,
		policy:  DefaultRetryPolicy(),
		queues:  make(map[string]*channelQueue),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// getOrCreateQueue must be called with m.mu held.
func (m *Manager) getOrCreateQueue(channel string) *channelQueue {
	q, ok := m.queues[channel]
	if !ok {
		q = &channelQueue{
			channel:   channel,
			lastFlush: time.Now(),
			backoff:   m.policy.newBackOff(),
		}
		m.queues[channel] = q
	}
	return q
}

// Enqueue buffers entry on its channel. After Shutdown the entry is written synchronously
// and a write error is returned to the caller.
func (m *Manager) Enqueue(entry logging.LogEntry) error {
	if entry.Channel == "" {
		return ErrInvalidEntry
	}

	m.mu.Lock()
	q := m.getOrCreateQueue(entry.Channel)

	if m.shutdown {
		q.entries = append(q.entries, entry)
		m.tracker.RecordEntry(entry.Channel)
		m.mu.Unlock()
		return m.flushChannel(q, true)
	}

	if err := m.makeRoomLocked(q); err != nil {
		m.mu.Unlock()
		return err
	}
	q.entries = append(q.entries, entry)
	m.tracker.RecordEntry(entry.Channel)
	flushNow := m.scheduleFlushLocked(q)
	m.collectors.SetQueueDepth(q.channel, len(q.entries))
	m.mu.Unlock()

	if flushNow {
		// a failed write is kept for retry, nothing for the producer to act on
		_ = m.flushChannel(q, false)
	}
	return nil
}

func (m *Manager) makeRoomLocked(q *channelQueue) error {
	if m.policy.MaxPending <= 0 || len(q.entries) < m.policy.MaxPending {
		return nil
	}
	if m.policy.Overflow == OverflowRejectNew {
		return fmt.Errorf("%w: %s", ErrQueueFull, q.channel)
	}
	m.dropOldestLocked(q, len(q.entries)-m.policy.MaxPending+1)
	return nil
}

func (m *Manager) dropOldestLocked(q *channelQueue, n int) {
	if n <= 0 {
		return
	}
	q.entries = q.entries[n:]
	q.dropped += int64(n)
	m.collectors.EntriesDropped(q.channel, metrics.DropReasonOverflow, n)
	applog.Warn().
		Str("channel", q.channel).
		Int("dropped", n).
		Int("max_pending", m.policy.MaxPending).
		Msg("Channel queue full, dropping oldest entries")
}

// scheduleFlushLocked replaces the channel timer and reports whether the caller
// must flush right away.
func (m *Manager) scheduleFlushLocked(q *channelQueue) bool {
	m.cancelTimerLocked(q)

	if m.shutdown {
		return true
	}

	if q.failures > 0 {
		if wait := time.Until(q.retryAt); wait > 0 {
			m.armTimerLocked(q, wait)
			return false
		}
	}

	strategy := m.tracker.FlushStrategy(q.channel)
	if len(q.entries) >= strategy.BatchSize {
		return true
	}
	m.armTimerLocked(q, strategy.Interval)
	return false
}

func (m *Manager) armTimerLocked(q *channelQueue, d time.Duration) {
	q.timerSeq++
	seq := q.timerSeq
	q.timer = time.AfterFunc(d, func() { m.onTimer(q, seq) })
}

// cancelTimerLocked stops the armed timer. Bumping the sequence turns a callback
// that already fired into a no-op.
func (m *Manager) cancelTimerLocked(q *channelQueue) {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.timerSeq++
}

func (m *Manager) onTimer(q *channelQueue, seq uint64) {
	m.mu.Lock()
	if q.timerSeq != seq {
		m.mu.Unlock()
		return
	}
	q.timer = nil
	m.mu.Unlock()

	_ = m.flushChannel(q, false)
}

// flushChannel swaps out the pending entries and writes them. Unless force is set,
// a channel still inside its retry backoff is left for the retry timer.
func (m *Manager) flushChannel(q *channelQueue, force bool) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	m.mu.Lock()
	if len(q.entries) == 0 {
		m.mu.Unlock()
		return nil
	}
	if !force && !m.shutdown && q.failures > 0 {
		if wait := time.Until(q.retryAt); wait > 0 {
			m.cancelTimerLocked(q)
			m.armTimerLocked(q, wait)
			m.mu.Unlock()
			return nil
		}
	}
	m.cancelTimerLocked(q)
	batch := q.entries
	q.entries = nil
	q.lastFlush = time.Now()
	m.collectors.SetQueueDepth(q.channel, 0)
	m.mu.Unlock()

	_, err := m.writer.WriteBatch(q.channel, batch)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		if q.failures > 0 {
			q.failures = 0
			q.retryAt = time.Time{}
			q.backoff.Reset()
		}
		return nil
	}
	return m.handleFailureLocked(q, batch, err)
}

func (m *Manager) handleFailureLocked(q *channelQueue, batch []logging.LogEntry, err error) error {
	m.collectors.WriteFailed(q.channel)
	q.failures++

	if m.policy.exhausted(q.failures) {
		attempts := q.failures
		q.dropped += int64(len(batch))
		q.failures = 0
		q.retryAt = time.Time{}
		q.backoff.Reset()
		m.collectors.EntriesDropped(q.channel, metrics.DropReasonMaxAttempts, len(batch))
		applog.Error().
			Err(err).
			Str("channel", q.channel).
			Int("entries", len(batch)).
			Int("attempts", attempts).
			Msg("Dropping batch after repeated write failures")

		if len(q.entries) > 0 && !m.shutdown && q.timer == nil {
			m.armTimerLocked(q, m.tracker.FlushStrategy(q.channel).Interval)
		}
		return fmt.Errorf("dropped %d entries of channel %s after %d attempts: %w", len(batch), q.channel, attempts, err)
	}

	// put the failed batch back in front of whatever arrived during the write
	q.entries = append(batch, q.entries...)
	if m.policy.Overflow == OverflowDropOldest && m.policy.MaxPending > 0 {
		m.dropOldestLocked(q, len(q.entries)-m.policy.MaxPending)
	}
	m.collectors.SetQueueDepth(q.channel, len(q.entries))

	delay := q.backoff.NextBackOff()
	q.retryAt = time.Now().Add(delay)
	if !m.shutdown {
		m.cancelTimerLocked(q)
		m.armTimerLocked(q, delay)
	}

	applog.Error().
		Err(err).
		Str("channel", q.channel).
		Int("entries", len(batch)).
		Int("failures", q.failures).
		Dur("retry_in", delay).
		Msg("Error flushing channel")
	return fmt.Errorf("failed to flush channel %s: %w", q.channel, err)
}

// FlushAll writes every channel's pending entries, ignoring retry backoff.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	queues := make([]*channelQueue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	var errs []error
	for _, q := range queues {
		if err := m.flushChannel(q, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops buffering and drains every channel. Later calls do nothing.
// Entries enqueued afterwards are written through immediately.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	for _, q := range m.queues {
		m.cancelTimerLocked(q)
	}
	m.mu.Unlock()

	applog.Info().Msg("Shutting down queue, flushing all channels")
	err := m.FlushAll()
	if err != nil {
		applog.Error().Err(err).Msg("Some channels could not be flushed")
	} else {
		applog.Info().Msg("All channels flushed")
	}
	return err
}

func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

func (m *Manager) QueueDepth(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[channel]; ok {
		return len(q.entries)
	}
	return 0
}

func (m *Manager) TotalQueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, q := range m.queues {
		total += len(q.entries)
	}
	return total
}

func (m *Manager) QueueStats() map[string]QueueStat {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[string]QueueStat, len(m.queues))
	for channel, q := range m.queues {
		stats[channel] = QueueStat{
			Depth:     len(q.entries),
			LastFlush: q.lastFlush,
			Failures:  q.failures,
			Dropped:   q.dropped,
		}
	}
	return stats
}
