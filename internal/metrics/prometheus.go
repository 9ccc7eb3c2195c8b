package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "logserver"

// Drop reasons reported on DroppedEntries.
const (
	DropReasonOverflow    = "overflow"
	DropReasonMaxAttempts = "max_attempts"
)

// Collectors exports the pipeline counters to Prometheus. A nil *Collectors is valid and records nothing.
type Collectors struct {
	EntriesTotal   *prometheus.CounterVec
	BytesWritten   *prometheus.CounterVec
	Flushes        *prometheus.CounterVec
	FlushLatency   *prometheus.HistogramVec
	Rotations      *prometheus.CounterVec
	WriteErrors    *prometheus.CounterVec
	DroppedEntries *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec
}

// NewCollectors creates the collectors and registers them on reg.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		EntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_total",
				Help:      "Total number of log entries accepted per channel",
			},
			[]string{"channel"},
		),
		BytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_written_total",
				Help:      "Total number of bytes appended to channel files",
			},
			[]string{"channel"},
		),
		Flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushes_total",
				Help:      "Total number of successful batch writes",
			},
			[]string{"channel"},
		),
		FlushLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_latency_seconds",
				Help:      "Wall-clock duration of batch writes",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"channel"},
		),
		Rotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotations_total",
				Help:      "Total number of file rotations",
			},
			[]string{"channel"},
		),
		WriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "write_errors_total",
				Help:      "Total number of failed batch writes",
			},
			[]string{"channel"},
		),
		DroppedEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_entries_total",
				Help:      "Total number of entries discarded by the retry or overflow policy",
			},
			[]string{"channel", "reason"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of entries waiting to be flushed",
			},
			[]string{"channel"},
		),
	}

	for _, collector := range []prometheus.Collector{
		c.EntriesTotal, c.BytesWritten, c.Flushes, c.FlushLatency,
		c.Rotations, c.WriteErrors, c.DroppedEntries, c.QueueDepth,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collectors) entryRecorded(channel string) {
	if c == nil {
		return
	}
	c.EntriesTotal.WithLabelValues(channel).Inc()
}

func (c *Collectors) flushRecorded(channel string, _ int, bytes int, latency time.Duration) {
	if c == nil {
		return
	}
	c.BytesWritten.WithLabelValues(channel).Add(float64(bytes))
	c.Flushes.WithLabelValues(channel).Inc()
	c.FlushLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

func (c *Collectors) RotationPerformed(channel string) {
	if c == nil {
		return
	}
	c.Rotations.WithLabelValues(channel).Inc()
}

func (c *Collectors) WriteFailed(channel string) {
	if c == nil {
		return
	}
	c.WriteErrors.WithLabelValues(channel).Inc()
}

func (c *Collectors) EntriesDropped(channel, reason string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.DroppedEntries.WithLabelValues(channel, reason).Add(float64(n))
}

func (c *Collectors) SetQueueDepth(channel string, depth int) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(channel).Set(float64(depth))
}
