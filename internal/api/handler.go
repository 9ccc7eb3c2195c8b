// Package api exposes log ingestion, channel introspection and admin endpoints over HTTP.
package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chichichkin/LogServer/internal/config"
	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/logging/queue"
	"github.com/Chichichkin/LogServer/internal/metrics"
	"github.com/Chichichkin/LogServer/internal/writer"
)

type Queue interface {
	logging.Enqueuer
	FlushAll() error
	TotalQueueDepth() int
	QueueStats() map[string]queue.QueueStat
}

type ChannelStore interface {
	logging.ChannelConfigProvider
	SetChannelConfig(channel string, update config.ChannelOverride) (logging.ChannelConfig, error)
	Configured() []string
}

type FileIndex interface {
	Channels() ([]string, error)
	ChannelFileInfo(channel string) (writer.ChannelFiles, error)
}

type MetricsSource interface {
	AllMetrics() map[string]metrics.ChannelSnapshot
	ChannelMetrics(channel string) (metrics.ChannelSnapshot, bool)
}

// Handler serves every route. Gatherer is optional and backs /metrics/prometheus.
type Handler struct {
	Queue    Queue
	Channels ChannelStore
	Files    FileIndex
	Metrics  MetricsSource
	Gatherer prometheus.Gatherer

	started time.Time
	now     func() time.Time
}

func NewHandler(q Queue, channels ChannelStore, files FileIndex, m MetricsSource, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		Queue:    q,
		Channels: channels,
		Files:    files,
		Metrics:  m,
		Gatherer: gatherer,
		started:  time.Now(),
		now:      time.Now,
	}
}
