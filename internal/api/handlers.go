package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Chichichkin/LogServer/internal/applog"
	"github.com/Chichichkin/LogServer/internal/config"
	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/logging/queue"
	"github.com/Chichichkin/LogServer/internal/metrics"
	"github.com/Chichichkin/LogServer/internal/validation"
	"github.com/Chichichkin/LogServer/internal/writer"
)

const channelNameRule = "required,max=128,excludesall=/\\."

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type batchResponse struct {
	OK       bool `json:"ok"`
	Accepted int  `json:"accepted"`
	Rejected int  `json:"rejected"`
}

type channelInfo struct {
	Name      string                   `json:"name"`
	Config    logging.ChannelConfig    `json:"config"`
	Files     []writer.FileInfo        `json:"files"`
	TotalSize int64                    `json:"totalSize"`
	Metrics   *metrics.ChannelSnapshot `json:"metrics"`
}

type configResponse struct {
	OK     bool                  `json:"ok"`
	Config logging.ChannelConfig `json:"config"`
}

type metricsResponse struct {
	QueueDepth int                                `json:"queueDepth"`
	QueueStats map[string]queue.QueueStat         `json:"queueStats"`
	Channels   map[string]metrics.ChannelSnapshot `json:"channels"`
}

type healthResponse struct {
	Status     string  `json:"status"`
	Uptime     float64 `json:"uptime"`
	QueueDepth int     `json:"queueDepth"`
}

// Log accepts a single entry.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := readJSON(r, &raw); err != nil {
		badBody(w, err)
		return
	}

	entry, err := parseEntry(raw, h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid log entry", validationDetails(err))
		return
	}

	if err := h.Queue.Enqueue(entry); err != nil {
		h.enqueueFailed(w, entry.Channel, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// LogBatch accepts an array of entries. Invalid items are counted and skipped.
func (h *Handler) LogBatch(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := readJSON(r, &raw); err != nil {
		badBody(w, err)
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		respondError(w, http.StatusBadRequest, "Expected array of log entries", nil)
		return
	}

	now := h.now()
	resp := batchResponse{OK: true}
	for _, item := range items {
		entry, err := parseEntry(item, now)
		if err != nil {
			resp.Rejected++
			continue
		}
		if err := h.Queue.Enqueue(entry); err != nil {
			applog.Warn().Err(err).Str("channel", entry.Channel).Msg("Batch entry rejected by queue")
			resp.Rejected++
			continue
		}
		resp.Accepted++
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) enqueueFailed(w http.ResponseWriter, channel string, err error) {
	if errors.Is(err, queue.ErrQueueFull) {
		respondError(w, http.StatusServiceUnavailable, "Channel queue is full", nil)
		return
	}
	applog.Error().Err(err).Str("channel", sanitizeLogValue(channel)).Msg("Failed to enqueue log entry")
	respondError(w, http.StatusInternalServerError, "Failed to store log entry", nil)
}

// ListChannels describes every channel that has files on disk, has seen entries since
// startup or carries a configuration override.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	names, err := h.Files.Channels()
	if err != nil {
		applog.Error().Err(err).Msg("Failed to list channels")
		respondError(w, http.StatusInternalServerError, "Failed to list channels", nil)
		return
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		seen[name] = struct{}{}
	}
	add := func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for name := range h.Metrics.AllMetrics() {
		add(name)
	}
	for _, name := range h.Channels.Configured() {
		add(name)
	}
	sort.Strings(names)

	infos := make([]channelInfo, 0, len(names))
	for _, name := range names {
		info, err := h.describe(name)
		if err != nil {
			applog.Error().Err(err).Str("channel", name).Msg("Failed to describe channel")
			respondError(w, http.StatusInternalServerError, "Failed to read channel files", nil)
			return
		}
		infos = append(infos, info)
	}
	respondJSON(w, http.StatusOK, infos)
}

func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	name, ok := channelParam(w, r)
	if !ok {
		return
	}

	info, err := h.describe(name)
	if err != nil {
		applog.Error().Err(err).Str("channel", name).Msg("Failed to describe channel")
		respondError(w, http.StatusInternalServerError, "Failed to read channel files", nil)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// SetChannelConfig applies the given fields on top of the channel's current configuration.
func (h *Handler) SetChannelConfig(w http.ResponseWriter, r *http.Request) {
	name, ok := channelParam(w, r)
	if !ok {
		return
	}

	var update config.ChannelOverride
	if err := readJSON(r, &update); err != nil {
		badBody(w, err)
		return
	}

	cfg, err := h.Channels.SetChannelConfig(name, update)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid channel config", validationDetails(err))
		return
	}
	applog.Info().Str("channel", name).Interface("config", cfg).Msg("Channel config updated")
	respondJSON(w, http.StatusOK, configResponse{OK: true, Config: cfg})
}

func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, metricsResponse{
		QueueDepth: h.Queue.TotalQueueDepth(),
		QueueStats: h.Queue.QueueStats(),
		Channels:   h.Metrics.AllMetrics(),
	})
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.Queue.FlushAll(); err != nil {
		applog.Error().Err(err).Msg("Manual flush failed")
		respondError(w, http.StatusInternalServerError, "Flush failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true, Message: "All queues flushed"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Uptime:     h.now().Sub(h.started).Seconds(),
		QueueDepth: h.Queue.TotalQueueDepth(),
	})
}

func (h *Handler) describe(name string) (channelInfo, error) {
	files, err := h.Files.ChannelFileInfo(name)
	if err != nil {
		return channelInfo{}, err
	}
	info := channelInfo{
		Name:      name,
		Config:    h.Channels.ChannelConfig(name),
		Files:     files.Files,
		TotalSize: files.TotalSize,
	}
	if snap, ok := h.Metrics.ChannelMetrics(name); ok {
		info.Metrics = &snap
	}
	return info, nil
}

func channelParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if err := validation.Validator().Var(name, channelNameRule); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid channel name", nil)
		return "", false
	}
	return name, true
}

func validationDetails(err error) any {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return err.Error()
}
