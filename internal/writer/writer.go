package writer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/Chichichkin/LogServer/internal/applog"
	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/metrics"
)

const (
	// create the file when missing and always write at its end
	appendFlags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	fileMode    = 0o644
	dirMode     = 0o755
)

type FlushRecorder interface {
	RecordFlush(channel string, count, bytes int, latency time.Duration)
}

// Writer appends batches to per-channel files under dir and rotates them by size.
// Callers must not write the same channel from two goroutines at once.
type Writer struct {
	fs         afero.Fs
	dir        string
	configs    logging.ChannelConfigProvider
	recorder   FlushRecorder
	collectors *metrics.Collectors
}

type Option func(*Writer)

func WithCollectors(c *metrics.Collectors) Option {
	return func(w *Writer) { w.collectors = c }
}

func New(fs afero.Fs, dir string, configs logging.ChannelConfigProvider, recorder FlushRecorder, opts ...Option) *Writer {
	w := &Writer{
		fs:       fs,
		dir:      dir,
		configs:  configs,
		recorder: recorder,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Init creates the logs directory.
func (w *Writer) Init() error {
	if err := w.fs.MkdirAll(w.dir, dirMode); err != nil {
		return fmt.Errorf("failed to create logs directory %s: %w", w.dir, err)
	}
	return nil
}

func (w *Writer) activePath(channel string, cfg logging.ChannelConfig) string {
	return filepath.Join(w.dir, channel+"."+cfg.Format.Ext())
}

func (w *Writer) rotatedPath(channel string, generation int, cfg logging.ChannelConfig) string {
	return filepath.Join(w.dir, channel+"."+strconv.Itoa(generation)+"."+cfg.Format.Ext())
}

// WriteBatch rotates the channel's active file if it already reached MaxFileSize,
// then appends the whole batch with a single write.
func (w *Writer) WriteBatch(channel string, entries []logging.LogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	start := time.Now()
	cfg := w.configs.ChannelConfig(channel)

	if err := w.rotateIfNeeded(channel, cfg); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	for _, entry := range entries {
		if err := formatEntry(&buf, cfg.Format, entry); err != nil {
			return 0, fmt.Errorf("failed to format entry for channel %s: %w", channel, err)
		}
	}

	path := w.activePath(channel, cfg)
	f, err := w.fs.OpenFile(path, appendFlags, fileMode)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("failed to get file stats: %w", err)
	}
	size := info.Size()

	n, err := f.Write(buf.Bytes())
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close log file: %w", closeErr)
	} else if err != nil {
		err = fmt.Errorf("failed to write log file: %w", err)
	}
	if err != nil {
		// the batch is retried as a whole, so no part of it may stay on disk
		if truncErr := w.truncate(path, size); truncErr != nil {
			applog.Error().
				Err(truncErr).
				Str("channel", channel).
				Int("partial_bytes", n).
				Msg("Failed to discard partially written batch")
			return n, errors.Join(err, truncErr)
		}
		return 0, err
	}

	if w.recorder != nil {
		w.recorder.RecordFlush(channel, len(entries), n, time.Since(start))
	}
	return n, nil
}

// truncate cuts path back to size.
func (w *Writer) truncate(path string, size int64) error {
	f, err := w.fs.OpenFile(path, os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("failed to reopen log file: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to truncate log file: %w", err)
	}
	return f.Close()
}

func (w *Writer) exists(path string) (bool, error) {
	_, err := w.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// rotateIfNeeded shifts <channel>.<n>.<ext> to n+1, dropping generation MaxFiles and
// anything above it left from a larger MaxFiles, and moves the active file to generation 1.
func (w *Writer) rotateIfNeeded(channel string, cfg logging.ChannelConfig) error {
	active := w.activePath(channel, cfg)
	info, err := w.fs.Stat(active)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to get file stats: %w", err)
	}
	if info.Size() < cfg.MaxFileSize {
		return nil
	}

	// generations are contiguous from 1, so the first missing one ends the sweep
	for i := cfg.MaxFiles; ; i++ {
		oldest := w.rotatedPath(channel, i, cfg)
		ok, err := w.exists(oldest)
		if err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
		if !ok {
			break
		}
		if err := w.fs.Remove(oldest); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	for i := cfg.MaxFiles - 1; i >= 1; i-- {
		from := w.rotatedPath(channel, i, cfg)
		ok, err := w.exists(from)
		if err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
		if !ok {
			continue
		}
		if err := w.fs.Rename(from, w.rotatedPath(channel, i+1, cfg)); err != nil {
			return fmt.Errorf("failed to rename log file: %w", err)
		}
	}

	if err := w.fs.Rename(active, w.rotatedPath(channel, 1, cfg)); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	w.collectors.RotationPerformed(channel)
	applog.Info().
		Str("channel", channel).
		Int64("size", info.Size()).
		Msg("Rotated log file")
	return nil
}
