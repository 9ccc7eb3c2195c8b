// Package tail follows log files on disk and feeds every new line into a channel queue.
package tail

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/hpcloud/tail"

	"github.com/Chichichkin/LogServer/internal/applog"
	"github.com/Chichichkin/LogServer/internal/config"
	"github.com/Chichichkin/LogServer/internal/logging"
)

type Config struct {
	Sources []config.SourceConfig
	config.IngestConfig
}

// Service discovers the files matching each source and tails every one of them in its
// own goroutine. It implements suture.Service.
type Service struct {
	config   Config
	enqueuer logging.Enqueuer
	metrics  *SourceMetrics

	mu      sync.Mutex
	active  map[string]struct{}
	// read position of files released after an idle timeout
	offsets map[string]int64
}

func NewService(cfg Config, enqueuer logging.Enqueuer) *Service {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Second
	}
	return &Service{
		config:   cfg,
		enqueuer: enqueuer,
		metrics:  &SourceMetrics{},
		active:   make(map[string]struct{}),
		offsets:  make(map[string]int64),
	}
}

func (s *Service) Metrics() *SourceMetrics {
	return s.metrics
}

func (s *Service) Serve(ctx context.Context) error {
	applog.Info().Int("sources", len(s.config.Sources)).Msg("Starting file tail service")

	var wg sync.WaitGroup
	defer wg.Wait()

	s.scan(ctx, &wg)

	scanTicker := time.NewTicker(s.config.ScanInterval)
	defer scanTicker.Stop()

	var reportC <-chan time.Time
	if s.config.ReportInterval > 0 {
		reportTicker := time.NewTicker(s.config.ReportInterval)
		defer reportTicker.Stop()
		reportC = reportTicker.C
	}

	for {
		select {
		case <-scanTicker.C:
			s.scan(ctx, &wg)
		case <-reportC:
			s.report()
		case <-ctx.Done():
			applog.Info().Msg("Stopping file tail service")
			return ctx.Err()
		}
	}
}

func (s *Service) String() string {
	return "file-tail"
}

func (s *Service) scan(ctx context.Context, wg *sync.WaitGroup) {
	for _, src := range s.config.Sources {
		files, err := filepath.Glob(src.Path)
		if err != nil {
			applog.Error().Err(err).Str("path", src.Path).Msg("Invalid source pattern")
			continue
		}

		for _, file := range files {
			if !s.claim(file) {
				continue
			}
			s.metrics.IncFilesDiscovered()
			wg.Add(1)
			go func(src config.SourceConfig, file string) {
				defer wg.Done()
				defer s.release(file)
				s.follow(ctx, src, file)
			}(src, file)
		}
	}
}

// claim marks file as tailed and reports whether it was free.
func (s *Service) claim(file string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[file]; ok {
		return false
	}
	s.active[file] = struct{}{}
	return true
}

func (s *Service) release(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, file)
}

// resumeOffset returns where a previously released file was left, if anywhere.
func (s *Service) resumeOffset(file string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset, ok := s.offsets[file]
	return offset, ok
}

func (s *Service) saveOffset(file string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[file] = offset
}

func (s *Service) follow(ctx context.Context, src config.SourceConfig, file string) {
	s.metrics.IncFilesActive()
	defer s.metrics.DecFilesActive()
	defer func() {
		if r := recover(); r != nil {
			applog.Error().Interface("panic", r).Str("file", file).Msg("File tailing panicked")
			s.metrics.IncFilesFailed()
		}
	}()

	location := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if offset, ok := s.resumeOffset(file); ok {
		location = &tail.SeekInfo{Offset: offset, Whence: io.SeekStart}
	} else if src.FromStart {
		location = nil
	}

	t, err := tail.TailFile(file, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     s.config.Poll,
		Location: location,
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		applog.Error().Err(err).Str("file", file).Msg("Failed to tail file")
		s.metrics.IncFilesFailed()
		return
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	level := src.Level
	if level == "" {
		level = logging.LevelInfo
	}

	applog.Info().Str("file", file).Str("channel", src.Channel).Msg("Tailing file")

	checkTicker := time.NewTicker(time.Second)
	defer checkTicker.Stop()
	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				applog.Warn().Err(line.Err).Str("file", file).Msg("Error reading file")
				continue
			}
			lastActivity = time.Now()
			s.metrics.IncLinesRead()

			entry := logging.LogEntry{
				Channel:   src.Channel,
				Level:     level,
				Message:   line.Text,
				Timestamp: logging.Now(),
				Data:      map[string]any{"file": file},
			}
			if err := s.enqueuer.Enqueue(entry); err != nil {
				s.metrics.IncEnqueueFailures()
				applog.Warn().Err(err).Str("channel", src.Channel).Msg("Failed to enqueue tailed line")
			}

		case <-checkTicker.C:
			// wakes up from blocking line reads to check the idle timeout
			if src.IdleTimeout > 0 && time.Since(lastActivity) > src.IdleTimeout {
				if offset, err := t.Tell(); err == nil {
					s.saveOffset(file, offset)
				}
				applog.Info().Str("file", file).Dur("idle", src.IdleTimeout).Msg("Stopped tailing idle file")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) report() {
	m := s.metrics.Snapshot()
	applog.Info().
		Int("files_active", m.FilesActive).
		Int("files_discovered", m.FilesDiscovered).
		Int("files_failed", m.FilesFailed).
		Int64("lines_read", m.LinesRead).
		Int64("enqueue_failures", m.EnqueueFailures).
		Msg("File tail metrics")
}
