package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LogServer/internal/config"
	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/testutils"
)

func makeTestConfig(sources ...config.SourceConfig) Config {
	return Config{
		Sources: sources,
		IngestConfig: config.IngestConfig{
			ScanInterval: 10 * time.Millisecond,
			Poll:         true,
		},
	}
}

func runService(t *testing.T, s *Service) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Error("tail service did not stop")
		}
	})
	return cancel
}

func messages(entries []logging.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestService_ReadsFromStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	testutils.AppendLines(t, path, "first", "second")

	enq := &testutils.MockEnqueuer{}
	s := NewService(makeTestConfig(config.SourceConfig{Path: path, Channel: "app", Level: logging.LevelWarn, FromStart: true}), enq)
	runService(t, s)

	assert.Eventually(t, func() bool {
		return len(enq.GetEntries()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	entries := enq.GetEntries()
	assert.Equal(t, []string{"first", "second"}, messages(entries))
	assert.Equal(t, "app", entries[0].Channel)
	assert.Equal(t, logging.LevelWarn, entries[0].Level)
	assert.Equal(t, path, entries[0].Data["file"])
	assert.NotEmpty(t, entries[0].Timestamp)
}

func TestService_FollowsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	testutils.AppendLines(t, path, "old")

	enq := &testutils.MockEnqueuer{}
	s := NewService(makeTestConfig(config.SourceConfig{Path: path, Channel: "app"}), enq)
	runService(t, s)

	assert.Eventually(t, func() bool {
		return s.Metrics().Snapshot().FilesActive == 1
	}, 5*time.Second, 10*time.Millisecond)
	// let the tailer seek to the end before appending
	time.Sleep(300 * time.Millisecond)

	testutils.AppendLines(t, path, "new1", "new2")

	assert.Eventually(t, func() bool {
		return len(enq.GetEntries()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	entries := enq.GetEntries()
	assert.Equal(t, []string{"new1", "new2"}, messages(entries))
	assert.Equal(t, logging.LevelInfo, entries[0].Level)
	assert.Equal(t, int64(2), s.Metrics().Snapshot().LinesRead)
}

func TestService_DiscoversFilesMatchingGlob(t *testing.T) {
	dir := t.TempDir()
	enq := &testutils.MockEnqueuer{}
	s := NewService(makeTestConfig(config.SourceConfig{Path: filepath.Join(dir, "*.log"), Channel: "svc", FromStart: true}), enq)
	runService(t, s)

	testutils.AppendLines(t, filepath.Join(dir, "a.log"), "from-a")
	testutils.AppendLines(t, filepath.Join(dir, "b.log"), "from-b")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("nope\n"), 0o644))

	assert.Eventually(t, func() bool {
		return len(enq.GetEntries()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"from-a", "from-b"}, messages(enq.GetEntries()))
	assert.Equal(t, 2, s.Metrics().Snapshot().FilesDiscovered)
}

func TestService_CountsEnqueueFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	testutils.AppendLines(t, path, "x", "y")

	enq := &testutils.MockEnqueuer{ShouldFail: true}
	s := NewService(makeTestConfig(config.SourceConfig{Path: path, Channel: "app", FromStart: true}), enq)
	runService(t, s)

	assert.Eventually(t, func() bool {
		return s.Metrics().Snapshot().EnqueueFailures == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Empty(t, enq.GetEntries())
}

func TestService_IdleTimeoutReleasesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quiet.log")
	testutils.AppendLines(t, path, "only")

	enq := &testutils.MockEnqueuer{}
	cfg := makeTestConfig(config.SourceConfig{Path: path, Channel: "quiet", FromStart: true, IdleTimeout: 50 * time.Millisecond})
	cfg.ScanInterval = time.Hour
	s := NewService(cfg, enq)
	runService(t, s)

	assert.Eventually(t, func() bool {
		return len(enq.GetEntries()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return s.Metrics().Snapshot().FilesActive == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, s.Metrics().Snapshot().FilesDiscovered)
	assert.Equal(t, []string{"only"}, messages(enq.GetEntries()))
}

func TestService_StopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	testutils.AppendLines(t, path, "x")

	s := NewService(makeTestConfig(config.SourceConfig{Path: path, Channel: "app"}), &testutils.MockEnqueuer{})
	cancel := runService(t, s)

	assert.Eventually(t, func() bool {
		return s.Metrics().Snapshot().FilesActive == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	assert.Eventually(t, func() bool {
		return s.Metrics().Snapshot().FilesActive == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "file-tail", s.String())
}

func TestService_ResumesIdleFileWhereItStopped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.log")
	testutils.AppendLines(t, path, "one")

	enq := &testutils.MockEnqueuer{}
	cfg := makeTestConfig(config.SourceConfig{Path: path, Channel: "resume", FromStart: true, IdleTimeout: 50 * time.Millisecond})
	cfg.ScanInterval = 100 * time.Millisecond
	s := NewService(cfg, enq)
	runService(t, s)

	assert.Eventually(t, func() bool {
		return s.Metrics().Snapshot().FilesDiscovered >= 2
	}, 10*time.Second, 20*time.Millisecond, "file should be released and picked up again")

	testutils.AppendLines(t, path, "two")

	assert.Eventually(t, func() bool {
		return len(enq.GetEntries()) >= 2
	}, 10*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, messages(enq.GetEntries()))
}
