package testutils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Chichichkin/LogServer/internal/logging"
)

// MockBatchWriter records every batch it receives. While FailNext > 0 calls fail and decrement it.
type MockBatchWriter struct {
	Batches    [][]logging.LogEntry
	mu         sync.Mutex
	ShouldFail bool
	FailNext   int
	Calls      int
	Delay      time.Duration
}

func (m *MockBatchWriter) WriteBatch(channel string, entries []logging.LogEntry) (int, error) {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.ShouldFail {
		return 0, fmt.Errorf("mock write failed")
	}
	if m.FailNext > 0 {
		m.FailNext--
		return 0, fmt.Errorf("mock write failed")
	}

	batch := make([]logging.LogEntry, len(entries))
	copy(batch, entries)
	m.Batches = append(m.Batches, batch)
	return len(entries), nil
}

func (m *MockBatchWriter) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
}

func (m *MockBatchWriter) GetBatches() [][]logging.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]logging.LogEntry, len(m.Batches))
	copy(out, m.Batches)
	return out
}

// Messages flattens the written batches into their messages, in write order.
func (m *MockBatchWriter) Messages() []string {
	var messages []string
	for _, batch := range m.GetBatches() {
		for _, entry := range batch {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

func (m *MockBatchWriter) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

type MockEnqueuer struct {
	Entries    []logging.LogEntry
	mu         sync.Mutex
	ShouldFail bool
}

func (m *MockEnqueuer) Enqueue(entry logging.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return fmt.Errorf("mock enqueue failed")
	}
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockEnqueuer) GetEntries() []logging.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]logging.LogEntry, len(m.Entries))
	copy(out, m.Entries)
	return out
}

// StaticConfigs serves Default for every channel unless an override is present.
type StaticConfigs struct {
	Default   logging.ChannelConfig
	Overrides map[string]logging.ChannelConfig
}

func (s StaticConfigs) ChannelConfig(channel string) logging.ChannelConfig {
	if cfg, ok := s.Overrides[channel]; ok {
		return cfg
	}
	return s.Default
}

func Entry(channel, message string) logging.LogEntry {
	return logging.LogEntry{
		Channel:   channel,
		Level:     logging.LevelInfo,
		Message:   message,
		Timestamp: "2026-01-01T00:00:00.000Z",
	}
}

func Entries(channel string, n int) []logging.LogEntry {
	entries := make([]logging.LogEntry, n)
	for i := range entries {
		entries[i] = Entry(channel, fmt.Sprintf("m%03d", i))
	}
	return entries
}

// ReadLines returns the lines of a file on fs, failing the test on error.
func ReadLines(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return lines
}

// AppendLines appends lines to a file on the OS filesystem.
func AppendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
}
