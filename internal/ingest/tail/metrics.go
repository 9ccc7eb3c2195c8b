package tail

import (
	"sync"
)

type SourceMetrics struct {
	FilesDiscovered int
	FilesActive     int
	FilesFailed     int
	LinesRead       int64
	EnqueueFailures int64
	mu              sync.RWMutex
}

func (m *SourceMetrics) IncFilesDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesDiscovered++
}

func (m *SourceMetrics) IncFilesActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesActive++
}

func (m *SourceMetrics) DecFilesActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesActive--
}

func (m *SourceMetrics) IncFilesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
}

func (m *SourceMetrics) IncLinesRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesRead++
}

func (m *SourceMetrics) IncEnqueueFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnqueueFailures++
}

func (m *SourceMetrics) Snapshot() SourceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SourceMetrics{
		FilesDiscovered: m.FilesDiscovered,
		FilesActive:     m.FilesActive,
		FilesFailed:     m.FilesFailed,
		LinesRead:       m.LinesRead,
		EnqueueFailures: m.EnqueueFailures,
	}
}
