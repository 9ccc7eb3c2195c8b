package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LogServer/internal/applog"
)

type mockHTTPServer struct {
	listenErr   error
	shutdownErr error
	stop        chan struct{}
	once        sync.Once
	shutdowns   atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stop: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.shutdowns.Add(1)
	m.once.Do(func() { close(m.stop) })
	return m.shutdownErr
}

type countingService struct {
	starts atomic.Int32
	stops  atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	<-ctx.Done()
	s.stops.Add(1)
	return ctx.Err()
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, int32(1), server.shutdowns.Load())
	assert.Equal(t, "http-server", svc.String())
}

func TestHTTPService_ListenFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address already in use")

	err := NewHTTPService(server, time.Second).Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestHTTPService_ClosedElsewhereIsNotAnError(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = http.ErrServerClosed

	assert.NoError(t, NewHTTPService(server, time.Second).Serve(context.Background()))
	assert.Equal(t, int32(0), server.shutdowns.Load())
}

func TestHTTPService_ShutdownFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.shutdownErr = errors.New("timeout")
	svc := NewHTTPService(server, 0)
	assert.Equal(t, 10*time.Second, svc.shutdownTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Serve(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown failed")
}

func TestTree_RunsAndStopsServices(t *testing.T) {
	tree := NewTree(slog.New(applog.NewSlogHandler()), TreeConfig{ShutdownTimeout: time.Second})

	ingest := &countingService{}
	api := &countingService{}
	tree.AddIngestService(ingest)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	assert.Eventually(t, func() bool {
		return ingest.starts.Load() == 1 && api.starts.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	assert.Equal(t, int32(1), ingest.stops.Load())
	assert.Equal(t, int32(1), api.stops.Load())

	report, err := tree.UnstoppedServiceReport()
	require.NoError(t, err)
	assert.Empty(t, report)
}
