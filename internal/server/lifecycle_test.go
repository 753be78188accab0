package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	name    string
	started atomic.Bool
	stopped chan struct{}
	once    sync.Once
	startFn func() error
	order   *stopOrder
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func newMockService(name string, order *stopOrder) *mockService {
	return &mockService{name: name, stopped: make(chan struct{}), order: order}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.stopped
	return nil
}

func (m *mockService) Stop(context.Context) {
	m.once.Do(func() {
		if m.order != nil {
			m.order.mu.Lock()
			m.order.names = append(m.order.names, m.name)
			m.order.mu.Unlock()
		}
		close(m.stopped)
	})
}

func (m *mockService) isStopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}

func TestLifecycleStartsAndStopsServicesInReverseOrder(t *testing.T) {
	order := &stopOrder{}
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)

	svc1 := newMockService("svc1", order)
	svc2 := newMockService("svc2", order)
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.isStopped())
	assert.True(t, svc2.isStopped())
	assert.Equal(t, []string{"svc2", "svc1"}, order.names)
}

func TestLifecycleReturnsFirstServiceFailure(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)

	healthy := newMockService("healthy", nil)
	broken := newMockService("broken", nil)
	boom := errors.New("bind: address already in use")
	broken.startFn = func() error { return boom }

	lc.Add("healthy", healthy)
	lc.Add("broken", broken)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "service broken")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not stop after failure")
	}
	assert.True(t, healthy.isStopped())
}

func TestLifecycleStopReceivesDeadline(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t), 50*time.Millisecond)

	var hadDeadline atomic.Bool
	release := make(chan struct{})
	lc.Add("svc", &FuncService{
		StartFn: func() error {
			<-release
			return nil
		},
		StopFn: func(ctx context.Context) {
			_, ok := ctx.Deadline()
			hadDeadline.Store(ok)
			close(release)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lc.Run(ctx))
	assert.True(t, hadDeadline.Load())
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func(context.Context) {
			stopped = true
		},
	}

	err := svc.Start()
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop(context.Background())
	assert.True(t, stopped)
}
