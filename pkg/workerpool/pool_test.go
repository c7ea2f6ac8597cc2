package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SubmitReturnsResult(t *testing.T) {
	p := New(&Config{MaxWorkers: 2, QueueSize: 4}, nil)
	defer p.Shutdown(context.Background())

	want := errors.New("task failed")
	assert.Equal(t, want, p.Submit(context.Background(), func(context.Context) error { return want }))
	assert.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))

	m := p.GetMetrics()
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, int64(1), m.Failed)
}

func TestPool_PanicBecomesError(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	err := p.Submit(context.Background(), func(context.Context) error { panic("oops") })
	assert.Error(t, err)

	// worker 仍然可用
	assert.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestPool_QueueFull(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 1}, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	defer func() {
		close(release)
		p.Shutdown(context.Background())
	}()

	require.NoError(t, p.SubmitAsync(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.SubmitAsync(context.Background(), func(context.Context) error { return nil }))
	assert.ErrorIs(t, p.SubmitAsync(context.Background(), func(context.Context) error { return nil }), ErrWorkerPoolFull)
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	p := New(&Config{MaxWorkers: 2, QueueSize: 16}, nil)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.SubmitAsync(context.Background(), func(context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
	assert.True(t, p.IsClosed())
	assert.ErrorIs(t, p.SubmitAsync(context.Background(), func(context.Context) error { return nil }), ErrWorkerPoolClosed)
}

func TestPool_CancelledTaskSkipped(t *testing.T) {
	p := New(&Config{MaxWorkers: 1, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	err := p.Submit(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	assert.Error(t, err)
	assert.False(t, ran.Load())
}
