package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_FIFOPerKey(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	var mu sync.Mutex
	var got []int
	results := make([]<-chan error, 0, 50)
	for i := 0; i < 50; i++ {
		i := i
		results = append(results, m.Submit(context.Background(), 1, func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}
	for _, r := range results {
		require.NoError(t, <-r)
	}

	for i := range got {
		assert.Equal(t, i, got[i])
	}
	assert.Equal(t, int64(0), m.Pending())
}

func TestSubmit_KeysRunConcurrently(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	block := make(chan struct{})
	slow := m.Submit(context.Background(), 1, func(context.Context) error {
		<-block
		return nil
	})
	fast := m.Submit(context.Background(), 2, func(context.Context) error { return nil })

	select {
	case err := <-fast:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("key 2 blocked by key 1")
	}
	assert.Equal(t, int64(1), m.Pending())
	close(block)
	assert.NoError(t, <-slow)
}

func TestSubmit_ErrorPropagates(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	boom := errors.New("boom")
	err := <-m.Submit(context.Background(), 9, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), m.GetMetrics().Failed)
}

func TestSubmit_PanicBecomesError(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	err := <-m.Submit(context.Background(), 3, func(context.Context) error { panic("bad") })
	assert.Error(t, err)

	// 队列在 panic 后仍可使用
	assert.NoError(t, <-m.Submit(context.Background(), 3, func(context.Context) error { return nil }))
}

func TestSubmit_QueueFull(t *testing.T) {
	m := New(&Config{QueueCapacity: 1}, nil)
	defer m.Shutdown(context.Background())

	started := make(chan struct{})
	block := make(chan struct{})
	first := m.Submit(context.Background(), 1, func(context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started

	second := m.Submit(context.Background(), 1, func(context.Context) error { return nil })
	third := m.Submit(context.Background(), 1, func(context.Context) error { return nil })
	assert.ErrorIs(t, <-third, ErrWriteQueueFull)

	close(block)
	assert.NoError(t, <-first)
	assert.NoError(t, <-second)
}

func TestExecute_Timeout(t *testing.T) {
	m := New(&Config{WriteTimeout: 20 * time.Millisecond}, nil)
	defer m.Shutdown(context.Background())

	block := make(chan struct{})
	defer close(block)
	err := m.Execute(context.Background(), 1, func(context.Context) error {
		<-block
		return nil
	})
	assert.ErrorIs(t, err, ErrWriteTimeout)
}

func TestShutdown_DrainsPending(t *testing.T) {
	m := New(nil, nil)

	var ran atomic.Int64
	for i := 0; i < 20; i++ {
		m.Submit(context.Background(), int64(i%3), func(context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		})
	}

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, int64(20), ran.Load())
	assert.True(t, m.IsClosed())

	err := <-m.Submit(context.Background(), 1, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrWriteQueueClosed)
}

func TestWait(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	block := make(chan struct{})
	m.Submit(context.Background(), 1, func(context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)

	close(block)
	assert.NoError(t, m.Wait(context.Background()))
}

func TestIdleCleanup(t *testing.T) {
	m := New(&Config{IdleTimeout: 20 * time.Millisecond}, nil)
	defer m.Shutdown(context.Background())

	require.NoError(t, <-m.Submit(context.Background(), 5, func(context.Context) error { return nil }))
	assert.Equal(t, 1, m.QueueCount())

	assert.Eventually(t, func() bool { return m.QueueCount() == 0 }, time.Second, 5*time.Millisecond)

	// 清理后同一个键可以重新使用
	assert.NoError(t, <-m.Submit(context.Background(), 5, func(context.Context) error { return nil }))
}
