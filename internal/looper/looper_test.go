package looper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runLooper(t *testing.T) (*Looper, func()) {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return l, func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	}
}

func TestPostRunsInOrder(t *testing.T) {
	l, stop := runLooper(t)
	defer stop()

	var (
		mu  sync.Mutex
		got []int
	)
	finished := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(finished)
			}
		}))
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestJobsRunOnOneGoroutine(t *testing.T) {
	l, stop := runLooper(t)
	defer stop()

	// a second job can only observe the first job's write if they never overlap
	var inJob bool
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Post(func() {
					if inJob {
						t.Error("jobs overlapped")
					}
					inJob = true
					time.Sleep(10 * time.Microsecond)
					inJob = false
				})
			}
		}()
	}
	wg.Wait()

	flushed := make(chan struct{})
	l.Post(func() { close(flushed) })
	<-flushed
}

func TestPanickingJobDoesNotStopLooper(t *testing.T) {
	l, stop := runLooper(t)
	defer stop()

	ran := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("looper died after panic")
	}
}

func TestPostAfterRunReturnsFalse(t *testing.T) {
	l, stop := runLooper(t)
	stop()
	assert.False(t, l.Post(func() {}))
}

func TestPostBeforeRunIsQueued(t *testing.T) {
	l := New()
	ran := make(chan struct{})
	require.True(t, l.Post(func() { close(ran) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	<-ran
	cancel()
	<-done
}
