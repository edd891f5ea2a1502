package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsPeriodically(t *testing.T) {
	var counter int32

	s := New(100*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&counter, 1)
	})

	s.Start()
	assert.True(t, s.IsRunning())

	time.Sleep(350 * time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&counter), int32(3))

	// no ticks after stop
	finalCount := atomic.LoadInt32(&counter)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, finalCount, atomic.LoadInt32(&counter))
}

func TestScheduler_ImmediateRun(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New(time.Hour, func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}, WithImmediateRun())

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected task to run right after Start")
	}
}

func TestScheduler_StopCancelsTaskContext(t *testing.T) {
	started := make(chan struct{})
	var cancelled int32

	s := New(time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
	}, WithImmediateRun())

	s.Start()
	<-started
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := New(100*time.Millisecond, func(context.Context) {})
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestScheduler_DoubleStart(t *testing.T) {
	var counter int32
	s := New(100*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&counter, 1)
	})

	s.Start()
	s.Start()

	time.Sleep(150 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&counter), int32(1))
}
