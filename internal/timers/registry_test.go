// internal/timers/registry_test.go
package timers_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/isde-autofill/internal/timers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedule_Fires(t *testing.T) {
	r := timers.NewRegistry(nil)
	defer r.Close()

	done := make(chan struct{})
	h := r.Schedule(5*time.Millisecond, func() { close(done) })
	assert.NotZero(t, h)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("continuation did not fire")
	}
	assert.Eventually(t, func() bool { return r.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestCancel(t *testing.T) {
	r := timers.NewRegistry(nil)
	defer r.Close()

	var fired atomic.Bool
	h := r.Schedule(20*time.Millisecond, func() { fired.Store(true) })
	assert.Equal(t, 1, r.Pending())
	assert.True(t, r.Cancel(h))
	assert.False(t, r.Cancel(h), "second cancel is a no-op")

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.Zero(t, r.Pending())
}

func TestCancelAll(t *testing.T) {
	r := timers.NewRegistry(nil)
	defer r.Close()

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		r.Schedule(20*time.Millisecond, func() { fired.Add(1) })
	}
	assert.Equal(t, 5, r.Pending())
	assert.Equal(t, 5, r.CancelAll())
	assert.Equal(t, 0, r.CancelAll())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestSleep(t *testing.T) {
	r := timers.NewRegistry(nil)
	defer r.Close()

	t.Run("elapses", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, r.Sleep(context.Background(), 10*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("cancelled by the registry", func(t *testing.T) {
		errCh := make(chan error, 1)
		go func() { errCh <- r.Sleep(context.Background(), time.Minute) }()

		require.Eventually(t, func() bool { return r.Pending() == 1 }, time.Second, time.Millisecond)
		r.CancelAll()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, timers.ErrCancelled)
		case <-time.After(time.Second):
			t.Fatal("sleep was not interrupted")
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := r.Sleep(ctx, time.Minute)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Zero(t, r.Pending(), "the timer is released")
	})

	t.Run("already cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, r.Sleep(ctx, time.Millisecond), context.Canceled)
	})
}

func TestClose(t *testing.T) {
	r := timers.NewRegistry(nil)

	release := make(chan struct{})
	started := make(chan struct{})
	r.Schedule(0, func() {
		close(started)
		<-release
	})
	<-started

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a callback was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-closed

	assert.Zero(t, r.Schedule(time.Millisecond, func() {}))
	assert.ErrorIs(t, r.Sleep(context.Background(), time.Millisecond), timers.ErrCancelled)
}
