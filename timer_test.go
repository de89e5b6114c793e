package zerotrust

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoLockTimerRearmReplaces(t *testing.T) {
	var fired []uint64
	fires := make(chan uint64, 4)

	var timer *autoLockTimer
	timer = newAutoLockTimer(func(gen uint64) {
		if timer.claim(gen) {
			fires <- gen
		}
	})

	timer.arm(20 * time.Millisecond)
	timer.arm(60 * time.Millisecond)

	select {
	case gen := <-fires:
		fired = append(fired, gen)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	select {
	case gen := <-fires:
		fired = append(fired, gen)
	case <-time.After(100 * time.Millisecond):
	}

	require.Len(t, fired, 1)
	assert.Equal(t, uint64(2), fired[0], "only the latest arming may lock")
	assert.True(t, timer.deadlineAt().IsZero())
}

func TestAutoLockTimerStaleGenerationIsIgnored(t *testing.T) {
	timer := newAutoLockTimer(func(uint64) {})
	timer.arm(time.Hour)
	timer.arm(time.Hour)

	assert.False(t, timer.claim(1))
	assert.True(t, timer.claim(2))
	assert.False(t, timer.claim(2), "a generation is claimed once")
}

func TestAutoLockTimerCancelWaitsForCallback(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	timer := newAutoLockTimer(func(uint64) {
		close(started)
		<-release
	})
	timer.arm(time.Millisecond)
	<-started

	var returned atomic.Bool
	done := make(chan struct{})
	go func() {
		timer.cancel()
		returned.Store(true)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, returned.Load(), "cancel returned while the callback was running")

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancel did not return after the callback finished")
	}
}

func TestAutoLockTimerCancelIsFinal(t *testing.T) {
	var calls atomic.Int32
	timer := newAutoLockTimer(func(uint64) { calls.Add(1) })

	timer.arm(10 * time.Millisecond)
	timer.cancel()
	timer.arm(10 * time.Millisecond)
	timer.cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.True(t, timer.deadlineAt().IsZero())
}
