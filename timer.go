package zerotrust

import (
	"sync"
	"time"
)

// autoLockTimer schedules the one-shot relock of the vault.
//
// Each arming bumps a generation counter. The expiry callback receives the
// generation it was scheduled with and must claim it under the vault lock
// before locking, so a callback that raced with a newer arm or with cancel
// does nothing. Lock order is vault lock, then t.mu.
type autoLockTimer struct {
	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	deadline  time.Time
	cancelled bool
	pending   sync.WaitGroup
	expire    func(gen uint64)
}

func newAutoLockTimer(expire func(gen uint64)) *autoLockTimer {
	return &autoLockTimer{expire: expire}
}

// arm replaces any pending schedule with one firing after d.
func (t *autoLockTimer) arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return
	}
	t.stopLocked()

	t.gen++
	gen := t.gen
	t.deadline = time.Now().Add(d)
	t.pending.Add(1)
	t.timer = time.AfterFunc(d, func() {
		defer t.pending.Done()
		t.expire(gen)
	})
}

// claim reports whether gen is the live arming and, if so, disarms it.
func (t *autoLockTimer) claim(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.timer == nil || gen != t.gen {
		return false
	}
	t.timer = nil
	t.deadline = time.Time{}
	return true
}

// deadlineAt returns the pending deadline, or the zero time when unarmed.
func (t *autoLockTimer) deadlineAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// cancel disables the timer for good. When it returns no expiry callback is
// running and none will run. It must not be called with the vault lock held.
func (t *autoLockTimer) cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.stopLocked()
	t.deadline = time.Time{}
	t.mu.Unlock()

	t.pending.Wait()
}

func (t *autoLockTimer) stopLocked() {
	if t.timer != nil && t.timer.Stop() {
		// the callback will never run, so it cannot mark itself done
		t.pending.Done()
	}
	t.timer = nil
}
