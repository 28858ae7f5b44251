// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synch

import (
	"sync/atomic"

	"v.io/x/synch/sched"
)

// A Lock is a sleeping mutual-exclusion lock with an owner.
//
// Exactly one thread holds the lock at a time, only the holder may release
// it, and the holder attempting to re-acquire panics.  Acquisitions and
// releases are reported to the hangman deadlock tracer.
type Lock struct {
	name    string
	wchan   *sched.WaitChannel
	sl      sched.Spinlock // protects holder and the wait channel
	holder  uint64         // ID of the owning thread, 0 if free; read and written atomically
	hangman sched.Lockable
}

// NewLock creates a lock.  The name is kept for diagnostics and deadlock
// reports.
func NewLock(name string) *Lock {
	l := &Lock{
		name:  name,
		wchan: sched.NewWaitChannel(name),
	}
	l.sl.Init()
	l.hangman.InitLockable(name)
	return l
}

// Name returns the lock's name.
func (l *Lock) Name() string { return l.name }

// Destroy retires the lock.  It must not be held.
func (l *Lock) Destroy() {
	if atomic.LoadUint64(&l.holder) != 0 {
		panic("synch: Lock \"" + l.name + "\" destroyed while held")
	}
	l.sl.Cleanup()
	l.wchan.Destroy()
}

// Acquire blocks until the lock is free and then takes it.  Panics if the
// caller already holds the lock, or is in an interrupt context.
func (l *Lock) Acquire() {
	self := sched.Self()
	if atomic.LoadUint64(&l.holder) == self.ID() {
		panic("synch: Lock \"" + l.name + "\" acquired twice by " + self.Name())
	}
	// Always check, even when the acquire could complete without blocking.
	if self.InInterrupt() {
		panic("synch: Lock \"" + l.name + "\" acquired from interrupt context")
	}

	// The lock spinlock protects the wait channel as well.
	l.sl.Acquire()
	// Report the wait before sleeping, atomically with queueing on the
	// channel: both happen under l.sl.
	sched.HangmanWait(self.Actor(), &l.hangman)
	for atomic.LoadUint64(&l.holder) != 0 {
		l.wchan.Sleep(&l.sl)
	}
	atomic.StoreUint64(&l.holder, self.ID())
	sched.HangmanAcquire(self.Actor(), &l.hangman)
	l.sl.Release()
}

// Release frees the lock and wakes one waiter.  Only the holder may call
// this.
func (l *Lock) Release() {
	self := sched.Self()
	if atomic.LoadUint64(&l.holder) != self.ID() {
		panic("synch: Lock \"" + l.name + "\" released by non-holder " + self.Name())
	}
	l.sl.Acquire()
	atomic.StoreUint64(&l.holder, 0)
	l.wchan.WakeOne(&l.sl)
	sched.HangmanRelease(self.Actor(), &l.hangman)
	l.sl.Release()
}

// HeldByMe returns whether the calling thread holds the lock.  It takes no
// lock itself: a thread can always observe whether the holder word carries
// its own identity, and no other answer is stable anyway.
func (l *Lock) HeldByMe() bool {
	return atomic.LoadUint64(&l.holder) == sched.Self().ID()
}

// AssertHeldByMe panics unless the calling thread holds the lock.
func (l *Lock) AssertHeldByMe() {
	if !l.HeldByMe() {
		panic("synch: Lock \"" + l.name + "\" not held by " + sched.Self().Name())
	}
}
