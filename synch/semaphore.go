// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synch provides classical blocking synchronization primitives --
// counting semaphore, mutual-exclusion lock, Mesa-style condition variable,
// and a fair reader/writer lock -- built on the wait-channel and spinlock
// substrate in v.io/x/synch/sched.
//
// The primitives differ from those in the standard sync package in that they
// carry names for diagnostics, track their holders (a Lock may only be
// released by the thread that acquired it, and re-acquisition by the holder
// panics rather than deadlocking silently), feed the hangman deadlock
// tracer, and -- in the case of RWLock -- provide a documented fairness
// order.  They are not replacements for sync.Mutex in ordinary programs;
// they exist for code whose correctness argument is written in terms of
// these stronger contracts.
//
// Only four operations block: Semaphore.P, Lock.Acquire, CV.Wait and
// CV.LooseWait.  None of them may be invoked from a thread marked as being
// in an interrupt context.
package synch

import "v.io/x/synch/sched"

// A Semaphore is a Dijkstra counting semaphore.
//
// There is no fairness guarantee: a thread calling P concurrently with a
// wakeup may get the count ahead of threads that have waited longer.
type Semaphore struct {
	name  string
	wchan *sched.WaitChannel
	sl    sched.Spinlock // protects count and the wait channel
	count uint
}

// NewSemaphore creates a semaphore holding the given initial count.  The
// name is kept for diagnostics.
func NewSemaphore(name string, initial uint) *Semaphore {
	sem := &Semaphore{
		name:  name,
		wchan: sched.NewWaitChannel(name),
		count: initial,
	}
	sem.sl.Init()
	return sem
}

// Name returns the semaphore's name.
func (sem *Semaphore) Name() string { return sem.name }

// Destroy retires the semaphore.  No thread may be blocked in P.
func (sem *Semaphore) Destroy() {
	sem.sl.Acquire()
	empty := sem.wchan.IsEmpty(&sem.sl)
	sem.sl.Release()
	if !empty {
		panic("synch: Semaphore \"" + sem.name + "\" destroyed with waiters")
	}
	sem.sl.Cleanup()
	sem.wchan.Destroy()
}

// P decrements the count, blocking until it is positive.  May not be called
// from an interrupt context.
func (sem *Semaphore) P() {
	// Always check, even when the P could complete without blocking.
	if sched.Self().InInterrupt() {
		panic("synch: Semaphore \"" + sem.name + "\" P from interrupt context")
	}
	// The semaphore spinlock protects the wait channel as well.
	sem.sl.Acquire()
	for sem.count == 0 {
		sem.wchan.Sleep(&sem.sl)
	}
	sem.count--
	sem.sl.Release()
}

// V increments the count and wakes one waiter if any.
func (sem *Semaphore) V() {
	sem.sl.Acquire()
	sem.count++
	if sem.count == 0 {
		panic("synch: Semaphore \"" + sem.name + "\" count wrapped")
	}
	sem.wchan.WakeOne(&sem.sl)
	sem.sl.Release()
}

// Count returns a snapshot of the count.  The value may be stale by the time
// the caller looks at it; it is for diagnostics only.
func (sem *Semaphore) Count() uint {
	sem.sl.Acquire()
	c := sem.count
	sem.sl.Release()
	return c
}
