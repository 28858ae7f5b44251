// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "sync/atomic"

// A binarySemaphore is a binary semaphore; it can have values 0 and 1.
// Each waiter parks on its own.
type binarySemaphore struct {
	ch chan struct{}
}

// init initializes binarySemaphore *s; the initial value is 0.
func (s *binarySemaphore) init() {
	s.ch = make(chan struct{}, 1)
}

// p waits until the count of semaphore *s is 1 and decrements the count to 0.
func (s *binarySemaphore) p() {
	<-s.ch
}

// v ensures that the semaphore count of *s is 1.
func (s *binarySemaphore) v() {
	select {
	case s.ch <- struct{}{}:
	default: // Don't block if the semaphore count is already 1.
	}
}

// A waiter represents a single thread parked on a WaitChannel.
//
// To wait: take a waiter from the pool with newWaiter, store 1 into
// w.waiting, enqueue it on the channel under the channel's spinlock, release
// the spinlock, and then
//     for atomic.LoadUint32(&w.waiting) != 0 { w.sem.p() }
// To wake: dequeue the waiter under the spinlock, store 0 into w.waiting
// (release store), and call w.sem.v().
//
// A woken waiter may consume a stale semaphore token left over from a
// previous use; the waiting-flag loop absorbs it.
type waiter struct {
	next    *waiter
	sem     binarySemaphore
	waiting uint32 // non-zero <=> the waiter is enqueued; read and written atomically
}

var waiterPool = struct {
	sl   Spinlock
	free *waiter
}{}

// newWaiter returns an unused waiter struct.
func newWaiter() *waiter {
	waiterPool.sl.Acquire()
	w := waiterPool.free
	if w != nil {
		waiterPool.free = w.next
		w.next = nil
	}
	waiterPool.sl.Release()
	if w == nil {
		w = new(waiter)
		w.sem.init()
	}
	return w
}

// freeWaiter returns an unused waiter struct to the pool.
func freeWaiter(w *waiter) {
	waiterPool.sl.Acquire()
	w.next = waiterPool.free
	waiterPool.free = w
	waiterPool.sl.Release()
}

// A WaitChannel is a queue of sleeping threads.  It has no lock of its own:
// every operation other than Destroy requires the caller to hold the single
// spinlock the channel's owner has associated with it, and that spinlock
// protects the queue.  Sleep consumes the spinlock atomically with blocking,
// which is what makes the lost-wakeup window between "decide to sleep" and
// "asleep" closable by the caller.
type WaitChannel struct {
	name       string
	head, tail *waiter // FIFO queue; under the owner's spinlock
}

// NewWaitChannel creates a wait channel with the given name.  The name is
// only for diagnostics.
func NewWaitChannel(name string) *WaitChannel {
	return &WaitChannel{name: name}
}

// Name returns the channel's name.
func (wc *WaitChannel) Name() string { return wc.name }

// Destroy retires the channel.  No thread may be sleeping on it, and no
// concurrent operation may be in flight.
func (wc *WaitChannel) Destroy() {
	if wc.head != nil {
		panic("sched: WaitChannel \"" + wc.name + "\" destroyed with sleeping threads")
	}
}

// IsEmpty returns whether no thread is sleeping on the channel.  The
// associated spinlock must be held.
func (wc *WaitChannel) IsEmpty(sl *Spinlock) bool {
	wc.assertHeld(sl)
	return wc.head == nil
}

// Sleep atomically releases the spinlock and blocks the calling thread on the
// channel.  When the thread is woken the spinlock is re-held.  Wakeups may be
// spurious as far as callers are concerned; every caller re-tests its
// condition in a loop.
func (wc *WaitChannel) Sleep(sl *Spinlock) {
	wc.sleep(sl)
	sl.Acquire()
}

// LooseSleep is Sleep without the re-acquisition: the spinlock is released
// and the thread blocks, but on wakeup the thread returns without touching
// the spinlock or the channel again.  A waker holding exclusive control may
// therefore destroy both immediately after issuing the wakeup.
func (wc *WaitChannel) LooseSleep(sl *Spinlock) {
	wc.sleep(sl)
}

func (wc *WaitChannel) sleep(sl *Spinlock) {
	wc.assertHeld(sl)
	w := newWaiter()
	atomic.StoreUint32(&w.waiting, 1)
	if wc.tail == nil {
		wc.head = w
	} else {
		wc.tail.next = w
	}
	wc.tail = w
	sl.Release()
	for atomic.LoadUint32(&w.waiting) != 0 { // acquire load
		w.sem.p()
	}
	freeWaiter(w)
}

// WakeOne wakes the thread that has slept longest on the channel, if any.
// The associated spinlock must be held.  The woken thread is off the queue
// before WakeOne returns, though it may not have run yet.
func (wc *WaitChannel) WakeOne(sl *Spinlock) {
	wc.assertHeld(sl)
	w := wc.dequeue()
	if w == nil {
		return
	}
	atomic.StoreUint32(&w.waiting, 0) // release store
	w.sem.v()
}

// WakeAll wakes every thread sleeping on the channel.  The associated
// spinlock must be held.  The queue is empty when WakeAll returns.
func (wc *WaitChannel) WakeAll(sl *Spinlock) {
	wc.assertHeld(sl)
	for {
		w := wc.dequeue()
		if w == nil {
			return
		}
		atomic.StoreUint32(&w.waiting, 0) // release store
		w.sem.v()
	}
}

func (wc *WaitChannel) dequeue() *waiter {
	w := wc.head
	if w == nil {
		return nil
	}
	wc.head = w.next
	if wc.head == nil {
		wc.tail = nil
	}
	w.next = nil
	return w
}

func (wc *WaitChannel) assertHeld(sl *Spinlock) {
	if !sl.Held() {
		panic("sched: WaitChannel \"" + wc.name + "\" operated on without its spinlock held")
	}
}
