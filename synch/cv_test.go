// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synch_test

import (
	"runtime"
	"sync/atomic"
	"testing"

	"v.io/x/synch/sched"
	"v.io/x/synch/synch"
)

// TestCVPingPong has two threads alternately increment a counter, each
// waiting on a CV for the counter's parity to become its own.  The counter
// can only reach the limit if wakeups are never lost.
func TestCVPingPong(t *testing.T) {
	const limit = 20000
	l := synch.NewLock("pingpong")
	cv := synch.NewCV("pingpong")
	done := synch.NewSemaphore("pingpong done", 0)

	count := 0
	player := func(parity int) func() {
		return func() {
			l.Acquire()
			for count < limit {
				for count%2 != parity && count < limit {
					cv.Wait(l)
				}
				if count < limit {
					count++
				}
				cv.Broadcast(l)
			}
			l.Release()
			done.V()
		}
	}
	sched.Fork("ping", player(0))
	sched.Fork("pong", player(1))
	done.P()
	done.P()

	if count != limit {
		t.Fatalf("count %d, want %d", count, limit)
	}
	done.Destroy()
	cv.Destroy()
	l.Destroy()
}

// TestCVBroadcastWakesAll parks several threads on one predicate and flips
// it with a single Broadcast.
func TestCVBroadcastWakesAll(t *testing.T) {
	const waiters = 25
	l := synch.NewLock("broadcast")
	cv := synch.NewCV("broadcast")
	done := synch.NewSemaphore("broadcast done", 0)

	ready := 0
	start := false
	for i := 0; i != waiters; i++ {
		sched.Fork("waiter", func() {
			l.Acquire()
			ready++
			for !start {
				cv.Wait(l)
			}
			l.Release()
			done.V()
		})
	}

	// Wait for every thread to be inside the predicate loop, then flip.
	l.Acquire()
	for ready != waiters {
		l.Release()
		runtime.Gosched()
		l.Acquire()
	}
	start = true
	cv.Broadcast(l)
	l.Release()

	for i := 0; i != waiters; i++ {
		done.P()
	}
	done.Destroy()
	cv.Destroy()
	l.Destroy()
}

// TestCVSignalWakesSome checks that tokens handed out one Signal at a time
// are all eventually consumed.
func TestCVSignalWakesSome(t *testing.T) {
	const waiters = 10
	l := synch.NewLock("signal")
	cv := synch.NewCV("signal")
	done := synch.NewSemaphore("signal done", 0)

	tokens := 0
	for i := 0; i != waiters; i++ {
		sched.Fork("waiter", func() {
			l.Acquire()
			for tokens == 0 {
				cv.Wait(l)
			}
			tokens--
			l.Release()
			done.V()
		})
	}
	for i := 0; i != waiters; i++ {
		l.Acquire()
		tokens++
		cv.Signal(l)
		l.Release()
	}
	for i := 0; i != waiters; i++ {
		done.P()
	}

	l.Acquire()
	if tokens != 0 {
		t.Errorf("%d tokens left unconsumed", tokens)
	}
	l.Release()
	done.Destroy()
	cv.Destroy()
	l.Destroy()
}

// TestCVOpsRequireLock checks that every CV operation asserts the caller
// holds the associated lock.
func TestCVOpsRequireLock(t *testing.T) {
	l := synch.NewLock("require lock")
	cv := synch.NewCV("require lock")
	expectPanic(t, "Wait without the lock", func() { cv.Wait(l) })
	expectPanic(t, "LooseWait without the lock", func() { cv.LooseWait(l) })
	expectPanic(t, "Signal without the lock", func() { cv.Signal(l) })
	expectPanic(t, "Broadcast without the lock", func() { cv.Broadcast(l) })
	cv.Destroy()
	l.Destroy()
}

// TestCVLooseWaitSurvivesDestruction exercises the pattern LooseWait exists
// for: the waker broadcasts and immediately destroys the CV and its lock
// while the woken threads are still on their way out.
func TestCVLooseWaitSurvivesDestruction(t *testing.T) {
	const waiters = 20
	l := synch.NewLock("loose")
	cv := synch.NewCV("loose")
	done := synch.NewSemaphore("loose done", 0)

	var parked uint32
	for i := 0; i != waiters; i++ {
		sched.Fork("loose-waiter", func() {
			l.Acquire()
			atomic.AddUint32(&parked, 1)
			cv.LooseWait(l)
			// Neither cv nor l may be touched from here on.
			done.V()
		})
	}
	for atomic.LoadUint32(&parked) != waiters {
		runtime.Gosched()
	}

	l.Acquire()
	cv.Broadcast(l)
	l.Release()
	cv.Destroy()
	l.Destroy()

	for i := 0; i != waiters; i++ {
		done.P()
	}
	done.Destroy()
}
