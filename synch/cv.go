// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synch

import "v.io/x/synch/sched"

// A CV is a Mesa-style condition variable.  It carries no predicate;
// predicates belong to callers, protected by the Lock passed to each
// operation.
//
// Mesa semantics: a signalled thread competes for the lock on equal footing
// with newly arriving threads, and wakeups may be spurious, so every wait
// sits in a loop that re-tests the predicate:
//
//	l.Acquire()
//	for !predicate() {
//		cv.Wait(l)
//	}
//	// predicate holds, l is held
//	l.Release()
type CV struct {
	name  string
	wchan *sched.WaitChannel
	sl    sched.Spinlock // protects the wait channel
}

// NewCV creates a condition variable.  The name is kept for diagnostics.
func NewCV(name string) *CV {
	cv := &CV{
		name:  name,
		wchan: sched.NewWaitChannel(name),
	}
	cv.sl.Init()
	return cv
}

// Name returns the condition variable's name.
func (cv *CV) Name() string { return cv.name }

// Destroy retires the condition variable.  No thread may be waiting on it.
func (cv *CV) Destroy() {
	cv.sl.Acquire()
	empty := cv.wchan.IsEmpty(&cv.sl)
	cv.sl.Release()
	if !empty {
		panic("synch: CV \"" + cv.name + "\" destroyed with waiters")
	}
	cv.sl.Cleanup()
	cv.wchan.Destroy()
}

// Wait atomically releases l and blocks on the condition variable.  When the
// thread wakes it re-acquires l before returning.  The caller must hold l.
//
// Taking the CV spinlock before releasing l closes the window between the
// release and the sleep: a signaller must hold the spinlock to issue a
// wakeup, so no wakeup sent after the release can be missed.
func (cv *CV) Wait(l *Lock) {
	l.AssertHeldByMe()
	cv.sl.Acquire()
	l.Release()
	cv.wchan.Sleep(&cv.sl)
	cv.sl.Release()
	l.Acquire()
}

// LooseWait is Wait without the re-acquisition: it releases l and blocks,
// and on wakeup returns without touching l, the CV, or their memory again.
//
// It exists for the pattern where the waker broadcasts a CV and immediately
// destroys the CV and its lock; because woken waiters make no further
// accesses, the destruction cannot race with them.  See RWLock.
func (cv *CV) LooseWait(l *Lock) {
	l.AssertHeldByMe()
	cv.sl.Acquire()
	l.Release()
	cv.wchan.LooseSleep(&cv.sl)
}

// Signal wakes at most one thread waiting on the condition variable.  The
// caller must hold l.
func (cv *CV) Signal(l *Lock) {
	l.AssertHeldByMe()
	cv.sl.Acquire()
	cv.wchan.WakeOne(&cv.sl)
	cv.sl.Release()
}

// Broadcast wakes every thread waiting on the condition variable.  The
// caller must hold l.
func (cv *CV) Broadcast(l *Lock) {
	l.AssertHeldByMe()
	cv.sl.Acquire()
	cv.wchan.WakeAll(&cv.sl)
	cv.sl.Release()
}
