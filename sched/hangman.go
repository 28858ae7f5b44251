// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

// The hangman is a diagnostic deadlock tracer.  Lock implementations report
// three events: an actor begins waiting for a lockable, an actor acquires a
// lockable, an actor releases a lockable.  On each wait the tracer follows
// the chain
//
//     actor -> lockable it waits for -> that lockable's holder -> ...
//
// and panics if the chain leads back to the waiting actor.  The tracer has no
// effect on correct programs; it exists to turn a silent deadlock into a
// panic naming the cycle.
//
// Events must be reported atomically with the state change they describe:
// callers invoke HangmanWait/HangmanAcquire under the same critical section
// that queues or records the acquisition.

// An Actor is one party that can hold or wait for lockables.  Threads embed
// one; see Thread.Actor.
type Actor struct {
	name    string
	waiting *Lockable // lockable this actor is sleeping on, or nil; under hangmanLock
}

// A Lockable is one lock the tracer knows about.  Lock implementations embed
// one and initialize it with InitLockable.
type Lockable struct {
	name   string
	holder *Actor // current owner, or nil; under hangmanLock
}

// InitLockable names the lockable for deadlock reports.
func (l *Lockable) InitLockable(name string) {
	l.name = name
}

var hangmanLock Spinlock

// HangmanWait records that a is about to sleep until l is released, and
// panics if doing so completes a cycle of waiters.
func HangmanWait(a *Actor, l *Lockable) {
	hangmanLock.Acquire()
	a.waiting = l
	cycle := "actor " + a.name
	// The walk is bounded so that a cycle left behind by a recovered panic
	// cannot wedge an unrelated waiter.
	for cur, depth := l, 0; depth < 1024; depth++ {
		cycle += " -> lockable " + cur.name
		h := cur.holder
		if h == nil {
			break
		}
		cycle += " -> actor " + h.name
		if h == a {
			hangmanLock.Release()
			panic("sched: hangman: deadlock: " + cycle)
		}
		cur = h.waiting
		if cur == nil {
			break
		}
	}
	hangmanLock.Release()
}

// HangmanAcquire records that a now holds l and is no longer waiting.
func HangmanAcquire(a *Actor, l *Lockable) {
	hangmanLock.Acquire()
	if l.holder != nil {
		hangmanLock.Release()
		panic("sched: hangman: lockable " + l.name + " acquired while held")
	}
	a.waiting = nil
	l.holder = a
	hangmanLock.Release()
}

// HangmanRelease records that a has released l.
func HangmanRelease(a *Actor, l *Lockable) {
	hangmanLock.Acquire()
	if l.holder != a {
		hangmanLock.Release()
		panic("sched: hangman: lockable " + l.name + " released by non-holder")
	}
	l.holder = nil
	hangmanLock.Release()
}
