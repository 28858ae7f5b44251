// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synch

import (
	"strconv"

	"v.io/x/synch/sched"
)

// An RWLock is a reader/writer lock that serves mixed readers and writers
// without starving either class.
//
// Fairness comes from a single FIFO queue of pending requests.  A request is
// either a reader group -- a batch of threads that will read together,
// sharing one condition variable -- or a single writer.  A newly arriving
// reader joins the currently active read phase only while no writer is
// active or queued; otherwise it coalesces into the reader group at the tail
// of the queue, or appends a new group if the tail is a writer.  A writer
// always appends unless the lock is free.  Each release promotes at most the
// head entry, so a request can be overtaken by at most the requests already
// ahead of it: writers cannot be starved by a stream of readers, and reader
// groups cannot be starved by writers.
type RWLock struct {
	name  string
	guard *Lock // serialises every state transition below

	mode          rwMode
	writers       uint // writers known to the lock: active + queued
	activeReaders map[*sched.Thread]bool
	activeWriter  *sched.Thread
	queue         []rwEntry
	namingCounter uint // feeds per-request CV/Lock names; unique per RWLock
}

// rwMode tags the currently active phase.
type rwMode int

const (
	rwFree rwMode = iota
	rwRead
	rwWrite
)

// An rwEntry is one pending request: a reader group or a writer request.
// The two arms differ in what promote installs as the active holder; both
// park their threads on a private CV+Lock pair that the promoter destroys
// right after broadcasting (see CV.LooseWait).
type rwEntry interface {
	// promote installs the entry's threads as the lock's active holders.
	// Called with the guard held.
	promote(rw *RWLock)
	// waitPoint returns the CV+Lock pair the entry's threads block on.
	waitPoint() *rwWaitPoint
}

type rwWaitPoint struct {
	cv   *CV
	lock *Lock
}

type readerGroup struct {
	wp      rwWaitPoint
	readers map[*sched.Thread]bool
}

func (g *readerGroup) promote(rw *RWLock) {
	rw.mode = rwRead
	rw.activeReaders = g.readers
}

func (g *readerGroup) waitPoint() *rwWaitPoint { return &g.wp }

type writerRequest struct {
	wp     rwWaitPoint
	writer *sched.Thread
}

func (w *writerRequest) promote(rw *RWLock) {
	rw.mode = rwWrite
	rw.activeWriter = w.writer
}

func (w *writerRequest) waitPoint() *rwWaitPoint { return &w.wp }

// NewRWLock creates a reader/writer lock.  The name is kept for diagnostics
// and seeds the names of the per-request synchronization objects.
func NewRWLock(name string) *RWLock {
	return &RWLock{
		name:  name,
		guard: NewLock(name + " guard"),
		mode:  rwFree,
	}
}

// Name returns the lock's name.
func (rw *RWLock) Name() string { return rw.name }

// Destroy retires the lock.  It must be free: no active holder, no queued
// request, no writer known.
func (rw *RWLock) Destroy() {
	rw.guard.Acquire()
	busy := rw.mode != rwFree || rw.writers != 0 || len(rw.queue) != 0
	rw.guard.Release()
	if busy {
		panic("synch: RWLock \"" + rw.name + "\" destroyed while in use")
	}
	rw.guard.Destroy()
}

// AcquireRead takes the lock for reading.  Multiple threads may hold the
// lock for reading at the same time.  Panics if the caller is already a
// reader.
func (rw *RWLock) AcquireRead() {
	self := sched.Self()
	rw.guard.Acquire()
	if rw.mode == rwRead && rw.activeReaders[self] {
		rw.fail("read-acquired twice by " + self.Name())
	}

	switch {
	case rw.mode == rwFree:
		rw.mode = rwRead
		rw.activeReaders = map[*sched.Thread]bool{self: true}

	case rw.mode == rwRead && rw.writers == 0:
		// No writer active or queued, so the queue is empty and the
		// caller may join the running read phase.
		rw.activeReaders[self] = true

	default:
		// A writer is active or queued.  Joining the active phase now
		// would overtake it, so the caller goes to the queue tail:
		// into the trailing reader group if there is one, else as a
		// fresh group.
		if n := len(rw.queue); n > 0 {
			if g, ok := rw.queue[n-1].(*readerGroup); ok {
				g.wp.lock.Acquire()
				g.readers[self] = true
				rw.guard.Release()
				g.wp.cv.LooseWait(g.wp.lock)
				// Woken by the promoter; the caller is a reader now.
				return
			}
		}
		g := &readerGroup{
			wp:      rw.newWaitPoint(),
			readers: map[*sched.Thread]bool{self: true},
		}
		rw.enqueueAndWait(g)
		return
	}

	rw.guard.Release()
}

// AcquireWrite takes the lock for writing.  Only one thread holds the lock
// for writing at a time, with no concurrent readers.  Panics if the caller
// is already the writer.
func (rw *RWLock) AcquireWrite() {
	self := sched.Self()
	rw.guard.Acquire()
	if rw.mode == rwWrite && rw.activeWriter == self {
		rw.fail("write-acquired twice by " + self.Name())
	}

	if rw.mode == rwFree {
		rw.mode = rwWrite
		rw.activeWriter = self
		rw.writers++
		rw.guard.Release()
		return
	}

	rw.writers++
	w := &writerRequest{wp: rw.newWaitPoint(), writer: self}
	rw.enqueueAndWait(w)
}

// ReleaseRead drops the caller's read hold.  The last reader of the active
// group hands the lock to the head of the queue, or frees it.  Panics if the
// caller is not an active reader.
func (rw *RWLock) ReleaseRead() {
	self := sched.Self()
	rw.guard.Acquire()
	if rw.mode != rwRead || !rw.activeReaders[self] {
		rw.fail("read-released by non-reader " + self.Name())
	}

	delete(rw.activeReaders, self)
	if len(rw.activeReaders) != 0 {
		rw.guard.Release()
		return
	}
	rw.activeReaders = nil

	if len(rw.queue) == 0 {
		if rw.writers != 0 {
			rw.fail("writer count inconsistent")
		}
		rw.mode = rwFree
		rw.guard.Release()
		return
	}

	rw.promoteHead()
	rw.guard.Release()
}

// ReleaseWrite drops the caller's write hold and hands the lock to the head
// of the queue, or frees it.  Panics if the caller is not the active writer.
func (rw *RWLock) ReleaseWrite() {
	self := sched.Self()
	rw.guard.Acquire()
	if rw.mode != rwWrite || rw.activeWriter != self {
		rw.fail("write-released by non-writer " + self.Name())
	}

	rw.writers--
	rw.activeWriter = nil

	if len(rw.queue) == 0 {
		if rw.writers != 0 {
			rw.fail("writer count inconsistent")
		}
		rw.mode = rwFree
		rw.guard.Release()
		return
	}

	rw.promoteHead()
	rw.guard.Release()
}

// fail reports a programmer error.  Called with the guard held; the guard
// is released first so the lock is not additionally wedged when the panic
// is recovered.
func (rw *RWLock) fail(msg string) {
	rw.guard.Release()
	panic("synch: RWLock \"" + rw.name + "\" " + msg)
}

// newWaitPoint mints the CV+Lock pair for a fresh queue entry.  Called with
// the guard held.
func (rw *RWLock) newWaitPoint() rwWaitPoint {
	rw.namingCounter++
	n := strconv.FormatUint(uint64(rw.namingCounter), 10)
	return rwWaitPoint{
		cv:   NewCV(rw.name + " request cv " + n),
		lock: NewLock(rw.name + " request lock " + n),
	}
}

// enqueueAndWait appends e to the request queue and blocks the caller on the
// entry's wait point.  Called with the guard held; the guard is released
// before sleeping.  The entry's lock is taken before the guard is dropped,
// so the promoter's broadcast cannot fire until the caller is safely asleep
// on the CV.
func (rw *RWLock) enqueueAndWait(e rwEntry) {
	wp := e.waitPoint()
	wp.lock.Acquire()
	rw.queue = append(rw.queue, e)
	rw.guard.Release()
	wp.cv.LooseWait(wp.lock)
}

// promoteHead pops the head request, installs it as the active phase, wakes
// its threads and destroys its wait point.  Called with the guard held.
//
// The destruction is safe: every thread parked on the entry used LooseWait,
// so once broadcast they never touch the CV or its lock again, and new
// threads cannot reach the entry because it has left the queue while the
// guard is held.
func (rw *RWLock) promoteHead() {
	e := rw.queue[0]
	rw.queue[0] = nil
	rw.queue = rw.queue[1:]
	if len(rw.queue) == 0 {
		rw.queue = nil
	}
	e.promote(rw)

	wp := e.waitPoint()
	wp.lock.Acquire()
	wp.cv.Broadcast(wp.lock)
	wp.lock.Release()
	wp.cv.Destroy()
	wp.lock.Destroy()
}
