// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
)

// A Thread is the identity a goroutine presents to the synchronization
// primitives.  Locks record their holder as a *Thread, and reader sets are
// sets of *Thread.
//
// Identity is bound to the goroutine: Self returns the same *Thread for the
// lifetime of the calling goroutine, and a Thread handle is never shared by
// two live goroutines.  Goroutines started with Fork get a named Thread that
// is retired when the function returns; any other goroutine is registered
// lazily on its first call to Self and stays registered until the process
// exits.
type Thread struct {
	name  string
	id    uint64 // goroutine id; constant after creation
	intr  uint32 // in-interrupt flag; read and written atomically
	actor Actor  // hangman actor for deadlock tracing
}

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// ID returns the identifier the thread is registered under.  IDs are unique
// among live threads and are never 0.
func (t *Thread) ID() uint64 { return t.id }

// Actor returns the thread's hangman actor.
func (t *Thread) Actor() *Actor { return &t.actor }

// SetInterrupt marks the thread as running (or no longer running) in an
// interrupt context.  Blocking operations panic when invoked from a thread so
// marked.  Go has no interrupt handlers; the flag exists so host code that
// simulates one keeps the kernel contract, and so the contract is testable.
func (t *Thread) SetInterrupt(in bool) {
	var v uint32
	if in {
		v = 1
	}
	atomic.StoreUint32(&t.intr, v)
}

// InInterrupt returns whether the thread is marked as being in an interrupt
// context.
func (t *Thread) InInterrupt() bool {
	return atomic.LoadUint32(&t.intr) != 0
}

var threads = struct {
	sl Spinlock
	m  map[uint64]*Thread
}{m: make(map[uint64]*Thread)}

// goid returns the calling goroutine's id, parsed from the first line of its
// stack trace ("goroutine N [running]:").  The runtime does not expose the id
// directly; this is the standard workaround and costs one small Stack call.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		panic("sched: cannot parse goroutine id from stack header")
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		panic("sched: cannot parse goroutine id: " + err.Error())
	}
	return id
}

// Self returns the calling goroutine's Thread, registering one named after
// the goroutine id if the goroutine has never been seen before.
func Self() *Thread {
	id := goid()
	threads.sl.Acquire()
	t := threads.m[id]
	if t == nil {
		t = &Thread{name: "g" + strconv.FormatUint(id, 10), id: id}
		t.actor.name = t.name
		threads.m[id] = t
	}
	threads.sl.Release()
	return t
}

// Fork runs f on a new goroutine whose Thread carries the given name.  The
// Thread is retired when f returns.
func Fork(name string, f func()) {
	go func() {
		id := goid()
		t := &Thread{name: name, id: id}
		t.actor.name = name
		threads.sl.Acquire()
		threads.m[id] = t
		threads.sl.Release()
		defer func() {
			threads.sl.Acquire()
			delete(threads.m, id)
			threads.sl.Release()
		}()
		f()
	}()
}
