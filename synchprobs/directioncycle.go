// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synchprobs contains coordination problems solved with the
// primitives in v.io/x/synch/synch: a round-robin admission token
// (DirectionCycle), a four-quadrant intersection with a starvation-free
// admission queue (Stoplight), and a three-role rendezvous (Whalemating).
//
// The problem modules compose semaphores, locks and condition variables
// only; none of them holds a raw spinlock of its own.
package synchprobs

import (
	"strconv"
	"sync/atomic"

	"v.io/x/synch/synch"
)

// A DirectionCycle hands a round-robin admission token around n peer queues.
// Each peer ("direction") has a count of registered waiters; the token skips
// peers with no waiters and otherwise visits them in ring order, so no
// direction with waiters is passed over indefinitely.
//
// The nodes live in an array and the token is an index advanced modulo n.
// The token and the per-node counts are read by peers outside the owning
// node's lock, so both are accessed atomically; the waiter loop re-tests
// after every wakeup, which is what makes the cross-node advancing safe.
type DirectionCycle struct {
	nodes []cycleNode
	cur   uint32 // index of the node holding the token; read and written atomically
}

type cycleNode struct {
	cars uint32 // waiters registered here; written under lock, read atomically by peers
	lock *synch.Lock
	cv   *synch.CV
}

// NewDirectionCycle creates a cycle of n peers, with the token initially at
// peer 0.
func NewDirectionCycle(n int) *DirectionCycle {
	if n <= 0 {
		panic("synchprobs: DirectionCycle needs at least one direction")
	}
	dc := &DirectionCycle{nodes: make([]cycleNode, n)}
	for i := range dc.nodes {
		d := strconv.Itoa(i)
		dc.nodes[i] = cycleNode{
			lock: synch.NewLock("direction lock " + d),
			cv:   synch.NewCV("direction cv " + d),
		}
	}
	return dc
}

// Cleanup retires the cycle.  No direction may have registered waiters.
func (dc *DirectionCycle) Cleanup() {
	for i := range dc.nodes {
		n := &dc.nodes[i]
		if atomic.LoadUint32(&n.cars) != 0 {
			panic("synchprobs: DirectionCycle cleaned up with waiters in direction " + strconv.Itoa(i))
		}
		n.cv.Destroy()
		n.lock.Destroy()
	}
}

func (dc *DirectionCycle) node(dir uint32) *cycleNode {
	if int(dir) >= len(dc.nodes) {
		panic("synchprobs: direction " + strconv.FormatUint(uint64(dir), 10) + " out of range")
	}
	return &dc.nodes[dir]
}

// advance moves the token past peers with no waiters.  Safe to call from any
// direction's critical section: the skip test is monotonic (a peer observed
// empty stays irrelevant until the token comes around again), and the CAS
// loses harmlessly to a concurrent advance.
func (dc *DirectionCycle) advance() {
	n := uint32(len(dc.nodes))
	for {
		i := atomic.LoadUint32(&dc.cur)
		if atomic.LoadUint32(&dc.nodes[i].cars) != 0 {
			return
		}
		atomic.CompareAndSwapUint32(&dc.cur, i, (i+1)%n)
	}
}

// Wait registers the caller in the given direction and blocks until the
// token reaches it.  Callers in the same direction are admitted together.
func (dc *DirectionCycle) Wait(dir uint32) {
	me := dc.node(dir)
	me.lock.Acquire()
	atomic.AddUint32(&me.cars, 1)
	dc.advance()
	for atomic.LoadUint32(&dc.cur) != dir {
		me.cv.Wait(me.lock)
		dc.advance()
	}
	me.lock.Release()
}

// Signal deregisters the caller and wakes the next direction with waiters,
// returning its index (the caller's own when no other direction has any).
// The caller's node lock and the next node's lock are never held together.
func (dc *DirectionCycle) Signal(dir uint32) uint32 {
	me := dc.node(dir)
	n := uint32(len(dc.nodes))

	me.lock.Acquire()
	atomic.AddUint32(&me.cars, ^uint32(0))
	next := (dir + 1) % n
	for next != dir && atomic.LoadUint32(&dc.nodes[next].cars) == 0 {
		next = (next + 1) % n
	}
	me.lock.Release()

	nn := &dc.nodes[next]
	nn.lock.Acquire()
	nn.cv.Broadcast(nn.lock)
	nn.lock.Release()
	return next
}
