// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchprobs_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v.io/x/synch/sched"
	"v.io/x/synch/synchprobs"
)

// TestCycleAloneNoBlock checks that the only registered direction gets the
// token immediately, and gets it back when it signals.
func TestCycleAloneNoBlock(t *testing.T) {
	dc := synchprobs.NewDirectionCycle(4)
	defer dc.Cleanup()

	dc.Wait(2) // must not block: every other direction is empty
	next := dc.Signal(2)
	assert.Equal(t, uint32(2), next, "token should come back to the only direction")
}

// TestCycleAllDirectionsComplete forks cars in every direction and requires
// that all of them get the token eventually.
func TestCycleAllDirectionsComplete(t *testing.T) {
	const directions = 4
	const carsPerDirection = 4
	dc := synchprobs.NewDirectionCycle(directions)
	defer dc.Cleanup()

	var wg sync.WaitGroup
	var completed [directions]int32
	for dir := 0; dir != directions; dir++ {
		dir := uint32(dir)
		for i := 0; i != carsPerDirection; i++ {
			wg.Add(1)
			sched.Fork("car", func() {
				defer wg.Done()
				dc.Wait(dir)
				dc.Signal(dir)
				atomic.AddInt32(&completed[dir], 1)
			})
		}
	}
	wg.Wait()
	for dir := 0; dir != directions; dir++ {
		assert.Equal(t, int32(carsPerDirection), completed[dir], "direction %d", dir)
	}
}

// TestCycleServesWaitingPeer registers a waiter in a second direction and
// checks that the first direction's signal hands the token to it.
func TestCycleServesWaitingPeer(t *testing.T) {
	dc := synchprobs.NewDirectionCycle(4)
	defer dc.Cleanup()

	dc.Wait(0)

	var peerDone uint32
	released := make(chan struct{})
	sched.Fork("peer", func() {
		dc.Wait(3)
		atomic.StoreUint32(&peerDone, 1)
		dc.Signal(3)
		close(released)
	})

	// Signal reports whom it woke; keep re-registering until the peer has
	// shown up in direction 3.  The peer may also slip through on its own
	// during a window where direction 0 is empty, which ends the loop too.
	next := dc.Signal(0)
	for next == 0 && atomic.LoadUint32(&peerDone) == 0 {
		dc.Wait(0)
		next = dc.Signal(0)
	}
	if next != 0 {
		require.Equal(t, uint32(3), next, "token should pass to the waiting peer")
	}
	<-released
	assert.Equal(t, uint32(1), atomic.LoadUint32(&peerDone))
}

// TestCycleBadDirectionPanics checks the direction range assertion.
func TestCycleBadDirectionPanics(t *testing.T) {
	dc := synchprobs.NewDirectionCycle(4)
	defer dc.Cleanup()
	assert.Panics(t, func() { dc.Wait(4) })
	assert.Panics(t, func() { dc.Signal(17) })
}
