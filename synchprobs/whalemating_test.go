// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchprobs_test

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v.io/x/synch/sched"
	"v.io/x/synch/synchprobs"
)

// matingLog counts role events and records ordering violations: a whale may
// only finish after some matchmaker has started, and a matchmaker may only
// finish after both of its whales were ready (which the semaphores enforce;
// the counts cross-check it).
type matingLog struct {
	maleStarts, maleEnds             int32
	femaleStarts, femaleEnds         int32
	matchmakerStarts, matchmakerEnds int32
	violations                       int32
}

func (m *matingLog) MaleStart(uint32)   { atomic.AddInt32(&m.maleStarts, 1) }
func (m *matingLog) FemaleStart(uint32) { atomic.AddInt32(&m.femaleStarts, 1) }

func (m *matingLog) MatchmakerStart(uint32) {
	if atomic.LoadInt32(&m.maleStarts) == 0 || atomic.LoadInt32(&m.femaleStarts) == 0 {
		atomic.AddInt32(&m.violations, 1)
	}
	atomic.AddInt32(&m.matchmakerStarts, 1)
}

func (m *matingLog) MaleEnd(uint32) {
	if atomic.LoadInt32(&m.matchmakerStarts) == 0 {
		atomic.AddInt32(&m.violations, 1)
	}
	atomic.AddInt32(&m.maleEnds, 1)
}

func (m *matingLog) FemaleEnd(uint32) {
	if atomic.LoadInt32(&m.matchmakerStarts) == 0 {
		atomic.AddInt32(&m.violations, 1)
	}
	atomic.AddInt32(&m.femaleEnds, 1)
}

func (m *matingLog) MatchmakerEnd(uint32) { atomic.AddInt32(&m.matchmakerEnds, 1) }

// TestWhalematingTriples rendezvouses N of each role and checks every
// participant completes exactly once, in a sanctioned order.
func TestWhalematingTriples(t *testing.T) {
	const n = 10
	log := &matingLog{}
	wm := synchprobs.NewWhalemating(log)
	defer wm.Cleanup()

	var wg sync.WaitGroup
	for i := 0; i != n; i++ {
		i := uint32(i)
		wg.Add(1)
		sched.Fork("male", func() { defer wg.Done(); runtime.Gosched(); wm.Male(i) })
		wg.Add(1)
		sched.Fork("female", func() { defer wg.Done(); runtime.Gosched(); wm.Female(i) })
		wg.Add(1)
		sched.Fork("matchmaker", func() { defer wg.Done(); runtime.Gosched(); wm.Matchmaker(i) })
	}
	wg.Wait()

	require.Zero(t, atomic.LoadInt32(&log.violations), "ordering violations")
	assert.Equal(t, int32(n), log.maleEnds)
	assert.Equal(t, int32(n), log.femaleEnds)
	assert.Equal(t, int32(n), log.matchmakerEnds)
}

// TestWhalematingSingleTriple walks one triple through and checks that each
// role starts and ends exactly once and that neither whale ends before the
// matchmaker has started.
func TestWhalematingSingleTriple(t *testing.T) {
	log := &matingLog{}
	wm := synchprobs.NewWhalemating(log)
	defer wm.Cleanup()

	var wg sync.WaitGroup
	wg.Add(3)
	sched.Fork("male", func() { defer wg.Done(); wm.Male(0) })
	sched.Fork("female", func() { defer wg.Done(); wm.Female(0) })
	sched.Fork("matchmaker", func() { defer wg.Done(); wm.Matchmaker(0) })
	wg.Wait()

	require.Zero(t, atomic.LoadInt32(&log.violations))
	assert.Equal(t, int32(1), log.maleStarts)
	assert.Equal(t, int32(1), log.femaleStarts)
	assert.Equal(t, int32(1), log.matchmakerStarts)
	assert.Equal(t, int32(1), log.maleEnds)
	assert.Equal(t, int32(1), log.femaleEnds)
	assert.Equal(t, int32(1), log.matchmakerEnds)
}

// TestWhalematingNoPrematureEnd forks whales with no matchmaker and checks
// that none of them can finish.
func TestWhalematingNoPrematureEnd(t *testing.T) {
	log := &matingLog{}
	wm := synchprobs.NewWhalemating(log)

	var wg sync.WaitGroup
	for i := 0; i != 3; i++ {
		i := uint32(i)
		wg.Add(2)
		sched.Fork("male", func() { defer wg.Done(); wm.Male(i) })
		sched.Fork("female", func() { defer wg.Done(); wm.Female(i) })
	}
	for i := 0; i != 1000; i++ {
		runtime.Gosched()
	}
	assert.Zero(t, atomic.LoadInt32(&log.maleEnds), "male finished without a matchmaker")
	assert.Zero(t, atomic.LoadInt32(&log.femaleEnds), "female finished without a matchmaker")

	// Release the stranded whales so the test exits cleanly.
	for i := 0; i != 3; i++ {
		i := uint32(i)
		wg.Add(1)
		sched.Fork("matchmaker", func() { defer wg.Done(); wm.Matchmaker(i) })
	}
	wg.Wait()
	wm.Cleanup()
}
