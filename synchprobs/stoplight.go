// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchprobs

import (
	"strconv"

	"v.io/x/lib/vlog"
	"v.io/x/synch/synch"
)

// Quadrant and direction layout, clockwise; a car entering from direction X
// enters quadrant X first:
//
//	  |0 |
//	--    --
//	   01  1
//	3  32
//	--    --
//	  | 2|
//
// Right turns traverse quadrant (X); straight passes traverse (X, X+3);
// left turns traverse (X, X+3, X+2), all mod 4.  Once a car has entered a
// quadrant it stays somewhere in the intersection until LeaveIntersection,
// which it reports from its final quadrant.
const (
	numDirections     = 4
	intersectionLimit = 3
)

// StoplightHooks is the driver's view of cars moving through the
// intersection.  InQuadrant is invoked as the car enters each quadrant on
// its route; LeaveIntersection is invoked while the car still occupies its
// final quadrant.
type StoplightHooks interface {
	InQuadrant(quadrant, car uint32)
	LeaveIntersection(car uint32)
}

// A Stoplight admits cars through a four-quadrant intersection.
//
// Three layers combine:
//
//   - a DirectionCycle serves approach directions round-robin, so no
//     direction starves behind a busy one;
//   - a capacity semaphore keeps at most three cars inside -- four cars,
//     one per quadrant, could form a rotation cycle and deadlock, so three
//     is the largest safe occupancy;
//   - per-quadrant binary semaphores, taken hand-over-hand along the route
//     (the next quadrant is acquired before the previous is released), keep
//     every quadrant at single occupancy.
type Stoplight struct {
	quadrants [numDirections]*synch.Semaphore
	limit     *synch.Semaphore
	cycle     *DirectionCycle
	hooks     StoplightHooks
}

// NewStoplight creates an empty intersection reporting through hooks.
func NewStoplight(hooks StoplightHooks) *Stoplight {
	st := &Stoplight{
		limit: synch.NewSemaphore("intersection limit", intersectionLimit),
		cycle: NewDirectionCycle(numDirections),
		hooks: hooks,
	}
	for i := range st.quadrants {
		st.quadrants[i] = synch.NewSemaphore("quadrant "+strconv.Itoa(i), 1)
	}
	return st
}

// Cleanup retires the intersection.  It must be empty.
func (st *Stoplight) Cleanup() {
	for _, q := range st.quadrants {
		q.Destroy()
	}
	st.limit.Destroy()
	st.cycle.Cleanup()
}

func (st *Stoplight) quadrant(q uint32) *synch.Semaphore {
	if q >= numDirections {
		panic("synchprobs: quadrant " + strconv.FormatUint(uint64(q), 10) + " out of range")
	}
	return st.quadrants[q]
}

// enter waits for the caller's direction to hold the round-robin token and
// for intersection capacity.  Every route starts here and ends in leave.
func (st *Stoplight) enter(direction, car uint32) {
	vlog.VI(2).Infof("stoplight: car %d waiting at direction %d", car, direction)
	st.cycle.Wait(direction)
	st.limit.P()
}

func (st *Stoplight) leave(direction, car uint32) {
	st.cycle.Signal(direction)
	st.limit.V()
	vlog.VI(2).Infof("stoplight: car %d left via direction %d", car, direction)
}

// TurnRight sends a car from the given direction through its single
// quadrant.
func (st *Stoplight) TurnRight(direction, car uint32) {
	q := st.quadrant(direction) // validates direction before any waiting
	st.enter(direction, car)

	q.P()
	st.hooks.InQuadrant(direction, car)
	st.hooks.LeaveIntersection(car)
	q.V()

	st.leave(direction, car)
}

// GoStraight sends a car from the given direction across two quadrants,
// hand-over-hand.
func (st *Stoplight) GoStraight(direction, car uint32) {
	first := direction
	second := (direction + 3) % numDirections
	fq, sq := st.quadrant(first), st.quadrant(second)
	st.enter(direction, car)

	fq.P()
	st.hooks.InQuadrant(first, car)
	sq.P()
	st.hooks.InQuadrant(second, car)
	fq.V()
	st.hooks.LeaveIntersection(car)
	sq.V()

	st.leave(direction, car)
}

// TurnLeft sends a car from the given direction across three quadrants,
// hand-over-hand.
func (st *Stoplight) TurnLeft(direction, car uint32) {
	first := direction
	second := (direction + 3) % numDirections
	third := (direction + 2) % numDirections
	fq, sq, tq := st.quadrant(first), st.quadrant(second), st.quadrant(third)
	st.enter(direction, car)

	fq.P()
	st.hooks.InQuadrant(first, car)
	sq.P()
	st.hooks.InQuadrant(second, car)
	fq.V()
	tq.P()
	st.hooks.InQuadrant(third, car)
	sq.V()
	st.hooks.LeaveIntersection(car)
	tq.V()

	st.leave(direction, car)
}
