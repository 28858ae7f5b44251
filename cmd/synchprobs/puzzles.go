// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"math/rand"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"v.io/x/lib/cmd/flagvar"
	"v.io/x/lib/cmdline"
	"v.io/x/lib/vlog"
	"v.io/x/synch/synchprobs"
)

var cycleFlags struct {
	Directions int `cmdline:"directions,4,number of peer directions"`
	Cars       int `cmdline:"cars,4,cars per direction"`
}

var cmdCycle = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runCycle),
	Name:   "cycle",
	Short:  "Rotate the direction-cycle token among busy directions",
	Long: `
Forks a batch of cars for every direction of a direction cycle; each waits
for its direction's turn, yields a while, and passes the turn on.  Succeeds
when every car completes, which requires that no direction is skipped
forever.
`,
}

var stoplightFlags struct {
	Cars int `cmdline:"cars,32,number of cars to send through the intersection"`
}

var cmdStoplight = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runStoplight),
	Name:   "stoplight",
	Short:  "Route cars through the four-quadrant intersection",
	Long: `
Sends cars with random approach directions and random turns through the
intersection.  Succeeds when every car gets through with never more than
three cars inside and never two cars in one quadrant.
`,
}

var whalematingFlags struct {
	Triples int `cmdline:"triples,10,matings to perform"`
}

var cmdWhalemating = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runWhalemating),
	Name:   "whalemating",
	Short:  "Rendezvous males, females and matchmakers",
	Long: `
Forks an equal number of males, females and matchmakers.  Succeeds when
every thread completes and every completion was sanctioned by a matchmaker
that had started.
`,
}

func init() {
	mustRegister := func(cmd *cmdline.Command, flags interface{}) {
		if err := flagvar.RegisterFlagsInStruct(&cmd.Flags, "cmdline", flags, nil, nil); err != nil {
			panic(err)
		}
	}
	mustRegister(cmdCycle, &cycleFlags)
	mustRegister(cmdStoplight, &stoplightFlags)
	mustRegister(cmdWhalemating, &whalematingFlags)
}

func runCycle(env *cmdline.Env, _ []string) error {
	return report(env, "cycle", func() error {
		dc := synchprobs.NewDirectionCycle(cycleFlags.Directions)
		defer dc.Cleanup()

		var g errgroup.Group
		for dir := 0; dir < cycleFlags.Directions; dir++ {
			dir := uint32(dir)
			for i := 0; i < cycleFlags.Cars; i++ {
				g.Go(func() error {
					dc.Wait(dir)
					randomYield(4)
					next := dc.Signal(dir)
					vlog.VI(2).Infof("cycle: direction %d yielded to %d", dir, next)
					return nil
				})
			}
		}
		return g.Wait()
	})
}

// intersectionChecker verifies the stoplight's two safety properties from
// the hook callbacks: global occupancy of at most three cars, and single
// occupancy per quadrant.
type intersectionChecker struct {
	occupancy  int32
	quadrants  [4]int32 // car+1 occupying each quadrant, 0 when empty
	carAt      [64]int32
	violations int32
}

func (c *intersectionChecker) InQuadrant(quadrant, car uint32) {
	prev := atomic.LoadInt32(&c.carAt[car])
	if prev == 0 {
		if n := atomic.AddInt32(&c.occupancy, 1); n > 3 {
			atomic.AddInt32(&c.violations, 1)
		}
	} else {
		// Hand-over-hand: entering a new quadrant vacates the old one.
		atomic.CompareAndSwapInt32(&c.quadrants[prev-1], int32(car)+1, 0)
	}
	if !atomic.CompareAndSwapInt32(&c.quadrants[quadrant], 0, int32(car)+1) {
		atomic.AddInt32(&c.violations, 1)
	}
	atomic.StoreInt32(&c.carAt[car], int32(quadrant)+1)
}

func (c *intersectionChecker) LeaveIntersection(car uint32) {
	prev := atomic.LoadInt32(&c.carAt[car])
	if prev == 0 {
		atomic.AddInt32(&c.violations, 1)
		return
	}
	atomic.CompareAndSwapInt32(&c.quadrants[prev-1], int32(car)+1, 0)
	atomic.StoreInt32(&c.carAt[car], 0)
	atomic.AddInt32(&c.occupancy, -1)
}

func runStoplight(env *cmdline.Env, _ []string) error {
	return report(env, "stoplight", func() error {
		if stoplightFlags.Cars > 64 {
			return errors.New("at most 64 cars")
		}
		checker := &intersectionChecker{}
		st := synchprobs.NewStoplight(checker)
		defer st.Cleanup()

		var g errgroup.Group
		for i := 0; i < stoplightFlags.Cars; i++ {
			car := uint32(i)
			direction := uint32(rand.Intn(4))
			turn := rand.Intn(3)
			g.Go(func() error {
				switch turn {
				case 0:
					st.TurnRight(direction, car)
				case 1:
					st.GoStraight(direction, car)
				default:
					st.TurnLeft(direction, car)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if v := atomic.LoadInt32(&checker.violations); v != 0 {
			return errors.Errorf("%d safety violations in the intersection", v)
		}
		return nil
	})
}

// whalematingChecker verifies from the hooks that no whale finishes before
// some matchmaker has started, and that every role completes.
type whalematingChecker struct {
	matchmakersStarted int32
	ended              [3]int32 // males, females, matchmakers
	violations         int32
}

func (c *whalematingChecker) MaleStart(uint32)   {}
func (c *whalematingChecker) FemaleStart(uint32) {}

func (c *whalematingChecker) MatchmakerStart(uint32) {
	atomic.AddInt32(&c.matchmakersStarted, 1)
}

func (c *whalematingChecker) MaleEnd(uint32) {
	if atomic.LoadInt32(&c.matchmakersStarted) == 0 {
		atomic.AddInt32(&c.violations, 1)
	}
	atomic.AddInt32(&c.ended[0], 1)
}

func (c *whalematingChecker) FemaleEnd(uint32) {
	if atomic.LoadInt32(&c.matchmakersStarted) == 0 {
		atomic.AddInt32(&c.violations, 1)
	}
	atomic.AddInt32(&c.ended[1], 1)
}

func (c *whalematingChecker) MatchmakerEnd(uint32) {
	atomic.AddInt32(&c.ended[2], 1)
}

func runWhalemating(env *cmdline.Env, _ []string) error {
	return report(env, "whalemating", func() error {
		checker := &whalematingChecker{}
		wm := synchprobs.NewWhalemating(checker)
		defer wm.Cleanup()

		n := whalematingFlags.Triples
		var g errgroup.Group
		for i := 0; i < n; i++ {
			i := uint32(i)
			g.Go(func() error { randomYield(4); wm.Male(i); return nil })
			g.Go(func() error { randomYield(4); wm.Female(i); return nil })
			g.Go(func() error { randomYield(4); wm.Matchmaker(i); return nil })
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if v := atomic.LoadInt32(&checker.violations); v != 0 {
			return errors.Errorf("%d whales finished unmatched", v)
		}
		for role, got := range map[string]int32{"males": checker.ended[0], "females": checker.ended[1], "matchmakers": checker.ended[2]} {
			if got != int32(n) {
				return errors.Errorf("%d %s completed, want %d", got, role, n)
			}
		}
		return nil
	})
}
