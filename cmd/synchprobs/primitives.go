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
	"v.io/x/synch/synch"
)

var semFlags struct {
	Consumers int `cmdline:"consumers,100,number of consumer threads"`
}

var cmdSem = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runSem),
	Name:   "sem",
	Short:  "Pair semaphore downs with ups across many threads",
	Long: `
Forks consumer threads that each block in P on a semaphore with initial
count zero, then issues one V per consumer from the main thread.  Succeeds
when every consumer returns.
`,
}

var lockFlags struct {
	Threads    int `cmdline:"threads,8,number of incrementing threads"`
	Iterations int `cmdline:"iterations,10000,increments per thread"`
}

var cmdLock = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runLock),
	Name:   "lock",
	Short:  "Hammer a mutex with concurrent increments",
	Long: `
Forks threads that each increment a shared counter under a Lock.  Succeeds
when the final count equals threads*iterations and no thread ever observed
another inside the critical section.
`,
}

var cvFlags struct {
	Rounds int `cmdline:"rounds,10000,ping-pong rounds"`
}

var cmdCV = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runCV),
	Name:   "cv",
	Short:  "Ping-pong two threads over a condition variable",
	Long: `
Two threads alternate incrementing a counter, each waiting on a condition
variable for the counter's parity to become theirs.  Succeeds when the
configured number of rounds completes.
`,
}

var rwFlags struct {
	Threads int `cmdline:"threads,1000,number of reader/writer threads"`
}

var cmdRWLock = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runRWLock),
	Name:   "rwlock",
	Short:  "Stress the reader/writer lock with random roles",
	Long: `
Forks threads that each randomly acquire the lock for reading or writing,
record their role, and release.  Succeeds when every thread completes and
no writer's hold ever overlapped another thread's hold.
`,
}

func init() {
	mustRegister := func(cmd *cmdline.Command, flags interface{}) {
		if err := flagvar.RegisterFlagsInStruct(&cmd.Flags, "cmdline", flags, nil, nil); err != nil {
			panic(err)
		}
	}
	mustRegister(cmdSem, &semFlags)
	mustRegister(cmdLock, &lockFlags)
	mustRegister(cmdCV, &cvFlags)
	mustRegister(cmdRWLock, &rwFlags)
}

func runSem(env *cmdline.Env, _ []string) error {
	return report(env, "sem", func() error {
		sem := synch.NewSemaphore("sem scenario", 0)
		defer sem.Destroy()

		var completed uint32
		var g errgroup.Group
		for i := 0; i < semFlags.Consumers; i++ {
			g.Go(func() error {
				randomYield(4)
				sem.P()
				atomic.AddUint32(&completed, 1)
				return nil
			})
		}
		for i := 0; i < semFlags.Consumers; i++ {
			randomYield(4)
			sem.V()
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if got := atomic.LoadUint32(&completed); got != uint32(semFlags.Consumers) {
			return errors.Errorf("%d of %d consumers completed", got, semFlags.Consumers)
		}
		vlog.VI(1).Infof("sem: %d consumers paired", semFlags.Consumers)
		return nil
	})
}

func runLock(env *cmdline.Env, _ []string) error {
	return report(env, "lock", func() error {
		l := synch.NewLock("lock scenario")
		defer l.Destroy()

		var count, inside int32
		var g errgroup.Group
		for i := 0; i < lockFlags.Threads; i++ {
			g.Go(func() error {
				for n := 0; n < lockFlags.Iterations; n++ {
					l.Acquire()
					if atomic.AddInt32(&inside, 1) != 1 {
						return errors.New("two threads inside the critical section")
					}
					count++
					if !l.HeldByMe() {
						return errors.New("HeldByMe false inside the critical section")
					}
					atomic.AddInt32(&inside, -1)
					l.Release()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		want := int32(lockFlags.Threads * lockFlags.Iterations)
		if count != want {
			return errors.Errorf("final count %d, want %d", count, want)
		}
		return nil
	})
}

func runCV(env *cmdline.Env, _ []string) error {
	return report(env, "cv", func() error {
		l := synch.NewLock("cv scenario")
		cv := synch.NewCV("cv scenario")
		defer func() {
			cv.Destroy()
			l.Destroy()
		}()

		count := 0
		limit := 2 * cvFlags.Rounds
		player := func(parity int) func() error {
			return func() error {
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
				return nil
			}
		}

		var g errgroup.Group
		g.Go(player(0))
		g.Go(player(1))
		if err := g.Wait(); err != nil {
			return err
		}
		if count != limit {
			return errors.Errorf("count %d, want %d", count, limit)
		}
		return nil
	})
}

func runRWLock(env *cmdline.Env, _ []string) error {
	return report(env, "rwlock", func() error {
		rw := synch.NewRWLock("rwlock scenario")
		defer rw.Destroy()

		var readers, writers int32
		var g errgroup.Group
		for i := 0; i < rwFlags.Threads; i++ {
			g.Go(func() error {
				randomYield(4)
				if rand.Intn(2) == 0 {
					rw.AcquireRead()
					atomic.AddInt32(&readers, 1)
					if atomic.LoadInt32(&writers) != 0 {
						return errors.New("reader overlapped a writer")
					}
					randomYield(8)
					atomic.AddInt32(&readers, -1)
					rw.ReleaseRead()
					return nil
				}
				rw.AcquireWrite()
				if atomic.AddInt32(&writers, 1) != 1 {
					return errors.New("two writers held the lock")
				}
				if atomic.LoadInt32(&readers) != 0 {
					return errors.New("writer overlapped a reader")
				}
				randomYield(8)
				atomic.AddInt32(&writers, -1)
				rw.ReleaseWrite()
				return nil
			})
		}
		return g.Wait()
	})
}
