// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command synchprobs drives the synchronization primitives and concurrency
// puzzles in v.io/x/synch under load and reports the outcome as a single
// test161-style line.
//
// Each subcommand exercises one scenario and prints "<name>: SUCCESS" or
// "<name>: FAIL".  With SYNCHPROBS_SECURE_TESTING set (and a shared secret
// in SYNCHPROBS_SECRET) the line is wrapped in the secreport HMAC envelope
// so a collecting server can authenticate it.  Exit codes only reflect
// whether the scenario ran; the reported line is the pass/fail signal.
package main

import (
	"math/rand"
	"runtime"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"v.io/x/lib/cmdline"
	"v.io/x/lib/vlog"
	"v.io/x/synch/secreport"
)

var cmdRoot = &cmdline.Command{
	Name:  "synchprobs",
	Short: "Exercise the v.io/x/synch primitives and puzzles",
	Long: `
Command synchprobs exercises the v.io/x/synch synchronization primitives and
the classic coordination puzzles built on them, reporting each scenario's
outcome as a single line a collecting server can parse (and, in secure mode,
authenticate).
`,
	Children: []*cmdline.Command{
		cmdSem,
		cmdLock,
		cmdCV,
		cmdRWLock,
		cmdCycle,
		cmdStoplight,
		cmdWhalemating,
	},
}

func main() {
	cmdline.Main(cmdRoot)
}

// reporter builds the result reporter from the process environment.
func reporter(env *cmdline.Env) (*secreport.Reporter, error) {
	var opts secreport.Options
	if err := envconfig.Process("synchprobs", &opts); err != nil {
		return nil, errors.Wrap(err, "reading reporter configuration")
	}
	if opts.Secure && opts.Secret == "" {
		return nil, errors.New("secure testing requires SYNCHPROBS_SECRET")
	}
	return secreport.New(env.Stdout, opts), nil
}

// report runs one scenario and emits its SUCCESS or FAIL line.  A scenario
// failure is logged and reported on that line only; the returned error is
// non-nil only when the reporter could not be set up or could not write.
func report(env *cmdline.Env, name string, scenario func() error) error {
	rep, err := reporter(env)
	if err != nil {
		return err
	}
	if err := scenario(); err != nil {
		vlog.Errorf("%s: %v", name, err)
		return rep.Fail(name)
	}
	return rep.Success(name)
}

// randomYield yields the processor a random number of times, fewer than n, to
// shake out schedule-dependent behavior.
func randomYield(n int) {
	for i := rand.Intn(n); i > 0; i-- {
		runtime.Gosched()
	}
}
