// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "testing"

// TestHangmanCleanRun traces an uncontended acquire/release pair.
func TestHangmanCleanRun(t *testing.T) {
	a := &Actor{name: "clean actor"}
	var l Lockable
	l.InitLockable("clean lock")

	HangmanWait(a, &l)
	HangmanAcquire(a, &l)
	HangmanRelease(a, &l)
}

// TestHangmanDetectsCycle builds the classic two-lock cycle by hand and
// checks that the closing wait panics with the chain.
func TestHangmanDetectsCycle(t *testing.T) {
	a := &Actor{name: "actor a"}
	b := &Actor{name: "actor b"}
	var x, y Lockable
	x.InitLockable("lock x")
	y.InitLockable("lock y")

	HangmanWait(a, &x)
	HangmanAcquire(a, &x)
	HangmanWait(b, &y)
	HangmanAcquire(b, &y)

	HangmanWait(a, &y) // a holds x, waits for y
	defer func() {
		if recover() == nil {
			t.Error("closing the wait cycle did not panic")
		}
	}()
	HangmanWait(b, &x) // b holds y, waits for x: deadlock
}

// TestHangmanMisusePanics checks the holder bookkeeping assertions.
func TestHangmanMisusePanics(t *testing.T) {
	a := &Actor{name: "misuse a"}
	b := &Actor{name: "misuse b"}
	var l Lockable
	l.InitLockable("misuse lock")

	HangmanWait(a, &l)
	HangmanAcquire(a, &l)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("double acquire did not panic")
			}
		}()
		HangmanAcquire(b, &l)
	}()
	func() {
		defer func() {
			if recover() == nil {
				t.Error("release by non-holder did not panic")
			}
		}()
		HangmanRelease(b, &l)
	}()
	HangmanRelease(a, &l)
}
