// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchprobs

import (
	"v.io/x/lib/vlog"
	"v.io/x/synch/synch"
)

// WhalematingHooks is the driver's view of the rendezvous.  A male's or
// female's Start hook fires as it arrives, before it is matched; a
// matchmaker's Start hook fires once it has claimed one male and one female.
// The End hook fires when that participant's triple has completed.
type WhalematingHooks interface {
	MaleStart(index uint32)
	MaleEnd(index uint32)
	FemaleStart(index uint32)
	FemaleEnd(index uint32)
	MatchmakerStart(index uint32)
	MatchmakerEnd(index uint32)
}

// A Whalemating binds one male, one female and one matchmaker into a triple
// and releases all three together.
//
// Six semaphores, all starting at zero, carry the rendezvous: each male
// posts a ready token and a matchmaker-gate token, then waits for a done
// token; females are symmetric.  A matchmaker consumes one gate token of
// each sex before starting, consumes both ready tokens, and only then posts
// both done tokens.  Every post matches exactly one wait, so the triple is
// bound together and releases atomically.
type Whalemating struct {
	maleReady   *synch.Semaphore
	femaleReady *synch.Semaphore
	gateMale    *synch.Semaphore
	gateFemale  *synch.Semaphore
	maleDone    *synch.Semaphore
	femaleDone  *synch.Semaphore
	hooks       WhalematingHooks
}

// NewWhalemating creates a rendezvous reporting through hooks.
func NewWhalemating(hooks WhalematingHooks) *Whalemating {
	return &Whalemating{
		maleReady:   synch.NewSemaphore("male ready", 0),
		femaleReady: synch.NewSemaphore("female ready", 0),
		gateMale:    synch.NewSemaphore("matchmaker gate male", 0),
		gateFemale:  synch.NewSemaphore("matchmaker gate female", 0),
		maleDone:    synch.NewSemaphore("male done", 0),
		femaleDone:  synch.NewSemaphore("female done", 0),
		hooks:       hooks,
	}
}

// Cleanup retires the rendezvous.  Every participant must have returned.
func (wm *Whalemating) Cleanup() {
	wm.maleReady.Destroy()
	wm.femaleReady.Destroy()
	wm.gateMale.Destroy()
	wm.gateFemale.Destroy()
	wm.maleDone.Destroy()
	wm.femaleDone.Destroy()
}

// Male runs one male through the rendezvous.
func (wm *Whalemating) Male(index uint32) {
	wm.hooks.MaleStart(index)
	vlog.VI(2).Infof("whalemating: male %d ready", index)
	wm.maleReady.V()
	wm.gateMale.V()
	wm.maleDone.P()
	wm.hooks.MaleEnd(index)
}

// Female runs one female through the rendezvous.
func (wm *Whalemating) Female(index uint32) {
	wm.hooks.FemaleStart(index)
	vlog.VI(2).Infof("whalemating: female %d ready", index)
	wm.femaleReady.V()
	wm.gateFemale.V()
	wm.femaleDone.P()
	wm.hooks.FemaleEnd(index)
}

// Matchmaker runs one matchmaker through the rendezvous.
func (wm *Whalemating) Matchmaker(index uint32) {
	wm.gateMale.P()
	wm.gateFemale.P()
	wm.hooks.MatchmakerStart(index)
	wm.maleReady.P()
	wm.femaleReady.P()
	wm.hooks.MatchmakerEnd(index)
	vlog.VI(2).Infof("whalemating: matchmaker %d matched a pair", index)
	wm.maleDone.V()
	wm.femaleDone.V()
}
