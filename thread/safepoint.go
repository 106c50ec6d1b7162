/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package thread

import (
	"time"

	"jacobin/frames"
)

// SuspendAll requests a suspend safepoint on every registered thread
// and blocks until each has parked there, the all-threads rendezvous
// a debugger attach needs (SPEC_FULL.md §8, supplemented from
// slow-interpreter's threading/safepoints.rs since spec.md describes
// the per-thread safepoint word but not this aggregate operation).
// It waits until every registered thread has reached PollSafepoint,
// which the interpreter's runLoop calls before every instruction. A
// thread inside a native call, or one not running the interpreter, is
// not treated specially: SuspendAll keeps waiting for it.
func SuspendAll() {
	for _, t := range All() {
		t.Stack.RequestSafepoint(frames.SafepointSuspend)
	}
	for _, t := range All() {
		for !t.suspended.Load() {
			time.Sleep(time.Millisecond)
		}
	}
}

// ResumeAll clears the suspend safepoint on every registered thread
// and wakes any that are parked waiting for resume.
func ResumeAll() {
	for _, t := range All() {
		t.Stack.ClearSafepoint(frames.SafepointSuspend)
		if t.suspended.CompareAndSwap(true, false) {
			t.resumeMu.Lock()
			close(t.resumeCh)
			t.resumeCh = make(chan struct{})
			t.resumeMu.Unlock()
		}
	}
}

// PollSafepoint is what the interpreter calls at method entry and
// every backward branch (spec.md §4.4, §4.9). If a suspend is
// pending, it parks the calling thread at the safepoint until
// ResumeAll clears it.
func (t *ExecThread) PollSafepoint() error {
	bits := t.Stack.PollSafepoint()
	if bits&frames.SafepointSuspend != 0 {
		t.suspended.Store(true)
		t.resumeMu.Lock()
		ch := t.resumeCh
		t.resumeMu.Unlock()
		<-ch
	}
	if bits&frames.SafepointAsyncException != 0 {
		t.Stack.ClearSafepoint(frames.SafepointAsyncException)
		return &InterruptedErr{}
	}
	return nil
}
