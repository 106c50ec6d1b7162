/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package thread implements C9: per-object monitors, safepoint-based
// suspend/resume, and park/unpark. Grounded on eltociear-jacobin's
// src/jvm/run.go (thread.ExecThread, thread.CreateThread,
// AddThreadToTable — the calling convention a thread table must
// support) and on Go's standard park/unpark-via-buffered-channel
// idiom for the rest, since no retrieved jacobin fork carries the
// monitor/park internals themselves.
package thread

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"jacobin/frames"
)

// ExecThread is one Java thread: exactly one OS-level goroutine runs
// its interpreter loop at a time (spec.md §5, "preemptive OS threads;
// each Java thread is one OS thread" — approximated here as one
// goroutine per ExecThread, since Go multiplexes goroutines onto OS
// threads itself).
type ExecThread struct {
	ID    string // uuid, stable identity across the thread's lifetime
	Name  string
	Stack *frames.Stack

	interrupted atomic.Bool
	parkPermit  chan struct{} // capacity 1: park/unpark single-permit semaphore (spec.md §4.9)

	suspended   atomic.Bool
	resumeMu    sync.Mutex
	resumeCh    chan struct{}
}

// New creates a thread with its own call stack, not yet registered in
// any table.
func New(name string) *ExecThread {
	return &ExecThread{
		ID:         uuid.New().String(),
		Name:       name,
		Stack:      frames.NewStack(),
		parkPermit: make(chan struct{}, 1),
		resumeCh:   make(chan struct{}),
	}
}

// Interrupt sets the thread's interrupted flag (spec.md §4.9,
// "Cancellation"). Blocking operations observe it on entry and wake.
func (t *ExecThread) Interrupt() { t.interrupted.Store(true) }

// Interrupted reports and clears the interrupted flag, matching
// Thread.interrupted()'s consume-on-read semantics.
func (t *ExecThread) Interrupted() bool {
	return t.interrupted.Swap(false)
}

// IsInterrupted reports without clearing, matching Thread.isInterrupted().
func (t *ExecThread) IsInterrupted() bool { return t.interrupted.Load() }

// table is the process-wide thread registry (spec.md §6,
// "thread table keyed by id" implied by monitor_for/safepoint_word_for
// needing to find a thread from elsewhere in the VM).
var (
	tableLock sync.RWMutex
	table     = map[string]*ExecThread{}
)

// Register adds t to the process thread table.
func Register(t *ExecThread) {
	tableLock.Lock()
	defer tableLock.Unlock()
	table[t.ID] = t
}

// Unregister removes t, called once its interpreter loop returns.
func Unregister(t *ExecThread) {
	tableLock.Lock()
	defer tableLock.Unlock()
	delete(table, t.ID)
}

// Lookup finds a registered thread by id.
func Lookup(id string) (*ExecThread, bool) {
	tableLock.RLock()
	defer tableLock.RUnlock()
	t, ok := table[id]
	return t, ok
}

// All returns a snapshot of every currently registered thread, used by
// SuspendAll/ResumeAll.
func All() []*ExecThread {
	tableLock.RLock()
	defer tableLock.RUnlock()
	out := make([]*ExecThread, 0, len(table))
	for _, t := range table {
		out = append(out, t)
	}
	return out
}
