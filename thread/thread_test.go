/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package thread

import (
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorForIsStableAndPerObject(t *testing.T) {
	a, b := 1, 2
	pa, pb := unsafe.Pointer(&a), unsafe.Pointer(&b)
	m1 := MonitorFor(pa)
	m2 := MonitorFor(pa)
	assert.Same(t, m1, m2, "MonitorFor must return the same monitor for the same object")
	assert.NotSame(t, m1, MonitorFor(pb))
	ReleaseMonitor(pa)
}

func TestRegisterLookupUnregister(t *testing.T) {
	th := New("t1")
	Register(th)
	got, ok := Lookup(th.ID)
	require.True(t, ok)
	assert.Same(t, th, got)
	Unregister(th)
	_, ok = Lookup(th.ID)
	assert.False(t, ok)
}

func TestMonitorRecursiveLockUnlock(t *testing.T) {
	m := NewMonitor()
	th := New("owner")
	for i := 0; i < 100; i++ {
		require.NoError(t, m.Lock(th))
	}
	assert.Equal(t, 100, m.RecursionCount())
	for i := 0; i < 100; i++ {
		require.NoError(t, m.Unlock(th))
	}
	assert.Equal(t, 0, m.RecursionCount())
	assert.Nil(t, m.Owner())
}

func TestMonitorUnlockByNonOwnerFails(t *testing.T) {
	m := NewMonitor()
	owner := New("owner")
	other := New("other")
	require.NoError(t, m.Lock(owner))
	err := m.Unlock(other)
	require.Error(t, err)
	var ime *IllegalMonitorStateErr
	assert.ErrorAs(t, err, &ime)
}

func TestMonitorHandsOffToNextAcquirer(t *testing.T) {
	m := NewMonitor()
	owner := New("owner")
	waiter := New("waiter")
	require.NoError(t, m.Lock(owner))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, m.Lock(waiter))
		close(acquired)
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("waiter acquired before owner released")
	default:
	}

	require.NoError(t, m.Unlock(owner))
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired monitor after unlock")
	}
	assert.Same(t, waiter, m.Owner())
}

func TestMonitorWaitNotify(t *testing.T) {
	m := NewMonitor()
	th := New("th")
	require.NoError(t, m.Lock(th))

	var wg sync.WaitGroup
	wg.Add(1)
	waitReturned := make(chan error, 1)
	go func() {
		defer wg.Done()
		waitReturned <- m.Wait(th, 0)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Nil(t, m.Owner(), "Wait must release the monitor while parked")
	m.Notify()

	select {
	case err := <-waitReturned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait never returned after notify")
	}
	wg.Wait()
	assert.Same(t, th, m.Owner())
	require.NoError(t, m.Unlock(th))
}

func TestParkUnparkRoundTrip(t *testing.T) {
	th := New("parker")
	th.Unpark()
	err := th.Park(time.Second)
	require.NoError(t, err)
}

func TestParkTimesOutWithoutUnpark(t *testing.T) {
	th := New("parker")
	start := time.Now()
	err := th.Park(20 * time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestInterruptWakesPark(t *testing.T) {
	th := New("parker")
	th.Interrupt()
	err := th.Park(time.Second)
	require.Error(t, err)
	var ie *InterruptedErr
	assert.ErrorAs(t, err, &ie)
	assert.False(t, th.IsInterrupted(), "Park must clear the interrupted flag")
}
