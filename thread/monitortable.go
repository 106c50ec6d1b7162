/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package thread

import (
	"sync"
	"unsafe"
)

// monitors backs spec.md §6's monitor_for(ObjectPointer) -> Monitor:
// every object has at most one monitor, allocated lazily on first
// monitorenter (spec.md §4.9, "allocated on demand"). Keying by the
// object's address rather than its Go value lets objects that never
// synchronize skip monitor allocation entirely.
var (
	monitorsLock sync.Mutex
	monitors     = map[unsafe.Pointer]*Monitor{}
)

// MonitorFor returns the monitor for the object at p, creating one if
// this is the first synchronized access.
func MonitorFor(p unsafe.Pointer) *Monitor {
	monitorsLock.Lock()
	defer monitorsLock.Unlock()
	m, ok := monitors[p]
	if !ok {
		m = NewMonitor()
		monitors[p] = m
	}
	return m
}

// ReleaseMonitor drops the table entry for p, called when the object
// is collected so the table doesn't grow without bound. The core's
// allocator is external (spec.md §1); the host GC is expected to call
// this from its finalization path.
func ReleaseMonitor(p unsafe.Pointer) {
	monitorsLock.Lock()
	defer monitorsLock.Unlock()
	delete(monitors, p)
}
