/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import "sync"

// CallSite is the linked target of one invokedynamic instruction: once
// the bootstrap method runs, every subsequent execution of that same
// instruction reuses the resolved target without re-running bootstrap
// (JVMS §5.4.3.6). This is a feature the distilled spec's §4.8 mentions
// only in passing ("the ultimate target... MethodHandleNatives
// machinery"); original_source/ resolves it by caching per call site,
// which this type makes explicit.
type CallSite struct {
	Target     *MethodEntry
	Appendixes []interface{} // extra arguments the bootstrap method supplied, appended after the stacked arguments
}

type callSiteKey struct {
	class string
	pc    int
}

var (
	callSiteLock  sync.RWMutex
	callSiteCache = map[callSiteKey]*CallSite{}
)

// LinkedCallSite returns the previously bootstrapped CallSite for the
// invokedynamic instruction at (class, pc), if any.
func LinkedCallSite(class *RuntimeClass, pc int) (*CallSite, bool) {
	callSiteLock.RLock()
	defer callSiteLock.RUnlock()
	cs, ok := callSiteCache[callSiteKey{class.Name, pc}]
	return cs, ok
}

// LinkCallSite records the resolved CallSite for (class, pc) so future
// executions of the same instruction skip bootstrap.
func LinkCallSite(class *RuntimeClass, pc int, cs *CallSite) {
	callSiteLock.Lock()
	defer callSiteLock.Unlock()
	callSiteCache[callSiteKey{class.Name, pc}] = cs
}
