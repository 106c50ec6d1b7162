/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import "sync"

// MethodId is C2's opaque method identity: an index into the
// append-only method table. Ids never alias across reloads because a
// reload creates a new RuntimeClass (and therefore a new key), never
// reusing an old class's slot.
type MethodId uint64

type methodTableEntry struct {
	class       *RuntimeClass
	methodIndex int
}

type methodKey struct {
	class       *RuntimeClass
	methodIndex int
}

var (
	methodTableLock sync.RWMutex
	methodTable     []methodTableEntry
	methodIdByKey   = map[methodKey]MethodId{}
)

// GetOrAddMethodId is C2's get_or_add: idempotent, returns the same id
// for the same (class, methodIndex) pair every time (spec.md §4.2,
// §8: "lookup(get_or_add(cls, i)) = (cls, i)").
func GetOrAddMethodId(class *RuntimeClass, methodIndex int) MethodId {
	key := methodKey{class, methodIndex}

	methodTableLock.RLock()
	if id, ok := methodIdByKey[key]; ok {
		methodTableLock.RUnlock()
		return id
	}
	methodTableLock.RUnlock()

	methodTableLock.Lock()
	defer methodTableLock.Unlock()
	if id, ok := methodIdByKey[key]; ok {
		return id
	}
	id := MethodId(len(methodTable))
	methodTable = append(methodTable, methodTableEntry{class: class, methodIndex: methodIndex})
	methodIdByKey[key] = id
	return id
}

// LookupMethodId is C2's lookup: total on every id GetOrAddMethodId has
// ever returned.
func LookupMethodId(id MethodId) (class *RuntimeClass, methodIndex int, ok bool) {
	methodTableLock.RLock()
	defer methodTableLock.RUnlock()
	if int(id) >= len(methodTable) {
		return nil, 0, false
	}
	e := methodTable[id]
	return e.class, e.methodIndex, true
}

// MethodEntryFor resolves a MethodId straight to its MethodEntry, the
// shape the interpreter and dispatch actually want rather than the
// raw (class, index) pair.
func MethodEntryFor(id MethodId) (*MethodEntry, bool) {
	class, idx, ok := LookupMethodId(id)
	if !ok || idx >= len(class.Methods) {
		return nil, false
	}
	return class.Methods[idx], true
}
