/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

// Package stringPool interns UTF-8 class/method/field names referenced
// by index throughout the constant pool and class tables, rather than
// duplicating the string itself. Caches by the raw character sequence
// (correct), not by any Go string's identity header (the note in
// spec.md §9: "do not key on the string object itself" — the Rust
// original keys by character sequence already; this package follows
// that, since Go strings are themselves immutable value types, the
// distinction mostly disappears here, but the intern-by-content
// invariant is still the one tested).
package stringPool

import "sync"

var (
	mu       sync.RWMutex
	pool     []string
	byString map[string]uint32
)

func init() {
	Reset()
}

// Reset empties the pool. Used by tests and by a fresh VM-lifetime run.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	pool = nil
	byString = make(map[string]uint32)
}

// Intern returns the pool index for s, adding it if not already
// present. intern(s) == intern(s) for string-equal s (spec.md §8).
func Intern(s string) uint32 {
	mu.RLock()
	idx, ok := byString[s]
	mu.RUnlock()
	if ok {
		return idx
	}
	mu.Lock()
	defer mu.Unlock()
	if idx, ok := byString[s]; ok { // re-check: another writer may have won the race
		return idx
	}
	pool = append(pool, s)
	idx = uint32(len(pool) - 1)
	byString[s] = idx
	return idx
}

// GetStringPointer returns a pointer to the interned string at index.
// Matches the teacher's call shape (*stringPool.GetStringPointer(idx)).
func GetStringPointer(index uint32) *string {
	mu.RLock()
	defer mu.RUnlock()
	if int(index) >= len(pool) {
		empty := ""
		return &empty
	}
	return &pool[index]
}

// GetStringPoolSize returns the number of interned entries.
func GetStringPoolSize() uint32 {
	mu.RLock()
	defer mu.RUnlock()
	return uint32(len(pool))
}
