/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import "jacobin/gfunction"

// nativeMethodFor looks up a registered Go implementation of a native
// JDK method by its fully qualified signature, the same key shape
// gfunction's Load_* functions populate (spec.md §6, "Native call
// ABI").
func nativeMethodFor(class, name, descriptor string) (gfunction.GMeth, bool) {
	g, ok := gfunction.MethodSignatures[class+"."+name+descriptor]
	return g, ok
}
