/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"fmt"

	"jacobin/excNames"
	"jacobin/object"
)

// ResolveField is C8's field counterpart: a superclass-chain walk that
// matches the field by name only (the descriptor is not compared; it
// appears only in the NoSuchFieldErr), used by getfield/putfield/getstatic/putstatic
// (spec.md §4.8 groups field and method resolution under the same
// "declared class, then superclasses" rule). The returned RuntimeClass
// is the declaring class, needed by putstatic/getstatic to reach the
// right StaticFields slice even when the field was inherited.
func ResolveField(class *RuntimeClass, name, descriptor string) (*RuntimeClass, object.FieldLayoutEntry, error) {
	for c := class; c != nil; c = c.Parent {
		layout := c.InstanceLayout
		if f, ok := findField(layout, name); ok {
			return c, f, nil
		}
		if f, ok := findField(c.StaticLayout, name); ok {
			return c, f, nil
		}
	}
	return nil, object.FieldLayoutEntry{}, &NoSuchFieldErr{Class: class.Name, Name: name, Descriptor: descriptor}
}

func findField(layout []object.FieldLayoutEntry, name string) (object.FieldLayoutEntry, bool) {
	for _, f := range layout {
		if f.Name == name {
			return f, true
		}
	}
	return object.FieldLayoutEntry{}, false
}

// NoSuchFieldErr is java/lang/NoSuchFieldError (spec.md §7).
type NoSuchFieldErr struct{ Class, Name, Descriptor string }

func (e *NoSuchFieldErr) Error() string {
	return fmt.Sprintf("no such field %s.%s:%s", e.Class, e.Name, e.Descriptor)
}
func (e *NoSuchFieldErr) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.NoSuchFieldError
}
