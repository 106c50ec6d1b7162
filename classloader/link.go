/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"fmt"

	"jacobin/excNames"
	"jacobin/globals"
	"jacobin/object"
	"jacobin/trace"
	"jacobin/types"
)

// LoadClass drives load+link (verify+prepare) for view under loader
// (spec.md §4.5: "load (parse bytes, register pre-class); link = verify
// + prepare"). Its superclass (java/lang/Object when the view names
// none) and interfaces must already be registered under the same
// loader: LoadClass does not load them itself, and fails the class with
// a NoClassDefFoundError message when one is absent. Each stage is
// idempotent: a class already past a stage is left alone.
func LoadClass(loader string, view *ClassView) (*RuntimeClass, error) {
	if rc, ok := LookupClass(view.Name, loader); ok {
		if rc.State() == StateError {
			return rc, cfe("class " + view.Name + " previously failed to load")
		}
		return rc, nil
	}

	rc := &RuntimeClass{Name: view.Name, Loader: loader, View: view}
	rc.setState(StateNew)

	if err := RegisterClass(rc); err != nil {
		// Lost a race to register the same (name, loader): use the winner.
		if existing, ok := LookupClass(view.Name, loader); ok {
			return existing, nil
		}
		return nil, err
	}

	if globals.GetGlobalRef().TraceClass {
		trace.Trace("LoadClass: " + view.Name + " registered under " + loader)
	}
	rc.setState(StateLoaded)

	if view.Name != types.ObjectClassName {
		superName := view.SuperclassName
		if superName == "" {
			superName = types.ObjectClassName
		}
		super, ok := LookupClass(superName, loader)
		if !ok {
			return nil, failClass(rc, fmt.Errorf("NoClassDefFoundError: %s (superclass of %s)", superName, view.Name))
		}
		rc.Parent = super

		for _, ifName := range view.InterfaceNames {
			iface, ok := LookupClass(ifName, loader)
			if !ok {
				return nil, failClass(rc, fmt.Errorf("NoClassDefFoundError: %s (interface of %s)", ifName, view.Name))
			}
			rc.Interfaces = append(rc.Interfaces, iface)
		}
	}

	if err := Link(rc); err != nil {
		return nil, err
	}
	return rc, nil
}

// Link runs verify then prepare, each a no-op if already done
// (idempotence is required by spec.md §8: "load; link; link = load;
// link").
func Link(rc *RuntimeClass) error {
	if rc.State() >= StateVerified {
		if rc.State() >= StatePrepared {
			return nil
		}
	} else {
		if err := Verify(rc); err != nil {
			return err
		}
	}
	return Prepare(rc)
}

// Verify runs the per-method data-flow analysis (C6) over every
// bytecode method on rc. A failure moves rc permanently to StateError
// and is reported as java/lang/VerifyError.
func Verify(rc *RuntimeClass) error {
	if rc.State() >= StateVerified {
		return nil
	}
	if rc.View != nil {
		for i := range rc.View.Methods {
			mv := &rc.View.Methods[i]
			if mv.Code == nil {
				continue // abstract or native: nothing to verify
			}
			if err := VerifyMethod(rc, mv); err != nil {
				return failClass(rc, fmt.Errorf("VerifyError: %s.%s%s: %w", rc.Name, mv.Name, mv.Descriptor, err))
			}
		}
	}
	rc.setState(StateVerified)
	if globals.GetGlobalRef().TraceVerify {
		trace.Trace("Verify: " + rc.Name + " passed")
	}
	return nil
}

// Prepare performs the VERIFIED -> PREPARED transition: assign field
// offsets (C3) and allocate the static-field storage region (spec.md
// §4.5).
func Prepare(rc *RuntimeClass) error {
	if rc.State() >= StatePrepared {
		return nil
	}
	if rc.State() != StateVerified {
		return cfe("Prepare called on " + rc.Name + " before Verify")
	}

	var superInstance []object.FieldLayoutEntry
	if rc.Parent != nil {
		superInstance = rc.Parent.InstanceLayout
	}

	var declared []object.FieldLayoutEntry
	if rc.View != nil {
		for _, f := range rc.View.Fields {
			t, _, err := types.ParseFieldDescriptor(f.Descriptor)
			if err != nil {
				return failClass(rc, fmt.Errorf("VerifyError: bad field descriptor %s.%s: %w", rc.Name, f.Name, err))
			}
			declared = append(declared, object.FieldLayoutEntry{
				Name:   f.Name,
				Type:   t,
				Static: f.Static,
			})
		}
	}

	rc.InstanceLayout, rc.StaticLayout = object.ComputeFieldLayout(superInstance, declared)

	size := 0
	for _, f := range rc.StaticLayout {
		if end := f.Offset + f.Type.Kind.Category(); end > size {
			size = end
		}
	}
	rc.StaticFields = make([]types.Slot, size)
	if rc.View != nil {
		for i, f := range rc.View.Fields {
			if !f.Static || f.ConstValue == nil {
				continue
			}
			layout := rc.StaticLayout[fieldLayoutIndex(rc.StaticLayout, f.Name)]
			rc.StaticFields[layout.Offset] = constValueSlot(f.ConstValue)
			_ = i
		}
	}

	rc.InheritanceVector = append(append([]uint32{}, parentVector(rc)...), rc.ClassID)
	for _, iface := range rc.Interfaces {
		rc.InterfaceIDs = append(rc.InterfaceIDs, iface.ClassID)
		rc.InterfaceIDs = append(rc.InterfaceIDs, iface.InterfaceIDs...)
	}

	rc.Methods = make([]*MethodEntry, 0, len(rc.View.Methods))
	for i, mv := range rc.View.Methods {
		args, ret, err := types.ParseMethodDescriptor(mv.Descriptor)
		if err != nil {
			return failClass(rc, fmt.Errorf("VerifyError: bad method descriptor %s.%s%s: %w", rc.Name, mv.Name, mv.Descriptor, err))
		}
		me := &MethodEntry{
			Class:          rc,
			Index:          i,
			Name:           mv.Name,
			Descriptor:     mv.Descriptor,
			ArgTypes:       args,
			ReturnType:     ret,
			AccessFlags:    mv.AccessFlags,
			MaxStack:       mv.MaxStack,
			MaxLocals:      mv.MaxLocals,
			Code:           mv.Code,
			ExceptionTable: mv.ExceptionTable,
		}
		if native, ok := nativeMethodFor(rc.Name, mv.Name, mv.Descriptor); ok {
			me.IsNative = true
			me.Native = native
		}
		rc.Methods = append(rc.Methods, me)
		GetOrAddMethodId(rc, i)
	}

	rc.setState(StatePrepared)
	if globals.GetGlobalRef().TraceClass {
		trace.Trace("Prepare: " + rc.Name + " laid out " + fmt.Sprint(len(rc.InstanceLayout)) + " instance field(s)")
	}
	return nil
}

func fieldLayoutIndex(layout []object.FieldLayoutEntry, name string) int {
	for i, f := range layout {
		if f.Name == name {
			return i
		}
	}
	return 0
}

func constValueSlot(v interface{}) types.Slot {
	switch x := v.(type) {
	case int32:
		return types.IntSlot(x)
	case int64:
		return types.LongSlot(x)
	case float32:
		return types.FloatSlot(x)
	case float64:
		return types.DoubleSlot(x)
	default:
		return types.Slot{}
	}
}

func parentVector(rc *RuntimeClass) []uint32 {
	if rc.Parent == nil {
		return nil
	}
	return rc.Parent.InheritanceVector
}

// Initialize runs the PREPARED -> INITIALIZING(T) -> INITIALIZED/ERROR
// transition (spec.md §4.5). Superclass initialization precedes
// subclass initialization. Concurrent callers serialize on
// golang.org/x/sync/singleflight, which gives the "first caller does
// the work, the rest wait for its result" join-and-broadcast shape a
// class monitor would otherwise need a condition variable for.
func Initialize(rc *RuntimeClass, threadID string, run func(m *MethodEntry, threadID string) error) error {
	if rc.State() == StateInitialized {
		return nil
	}
	if rc.State() == StateError {
		return &ExceptionInInitializerErr{Class: rc.Name, Cause: rc.initErr}
	}
	state := rc.State()
	if state == StateInitializing && rc.initializingThread == threadID {
		return nil // recursive request from the thread already running <clinit>
	}
	if state != StatePrepared && state != StateInitializing {
		return cfe("Initialize called on " + rc.Name + " before Prepare")
	}

	if rc.Parent != nil {
		if err := Initialize(rc.Parent, threadID, run); err != nil {
			return err
		}
	}

	_, err, _ := rc.initGroup.Do(rc.Name, func() (interface{}, error) {
		if rc.State() == StateInitialized {
			return nil, nil
		}
		if rc.State() == StateError {
			return nil, rc.initErr
		}
		rc.initializingThread = threadID
		rc.setState(StateInitializing)
		if globals.GetGlobalRef().TraceClass {
			trace.Trace("Initialize: " + rc.Name + " <clinit> running on thread " + threadID)
		}

		clinit := findMethod(rc, "<clinit>", "()V")
		if clinit != nil {
			if runErr := run(clinit, threadID); runErr != nil {
				wrapped := &ExceptionInInitializerErr{Class: rc.Name, Cause: runErr}
				rc.initErr = wrapped
				rc.setState(StateError)
				return nil, wrapped
			}
		}
		rc.setState(StateInitialized)
		return nil, nil
	})
	return err
}

func findMethod(rc *RuntimeClass, name, descriptor string) *MethodEntry {
	for _, m := range rc.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

func failClass(rc *RuntimeClass, err error) error {
	rc.initErr = err
	rc.setState(StateError)
	trace.Error(err.Error())
	return err
}

// ExceptionInInitializerErr wraps whatever a <clinit> threw, per
// spec.md §4.5: "any exception propagates out tagged as
// ExceptionInInitializerError and moves the class to ERROR forever."
type ExceptionInInitializerErr struct {
	Class string
	Cause error
}

func (e *ExceptionInInitializerErr) Error() string {
	return fmt.Sprintf("ExceptionInInitializerError: %s: %v", e.Class, e.Cause)
}
func (e *ExceptionInInitializerErr) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.ExceptionInInitializerError
}
func (e *ExceptionInInitializerErr) Unwrap() error { return e.Cause }
