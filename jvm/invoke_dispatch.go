/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"jacobin/classloader"
	"jacobin/excNames"
	"jacobin/frames"
	"jacobin/thread"
	"jacobin/types"
)

// popArgs pops len(argTypes) values off f's operand stack, left to
// right, the way a method's declared arguments were pushed by the
// caller (spec.md §4.7).
func popArgs(f *frames.Frame, argTypes []types.Type) ([]types.Slot, error) {
	vals := make([]types.Slot, len(argTypes))
	for i := len(argTypes) - 1; i >= 0; i-- {
		v, err := f.Pop()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// invokeStaticSite resolves and runs an invokestatic call site.
func invokeStaticSite(th *thread.ExecThread, loader string, f *frames.Frame, entry classloader.CPEntry) error {
	argTypes, _, err := types.ParseMethodDescriptor(entry.NameAndTypeDescr)
	if err != nil {
		return newVMException("java/lang/InternalError", err.Error())
	}
	args, err := popArgs(f, argTypes)
	if err != nil {
		return err
	}
	target, err := resolveClassRef(loader, entry.ClassName)
	if err != nil {
		return err
	}
	if err := ensureInitialized(th, target); err != nil {
		return err
	}
	me, err := classloader.ResolveStatic(target, entry.NameAndTypeName, entry.NameAndTypeDescr)
	if err != nil {
		return err
	}
	return runAndPush(th, target, me, args, f)
}

// invokeSpecialSite resolves and runs an invokespecial call site:
// <init>, a private method, or a super.m() call.
func invokeSpecialSite(th *thread.ExecThread, loader string, f *frames.Frame, entry classloader.CPEntry) error {
	argTypes, _, err := types.ParseMethodDescriptor(entry.NameAndTypeDescr)
	if err != nil {
		return newVMException("java/lang/InternalError", err.Error())
	}
	args, err := popArgs(f, argTypes)
	if err != nil {
		return err
	}
	receiver, err := f.Pop()
	if err != nil {
		return err
	}
	if receiver.IsNull() {
		return newVMException(excNames.NullPointerException, "")
	}
	target, err := resolveClassRef(loader, entry.ClassName)
	if err != nil {
		return err
	}
	me, err := classloader.ResolveSpecial(target, entry.NameAndTypeName, entry.NameAndTypeDescr)
	if err != nil {
		return err
	}
	full := append([]types.Slot{receiver}, args...)
	return runAndPush(th, target, me, full, f)
}

// invokeVirtualSite resolves and runs an invokevirtual call site: the
// receiver's own runtime class drives dispatch (spec.md §4.8), not the
// declared class named in the constant pool.
func invokeVirtualSite(th *thread.ExecThread, loader string, f *frames.Frame, entry classloader.CPEntry) error {
	argTypes, _, err := types.ParseMethodDescriptor(entry.NameAndTypeDescr)
	if err != nil {
		return newVMException("java/lang/InternalError", err.Error())
	}
	args, err := popArgs(f, argTypes)
	if err != nil {
		return err
	}
	receiver, err := f.Pop()
	if err != nil {
		return err
	}
	if receiver.IsNull() {
		return newVMException(excNames.NullPointerException, "")
	}
	obj := slotToObj(receiver)
	receiverClass, err := resolveClassRef(loader, obj.ClassName)
	if err != nil {
		return err
	}
	me, err := classloader.ResolveVirtual(receiverClass, entry.NameAndTypeName, entry.NameAndTypeDescr)
	if err != nil {
		return err
	}
	full := append([]types.Slot{receiver}, args...)
	return runAndPush(th, receiverClass, me, full, f)
}

// invokeInterfaceSite resolves and runs an invokeinterface call site.
func invokeInterfaceSite(th *thread.ExecThread, loader string, f *frames.Frame, entry classloader.CPEntry) error {
	argTypes, _, err := types.ParseMethodDescriptor(entry.NameAndTypeDescr)
	if err != nil {
		return newVMException("java/lang/InternalError", err.Error())
	}
	args, err := popArgs(f, argTypes)
	if err != nil {
		return err
	}
	receiver, err := f.Pop()
	if err != nil {
		return err
	}
	if receiver.IsNull() {
		return newVMException(excNames.NullPointerException, "")
	}
	obj := slotToObj(receiver)
	receiverClass, err := resolveClassRef(loader, obj.ClassName)
	if err != nil {
		return err
	}
	me, err := classloader.ResolveInterface(receiverClass, entry.ClassName, entry.NameAndTypeName, entry.NameAndTypeDescr)
	if err != nil {
		return err
	}
	full := append([]types.Slot{receiver}, args...)
	return runAndPush(th, receiverClass, me, full, f)
}

// invokeDynamicSite runs a previously-bootstrapped call site, or fails
// with UnsupportedOperationException whenever no call site has been
// linked for this pc: this core's
// ClassView carries no bootstrap-method table (spec.md §6's "class-file
// input" is already parsed down to methods/fields/constant pool, and
// the distillation this core was built from never modeled
// BootstrapMethods), so invokedynamic can only replay a call site
// another part of the runtime linked in advance via
// classloader.LinkCallSite rather than run a bootstrap method itself.
func invokeDynamicSite(th *thread.ExecThread, class *classloader.RuntimeClass, pc int, f *frames.Frame, entry classloader.CPEntry) error {
	argTypes, _, err := types.ParseMethodDescriptor(entry.NameAndTypeDescr)
	if err != nil {
		return newVMException("java/lang/InternalError", err.Error())
	}
	args, err := popArgs(f, argTypes)
	if err != nil {
		return err
	}
	cs, ok := classloader.LinkedCallSite(class, pc)
	if !ok {
		return newVMException(excNames.UnsupportedOperationException, "invokedynamic call site not linked")
	}
	for _, a := range cs.Appendixes {
		if s, ok := a.(types.Slot); ok {
			args = append(args, s)
		}
	}
	return runAndPush(th, cs.Target.Class, cs.Target, args, f)
}

func runAndPush(th *thread.ExecThread, class *classloader.RuntimeClass, me *classloader.MethodEntry, args []types.Slot, f *frames.Frame) error {
	result, has, err := RunMethod(th, class, me, args)
	if err != nil {
		return err
	}
	if has {
		return f.Push(result)
	}
	return nil
}
