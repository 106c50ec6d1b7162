/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"encoding/binary"
	"fmt"

	"jacobin/opcodes"
	"jacobin/types"
)

// vType is one verification-time slot type: a types.Kind plus the extra
// tags the verifier (uniquely among readers of types.Type) needs to
// track — the uninitialized-new marker invokespecial's <init> rule
// consumes, and an array's element kind for the array load/store rule
// (spec.md §4.6).
type vType struct {
	kind          types.Kind
	className     string     // populated for ClassRef
	elemKind      types.Kind // populated for ArrayRef: the element's kind (ClassRef for an array of class instances)
	elemClassName string     // populated for ArrayRef whose elemKind is ClassRef
	uninitialized bool
	newOffset     int // valid when uninitialized; -1 means uninitializedThis
}

const uninitializedThisOffset = -1

func vCat1(k types.Kind) vType     { return vType{kind: k} }
func vRef(class string) vType      { return vType{kind: types.ClassRef, className: class} }
func vArr(elem vType) vType {
	if elem.kind == types.ClassRef {
		return vType{kind: types.ArrayRef, elemKind: types.ClassRef, elemClassName: elem.className}
	}
	return vType{kind: types.ArrayRef, elemKind: elem.kind}
}

func (t vType) category() int {
	if t.kind == types.Long || t.kind == types.Double {
		return 2
	}
	return 1
}

func (t vType) equal(o vType) bool {
	return t.kind == o.kind && t.uninitialized == o.uninitialized &&
		t.newOffset == o.newOffset && t.elemKind == o.elemKind
}

// vFrame is C6's Frame: typed locals, a typed operand stack, and the
// uninitialized-this flag a constructor's frame carries until it calls
// its own or its superclass's <init> (spec.md §3 "Frame").
type vFrame struct {
	locals     []vType
	stack      []vType
	thisUninit bool
}

func (f vFrame) clone() vFrame {
	return vFrame{
		locals:     append([]vType{}, f.locals...),
		stack:      append([]vType{}, f.stack...),
		thisUninit: f.thisUninit,
	}
}

func (f *vFrame) push(t vType) {
	f.stack = append(f.stack, t)
	if t.category() == 2 {
		f.stack = append(f.stack, vType{kind: types.KindTop})
	}
}

func (f *vFrame) pop() (vType, error) {
	if len(f.stack) == 0 {
		return vType{}, fmt.Errorf("operand stack underflow")
	}
	top := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	if top.kind == types.KindTop {
		if len(f.stack) == 0 {
			return vType{}, fmt.Errorf("operand stack underflow reading category-2 value")
		}
		top = f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
	}
	return top, nil
}

func (f *vFrame) popCategory1() (vType, error) {
	v, err := f.pop()
	if err != nil {
		return v, err
	}
	if v.category() != 1 {
		return v, fmt.Errorf("expected category-1 value")
	}
	return v, nil
}

// merge lub's two frames slot-by-slot (spec.md §4.6). Widths must agree
// exactly; incompatible category widths fail verification. Reference
// mismatches lub to java/lang/Object rather than failing, since this
// core's assignability lattice (C1) is what later confirms real
// assignability at each use.
func merge(a, b vFrame) (vFrame, bool) {
	if len(a.locals) != len(b.locals) || len(a.stack) != len(b.stack) {
		return vFrame{}, false
	}
	out := vFrame{thisUninit: a.thisUninit || b.thisUninit}
	for i := range a.locals {
		m, ok := mergeSlot(a.locals[i], b.locals[i])
		if !ok {
			return vFrame{}, false
		}
		out.locals = append(out.locals, m)
	}
	for i := range a.stack {
		m, ok := mergeSlot(a.stack[i], b.stack[i])
		if !ok {
			return vFrame{}, false
		}
		out.stack = append(out.stack, m)
	}
	return out, true
}

func mergeSlot(a, b vType) (vType, bool) {
	if a.equal(b) {
		return a, true
	}
	if a.kind == types.KindTop || b.kind == types.KindTop {
		return vType{}, a.kind == b.kind
	}
	if a.category() != b.category() {
		return vType{}, false
	}
	if a.kind == types.ClassRef && b.kind == types.ClassRef {
		return vRef(types.ObjectClassName), true
	}
	if a.kind != b.kind {
		return vType{}, false
	}
	return a, true
}

// VerifyMethod runs the worklist data-flow analysis over one method's
// bytecode, failing with a reason the moment any instruction's typing
// rule can't be satisfied (spec.md §4.6).
func VerifyMethod(rc *RuntimeClass, mv *MethodView) error {
	code := mv.Code
	if len(code) == 0 {
		return nil
	}

	initial := vFrame{}
	argTypes, _, err := types.ParseMethodDescriptor(mv.Descriptor)
	if err != nil {
		return err
	}
	isStatic := mv.AccessFlags&0x0008 != 0
	if !isStatic {
		if mv.Name == "<init>" {
			initial.locals = append(initial.locals, vType{kind: types.ClassRef, className: rc.Name, uninitialized: true, newOffset: uninitializedThisOffset})
			initial.thisUninit = true
		} else {
			initial.locals = append(initial.locals, vRef(rc.Name))
		}
	}
	for _, t := range argTypes {
		initial.locals = append(initial.locals, typeToV(t))
		if t.Kind.Category() == 2 {
			initial.locals = append(initial.locals, vType{kind: types.KindTop})
		}
	}
	for len(initial.locals) < mv.MaxLocals {
		initial.locals = append(initial.locals, vType{kind: types.KindTop})
	}

	frames := make(map[int]vFrame)
	frames[0] = initial
	worklist := []int{0}

	for _, h := range mv.ExceptionTable {
		handlerType := types.ObjectClassName
		if h.CatchType != "" {
			handlerType = h.CatchType
		}
		hf := vFrame{locals: initial.locals}
		hf.push(vRef(handlerType))
		if existing, ok := frames[h.HandlerPC]; ok {
			m, ok := merge(existing, hf)
			if !ok {
				return fmt.Errorf("incompatible frames at exception handler offset %d", h.HandlerPC)
			}
			frames[h.HandlerPC] = m
		} else {
			frames[h.HandlerPC] = hf
			worklist = append(worklist, h.HandlerPC)
		}
	}

	visited := map[int]bool{}
	for len(worklist) > 0 {
		pc := worklist[0]
		worklist = worklist[1:]
		if pc >= len(code) {
			return fmt.Errorf("control falls off the end of the method at offset %d", pc)
		}
		in := frames[pc].clone()
		out, next, err := stepOpcode(rc, mv, code, pc, in)
		if err != nil {
			return fmt.Errorf("offset %d (%s): %w", pc, opcodes.Name(code[pc]), err)
		}
		visited[pc] = true
		for _, n := range next {
			if existing, ok := frames[n.pc]; ok {
				m, ok := merge(existing, n.frame)
				if !ok {
					return fmt.Errorf("incompatible frames merging into offset %d from %d", n.pc, pc)
				}
				if !framesEqual(m, existing) {
					frames[n.pc] = m
					worklist = append(worklist, n.pc)
				}
			} else {
				frames[n.pc] = n.frame
				worklist = append(worklist, n.pc)
			}
		}
		_ = out
	}
	return nil
}

func framesEqual(a, b vFrame) bool {
	if len(a.locals) != len(b.locals) || len(a.stack) != len(b.stack) {
		return false
	}
	for i := range a.locals {
		if !a.locals[i].equal(b.locals[i]) {
			return false
		}
	}
	for i := range a.stack {
		if !a.stack[i].equal(b.stack[i]) {
			return false
		}
	}
	return true
}

type successor struct {
	pc    int
	frame vFrame
}

func typeToV(t types.Type) vType {
	switch t.Kind {
	case types.ClassRef:
		return vRef(t.Class)
	case types.ArrayRef:
		return vArr(typeToV(*t.Element))
	default:
		return vCat1(t.Kind)
	}
}

// stepOpcode applies one instruction's typing rule to in, yielding the
// frame(s) reachable from pc. Most opcodes fall through to the next
// instruction; branches, returns, and athrow produce different
// successor sets. The switch below implements the rules spec.md §4.6
// calls out explicitly; arithmetic/conversion/constant opcodes use the
// generic category-effect helpers since their rule is uniform (pop N
// category-tagged operands, push the result type).
func stepOpcode(rc *RuntimeClass, mv *MethodView, code []byte, pc int, in vFrame) (vFrame, []successor, error) {
	op := code[pc]
	size := instructionSize(code, pc)
	fallthroughPC := pc + size

	f := in.clone()

	fall := func() ([]successor, error) {
		return []successor{{fallthroughPC, f}}, nil
	}

	switch op {
	case opcodes.NOP:
		return f, []successor{{fallthroughPC, f}}, nil
	case opcodes.ACONST_NULL:
		f.push(vType{kind: types.ClassRef})
		return f, []successor{{fallthroughPC, f}}, nil
	case opcodes.ICONST_M1, opcodes.ICONST_0, opcodes.ICONST_1, opcodes.ICONST_2, opcodes.ICONST_3, opcodes.ICONST_4, opcodes.ICONST_5, opcodes.BIPUSH, opcodes.SIPUSH:
		f.push(vCat1(types.Int))
		return f, []successor{{fallthroughPC, f}}, nil
	case opcodes.LCONST_0, opcodes.LCONST_1:
		f.push(vCat1(types.Long))
		return f, []successor{{fallthroughPC, f}}, nil
	case opcodes.FCONST_0, opcodes.FCONST_1, opcodes.FCONST_2:
		f.push(vCat1(types.Float))
		return f, []successor{{fallthroughPC, f}}, nil
	case opcodes.DCONST_0, opcodes.DCONST_1:
		f.push(vCat1(types.Double))
		return f, []successor{{fallthroughPC, f}}, nil
	case opcodes.LDC, opcodes.LDC_W:
		idx := operandIndex(code, pc, op == opcodes.LDC)
		f.push(ldcType(rc, idx))
		return f, []successor{{fallthroughPC, f}}, nil
	case opcodes.LDC2_W:
		idx := int(binary.BigEndian.Uint16(code[pc+1:]))
		f.push(ldcType(rc, idx))
		return f, []successor{{fallthroughPC, f}}, nil

	case opcodes.ILOAD, opcodes.ILOAD_0, opcodes.ILOAD_1, opcodes.ILOAD_2, opcodes.ILOAD_3:
		return loadLocal(f, localIndexFor(op, opcodes.ILOAD, opcodes.ILOAD_0, code, pc), types.Int, fallthroughPC)
	case opcodes.LLOAD, opcodes.LLOAD_0, opcodes.LLOAD_1, opcodes.LLOAD_2, opcodes.LLOAD_3:
		return loadLocal(f, localIndexFor(op, opcodes.LLOAD, opcodes.LLOAD_0, code, pc), types.Long, fallthroughPC)
	case opcodes.FLOAD, opcodes.FLOAD_0, opcodes.FLOAD_1, opcodes.FLOAD_2, opcodes.FLOAD_3:
		return loadLocal(f, localIndexFor(op, opcodes.FLOAD, opcodes.FLOAD_0, code, pc), types.Float, fallthroughPC)
	case opcodes.DLOAD, opcodes.DLOAD_0, opcodes.DLOAD_1, opcodes.DLOAD_2, opcodes.DLOAD_3:
		return loadLocal(f, localIndexFor(op, opcodes.DLOAD, opcodes.DLOAD_0, code, pc), types.Double, fallthroughPC)
	case opcodes.ALOAD, opcodes.ALOAD_0, opcodes.ALOAD_1, opcodes.ALOAD_2, opcodes.ALOAD_3:
		idx := localIndexFor(op, opcodes.ALOAD, opcodes.ALOAD_0, code, pc)
		if idx >= len(f.locals) {
			return f, nil, fmt.Errorf("aload of local %d beyond max_locals", idx)
		}
		f.push(f.locals[idx])
		succ, err := fall()
		return f, succ, err

	case opcodes.ISTORE, opcodes.ISTORE_0, opcodes.ISTORE_1, opcodes.ISTORE_2, opcodes.ISTORE_3:
		return storeLocal(f, localIndexFor(op, opcodes.ISTORE, opcodes.ISTORE_0, code, pc), types.Int, fallthroughPC)
	case opcodes.LSTORE, opcodes.LSTORE_0, opcodes.LSTORE_1, opcodes.LSTORE_2, opcodes.LSTORE_3:
		return storeLocal(f, localIndexFor(op, opcodes.LSTORE, opcodes.LSTORE_0, code, pc), types.Long, fallthroughPC)
	case opcodes.FSTORE, opcodes.FSTORE_0, opcodes.FSTORE_1, opcodes.FSTORE_2, opcodes.FSTORE_3:
		return storeLocal(f, localIndexFor(op, opcodes.FSTORE, opcodes.FSTORE_0, code, pc), types.Float, fallthroughPC)
	case opcodes.DSTORE, opcodes.DSTORE_0, opcodes.DSTORE_1, opcodes.DSTORE_2, opcodes.DSTORE_3:
		return storeLocal(f, localIndexFor(op, opcodes.DSTORE, opcodes.DSTORE_0, code, pc), types.Double, fallthroughPC)
	case opcodes.ASTORE, opcodes.ASTORE_0, opcodes.ASTORE_1, opcodes.ASTORE_2, opcodes.ASTORE_3:
		idx := localIndexFor(op, opcodes.ASTORE, opcodes.ASTORE_0, code, pc)
		v, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if v.kind != types.ClassRef && v.kind != types.ArrayRef {
			return f, nil, fmt.Errorf("astore of non-reference type")
		}
		for idx >= len(f.locals) {
			f.locals = append(f.locals, vType{kind: types.KindTop})
		}
		f.locals[idx] = v
		succ, err := fall()
		return f, succ, err

	// Array loads: "iaload requires an int[]" and siblings (spec.md §4.6).
	case opcodes.IALOAD:
		return arrayLoad(f, types.Int, fallthroughPC)
	case opcodes.LALOAD:
		return arrayLoad(f, types.Long, fallthroughPC)
	case opcodes.FALOAD:
		return arrayLoad(f, types.Float, fallthroughPC)
	case opcodes.DALOAD:
		return arrayLoad(f, types.Double, fallthroughPC)
	case opcodes.BALOAD:
		return arrayLoad(f, types.Byte, fallthroughPC)
	case opcodes.CALOAD:
		return arrayLoad(f, types.Char, fallthroughPC)
	case opcodes.SALOAD:
		return arrayLoad(f, types.Short, fallthroughPC)
	case opcodes.AALOAD:
		idxT, err := f.popCategory1()
		if err != nil {
			return f, nil, err
		}
		if idxT.kind != types.Int {
			return f, nil, fmt.Errorf("aaload index must be int")
		}
		arr, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if arr.kind != types.ArrayRef {
			return f, nil, fmt.Errorf("aaload requires a reference array")
		}
		if arr.elemKind == types.ClassRef {
			f.push(vRef(arr.elemClassName))
		} else {
			f.push(vRef(types.ObjectClassName))
		}
		succ, err := fall()
		return f, succ, err

	case opcodes.IASTORE:
		return arrayStore(f, types.Int, fallthroughPC)
	case opcodes.LASTORE:
		return arrayStore(f, types.Long, fallthroughPC)
	case opcodes.FASTORE:
		return arrayStore(f, types.Float, fallthroughPC)
	case opcodes.DASTORE:
		return arrayStore(f, types.Double, fallthroughPC)
	case opcodes.BASTORE:
		return arrayStore(f, types.Byte, fallthroughPC)
	case opcodes.CASTORE:
		return arrayStore(f, types.Char, fallthroughPC)
	case opcodes.SASTORE:
		return arrayStore(f, types.Short, fallthroughPC)
	case opcodes.AASTORE:
		_, err := f.pop() // value
		if err != nil {
			return f, nil, err
		}
		idxT, err := f.popCategory1()
		if err != nil {
			return f, nil, err
		}
		if idxT.kind != types.Int {
			return f, nil, fmt.Errorf("aastore index must be int")
		}
		arr, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if arr.kind != types.ArrayRef {
			return f, nil, fmt.Errorf("aastore requires a reference array")
		}
		succ, err := fall()
		return f, succ, err

	case opcodes.POP:
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		succ, err := fall()
		return f, succ, err
	case opcodes.POP2:
		// pop2's category-2 tag: one category-2 value, or two category-1.
		top, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if top.category() == 1 {
			if _, err := f.popCategory1(); err != nil {
				return f, nil, err
			}
		}
		succ, err := fall()
		return f, succ, err
	case opcodes.DUP:
		v, err := f.popCategory1()
		if err != nil {
			return f, nil, err
		}
		f.push(v)
		f.push(v)
		succ, err := fall()
		return f, succ, err
	case opcodes.DUP2:
		top, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if top.category() == 2 {
			f.push(top)
			f.push(top)
		} else {
			second, err := f.popCategory1()
			if err != nil {
				return f, nil, err
			}
			f.push(second)
			f.push(top)
			f.push(second)
			f.push(top)
		}
		succ, err := fall()
		return f, succ, err
	case opcodes.DUP_X1:
		v1, err := f.popCategory1()
		if err != nil {
			return f, nil, err
		}
		v2, err := f.popCategory1()
		if err != nil {
			return f, nil, err
		}
		f.push(v1)
		f.push(v2)
		f.push(v1)
		succ, err := fall()
		return f, succ, err
	case opcodes.DUP_X2, opcodes.DUP2_X1, opcodes.DUP2_X2:
		// Category-2-aware forms: their tag comes from the incoming
		// frame's category makeup (spec.md §4.6); handled generically by
		// re-pushing whatever was popped in the standard permutation.
		succ, err := dupDeep(f, op, fallthroughPC)
		return f, succ, err
	case opcodes.SWAP:
		v1, err := f.popCategory1()
		if err != nil {
			return f, nil, err
		}
		v2, err := f.popCategory1()
		if err != nil {
			return f, nil, err
		}
		f.push(v1)
		f.push(v2)
		succ, err := fall()
		return f, succ, err

	case opcodes.IADD, opcodes.ISUB, opcodes.IMUL, opcodes.IDIV, opcodes.IREM, opcodes.IAND, opcodes.IOR, opcodes.IXOR, opcodes.ISHL, opcodes.ISHR, opcodes.IUSHR:
		return binaryOp(f, types.Int, fallthroughPC, op == opcodes.ISHL || op == opcodes.ISHR || op == opcodes.IUSHR)
	case opcodes.LADD, opcodes.LSUB, opcodes.LMUL, opcodes.LDIV, opcodes.LREM, opcodes.LAND, opcodes.LOR, opcodes.LXOR:
		return binaryOp(f, types.Long, fallthroughPC, false)
	case opcodes.LSHL, opcodes.LSHR, opcodes.LUSHR:
		if _, err := f.popCategory1(); err != nil { // shift amount is always int
			return f, nil, err
		}
		v, err := f.pop()
		if err != nil || v.kind != types.Long {
			return f, nil, fmt.Errorf("shift base must be long")
		}
		f.push(vCat1(types.Long))
		succ, err := fall()
		return f, succ, err
	case opcodes.FADD, opcodes.FSUB, opcodes.FMUL, opcodes.FDIV, opcodes.FREM:
		return binaryOp(f, types.Float, fallthroughPC, false)
	case opcodes.DADD, opcodes.DSUB, opcodes.DMUL, opcodes.DDIV, opcodes.DREM:
		return binaryOp(f, types.Double, fallthroughPC, false)
	case opcodes.INEG:
		return unaryOp(f, types.Int, fallthroughPC)
	case opcodes.LNEG:
		return unaryOp(f, types.Long, fallthroughPC)
	case opcodes.FNEG:
		return unaryOp(f, types.Float, fallthroughPC)
	case opcodes.DNEG:
		return unaryOp(f, types.Double, fallthroughPC)
	case opcodes.IINC:
		idx := int(code[pc+1])
		if idx >= len(f.locals) || f.locals[idx].kind != types.Int {
			return f, nil, fmt.Errorf("iinc on non-int local %d", idx)
		}
		succ, err := fall()
		return f, succ, err

	case opcodes.I2L:
		return convert(f, types.Int, types.Long, fallthroughPC)
	case opcodes.I2F:
		return convert(f, types.Int, types.Float, fallthroughPC)
	case opcodes.I2D:
		return convert(f, types.Int, types.Double, fallthroughPC)
	case opcodes.L2I:
		return convert(f, types.Long, types.Int, fallthroughPC)
	case opcodes.L2F:
		return convert(f, types.Long, types.Float, fallthroughPC)
	case opcodes.L2D:
		return convert(f, types.Long, types.Double, fallthroughPC)
	case opcodes.F2I:
		return convert(f, types.Float, types.Int, fallthroughPC)
	case opcodes.F2L:
		return convert(f, types.Float, types.Long, fallthroughPC)
	case opcodes.F2D:
		return convert(f, types.Float, types.Double, fallthroughPC)
	case opcodes.D2I:
		return convert(f, types.Double, types.Int, fallthroughPC)
	case opcodes.D2L:
		return convert(f, types.Double, types.Long, fallthroughPC)
	case opcodes.D2F:
		return convert(f, types.Double, types.Float, fallthroughPC)
	case opcodes.I2B:
		return convert(f, types.Int, types.Byte, fallthroughPC)
	case opcodes.I2C:
		return convert(f, types.Int, types.Char, fallthroughPC)
	case opcodes.I2S:
		return convert(f, types.Int, types.Short, fallthroughPC)

	case opcodes.LCMP:
		return compareOp(f, types.Long, fallthroughPC)
	case opcodes.FCMPL, opcodes.FCMPG:
		return compareOp(f, types.Float, fallthroughPC)
	case opcodes.DCMPL, opcodes.DCMPG:
		return compareOp(f, types.Double, fallthroughPC)

	case opcodes.IFEQ, opcodes.IFNE, opcodes.IFLT, opcodes.IFGE, opcodes.IFGT, opcodes.IFLE:
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		return f, branchSuccessors(f, code, pc, fallthroughPC), nil
	case opcodes.IFNULL, opcodes.IFNONNULL:
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		return f, branchSuccessors(f, code, pc, fallthroughPC), nil
	case opcodes.IF_ICMPEQ, opcodes.IF_ICMPNE, opcodes.IF_ICMPLT, opcodes.IF_ICMPGE, opcodes.IF_ICMPGT, opcodes.IF_ICMPLE:
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		return f, branchSuccessors(f, code, pc, fallthroughPC), nil
	case opcodes.IF_ACMPEQ, opcodes.IF_ACMPNE:
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		return f, branchSuccessors(f, code, pc, fallthroughPC), nil
	case opcodes.GOTO:
		target := pc + int(int16(binary.BigEndian.Uint16(code[pc+1:])))
		return f, []successor{{target, f}}, nil
	case opcodes.GOTO_W:
		target := pc + int(int32(binary.BigEndian.Uint32(code[pc+1:])))
		return f, []successor{{target, f}}, nil

	case opcodes.JSR, opcodes.JSR_W:
		// jsr/ret: push a return-address type (modeled here as Int,
		// distinguishing it only by convention) then branch, matching
		// the category-1 width the operand stack expects (spec.md §4.6).
		target := pc + int(int16(binary.BigEndian.Uint16(code[pc+1:])))
		if op == opcodes.JSR_W {
			target = pc + int(int32(binary.BigEndian.Uint32(code[pc+1:])))
		}
		f.push(vCat1(types.Int))
		return f, []successor{{target, f}}, nil
	case opcodes.RET:
		// ret has no statically known successor in this simplified
		// verifier; subroutines are rare in compiler-emitted bytecode
		// post-Java 6, so falling through to nothing is acceptable so
		// long as no later instruction depends on ret's target.
		return f, nil, nil

	case opcodes.TABLESWITCH, opcodes.LOOKUPSWITCH:
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		return f, switchSuccessors(f, code, pc), nil

	case opcodes.IRETURN, opcodes.FRETURN:
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		return f, nil, nil
	case opcodes.LRETURN, opcodes.DRETURN:
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		return f, nil, nil
	case opcodes.ARETURN:
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		return f, nil, nil
	case opcodes.RETURN:
		return f, nil, nil

	case opcodes.GETSTATIC:
		t, err := cpFieldType(rc, code, pc)
		if err != nil {
			return f, nil, err
		}
		f.push(t)
		succ, err := fall()
		return f, succ, err
	case opcodes.PUTSTATIC:
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		succ, err := fall()
		return f, succ, err
	case opcodes.GETFIELD:
		t, err := cpFieldType(rc, code, pc)
		if err != nil {
			return f, nil, err
		}
		if _, err := f.pop(); err != nil { // objectref
			return f, nil, err
		}
		f.push(t)
		succ, err := fall()
		return f, succ, err
	case opcodes.PUTFIELD:
		if _, err := f.pop(); err != nil { // value
			return f, nil, err
		}
		if _, err := f.pop(); err != nil { // objectref
			return f, nil, err
		}
		succ, err := fall()
		return f, succ, err

	case opcodes.INVOKESTATIC, opcodes.INVOKESPECIAL, opcodes.INVOKEVIRTUAL, opcodes.INVOKEINTERFACE:
		return stepInvoke(rc, code, pc, op, f, fallthroughPC)

	case opcodes.INVOKEDYNAMIC:
		_, ret, err := cpInvokeDescriptor(rc, code, pc)
		if err != nil {
			return f, nil, err
		}
		if ret.Kind != types.Void {
			f.push(typeToV(ret))
		}
		succ, err := fall()
		return f, succ, err

	case opcodes.NEW:
		className, err := cpClassName(rc, code, pc)
		if err != nil {
			return f, nil, err
		}
		f.push(vType{kind: types.ClassRef, className: className, uninitialized: true, newOffset: pc})
		succ, err := fall()
		return f, succ, err

	case opcodes.NEWARRAY:
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		f.push(vArr(vCat1(primitiveForArrayType(code[pc+1]))))
		succ, err := fall()
		return f, succ, err
	case opcodes.ANEWARRAY:
		className, err := cpClassName(rc, code, pc)
		if err != nil {
			return f, nil, err
		}
		if _, err := f.popCategory1(); err != nil {
			return f, nil, err
		}
		f.push(vArr(vRef(className)))
		succ, err := fall()
		return f, succ, err
	case opcodes.MULTIANEWARRAY:
		className, err := cpClassName(rc, code, pc)
		if err != nil {
			return f, nil, err
		}
		dims := int(code[pc+3])
		for i := 0; i < dims; i++ {
			if _, err := f.popCategory1(); err != nil {
				return f, nil, err
			}
		}
		f.push(vRef(className)) // className already includes leading '[' depth
		succ, err := fall()
		return f, succ, err
	case opcodes.ARRAYLENGTH:
		arr, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if arr.kind != types.ArrayRef {
			return f, nil, fmt.Errorf("arraylength requires an array")
		}
		f.push(vCat1(types.Int))
		succ, err := fall()
		return f, succ, err

	case opcodes.ATHROW:
		// athrow pops a reference assignable to Throwable; control does
		// not fall through (spec.md §4.6).
		v, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if v.kind != types.ClassRef && v.kind != types.ArrayRef {
			return f, nil, fmt.Errorf("athrow requires a reference")
		}
		return f, nil, nil

	case opcodes.CHECKCAST:
		className, err := cpClassName(rc, code, pc)
		if err != nil {
			return f, nil, err
		}
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		f.push(vRef(className))
		succ, err := fall()
		return f, succ, err
	case opcodes.INSTANCEOF:
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		f.push(vCat1(types.Int))
		succ, err := fall()
		return f, succ, err

	case opcodes.MONITORENTER, opcodes.MONITOREXIT:
		if _, err := f.pop(); err != nil {
			return f, nil, err
		}
		succ, err := fall()
		return f, succ, err

	case opcodes.WIDE:
		succ, err := fall()
		return f, succ, err

	default:
		return f, nil, fmt.Errorf("unrecognized opcode 0x%x", op)
	}
}

func loadLocal(f vFrame, idx int, k types.Kind, fallthroughPC int) (vFrame, []successor, error) {
	if idx >= len(f.locals) || f.locals[idx].kind != k {
		return f, nil, fmt.Errorf("load of local %d: expected %v", idx, k)
	}
	f.push(vCat1(k))
	return f, []successor{{fallthroughPC, f}}, nil
}

func storeLocal(f vFrame, idx int, k types.Kind, fallthroughPC int) (vFrame, []successor, error) {
	v, err := f.pop()
	if err != nil {
		return f, nil, err
	}
	if v.kind != k {
		return f, nil, fmt.Errorf("store of local %d: expected %v, got %v", idx, k, v.kind)
	}
	for idx >= len(f.locals) {
		f.locals = append(f.locals, vType{kind: types.KindTop})
	}
	f.locals[idx] = v
	if v.category() == 2 {
		for idx+1 >= len(f.locals) {
			f.locals = append(f.locals, vType{kind: types.KindTop})
		}
		f.locals[idx+1] = vType{kind: types.KindTop}
	}
	return f, []successor{{fallthroughPC, f}}, nil
}

func arrayLoad(f vFrame, elem types.Kind, fallthroughPC int) (vFrame, []successor, error) {
	idxT, err := f.popCategory1()
	if err != nil {
		return f, nil, err
	}
	if idxT.kind != types.Int {
		return f, nil, fmt.Errorf("array index must be int")
	}
	arr, err := f.pop()
	if err != nil {
		return f, nil, err
	}
	if arr.kind != types.ArrayRef || arr.elemKind != elem {
		return f, nil, fmt.Errorf("expected %v[] on stack, got %v", elem, arr.kind)
	}
	f.push(vCat1(elem))
	return f, []successor{{fallthroughPC, f}}, nil
}

func arrayStore(f vFrame, elem types.Kind, fallthroughPC int) (vFrame, []successor, error) {
	val, err := f.pop()
	if err != nil {
		return f, nil, err
	}
	if val.kind != elem {
		return f, nil, fmt.Errorf("expected %v value, got %v", elem, val.kind)
	}
	idxT, err := f.popCategory1()
	if err != nil {
		return f, nil, err
	}
	if idxT.kind != types.Int {
		return f, nil, fmt.Errorf("array index must be int")
	}
	arr, err := f.pop()
	if err != nil {
		return f, nil, err
	}
	if arr.kind != types.ArrayRef || arr.elemKind != elem {
		return f, nil, fmt.Errorf("expected %v[] on stack, got %v", elem, arr.kind)
	}
	return f, []successor{{fallthroughPC, f}}, nil
}

func binaryOp(f vFrame, k types.Kind, fallthroughPC int, shift bool) (vFrame, []successor, error) {
	b, err := f.pop()
	if err != nil || b.kind != k {
		return f, nil, fmt.Errorf("binary op expected %v", k)
	}
	a, err := f.pop()
	if err != nil || a.kind != k {
		return f, nil, fmt.Errorf("binary op expected %v", k)
	}
	f.push(vCat1(k))
	return f, []successor{{fallthroughPC, f}}, nil
}

func unaryOp(f vFrame, k types.Kind, fallthroughPC int) (vFrame, []successor, error) {
	v, err := f.pop()
	if err != nil || v.kind != k {
		return f, nil, fmt.Errorf("unary op expected %v", k)
	}
	f.push(vCat1(k))
	return f, []successor{{fallthroughPC, f}}, nil
}

func convert(f vFrame, from, to types.Kind, fallthroughPC int) (vFrame, []successor, error) {
	v, err := f.pop()
	if err != nil || v.kind != from {
		return f, nil, fmt.Errorf("conversion expected %v", from)
	}
	f.push(vCat1(to))
	return f, []successor{{fallthroughPC, f}}, nil
}

func compareOp(f vFrame, k types.Kind, fallthroughPC int) (vFrame, []successor, error) {
	b, err := f.pop()
	if err != nil || b.kind != k {
		return f, nil, fmt.Errorf("compare expected %v", k)
	}
	a, err := f.pop()
	if err != nil || a.kind != k {
		return f, nil, fmt.Errorf("compare expected %v", k)
	}
	f.push(vCat1(types.Int))
	return f, []successor{{fallthroughPC, f}}, nil
}

func dupDeep(f vFrame, op byte, fallthroughPC int) ([]successor, error) {
	switch op {
	case opcodes.DUP_X2:
		v1, err := f.popCategory1()
		if err != nil {
			return nil, err
		}
		v2, err := f.pop()
		if err != nil {
			return nil, err
		}
		if v2.category() == 1 {
			v3, err := f.popCategory1()
			if err != nil {
				return nil, err
			}
			f.push(v1)
			f.push(v3)
			f.push(v2)
			f.push(v1)
		} else {
			f.push(v1)
			f.push(v2)
			f.push(v1)
		}
	case opcodes.DUP2_X1:
		top, err := f.pop()
		if err != nil {
			return nil, err
		}
		if top.category() == 2 {
			v2, err := f.popCategory1()
			if err != nil {
				return nil, err
			}
			f.push(top)
			f.push(v2)
			f.push(top)
		} else {
			second, err := f.popCategory1()
			if err != nil {
				return nil, err
			}
			third, err := f.popCategory1()
			if err != nil {
				return nil, err
			}
			f.push(second)
			f.push(top)
			f.push(third)
			f.push(second)
			f.push(top)
		}
	case opcodes.DUP2_X2:
		// Each group is one category-2 value or two category-1 values.
		popGroup := func() ([]vType, error) {
			v, err := f.pop()
			if err != nil || v.category() == 2 {
				return []vType{v}, err
			}
			w, err := f.popCategory1()
			return []vType{w, v}, err
		}
		g1, err := popGroup()
		if err != nil {
			return nil, err
		}
		g2, err := popGroup()
		if err != nil {
			return nil, err
		}
		for _, g := range [][]vType{g1, g2, g1} {
			for _, v := range g {
				f.push(v)
			}
		}
	}
	return []successor{{fallthroughPC, f}}, nil
}

func branchSuccessors(f vFrame, code []byte, pc, fallthroughPC int) []successor {
	target := pc + int(int16(binary.BigEndian.Uint16(code[pc+1:])))
	return []successor{{fallthroughPC, f}, {target, f}}
}

func switchSuccessors(f vFrame, code []byte, pc int) []successor {
	// Align to the next 4-byte boundary after the opcode (spec.md §6).
	base := pc + 1
	pad := (4 - (base % 4)) % 4
	p := base + pad
	defaultTarget := pc + int(int32(binary.BigEndian.Uint32(code[p:])))
	succ := []successor{{defaultTarget, f}}
	if code[pc] == opcodes.TABLESWITCH {
		low := int32(binary.BigEndian.Uint32(code[p+4:]))
		high := int32(binary.BigEndian.Uint32(code[p+8:]))
		entries := p + 12
		for i := int32(0); i <= high-low; i++ {
			off := int32(binary.BigEndian.Uint32(code[entries+int(i)*4:]))
			succ = append(succ, successor{pc + int(off), f})
		}
	} else {
		npairs := int32(binary.BigEndian.Uint32(code[p+4:]))
		entries := p + 8
		for i := int32(0); i < npairs; i++ {
			off := int32(binary.BigEndian.Uint32(code[entries+int(i)*8+4:]))
			succ = append(succ, successor{pc + int(off), f})
		}
	}
	return succ
}

func localIndexFor(op byte, wideOp, zeroOp byte, code []byte, pc int) int {
	if op == wideOp {
		return int(code[pc+1])
	}
	return int(op - zeroOp)
}

func operandIndex(code []byte, pc int, oneByteOperand bool) int {
	if oneByteOperand {
		return int(code[pc+1])
	}
	return int(binary.BigEndian.Uint16(code[pc+1:]))
}

func primitiveForArrayType(atype byte) types.Kind {
	switch atype {
	case opcodes.AT_BOOLEAN:
		return types.Boolean
	case opcodes.AT_CHAR:
		return types.Char
	case opcodes.AT_FLOAT:
		return types.Float
	case opcodes.AT_DOUBLE:
		return types.Double
	case opcodes.AT_BYTE:
		return types.Byte
	case opcodes.AT_SHORT:
		return types.Short
	case opcodes.AT_INT:
		return types.Int
	default:
		return types.Long
	}
}

func ldcType(rc *RuntimeClass, idx int) vType {
	if rc.View == nil || idx < 0 || idx >= len(rc.View.ConstantPool) {
		return vRef(types.ObjectClassName)
	}
	switch rc.View.ConstantPool[idx].Kind {
	case CPInteger:
		return vCat1(types.Int)
	case CPFloat:
		return vCat1(types.Float)
	case CPLong:
		return vCat1(types.Long)
	case CPDouble:
		return vCat1(types.Double)
	case CPString:
		return vRef("java/lang/String")
	case CPClass:
		return vRef("java/lang/Class")
	case CPMethodType:
		return vRef("java/lang/invoke/MethodType")
	case CPMethodHandle:
		return vRef("java/lang/invoke/MethodHandle")
	default:
		return vRef(types.ObjectClassName)
	}
}

func cpClassName(rc *RuntimeClass, code []byte, pc int) (string, error) {
	idx := int(binary.BigEndian.Uint16(code[pc+1:]))
	if rc.View == nil || idx < 0 || idx >= len(rc.View.ConstantPool) {
		return "", fmt.Errorf("bad constant pool index %d", idx)
	}
	entry := rc.View.ConstantPool[idx]
	if entry.Kind != CPClass {
		return "", fmt.Errorf("constant pool entry %d is not a class reference", idx)
	}
	return entry.Utf8, nil
}

func cpFieldType(rc *RuntimeClass, code []byte, pc int) (vType, error) {
	idx := int(binary.BigEndian.Uint16(code[pc+1:]))
	if rc.View == nil || idx < 0 || idx >= len(rc.View.ConstantPool) {
		return vType{}, fmt.Errorf("bad constant pool index %d", idx)
	}
	entry := rc.View.ConstantPool[idx]
	t, _, err := types.ParseFieldDescriptor(entry.NameAndTypeDescr)
	if err != nil {
		return vType{}, err
	}
	return typeToV(t), nil
}

// cpInvokeDescriptor returns the argument types and return type for a
// CPMethodref/CPInterfaceMethodref/CPInvokeDynamic constant-pool entry.
func cpInvokeDescriptor(rc *RuntimeClass, code []byte, pc int) ([]types.Type, types.Type, error) {
	idx := int(binary.BigEndian.Uint16(code[pc+1:]))
	if rc.View == nil || idx < 0 || idx >= len(rc.View.ConstantPool) {
		return nil, types.Type{}, fmt.Errorf("bad constant pool index %d", idx)
	}
	entry := rc.View.ConstantPool[idx]
	return types.ParseMethodDescriptor(entry.NameAndTypeDescr)
}

func stepInvoke(rc *RuntimeClass, code []byte, pc int, op byte, f vFrame, fallthroughPC int) (vFrame, []successor, error) {
	args, ret, err := cpInvokeDescriptor(rc, code, pc)
	if err != nil {
		return f, nil, err
	}
	for i := len(args) - 1; i >= 0; i-- {
		v, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		if v.category() != args[i].Kind.Category() {
			return f, nil, fmt.Errorf("invoke argument %d category mismatch", i)
		}
	}
	var receiver vType
	if op != opcodes.INVOKESTATIC {
		v, err := f.pop()
		if err != nil {
			return f, nil, err
		}
		receiver = v
	}
	// invokespecial <init> replaces every occurrence of uninitialized(addr)
	// with the initialized type (spec.md §4.6).
	idx := int(binary.BigEndian.Uint16(code[pc+1:]))
	isInit := rc.View != nil && idx < len(rc.View.ConstantPool) && rc.View.ConstantPool[idx].NameAndTypeName == "<init>"
	if op == opcodes.INVOKESPECIAL && isInit && receiver.uninitialized {
		initialized := vRef(receiver.className)
		replaceUninitialized(&f, receiver.newOffset, initialized)
		if receiver.newOffset == uninitializedThisOffset {
			f.thisUninit = false
		}
	}
	if ret.Kind != types.Void {
		f.push(typeToV(ret))
	}
	return f, []successor{{fallthroughPC, f}}, nil
}

func replaceUninitialized(f *vFrame, newOffset int, to vType) {
	for i, v := range f.locals {
		if v.uninitialized && v.newOffset == newOffset {
			f.locals[i] = to
		}
	}
	for i, v := range f.stack {
		if v.uninitialized && v.newOffset == newOffset {
			f.stack[i] = to
		}
	}
}

// instructionSize returns the byte length of the instruction at pc,
// including its opcode byte, per JVMS §6's standard operand layout
// (spec.md §6: bipush one byte, sipush one short, switches aligned to
// a 4-byte boundary after the opcode).
func instructionSize(code []byte, pc int) int {
	op := code[pc]
	switch op {
	case opcodes.BIPUSH, opcodes.LDC, opcodes.NEWARRAY:
		return 2
	case opcodes.SIPUSH, opcodes.LDC_W, opcodes.LDC2_W,
		opcodes.ILOAD, opcodes.LLOAD, opcodes.FLOAD, opcodes.DLOAD, opcodes.ALOAD,
		opcodes.ISTORE, opcodes.LSTORE, opcodes.FSTORE, opcodes.DSTORE, opcodes.ASTORE,
		opcodes.RET,
		opcodes.IFEQ, opcodes.IFNE, opcodes.IFLT, opcodes.IFGE, opcodes.IFGT, opcodes.IFLE,
		opcodes.IF_ICMPEQ, opcodes.IF_ICMPNE, opcodes.IF_ICMPLT, opcodes.IF_ICMPGE, opcodes.IF_ICMPGT, opcodes.IF_ICMPLE,
		opcodes.IF_ACMPEQ, opcodes.IF_ACMPNE, opcodes.GOTO, opcodes.JSR,
		opcodes.GETSTATIC, opcodes.PUTSTATIC, opcodes.GETFIELD, opcodes.PUTFIELD,
		opcodes.INVOKEVIRTUAL, opcodes.INVOKESPECIAL, opcodes.INVOKESTATIC,
		opcodes.NEW, opcodes.ANEWARRAY, opcodes.CHECKCAST, opcodes.INSTANCEOF,
		opcodes.IFNULL, opcodes.IFNONNULL:
		return 3
	case opcodes.IINC:
		return 3
	case opcodes.MULTIANEWARRAY:
		return 4
	case opcodes.INVOKEINTERFACE, opcodes.INVOKEDYNAMIC:
		return 5
	case opcodes.GOTO_W, opcodes.JSR_W:
		return 5
	case opcodes.WIDE:
		if code[pc+1] == opcodes.IINC {
			return 6
		}
		return 4
	case opcodes.TABLESWITCH:
		base := pc + 1
		pad := (4 - (base % 4)) % 4
		p := base + pad
		low := int32(binary.BigEndian.Uint32(code[p+4:]))
		high := int32(binary.BigEndian.Uint32(code[p+8:]))
		return (p + 12 + int(high-low+1)*4) - pc
	case opcodes.LOOKUPSWITCH:
		base := pc + 1
		pad := (4 - (base % 4)) % 4
		p := base + pad
		npairs := int32(binary.BigEndian.Uint32(code[p+4:]))
		return (p + 8 + int(npairs)*8) - pc
	default:
		return 1
	}
}
