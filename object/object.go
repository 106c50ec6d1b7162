/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package object implements C3: object and array layout. At class
// preparation, classloader walks the superclass chain through
// ComputeFieldLayout to assign every field a fixed offset; this package
// then owns the typed, offset-addressed accessors and the header both
// objects and arrays carry (spec.md §4.3).
package object

import (
	"fmt"
	"sync/atomic"

	"jacobin/excNames"
	"jacobin/stringPool"
	"jacobin/types"
)

// Header is the fixed prefix every heap object carries: the class id
// for run-time type queries, and a pointer to the owning class's
// inheritance vector for constant-time instanceof against non-interface
// classes (spec.md §3, "Object layout").
type Header struct {
	ClassID           uint32
	InheritanceVector []uint32 // ids of this class and every superclass, root first
	InterfaceIDs      []uint32 // every interface (transitively) implemented
	IsArray           bool     // true for an Array's Header, false for an Object's
}

// DominatedBy implements the regular-class branch of instanceof/
// checkcast (spec.md §4.7): "check R's inheritance vector dominates C's"
// — C's class id must appear in R's inheritance vector.
func (h *Header) DominatedBy(classID uint32) bool {
	for _, id := range h.InheritanceVector {
		if id == classID {
			return true
		}
	}
	return false
}

// ImplementsInterface is the interface branch of instanceof: a linear
// scan of R's interface-id list (spec.md §4.7).
func (h *Header) ImplementsInterface(interfaceID uint32) bool {
	for _, id := range h.InterfaceIDs {
		if id == interfaceID {
			return true
		}
	}
	return false
}

// FieldLayoutEntry records where one field lives: its offset in 8-byte
// slots from the start of the field region, its type (for alignment and
// typed access), and the field-number reflection uses.
type FieldLayoutEntry struct {
	Name        string
	Type        types.Type
	Offset      int // in Slot units, not bytes: this core stores every
	// field as one types.Slot regardless of its natural byte width, so
	// "alignment" (spec.md §4.3) is enforced on slot boundaries — every
	// field gets its own slot, and two-slot (long/double) fields occupy
	// two consecutive slots the way a Frame's locals do.
	FieldNumber int
	Static      bool
}

func slotsFor(t types.Type) int { return t.Kind.Category() }

// ComputeFieldLayout walks the superclass chain, accumulating
// field-number -> (offset, type) entries: superclass fields come first
// (spec.md §4.3). declared is this class's own fields in declaration
// order; superLayout is the (already computed) layout of the immediate
// superclass, or nil for java/lang/Object. It returns the full instance
// layout (inherited + declared) and the separate static layout (which
// spec.md places in "a separate per-class storage region" rather than
// inheriting offsets).
func ComputeFieldLayout(superLayout []FieldLayoutEntry, declared []FieldLayoutEntry) (instance []FieldLayoutEntry, static []FieldLayoutEntry) {
	offset := 0
	fieldNumber := 0
	for _, f := range superLayout {
		if f.Static {
			continue
		}
		instance = append(instance, f)
		if f.Offset+slotsFor(f.Type) > offset {
			offset = f.Offset + slotsFor(f.Type)
		}
		if f.FieldNumber >= fieldNumber {
			fieldNumber = f.FieldNumber + 1
		}
	}
	staticOffset := 0
	for _, f := range declared {
		if f.Static {
			f.Offset = staticOffset
			f.FieldNumber = fieldNumber
			fieldNumber++
			staticOffset += slotsFor(f.Type)
			static = append(static, f)
			continue
		}
		f.Offset = offset
		f.FieldNumber = fieldNumber
		fieldNumber++
		offset += slotsFor(f.Type)
		instance = append(instance, f)
	}
	return instance, static
}

// handleCounter hands out monotonically increasing object identities,
// used as the Mark hash (a stand-in for the real GC's object-header
// hash field; spec.md keeps this core's allocator external).
var handleCounter uint64

// Object is a heap instance: a Header plus one Slot per field, indexed
// by FieldLayoutEntry.Offset.
type Object struct {
	Header
	ClassName string // kept alongside ClassID for trace/debug output
	Fields    []types.Slot
	Layout    []FieldLayoutEntry
	Mark      uint64 // object identity hash, stands in for the GC's real one
}

// NewObject allocates a zero-initialized instance with the given
// layout (spec.md §4.7, "new allocates, zero-initializes, and pushes a
// reference").
func NewObject(classID uint32, className string, inheritanceVector, interfaceIDs []uint32, layout []FieldLayoutEntry) *Object {
	size := 0
	for _, f := range layout {
		if end := f.Offset + slotsFor(f.Type); end > size {
			size = end
		}
	}
	fields := make([]types.Slot, size)
	for _, f := range layout {
		if f.Type.Kind.Category() == 2 {
			fields[f.Offset+1] = types.TopSlot()
		}
	}
	return &Object{
		Header: Header{
			ClassID:           classID,
			InheritanceVector: inheritanceVector,
			InterfaceIDs:      interfaceIDs,
		},
		ClassName: className,
		Fields:    fields,
		Layout:    layout,
		Mark:      atomic.AddUint64(&handleCounter, 1),
	}
}

// fieldByName finds a field's layout entry by name. Callers on the hot
// path (the interpreter's getfield/putfield) should instead resolve the
// offset once at link time and call GetFieldAt/SetFieldAt directly.
func (o *Object) fieldByName(name string) (FieldLayoutEntry, bool) {
	for _, f := range o.Layout {
		if f.Name == name {
			return f, true
		}
	}
	return FieldLayoutEntry{}, false
}

// GetFieldAt/SetFieldAt are the typed accessors spec.md §4.3 calls for:
// "accessors read/write through typed offsets". No bounds check is
// performed beyond a slice-index panic, because field offsets are fixed
// at class preparation and a verified method can only reference fields
// that exist in the constant pool — an out-of-range offset here is a
// VM-internal invariant violation (spec.md §7.2), not a Java exception.
func (o *Object) GetFieldAt(offset int) types.Slot  { return o.Fields[offset] }
func (o *Object) SetFieldAt(offset int, s types.Slot) { o.Fields[offset] = s }

func (o *Object) GetField(name string) (types.Slot, bool) {
	f, ok := o.fieldByName(name)
	if !ok {
		return types.Slot{}, false
	}
	return o.Fields[f.Offset], true
}

func (o *Object) SetField(name string, s types.Slot) bool {
	f, ok := o.fieldByName(name)
	if !ok {
		return false
	}
	o.Fields[f.Offset] = s
	return true
}

// ToString renders a debug representation; grounded on the teacher's
// object.Object.ToString() used by trace output and tests.
func (o *Object) ToString() string {
	s := fmt.Sprintf("%s@%x", o.ClassName, o.Mark)
	for _, f := range o.Layout {
		if f.Static {
			continue
		}
		s += fmt.Sprintf(" %s=%s", f.Name, types.FormatSlot(o.Fields[f.Offset]))
	}
	return s
}

// Array is the other heap shape: class-id, 32-bit length, then elements
// at natural alignment (spec.md §3, "Array header"). ElemZeroOffset is
// layout-defined; this core fixes it at 0 since elements are stored in
// their own Data slice rather than packed after a raw header in the
// same backing array — the offset still exists as a concept for typed
// native-ABI marshalling (§6) even though Go slices don't need it for
// addressing.
type Array struct {
	Header
	ElemType      types.Type
	Length        int32
	Data          []types.Slot
	ElemZeroOffset int
}

// NewArray allocates length zero-valued elements of elemType. Bounds:
// negative length is the caller's (interpreter's) responsibility to
// reject with NegativeArraySizeException before calling this (spec.md
// §4.7); NewArray itself only panics on a negative length, since a
// verified caller will have already checked.
func NewArray(classID uint32, elemType types.Type, length int32) *Array {
	if length < 0 {
		panic("object: NewArray called with negative length; caller must check first")
	}
	// Category-2 element arrays (long[], double[]) still store one Slot
	// per element here: per-element category widening is an
	// operand-stack concept (spec.md §3), not an array storage concept.
	data := make([]types.Slot, length)
	return &Array{
		Header: Header{ClassID: classID, IsArray: true},
		ElemType: elemType,
		Length:   length,
		Data:     data,
	}
}

// boundsError is returned by Load/Store on an out-of-range index; it
// carries enough to build an ArrayIndexOutOfBoundsException whose
// message includes the offending index (spec.md §8, scenario 5).
type boundsError struct {
	index, length int32
}

func (e *boundsError) Error() string {
	return fmt.Sprintf("Index %d out of bounds for length %d", e.index, e.length)
}

// ExceptionClass satisfies the interface jvm's wrapError uses to pick the
// Java exception class for an error value returned from this package.
func (e *boundsError) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.ArrayIndexOutOfBoundsException
}

// Load reads element index, bounds-checking "the signed index against
// the unsigned length" (spec.md §4.3): a negative index and an index >=
// length both fail, via the same signed-compare-then-cast-to-unsigned
// pattern the sentence describes.
func (a *Array) Load(index int32) (types.Slot, error) {
	if index < 0 || uint32(index) >= uint32(a.Length) {
		return types.Slot{}, &boundsError{index: index, length: a.Length}
	}
	return a.Data[index], nil
}

func (a *Array) Store(index int32, v types.Slot) error {
	if index < 0 || uint32(index) >= uint32(a.Length) {
		return &boundsError{index: index, length: a.Length}
	}
	a.Data[index] = v
	return nil
}

// StringValueLayout is the one-field instance layout every
// java/lang/String object uses: a single reference-typed "value" field
// holding a stringPool index (stored as a Slot ref so it survives the
// same typed-slot machinery as any other field).
var StringValueLayout = []FieldLayoutEntry{
	{Name: "value", Type: types.ArrayOf(types.TByte), Offset: 0, FieldNumber: 0},
}

// NewStringObject builds a minimal java/lang/String instance wrapping
// an interned copy of s. classID is the caller's (classloader's)
// resolved id for java/lang/String; callers that only need the object
// for native-bridge plumbing in isolation (as in this package's own
// tests) may pass 0.
func NewStringObject(classID uint32, s string) *Object {
	obj := NewObject(classID, "java/lang/String", nil, nil, StringValueLayout)
	idx := stringPool.Intern(s)
	obj.SetFieldAt(0, types.RefSlot(uintptr(idx)))
	return obj
}

// GoString unwraps a java/lang/String instance (as built by
// NewStringObject) back into a Go string, resolving its interned
// stringPool index. Returns "" for anything that isn't such an object.
func GoString(obj *Object) string {
	if obj == nil || obj.ClassName != "java/lang/String" || len(obj.Fields) == 0 {
		return ""
	}
	idx := uint32(obj.Fields[0].Ref())
	sp := stringPool.GetStringPointer(idx)
	if sp == nil {
		return ""
	}
	return *sp
}

// Handle is an opaque, GC-visible indirection to an object, registered
// with the host's handle table so a moving collector can relocate the
// referent while a handle is held across a safepoint (spec.md §3,
// "Lifetimes"; §6 register_root/release_root). This core's allocator is
// external (spec.md §1), so Handle here is only the type the interpreter
// and native bridge pass around; the real table lives in the host.
type Handle uintptr
