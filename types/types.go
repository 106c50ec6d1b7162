/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package types holds the type lattice and descriptor grammar shared by
// every other package: the class/method tables, the object layout code,
// the verifier, and the interpreter all resolve through the same Type
// values so that a (S, T) assignability query means the same thing
// everywhere. See JVMS §4.3 for the descriptor grammar this package parses.
package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// JavaByte is a signed 8-bit value, matching the JVM's byte type (as
// opposed to Go's unsigned byte), so that arithmetic on Java byte[]
// arrays sign-extends the way bytecode requires.
type JavaByte int8

// Kind tags the variant of a Type.
type Kind uint8

const (
	Boolean Kind = iota
	Byte
	Short
	Char
	Int
	Long
	Float
	Double
	Void
	ClassRef
	ArrayRef
)

// Category-1 types occupy one operand-stack/local slot; category-2
// (Long, Double) occupy two, the second of which is tagged Top and is
// illegal to read directly (spec.md §3, "Slot encoding").
func (k Kind) Category() int {
	if k == Long || k == Double {
		return 2
	}
	return 1
}

func (k Kind) IsPrimitive() bool {
	return k <= Double
}

// Type is a tagged variant: one of the eight primitives, void,
// reference-to-class(name), or array(element-type). Arrays are always
// one-dimensional at the type level; a multidimensional array is
// array-of-array, so Type never needs a dimension count.
type Type struct {
	Kind    Kind
	Class   string // populated when Kind == ClassRef
	Element *Type  // populated when Kind == ArrayRef
}

func Primitive(k Kind) Type { return Type{Kind: k} }

func ClassType(name string) Type { return Type{Kind: ClassRef, Class: name} }

func ArrayOf(elem Type) Type {
	e := elem
	return Type{Kind: ArrayRef, Element: &e}
}

var (
	TBoolean = Primitive(Boolean)
	TByte    = Primitive(Byte)
	TShort   = Primitive(Short)
	TChar    = Primitive(Char)
	TInt     = Primitive(Int)
	TLong    = Primitive(Long)
	TFloat   = Primitive(Float)
	TDouble  = Primitive(Double)
	TVoid    = Primitive(Void)
)

const (
	ObjectClassName       = "java/lang/Object"
	CloneableClassName    = "java/lang/Cloneable"
	SerializableClassName = "java/io/Serializable"
	ThrowableClassName    = "java/lang/Throwable"
)

// Field-descriptor prefixes used to recognize reference and array
// descriptors in raw form (before they've been parsed into a Type),
// e.g. while normalizing a constant-pool class reference.
const (
	RefArray  = "[L" // array-of-reference prefix
	Array     = "["  // any array prefix
	ByteArray = "[B"
)

// Well-known stringPool indices. Nothing in this core assigns
// ObjectPoolStringIndex or StringPoolStringIndex, so both stay 0;
// InvalidStringIndex is the sentinel returned on lookup failure.
const InvalidStringIndex = ^uint32(0)

var (
	ObjectPoolStringIndex uint32
	StringPoolStringIndex uint32
)

// Descriptor renders a Type back to its JVMS §4.3 textual form. Round
// trips through ParseFieldDescriptor are required by spec.md §8.
func (t Type) Descriptor() string {
	switch t.Kind {
	case Boolean:
		return "Z"
	case Byte:
		return "B"
	case Short:
		return "S"
	case Char:
		return "C"
	case Int:
		return "I"
	case Long:
		return "J"
	case Float:
		return "F"
	case Double:
		return "D"
	case Void:
		return "V"
	case ClassRef:
		return "L" + t.Class + ";"
	case ArrayRef:
		return "[" + t.Element.Descriptor()
	default:
		return "?"
	}
}

func (t Type) String() string { return t.Descriptor() }

// ParseFieldDescriptor parses exactly one field descriptor starting at
// offset 0 of s and returns the Type plus the number of bytes consumed.
// Used standalone for single-type parses and as the inner loop of
// ParseMethodDescriptor.
func ParseFieldDescriptor(s string) (Type, int, error) {
	if len(s) == 0 {
		return Type{}, 0, fmt.Errorf("types: empty descriptor")
	}
	switch s[0] {
	case 'Z':
		return TBoolean, 1, nil
	case 'B':
		return TByte, 1, nil
	case 'S':
		return TShort, 1, nil
	case 'C':
		return TChar, 1, nil
	case 'I':
		return TInt, 1, nil
	case 'J':
		return TLong, 1, nil
	case 'F':
		return TFloat, 1, nil
	case 'D':
		return TDouble, 1, nil
	case 'L':
		idx := strings.IndexByte(s, ';')
		if idx < 0 {
			return Type{}, 0, fmt.Errorf("types: unterminated class descriptor %q", s)
		}
		return ClassType(s[1:idx]), idx + 1, nil
	case '[':
		elem, n, err := ParseFieldDescriptor(s[1:])
		if err != nil {
			return Type{}, 0, err
		}
		return ArrayOf(elem), n + 1, nil
	default:
		return Type{}, 0, fmt.Errorf("types: invalid descriptor char %q in %q", s[0], s)
	}
}

// ParseMethodDescriptor parses "(ArgTypes)ReturnType" into the argument
// types (left to right) and the return type, which may be Void.
func ParseMethodDescriptor(s string) ([]Type, Type, error) {
	if len(s) < 2 || s[0] != '(' {
		return nil, Type{}, fmt.Errorf("types: malformed method descriptor %q", s)
	}
	var args []Type
	i := 1
	for i < len(s) && s[i] != ')' {
		t, n, err := ParseFieldDescriptor(s[i:])
		if err != nil {
			return nil, Type{}, err
		}
		args = append(args, t)
		i += n
	}
	if i >= len(s) {
		return nil, Type{}, fmt.Errorf("types: unterminated method descriptor %q", s)
	}
	i++ // skip ')'
	if s[i:] == "V" {
		return args, TVoid, nil
	}
	ret, n, err := ParseFieldDescriptor(s[i:])
	if err != nil {
		return nil, Type{}, err
	}
	if i+n != len(s) {
		return nil, Type{}, fmt.Errorf("types: trailing garbage in method descriptor %q", s)
	}
	return args, ret, nil
}

// RenderMethodDescriptor is the inverse of ParseMethodDescriptor,
// required by the round-trip property in spec.md §8.
func RenderMethodDescriptor(args []Type, ret Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range args {
		sb.WriteString(a.Descriptor())
	}
	sb.WriteByte(')')
	sb.WriteString(ret.Descriptor())
	return sb.String()
}

// SupertypeProvider answers the two queries isAssignable needs about
// the class hierarchy without this package depending on classloader
// (which would create an import cycle: classloader needs Type for
// field/descriptor parsing). classloader's supertypeProvider implements this.
type SupertypeProvider interface {
	// Supertypes returns the immediate superclass (if any, else "") and
	// the directly implemented/extended interfaces of class.
	Supertypes(class string) (superclass string, interfaces []string, isInterface bool)
}

type assignKey struct {
	s, t string
}

// assignCache memoizes isAssignable results keyed by (S, T) because
// interpreter hot paths (checkcast, instanceof, invokevirtual
// resolution) query it repeatedly (spec.md §4.1).
var assignCache sync.Map // assignKey -> bool

// IsAssignable implements the transitive closure described in spec.md
// §4.1: reflexivity, primitive-category agreement, reference
// supertypes (class chain + interfaces), array covariance on element
// reference-assignability, and null-to-every-reference-type.
func IsAssignable(s, t Type, sp SupertypeProvider) bool {
	if s.Kind != t.Kind {
		// only reference<->reference or array<->array mismatches might
		// still be assignable (array to Object/Cloneable/Serializable);
		// primitive-category mismatches never are.
		if s.Kind == ArrayRef && t.Kind == ClassRef {
			return t.Class == ObjectClassName || t.Class == CloneableClassName || t.Class == SerializableClassName
		}
		return false
	}
	switch s.Kind {
	case ClassRef:
		return isClassAssignable(s.Class, t.Class, sp)
	case ArrayRef:
		return IsAssignable(*s.Element, *t.Element, sp) || (s.Element.Kind == t.Element.Kind && s.Element.Kind != ClassRef && s.Element.Kind != ArrayRef)
	default:
		return true // identical primitive/void kinds
	}
}

// IsAssignableNull reports whether null may be assigned to t: every
// reference type accepts null (spec.md §4.1).
func IsAssignableNull(t Type) bool {
	return t.Kind == ClassRef || t.Kind == ArrayRef
}

func isClassAssignable(s, t string, sp SupertypeProvider) bool {
	if s == t {
		return true
	}
	key := assignKey{s, t}
	if v, ok := assignCache.Load(key); ok {
		return v.(bool)
	}
	result := walkClassAssignable(s, t, sp, map[string]bool{})
	assignCache.Store(key, result)
	return result
}

func walkClassAssignable(s, t string, sp SupertypeProvider, seen map[string]bool) bool {
	if s == t || t == ObjectClassName {
		return true
	}
	if seen[s] {
		return false
	}
	seen[s] = true
	super, ifaces, _ := sp.Supertypes(s)
	for _, i := range ifaces {
		if walkClassAssignable(i, t, sp, seen) {
			return true
		}
	}
	if super != "" {
		return walkClassAssignable(super, t, sp, seen)
	}
	return false
}

// ResetAssignabilityCache clears the memoization table. Used by tests
// and by classloader when a fresh VM-lifetime cycle begins (the cache
// is process-wide but never needs invalidation during normal operation
// per spec.md §4.8: classes never change their method/supertype set
// post-linkage).
func ResetAssignabilityCache() {
	assignCache = sync.Map{}
}

// Slot is the 64-bit raw storage unit for locals and operand-stack
// entries (spec.md §3 "Slot encoding"). In locals and object fields a
// category-2 value occupies two consecutive Slots, the high one carrying
// KindTop, which must not be read; the operand stack holds one Slot per
// value.
type Slot struct {
	Kind Kind
	Raw  uint64
}

// KindTop marks the high slot of a category-2 value. It is not a real
// JVM type; it exists only to let the stack machinery detect illegal
// reads of the high half of a long/double.
const KindTop Kind = 255

func TopSlot() Slot { return Slot{Kind: KindTop} }

func IntSlot(v int32) Slot  { return Slot{Kind: Int, Raw: uint64(uint32(v))} }
func LongSlot(v int64) Slot { return Slot{Kind: Long, Raw: uint64(v)} }
func FloatSlot(v float32) Slot {
	return Slot{Kind: Float, Raw: uint64(math.Float32bits(v))}
}
func DoubleSlot(v float64) Slot {
	return Slot{Kind: Double, Raw: math.Float64bits(v)}
}
func RefSlot(p uintptr) Slot { return Slot{Kind: ClassRef, Raw: uint64(p)} }

func (s Slot) Int() int32      { return int32(uint32(s.Raw)) }
func (s Slot) Long() int64     { return int64(s.Raw) }
func (s Slot) Float() float32  { return math.Float32frombits(uint32(s.Raw)) }
func (s Slot) Double() float64 { return math.Float64frombits(s.Raw) }
func (s Slot) Ref() uintptr    { return uintptr(s.Raw) }
func (s Slot) IsNull() bool    { return s.Raw == 0 }

// FormatSlot renders a slot for trace/debug output.
func FormatSlot(s Slot) string {
	switch s.Kind {
	case Int:
		return strconv.Itoa(int(s.Int()))
	case Long:
		return strconv.FormatInt(s.Long(), 10)
	case Float:
		return strconv.FormatFloat(float64(s.Float()), 'g', -1, 32)
	case Double:
		return strconv.FormatFloat(s.Double(), 'g', -1, 64)
	case KindTop:
		return "<top>"
	default:
		return fmt.Sprintf("0x%x", s.Raw)
	}
}

