/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package classloader implements C2 (class and method tables) and C5
// (class loading and linking): the process-wide registry of loaded
// classes, the append-only method table, and the load/verify/prepare/
// initialize pipeline. See https://docs.oracle.com/javase/specs/jvms/se17/html/jvms-5.html
package classloader

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"jacobin/excNames"
	"jacobin/gfunction"
	"jacobin/globals"
	"jacobin/object"
	"jacobin/trace"
	"jacobin/types"
)

// InitState is one position in the C5 state machine:
//
//	NEW -> LOADED -> VERIFIED -> PREPARED -> INITIALIZING(T) -> INITIALIZED
//	                                              |
//	                                            ERROR
type InitState int32

const (
	StateNew InitState = iota
	StateLoaded
	StateVerified
	StatePrepared
	StateInitializing
	StateInitialized
	StateError
)

func (s InitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateLoaded:
		return "LOADED"
	case StateVerified:
		return "VERIFIED"
	case StatePrepared:
		return "PREPARED"
	case StateInitializing:
		return "INITIALIZING"
	case StateInitialized:
		return "INITIALIZED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// BootstrapLoaderName is the distinguished sentinel identifying the
// bootstrap loader (spec.md §4.2: "the bootstrap loader is a
// distinguished sentinel").
const BootstrapLoaderName = "bootstrap"

// RuntimeClass is C2's RuntimeClass: identity is (Name, Loader); once
// Initialized it is immutable except for its static fields.
type RuntimeClass struct {
	Name   string
	Loader string
	View   *ClassView

	Parent     *RuntimeClass
	Interfaces []*RuntimeClass

	InstanceLayout []object.FieldLayoutEntry
	StaticLayout   []object.FieldLayoutEntry
	StaticFields   []types.Slot
	staticMu       sync.RWMutex

	ClassID           uint32
	InheritanceVector []uint32
	InterfaceIDs      []uint32

	Methods []*MethodEntry // append-only, index-stable once Loaded

	state              atomic.Int32
	initGroup          singleflight.Group
	initErr            error
	initializingThread string
	mirror             *object.Object
	mirrorOnce         sync.Once
}

// Mirror returns c's java/lang/Class stand-in, created on first use and
// cached thereafter. Used as the monitor key for a synchronized static
// method, which locks "the class" rather than any receiver (spec.md
// §4.7).
func (c *RuntimeClass) Mirror() *object.Object {
	c.mirrorOnce.Do(func() {
		c.mirror = object.NewObject(c.ClassID, "java/lang/Class", nil, nil, nil)
	})
	return c.mirror
}

// MethodEntry is a loaded method: descriptor-parsed, ready either for
// interpretation (Code non-nil) or native dispatch (Native set).
type MethodEntry struct {
	Class       *RuntimeClass
	Index       int
	Name        string
	Descriptor  string
	ArgTypes    []types.Type
	ReturnType  types.Type
	AccessFlags int

	MaxStack       int
	MaxLocals      int
	Code           []byte
	ExceptionTable []ExceptionHandler

	IsNative bool
	Native   gfunction.GMeth
}

func (m *MethodEntry) IsStatic() bool     { return m.AccessFlags&0x0008 != 0 }
func (m *MethodEntry) IsAbstract() bool   { return m.AccessFlags&0x0400 != 0 }
func (m *MethodEntry) IsSynchronized() bool { return m.AccessFlags&0x0020 != 0 }

// GetStaticField and SetStaticField are getstatic/putstatic's
// typed-offset accessors onto a class's static storage region (spec.md
// §4.3, §4.5: "a separate per-class storage region" guarded the same
// way concurrent <clinit> access to it must be, hence the RWMutex
// rather than a raw slice index).
func (c *RuntimeClass) GetStaticField(offset int) types.Slot {
	c.staticMu.RLock()
	defer c.staticMu.RUnlock()
	return c.StaticFields[offset]
}

func (c *RuntimeClass) SetStaticField(offset int, v types.Slot) {
	c.staticMu.Lock()
	defer c.staticMu.Unlock()
	c.StaticFields[offset] = v
}

func (c *RuntimeClass) State() InitState { return InitState(c.state.Load()) }

func (c *RuntimeClass) setState(s InitState) { c.state.Store(int32(s)) }

// Supertypes implements types.SupertypeProvider so C1's isAssignable can
// walk the live class table without classloader importing types'
// assignability logic (avoiding the import cycle noted in types.go).
type supertypeProvider struct{}

// Supertypes is the package-level SupertypeProvider wired into
// types.IsAssignable call sites throughout the core.
var Supertypes supertypeProvider

func (supertypeProvider) Supertypes(class string) (superclass string, interfaces []string, isInterface bool) {
	rc, ok := LookupClass(class, BootstrapLoaderName)
	if !ok {
		rc, ok = lookupAnyLoader(class)
		if !ok {
			return "", nil, false
		}
	}
	if rc.Parent != nil {
		superclass = rc.Parent.Name
	}
	for _, i := range rc.Interfaces {
		interfaces = append(interfaces, i.Name)
	}
	isInterface = rc.View != nil && rc.View.AccessFlags&0x0200 != 0
	return superclass, interfaces, isInterface
}

// cfe mirrors the original parser-era helper: build a "Class Format
// Error"-style message stamped with the caller's file/line, trace it,
// and return it as an error. Kept for the load-time checks in link.go
// that still need to report malformed pre-parsed input.
func cfe(msg string) error {
	errMsg := "Class Format Error: " + msg
	pc, _, _, ok := runtime.Caller(1)
	if ok {
		fn := runtime.FuncForPC(pc)
		fileName, fileLine := fn.FileLine(pc)
		errMsg = errMsg + "\n  detected by file: " + filepath.Base(fileName) +
			", line: " + strconv.Itoa(fileLine)
	}
	trace.Error(errMsg)
	return errors.New(errMsg)
}

// ---- class table (C2) ----

type classKey struct{ name, loader string }

var (
	classTableLock sync.RWMutex
	classTable     = map[classKey]*RuntimeClass{}
	classIDCounter uint32
)

// LookupClass is C2's lookup for the class table: total within one
// (name, loader) pair, false if absent.
func LookupClass(name, loader string) (*RuntimeClass, bool) {
	classTableLock.RLock()
	defer classTableLock.RUnlock()
	rc, ok := classTable[classKey{name, loader}]
	return rc, ok
}

// lookupAnyLoader is a convenience used by the assignability bridge and
// by resolution, where the caller doesn't track which of the three
// classloaders originally defined a given name.
func lookupAnyLoader(name string) (*RuntimeClass, bool) {
	classTableLock.RLock()
	defer classTableLock.RUnlock()
	for k, rc := range classTable {
		if k.name == name {
			return rc, true
		}
	}
	return nil, false
}

// RegisterClass is C2's register_class: fails with LinkageError on a
// duplicate (name, loader) (spec.md §4.2).
func RegisterClass(rc *RuntimeClass) error {
	classTableLock.Lock()
	defer classTableLock.Unlock()
	key := classKey{rc.Name, rc.Loader}
	if _, exists := classTable[key]; exists {
		return &LinkageErr{Msg: fmt.Sprintf("duplicate class %s in loader %s", rc.Name, rc.Loader)}
	}
	classIDCounter++
	rc.ClassID = classIDCounter
	classTable[key] = rc
	return nil
}

// LinkageErr is the Java-visible java/lang/LinkageError carried as a Go
// error value up through the loading pipeline (spec.md §7).
type LinkageErr struct{ Msg string }

func (e *LinkageErr) Error() string { return e.Msg }
func (e *LinkageErr) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.LinkageError
}

// GetCountOfLoadedClasses reports how many classes the named loader has
// registered, kept for parity with the tooling/diagnostics the teacher's
// classloader exposed.
func GetCountOfLoadedClasses(loader string) int {
	classTableLock.RLock()
	defer classTableLock.RUnlock()
	n := 0
	for k := range classTable {
		if k.loader == loader {
			n++
		}
	}
	return n
}

// Init prepares the class table and seeds java/lang/Object, the root of
// every inheritance vector, and registers every natively-implemented
// JDK method (gfunction.LoadAll). It also generates a uuid-based
// bootstrap session id, which is traced when TraceCloadi is set.
func Init() error {
	classTableLock.Lock()
	classTable = map[classKey]*RuntimeClass{}
	classIDCounter = 0
	classTableLock.Unlock()

	gfunction.LoadAll()
	wireReflectSeams()

	bootstrapID := uuid.New().String()
	if globals.GetGlobalRef().TraceCloadi {
		trace.Trace("classloader.Init: bootstrap session " + bootstrapID)
	}

	objectView := &ClassView{Name: types.ObjectClassName}
	if _, err := LoadClass(BootstrapLoaderName, objectView); err != nil {
		return err
	}
	return LoadBaseClasses()
}

// wireReflectSeams installs gfunction's java/lang/Class lookup seams
// (gfunction/javaLangClass.go) against the live class table, since
// gfunction cannot import classloader without a cycle. Called once from
// Init, before any class other than java/lang/Object is loaded.
func wireReflectSeams() {
	gfunction.ClassSuperclassOf = func(className string) (string, bool) {
		rc, ok := LookupClass(className, BootstrapLoaderName)
		if !ok {
			rc, ok = lookupAnyLoader(className)
			if !ok {
				return "", false
			}
		}
		if rc.Parent == nil || (rc.View != nil && rc.View.AccessFlags&0x0200 != 0) {
			return "", false
		}
		return rc.Parent.Name, true
	}

	gfunction.ClassIsInstance = func(className string, obj *object.Object) bool {
		if obj == nil {
			return false
		}
		rc, ok := LookupClass(className, BootstrapLoaderName)
		if !ok {
			rc, ok = lookupAnyLoader(className)
			if !ok {
				return false
			}
		}
		if rc.View != nil && rc.View.AccessFlags&0x0200 != 0 {
			return obj.ImplementsInterface(rc.ClassID)
		}
		return obj.DominatedBy(rc.ClassID)
	}
}

// LoadBaseClasses preloads the handful of JDK classes the verifier and
// the interpreter's checkcast/instanceof/athrow paths assume are always
// present (java/lang/Cloneable, java/io/Serializable, java/lang/
// Throwable), beyond java/lang/Object itself. Each one's superclass
// chain is independent once java/lang/Object is loaded, so they preload
// concurrently via errgroup rather than one at a time; LoadClass's own
// register-or-use-the-winner race handling makes this safe even if two
// of them turned out to share an ancestor.
func LoadBaseClasses() error {
	names := []string{types.CloneableClassName, types.SerializableClassName, types.ThrowableClassName}

	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			view := &ClassView{Name: name, SuperclassName: types.ObjectClassName}
			_, err := LoadClass(BootstrapLoaderName, view)
			return err
		})
	}
	return g.Wait()
}
