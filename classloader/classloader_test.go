/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jacobin/gfunction"
	"jacobin/object"
)

func objectView() *ClassView {
	return &ClassView{Name: "java/lang/Object"}
}

func TestLoadClassRegistersAndAssignsID(t *testing.T) {
	resetClassTableForTest()
	rc, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", rc.Name)
	assert.NotZero(t, rc.ClassID)
	assert.Equal(t, StatePrepared, rc.State())
}

func TestLoadClassIsIdempotent(t *testing.T) {
	resetClassTableForTest()
	rc1, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)
	rc2, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)
	assert.Same(t, rc1, rc2)
}

func TestRegisterClassFailsOnDuplicate(t *testing.T) {
	resetClassTableForTest()
	rc := &RuntimeClass{Name: "Dup", Loader: BootstrapLoaderName}
	require.NoError(t, RegisterClass(rc))
	err := RegisterClass(&RuntimeClass{Name: "Dup", Loader: BootstrapLoaderName})
	require.Error(t, err)
	var linkErr *LinkageErr
	assert.ErrorAs(t, err, &linkErr)
}

func TestSuperclassFieldsPrecedeSubclassFields(t *testing.T) {
	resetClassTableForTest()
	_, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)

	parentView := &ClassView{
		Name: "Parent",
		Fields: []FieldView{
			{Name: "a", Descriptor: "I"},
		},
	}
	parent, err := LoadClass(BootstrapLoaderName, parentView)
	require.NoError(t, err)

	childView := &ClassView{
		Name:           "Child",
		SuperclassName: "Parent",
		Fields: []FieldView{
			{Name: "b", Descriptor: "J"},
		},
	}
	child, err := LoadClass(BootstrapLoaderName, childView)
	require.NoError(t, err)

	require.Len(t, child.InstanceLayout, 2)
	assert.Equal(t, "a", child.InstanceLayout[0].Name)
	assert.Equal(t, "b", child.InstanceLayout[1].Name)
	assert.Contains(t, child.InheritanceVector, parent.ClassID)
	assert.Contains(t, child.InheritanceVector, child.ClassID)
}

func TestInitializeRunsClinitOnceAndOrdersSuperclassFirst(t *testing.T) {
	resetClassTableForTest()
	_, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)

	var ranOrder []string
	run := func(m *MethodEntry, threadID string) error {
		ranOrder = append(ranOrder, m.Class.Name)
		return nil
	}

	p, err := LoadClass(BootstrapLoaderName, &ClassView{
		Name:    "P",
		Methods: []MethodView{{Name: "<clinit>", Descriptor: "()V", Code: []byte{0xb1}}},
	})
	require.NoError(t, err)

	q, err := LoadClass(BootstrapLoaderName, &ClassView{
		Name:           "Q",
		SuperclassName: "P",
		Methods:        []MethodView{{Name: "<clinit>", Descriptor: "()V", Code: []byte{0xb1}}},
	})
	require.NoError(t, err)

	require.NoError(t, Initialize(q, "thread-1", run))
	assert.Equal(t, []string{"P", "Q"}, ranOrder)
	assert.Equal(t, StateInitialized, p.State())
	assert.Equal(t, StateInitialized, q.State())

	require.NoError(t, Initialize(q, "thread-2", run))
	assert.Len(t, ranOrder, 2, "clinit must run at most once per class")
}

func TestInitializeMovesToErrorOnClinitFailure(t *testing.T) {
	resetClassTableForTest()
	_, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)

	boom := assertErr("boom")
	rc, err := LoadClass(BootstrapLoaderName, &ClassView{
		Name:    "Boom",
		Methods: []MethodView{{Name: "<clinit>", Descriptor: "()V", Code: []byte{0xb1}}},
	})
	require.NoError(t, err)

	err = Initialize(rc, "thread-1", func(m *MethodEntry, threadID string) error { return boom })
	require.Error(t, err)
	assert.Equal(t, StateError, rc.State())

	err = Initialize(rc, "thread-2", func(m *MethodEntry, threadID string) error { return nil })
	require.Error(t, err, "a class in ERROR stays in ERROR forever")
}

func TestGetOrAddMethodIdIsIdempotentAndLookupIsTotal(t *testing.T) {
	resetClassTableForTest()
	rc := &RuntimeClass{Name: "M", Loader: BootstrapLoaderName}
	id1 := GetOrAddMethodId(rc, 3)
	id2 := GetOrAddMethodId(rc, 3)
	assert.Equal(t, id1, id2)

	gotClass, gotIdx, ok := LookupMethodId(id1)
	require.True(t, ok)
	assert.Same(t, rc, gotClass)
	assert.Equal(t, 3, gotIdx)
}

func TestResolveVirtualWalksUpFromReceiver(t *testing.T) {
	resetClassTableForTest()
	_, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)

	a, err := LoadClass(BootstrapLoaderName, &ClassView{
		Name:    "A",
		Methods: []MethodView{{Name: "m", Descriptor: "()I", Code: []byte{0x03, 0xac}}},
	})
	require.NoError(t, err)
	_, err = LoadClass(BootstrapLoaderName, &ClassView{Name: "B", SuperclassName: "A"})
	require.NoError(t, err)
	c, err := LoadClass(BootstrapLoaderName, &ClassView{Name: "C", SuperclassName: "B"})
	require.NoError(t, err)

	m, err := ResolveVirtual(c, "m", "()I")
	require.NoError(t, err)
	assert.Same(t, a, m.Class)
}

func TestWireReflectSeamsAnswersSuperclassAndIsInstance(t *testing.T) {
	resetClassTableForTest()
	_, err := LoadClass(BootstrapLoaderName, objectView())
	require.NoError(t, err)
	a, err := LoadClass(BootstrapLoaderName, &ClassView{Name: "A"})
	require.NoError(t, err)
	_, err = LoadClass(BootstrapLoaderName, &ClassView{Name: "B", SuperclassName: "A"})
	require.NoError(t, err)

	wireReflectSeams()

	super, ok := gfunction.ClassSuperclassOf("B")
	require.True(t, ok)
	assert.Equal(t, "A", super)

	_, ok = gfunction.ClassSuperclassOf("java/lang/Object")
	assert.False(t, ok)

	obj := object.NewObject(a.ClassID, "A", a.InheritanceVector, a.InterfaceIDs, nil)
	assert.True(t, gfunction.ClassIsInstance("A", obj))
	assert.False(t, gfunction.ClassIsInstance("B", obj))
}

// resetClassTableForTest clears package-level registries between tests;
// these tables are process-wide by design (spec.md §4.2), so tests that
// load classes must not bleed state into each other.
func resetClassTableForTest() {
	classTableLock.Lock()
	classTable = map[classKey]*RuntimeClass{}
	classIDCounter = 0
	classTableLock.Unlock()

	methodTableLock.Lock()
	methodTable = nil
	methodIdByKey = map[methodKey]MethodId{}
	methodTableLock.Unlock()

	dispatchCacheLock.Lock()
	dispatchCache = map[dispatchKey]*MethodEntry{}
	dispatchCacheLock.Unlock()
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertErr(msg string) error { return simpleError(msg) }
