package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHierarchy map[string]struct {
	super      string
	interfaces []string
	iface      bool
}

func (f fakeHierarchy) Supertypes(class string) (string, []string, bool) {
	e := f[class]
	return e.super, e.interfaces, e.iface
}

func TestParseFieldDescriptor(t *testing.T) {
	cases := map[string]Type{
		"I":                   TInt,
		"J":                   TLong,
		"Z":                   TBoolean,
		"[Ljava/lang/Object;": ArrayOf(ClassType("java/lang/Object")),
		"[[I":                 ArrayOf(ArrayOf(TInt)),
	}
	for desc, want := range cases {
		got, n, err := ParseFieldDescriptor(desc)
		require.NoError(t, err)
		assert.Equal(t, len(desc), n)
		assert.Equal(t, want, got)
	}
}

func TestParseMethodDescriptorRoundTrip(t *testing.T) {
	descs := []string{"(IJ)V", "()I", "([Ljava/lang/String;)V", "(DD)D", "()Ljava/lang/Object;"}
	for _, d := range descs {
		args, ret, err := ParseMethodDescriptor(d)
		require.NoError(t, err)
		assert.Equal(t, d, RenderMethodDescriptor(args, ret))
	}
}

func TestParseMethodDescriptorMalformed(t *testing.T) {
	_, _, err := ParseMethodDescriptor("IJ)V")
	assert.Error(t, err)
}

func TestIsAssignableReflexive(t *testing.T) {
	h := fakeHierarchy{}
	assert.True(t, IsAssignable(ClassType("Foo"), ClassType("Foo"), h))
	assert.True(t, IsAssignable(TInt, TInt, h))
}

func TestIsAssignableClassChainAndInterfaces(t *testing.T) {
	h := fakeHierarchy{
		"C": {super: "B"},
		"B": {super: "A"},
		"A": {super: ObjectClassName, interfaces: []string{"Runnable"}},
	}
	assert.True(t, IsAssignable(ClassType("C"), ClassType("A"), h))
	assert.True(t, IsAssignable(ClassType("C"), ClassType(ObjectClassName), h))
	assert.True(t, IsAssignable(ClassType("A"), ClassType("Runnable"), h))
	assert.False(t, IsAssignable(ClassType("A"), ClassType("C"), h))
}

func TestIsAssignableArrayCovariance(t *testing.T) {
	h := fakeHierarchy{
		"B": {super: "A"},
		"A": {super: ObjectClassName},
	}
	assert.True(t, IsAssignable(ArrayOf(ClassType("B")), ArrayOf(ClassType("A")), h))
	assert.False(t, IsAssignable(ArrayOf(ClassType("A")), ArrayOf(ClassType("B")), h))
	assert.True(t, IsAssignable(ArrayOf(TInt), ClassType(ObjectClassName), h))
	assert.True(t, IsAssignable(ArrayOf(TInt), ClassType(CloneableClassName), h))
}

func TestIsAssignableNull(t *testing.T) {
	assert.True(t, IsAssignableNull(ClassType("anything")))
	assert.True(t, IsAssignableNull(ArrayOf(TInt)))
	assert.False(t, IsAssignableNull(TInt))
}

func TestSlotCategory2HighSlotIsTop(t *testing.T) {
	assert.Equal(t, 2, Long.Category())
	assert.Equal(t, 2, Double.Category())
	assert.Equal(t, 1, Int.Category())
	top := TopSlot()
	assert.Equal(t, KindTop, top.Kind)
}

func TestSlotEncodeDecode(t *testing.T) {
	assert.Equal(t, int32(-7), IntSlot(-7).Int())
	assert.Equal(t, int64(1) << 40, LongSlot(int64(1)<<40).Long())
	assert.InDelta(t, 3.25, float64(FloatSlot(3.25).Float()), 1e-9)
	assert.InDelta(t, 3.14159, DoubleSlot(3.14159).Double(), 1e-12)
}
