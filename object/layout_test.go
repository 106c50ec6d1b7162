package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"jacobin/types"
)

func TestComputeFieldLayoutSuperclassFieldsFirst(t *testing.T) {
	superInstance, _ := ComputeFieldLayout(nil, []FieldLayoutEntry{
		{Name: "a", Type: types.TInt},
		{Name: "b", Type: types.TLong},
	})
	assert.Equal(t, 0, superInstance[0].Offset)
	assert.Equal(t, 1, superInstance[1].Offset) // long takes 2 slots starting at 1

	subInstance, subStatic := ComputeFieldLayout(superInstance, []FieldLayoutEntry{
		{Name: "c", Type: types.TInt},
		{Name: "count", Type: types.TInt, Static: true},
	})
	assert.Len(t, subInstance, 3)
	assert.Equal(t, "a", subInstance[0].Name)
	assert.Equal(t, "b", subInstance[1].Name)
	assert.Equal(t, "c", subInstance[2].Name)
	assert.Equal(t, 3, subInstance[2].Offset) // after a(1 slot) + b(2 slots)
	assert.Len(t, subStatic, 1)
	assert.Equal(t, 0, subStatic[0].Offset)
}

func TestArrayBoundsCheckSignedVsUnsigned(t *testing.T) {
	arr := NewArray(1, types.TInt, 3)
	_, err := arr.Load(-1)
	assert.Error(t, err)
	_, err = arr.Load(3)
	assert.Error(t, err)
	v, err := arr.Load(2)
	assert.NoError(t, err)
	assert.Equal(t, types.Slot{}, v)

	err = arr.Store(0, types.IntSlot(7))
	assert.NoError(t, err)
	got, _ := arr.Load(0)
	assert.Equal(t, int32(7), got.Int())
}

func TestNewArrayNegativeLengthPanics(t *testing.T) {
	assert.Panics(t, func() { NewArray(1, types.TInt, -1) })
}
