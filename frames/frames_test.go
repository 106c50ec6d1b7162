/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package frames

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jacobin/types"
)

func TestPushPopRoundTrip(t *testing.T) {
	f := NewJavaFrame("P", "m()I", 0, 2, 4)
	require.NoError(t, f.Push(types.IntSlot(7)))
	require.NoError(t, f.Push(types.IntSlot(9)))
	assert.Equal(t, 2, f.Depth())

	v, err := f.Pop()
	require.NoError(t, err)
	assert.Equal(t, int32(9), v.Int())

	v, err = f.Pop()
	require.NoError(t, err)
	assert.Equal(t, int32(7), v.Int())
	assert.Equal(t, 0, f.Depth())
}

func TestPushPastMaxStackFails(t *testing.T) {
	f := NewJavaFrame("P", "m()I", 0, 0, 1)
	require.NoError(t, f.Push(types.IntSlot(1)))
	err := f.Push(types.IntSlot(2))
	require.Error(t, err)
	var soe *StackOverflowErr
	assert.ErrorAs(t, err, &soe)
}

func TestPopUnderMinFails(t *testing.T) {
	f := NewJavaFrame("P", "m()I", 0, 0, 1)
	_, err := f.Pop()
	require.Error(t, err)
}

func TestLocalsRoundTrip(t *testing.T) {
	f := NewJavaFrame("P", "m(I)V", 0, 2, 0)
	f.SetLocal(0, types.IntSlot(42))
	assert.Equal(t, int32(42), f.GetLocal(0).Int())
}

func TestStackPushPopOrdersFramesLIFO(t *testing.T) {
	s := NewStack()
	a := NewJavaFrame("A", "a()V", 1, 1, 1)
	b := NewJavaFrame("B", "b()V", 2, 1, 1)

	require.NoError(t, s.Push(a))
	require.NoError(t, s.Push(b))
	assert.Equal(t, 2, s.Depth())
	assert.Same(t, b, s.Top())

	popped := s.Pop()
	assert.Same(t, b, popped)
	assert.Same(t, a, s.Top())
	assert.Equal(t, 1, s.Depth())
}

func TestStackOverflowsOnBudgetExhaustion(t *testing.T) {
	s := &Stack{slotsBudget: 10}
	big := NewJavaFrame("Big", "m()V", 1, 100, 100)
	err := s.Push(big)
	require.Error(t, err)
	assert.Equal(t, 0, s.Depth(), "a rejected push must not partially update stack state")
}

func TestWithTopFrameExposesOnlyCurrentTop(t *testing.T) {
	s := NewStack()
	a := NewJavaFrame("A", "a()V", 1, 1, 1)
	require.NoError(t, s.Push(a))

	var seen *Frame
	s.WithTopFrame(func(f *Frame) {
		seen = f
		b := NewJavaFrame("B", "b()V", 2, 1, 1)
		require.NoError(t, s.Push(b))
		s.WithTopFrame(func(inner *Frame) {
			assert.Same(t, b, inner)
		})
		s.Pop()
	})
	assert.Same(t, a, seen)
}

func TestSafepointRequestAndClear(t *testing.T) {
	s := NewStack()
	assert.Equal(t, SafepointNone, s.PollSafepoint())
	s.RequestSafepoint(SafepointSuspend)
	assert.NotEqual(t, SafepointNone, s.PollSafepoint()&SafepointSuspend)
	s.ClearSafepoint(SafepointSuspend)
	assert.Equal(t, SafepointNone, s.PollSafepoint()&SafepointSuspend)
}
