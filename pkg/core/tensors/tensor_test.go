// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	tensor := FromFlatDataAndDimensions(data, 2, 3)
	assert.Equal(t, []int{2, 3}, tensor.Dimensions())
	assert.Equal(t, 2, tensor.Rank())
	assert.Equal(t, 6, tensor.Size())
	assert.Equal(t, 3, tensor.Dim(-1))
	assert.Equal(t, float32(6), tensor.At(1, 2))
	assert.Equal(t, uint64(24), tensor.Memory())

	// Data is copied.
	data[0] = 100
	assert.Equal(t, float32(1), tensor.At(0, 0))

	require.Panics(t, func() { _ = FromFlatDataAndDimensions(data, 4, 2) })
	require.Panics(t, func() { _ = FromShape(3, 0) })
	require.Panics(t, func() { _ = tensor.Dim(2) })
	require.Panics(t, func() { _ = tensor.At(2, 0) })

	scalar := FromScalar(7)
	assert.Equal(t, 0, scalar.Rank())
	assert.Equal(t, float32(7), scalar.At())
}

func TestKey(t *testing.T) {
	a := FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	b := FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	require.True(t, a.Equal(b))

	// Same tensor, same key.
	assert.Equal(t, a.Key(), a.Key())

	// Equal contents, different identities.
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key().Fingerprint, b.Key().Fingerprint)

	// Mutation in place changes the key.
	before := a.Key()
	a.MutableFlatData(func(flat []float32) { flat[0] = 10 })
	after := a.Key()
	assert.NotEqual(t, before, after)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Version+1, after.Version)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)

	// Clones get a new identity.
	c := a.Clone()
	assert.True(t, c.Equal(a))
	assert.NotEqual(t, a.Key().ID, c.Key().ID)

	// Dimensions are part of the fingerprint.
	d := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	e := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 4)
	assert.NotEqual(t, d.Key().Fingerprint, e.Key().Fingerprint)
}

func TestFloat16(t *testing.T) {
	half := []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-2), float16.Fromfloat32(3.25)}
	tensor := FromFloat16(half, 3)
	assert.True(t, tensor.Equal(FromFlatDataAndDimensions([]float32{0.5, -2, 3.25}, 3)))
	assert.Equal(t, half, tensor.Float16s())
}

func TestString(t *testing.T) {
	assert.Equal(t, "Tensor(f32[2]: [1 2])", FromFlatDataAndDimensions([]float32{1, 2}, 2).String())
	assert.Equal(t, "Tensor(f32[3 64 64], 49 kB)", FromShape(3, 64, 64).String())
	var nilTensor *Tensor
	assert.Equal(t, "Tensor(nil)", nilTensor.String())
}

func TestInDelta(t *testing.T) {
	a := FromFlatDataAndDimensions([]float32{1, 2}, 2)
	b := FromFlatDataAndDimensions([]float32{1.001, 2}, 2)
	assert.True(t, a.InDelta(b, 0.01))
	assert.False(t, a.InDelta(b, 0.0001))
	assert.False(t, a.InDelta(FromShape(1, 2), 10))
}
