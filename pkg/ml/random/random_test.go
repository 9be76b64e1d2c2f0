// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package random

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhiloxKnownAnswer(t *testing.T) {
	// Random123 known-answer vector for a zero counter and zero key.
	got := philox4x32([4]uint32{}, [2]uint32{})
	assert.Equal(t, [4]uint32{0x6627e8d5, 0xe169c58d, 0xbc57ac4c, 0x9b00dbd8}, got)

	p := NewPhilox(StateFromSeed(0))
	for _, want := range got {
		assert.Equal(t, want, p.Uint32())
	}
	assert.Equal(t, [StateSize]uint64{0, 1, 0}, p.State())
}

func TestDeterministic(t *testing.T) {
	r0, r1 := NewWithSeed(42), NewWithSeed(42)
	for range 100 {
		require.Equal(t, r0.Uniform(), r1.Uniform())
	}
	split := r0.Split()
	assert.NotEqual(t, r0.Uint32(), split.Uint32())

	r2 := NewWithSeed(43)
	assert.NotEqual(t, NewWithSeed(42).Uint32(), r2.Uint32())

	fromOS, err := New()
	require.NoError(t, err)
	assert.NotNil(t, fromOS)
}

func TestDistributions(t *testing.T) {
	r := NewWithSeed(7)
	const n = 20000
	var sum, sumSq float64
	for range n {
		u := r.Uniform()
		require.True(t, u >= 0 && u < 1, "uniform value %g out of [0, 1)", u)
		v := r.Normal()
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	assert.InDelta(t, 0.0, mean, 0.05)
	assert.InDelta(t, 1.0, sumSq/n-mean*mean, 0.05)

	for range 1000 {
		v := r.IntN(3)
		require.True(t, v >= 0 && v < 3)
	}
	require.Panics(t, func() { r.IntN(0) })
}

func TestTensors(t *testing.T) {
	r := NewWithSeed(1)
	normal := r.NormalTensor(0.1, 4, 8)
	assert.Equal(t, []int{4, 8}, normal.Dimensions())
	uniform := r.UniformTensor(-1, 1, 100)
	uniform.ConstFlatData(func(flat []float32) {
		for _, v := range flat {
			assert.True(t, v >= -1 && v <= 1)
		}
	})
}
