// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// first returns the first n batches of sampler.
func first(sampler Sampler, n int) [][]int {
	var batches [][]int
	for batch := range sampler.All() {
		if len(batches) == n {
			break
		}
		batches = append(batches, batch)
	}
	return batches
}

func TestInfiniteCycleBatchSampler(t *testing.T) {
	sampler, err := NewInfiniteCycleBatchSampler(3, 2)
	require.NoError(t, err)
	assert.Equal(t, Unbounded, sampler.Len())
	assert.Equal(t, [][]int{{0, 1}, {2, 0}, {1, 2}, {0, 1}}, first(sampler, 4))

	// Each iteration restarts at 0.
	assert.Equal(t, [][]int{{0, 1}, {2, 0}}, first(sampler, 2))

	single, err := NewInfiniteCycleBatchSampler(1, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 0, 0}, {0, 0, 0}}, first(single, 2))

	_, err = NewInfiniteCycleBatchSampler(0, 1)
	require.Error(t, err)
	_, err = NewInfiniteCycleBatchSampler(3, 0)
	require.Error(t, err)
}

func TestFiniteCycleBatchSampler(t *testing.T) {
	sampler, err := NewFiniteCycleBatchSampler(3, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sampler.Len())
	batches := slices.Collect(sampler.All())
	assert.Equal(t, [][]int{{0, 1}, {2, 0}}, batches)
	assert.Equal(t, batches, slices.Collect(sampler.All()))
	assert.Equal(t, "FiniteCycleBatchSampler(size=3, numBatches=2, batchSize=2)", sampler.Name())

	// Iterating over all batches while interleaving two iterations.
	var interleaved [][]int
	for batch := range sampler.All() {
		interleaved = append(interleaved, batch)
		interleaved = append(interleaved, first(sampler, 1)...)
	}
	assert.Equal(t, [][]int{{0, 1}, {0, 1}, {2, 0}, {0, 1}}, interleaved)

	empty, err := NewFiniteCycleBatchSampler(3, 0, 2)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(empty.All()))

	_, err = NewFiniteCycleBatchSampler(0, 2, 1)
	require.Error(t, err)
	_, err = NewFiniteCycleBatchSampler(3, -1, 1)
	require.Error(t, err)
}

func TestTake(t *testing.T) {
	infinite, err := NewInfiniteCycleBatchSampler(2, 1)
	require.NoError(t, err)
	take, err := Take(infinite, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, take.Len())
	assert.Equal(t, [][]int{{0}, {1}, {0}}, slices.Collect(take.All()))
	assert.Contains(t, take.Name(), "[Take 3]")

	finite, err := NewFiniteCycleBatchSampler(2, 2, 1)
	require.NoError(t, err)
	take, err = Take(finite, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, take.Len())
	assert.Len(t, slices.Collect(take.All()), 2)

	_, err = Take(finite, -1)
	require.Error(t, err)
}
