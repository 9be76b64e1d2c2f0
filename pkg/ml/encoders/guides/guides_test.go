// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package guides

import (
	"testing"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passThroughStage struct{}

func (passThroughStage) GuidePassThrough() {}

type halvingStage struct{}

func (halvingStage) PropagateGuide(guide *tensors.Tensor, method Method) (*tensors.Tensor, error) {
	return Window(guide, [2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0}, method)
}

type opaqueStage struct{}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{Simple, Inside, All} {
		parsed, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	parsed, err := ParseMethod("INSIDE")
	require.NoError(t, err)
	assert.Equal(t, Inside, parsed)
	_, err = ParseMethod("bilinear")
	require.Error(t, err)
	assert.Equal(t, "Method(7)", Method(7).String())
}

func TestWindow(t *testing.T) {
	// 1x4x4 guide with the top-left 3x3 region set.
	guide := tensors.FromFlatDataAndDimensions([]float32{
		1, 1, 1, 0,
		1, 1, 1, 0,
		1, 1, 1, 0,
		0, 0, 0, 0,
	}, 1, 4, 4)

	simple, err := Window(guide, [2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0}, Simple)
	require.NoError(t, err)
	assert.True(t, simple.Equal(tensors.FromFlatDataAndDimensions([]float32{1, 0.5, 0.5, 0.25}, 1, 2, 2)), simple)

	inside, err := Window(guide, [2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0}, Inside)
	require.NoError(t, err)
	assert.True(t, inside.Equal(tensors.FromFlatDataAndDimensions([]float32{1, 0, 0, 0}, 1, 2, 2)), inside)

	all, err := Window(guide, [2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0}, All)
	require.NoError(t, err)
	assert.True(t, all.Equal(tensors.FromFlatDataAndDimensions([]float32{1, 1, 1, 1}, 1, 2, 2)), all)

	// Padding: same spatial size, windows at the border touch the padding.
	padded, err := Window(guide, [2]int{3, 3}, [2]int{1, 1}, [2]int{1, 1}, Inside)
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 4}, padded.Dimensions())
	assert.Equal(t, float32(0), padded.At(0, 0, 0))
	assert.Equal(t, float32(1), padded.At(0, 1, 1))
	assert.Equal(t, float32(0), padded.At(0, 2, 2))

	_, err = Window(guide, [2]int{5, 5}, [2]int{1, 1}, [2]int{0, 0}, Simple)
	require.ErrorIs(t, err, ErrPropagation)
	_, err = Window(guide, [2]int{0, 2}, [2]int{1, 1}, [2]int{0, 0}, Simple)
	require.Error(t, err)
}

func TestPropagate(t *testing.T) {
	guide := tensors.FromFlatDataAndDimensions([]float32{
		0, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}, 1, 4, 4)

	// Pass-through returns the guide itself.
	propagated, err := Propagate(passThroughStage{}, guide, Simple, false)
	require.NoError(t, err)
	assert.Same(t, guide, propagated)

	propagated, err = Propagate(halvingStage{}, guide, All, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, propagated.Dimensions())

	// Region doesn't survive "inside" propagation.
	_, err = Propagate(halvingStage{}, guide, Inside, false)
	var propagationErr *PropagationError
	require.True(t, errors.As(err, &propagationErr))
	assert.Contains(t, propagationErr.Reason, "empty")
	propagated, err = Propagate(halvingStage{}, guide, Inside, true)
	require.NoError(t, err)
	assert.True(t, IsEmpty(propagated))

	// Stages without guide semantics.
	_, err = Propagate(opaqueStage{}, guide, Simple, true)
	require.ErrorIs(t, err, ErrPropagation)
	require.True(t, errors.As(err, &propagationErr))
	assert.Equal(t, "guides.opaqueStage", propagationErr.Stage)
}
