// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"testing"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders"
	"github.com/gomlx/stylekit/pkg/ml/encoders/guides"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Stages must be usable by encoders and guides.
var (
	_ encoders.Stage     = (*Conv2D)(nil)
	_ encoders.Stage     = (*Pool2D)(nil)
	_ encoders.Stage     = ReLU{}
	_ encoders.Stage     = (*Normalize)(nil)
	_ guides.Propagating = (*Conv2D)(nil)
	_ guides.Propagating = (*Pool2D)(nil)
	_ guides.PassThrough = ReLU{}
	_ guides.PassThrough = (*Normalize)(nil)
)

func plane4x4() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, 1, 4, 4)
}

func TestConv2D(t *testing.T) {
	// Two output channels: identity on the center, and sum of the 3x3 neighborhood plus bias.
	weights := tensors.FromFlatDataAndDimensions([]float32{
		0, 0, 0, 0, 1, 0, 0, 0, 0,
		1, 1, 1, 1, 1, 1, 1, 1, 1,
	}, 2, 1, 3, 3)
	bias := tensors.FromFlatDataAndDimensions([]float32{0, 100}, 2)
	conv := NewConv2D(weights, bias).PadSame().Done()
	x := plane4x4()
	y, err := conv.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{2, 4, 4}, y.Dimensions())
	for row := range 4 {
		for col := range 4 {
			assert.Equal(t, x.At(0, row, col), y.At(0, row, col))
		}
	}
	assert.Equal(t, float32(100+1+2+5+6), y.At(1, 0, 0))
	assert.Equal(t, float32(100+1+2+3+5+6+7+9+10+11), y.At(1, 1, 1))

	strided := NewConv2D(weights, nil).Strides(2).Done()
	y, err = strided.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{2, 1, 1}, y.Dimensions())
	assert.Equal(t, float32(6), y.At(0, 0, 0))
	assert.Equal(t, float32(54), y.At(1, 0, 0))

	// Wrong number of channels.
	require.Panics(t, func() { _, _ = conv.Forward(tensors.FromShape(3, 4, 4)) })
	require.Panics(t, func() { _ = NewConv2D(tensors.FromShape(2, 2, 2), nil) })
	require.Panics(t, func() { _ = NewConv2D(tensors.FromShape(2, 1, 2, 2), nil).PadSame() })

	guide, err := conv.PropagateGuide(tensors.FromShape(1, 4, 4), guides.Simple)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 4}, guide.Dimensions())
	assert.Contains(t, conv.String(), "1->2")
}

func TestPool2D(t *testing.T) {
	x := plane4x4()
	maxPool := MaxPool2D().Done()
	y, err := maxPool.Forward(x)
	require.NoError(t, err)
	assert.True(t, y.Equal(tensors.FromFlatDataAndDimensions([]float32{6, 8, 14, 16}, 1, 2, 2)), y)

	avgPool := AvgPool2D().Window(2).Strides(2).Done()
	y, err = avgPool.Forward(x)
	require.NoError(t, err)
	assert.True(t, y.Equal(tensors.FromFlatDataAndDimensions([]float32{3.5, 5.5, 11.5, 13.5}, 1, 2, 2)), y)

	// Padded average doesn't count the padding.
	padded := AvgPool2D().Window(3).Strides(1).Padding(1).Done()
	y, err = padded.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 4}, y.Dimensions())
	assert.InDelta(t, (1+2+5+6)/4.0, y.At(0, 0, 0), 1e-6)

	_, err = MaxPool2D().Window(4).Done().Forward(x)
	require.NoError(t, err)
	require.Panics(t, func() { _, _ = MaxPool2D().Window(5).Done().Forward(x) })
	require.Panics(t, func() { _, _ = maxPool.Forward(tensors.FromShape(4, 4)) })

	guide := tensors.FromFlatDataAndDimensions([]float32{
		1, 1, 0, 0,
		1, 1, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 1,
	}, 1, 4, 4)
	propagated, err := maxPool.PropagateGuide(guide, guides.Inside)
	require.NoError(t, err)
	assert.True(t, propagated.Equal(tensors.FromFlatDataAndDimensions([]float32{1, 0, 0, 0}, 1, 2, 2)), propagated)
	assert.Equal(t, "MaxPool2D(window=[2 2], strides=[2 2], padding=[0 0])", maxPool.String())
}

func TestElementwise(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]float32{-1, 2, -3, 4}, 1, 2, 2)
	y, err := ReLU{}.Forward(x)
	require.NoError(t, err)
	assert.True(t, y.Equal(tensors.FromFlatDataAndDimensions([]float32{0, 2, 0, 4}, 1, 2, 2)))
	assert.Equal(t, float32(-1), x.At(0, 0, 0), "ReLU must not change its input")

	norm := NewNormalize([]float32{1, 2}, []float32{2, 4})
	y, err = norm.Forward(tensors.FromFlatDataAndDimensions([]float32{3, 5, 6, 10}, 2, 1, 2))
	require.NoError(t, err)
	assert.True(t, y.Equal(tensors.FromFlatDataAndDimensions([]float32{1, 2, 1, 2}, 2, 1, 2)), y)
	require.Panics(t, func() { _, _ = norm.Forward(tensors.FromShape(3, 1, 2)) })
	require.Panics(t, func() { _ = NewNormalize([]float32{1}, []float32{0}) })
	assert.NotNil(t, ImageNetNormalize())
}
