// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn implements the stages of convolutional feature encoders over single images, shaped
// `[channels, height, width]`: convolutions, pooling, activations and normalization.
//
// All stages implement encoders.Stage, and either guides.Propagating or guides.PassThrough so guides can be
// propagated through them. Invalid inputs cause a panic (with exceptions.Panicf), which the encoders
// convert to errors.
package nn

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders/guides"
)

// Conv2D is a 2D convolution stage, with weights shaped `[outputChannels, inputChannels, kernelHeight, kernelWidth]`
// and an optional bias shaped `[outputChannels]`.
type Conv2D struct {
	weights, bias    *tensors.Tensor
	strides, padding [2]int
}

// Conv2DBuilder configures a Conv2D. Create it with NewConv2D and call Done when set.
type Conv2DBuilder struct {
	conv *Conv2D
}

// NewConv2D prepares a convolution stage with the given weights, shaped
// `[outputChannels, inputChannels, kernelHeight, kernelWidth]`, and bias shaped `[outputChannels]`.
// Bias can be nil.
//
// It defaults to strides 1 and no padding.
func NewConv2D(weights, bias *tensors.Tensor) *Conv2DBuilder {
	if weights.Rank() != 4 {
		exceptions.Panicf("nn.NewConv2D: weights must be shaped [outputChannels, inputChannels, kernelHeight, "+
			"kernelWidth], got %s", weights)
	}
	if bias != nil && (bias.Rank() != 1 || bias.Dim(0) != weights.Dim(0)) {
		exceptions.Panicf("nn.NewConv2D: bias must be shaped [%d], got %s", weights.Dim(0), bias)
	}
	return &Conv2DBuilder{conv: &Conv2D{
		weights: weights,
		bias:    bias,
		strides: [2]int{1, 1},
	}}
}

// Strides sets the strides for both spatial axes. Default is 1.
func (b *Conv2DBuilder) Strides(strides int) *Conv2DBuilder {
	if strides <= 0 {
		exceptions.Panicf("nn.Conv2D: strides must be > 0, got %d", strides)
	}
	b.conv.strides = [2]int{strides, strides}
	return b
}

// Padding sets a zero padding added to both sides of each spatial axis. Default is 0.
func (b *Conv2DBuilder) Padding(padding int) *Conv2DBuilder {
	if padding < 0 {
		exceptions.Panicf("nn.Conv2D: padding must be >= 0, got %d", padding)
	}
	b.conv.padding = [2]int{padding, padding}
	return b
}

// PadSame sets the padding such that, with strides 1, the output has the same spatial dimensions as the input.
// It requires odd kernel sizes.
func (b *Conv2DBuilder) PadSame() *Conv2DBuilder {
	kh, kw := b.conv.weights.Dim(2), b.conv.weights.Dim(3)
	if kh%2 == 0 || kw%2 == 0 {
		exceptions.Panicf("nn.Conv2D.PadSame() requires odd kernel sizes, got %dx%d", kh, kw)
	}
	b.conv.padding = [2]int{kh / 2, kw / 2}
	return b
}

// Done returns the configured Conv2D.
func (b *Conv2DBuilder) Done() *Conv2D {
	return b.conv
}

// Forward implements encoders.Stage.
func (c *Conv2D) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	checkImage("Conv2D", x)
	outChannels, inChannels, kh, kw := c.weights.Dim(0), c.weights.Dim(1), c.weights.Dim(2), c.weights.Dim(3)
	if x.Dim(0) != inChannels {
		exceptions.Panicf("nn.Conv2D: input has %d channels, weights expect %d (input %s)", x.Dim(0), inChannels, x)
	}
	height, width := x.Dim(1), x.Dim(2)
	outHeight, outWidth := outputSize(height, width, [2]int{kh, kw}, c.strides, c.padding)
	y := tensors.FromShape(outChannels, outHeight, outWidth)
	var biasFlat []float32
	if c.bias != nil {
		c.bias.ConstFlatData(func(flat []float32) { biasFlat = flat })
	}
	x.ConstFlatData(func(in []float32) {
		c.weights.ConstFlatData(func(w []float32) {
			y.MutableFlatData(func(out []float32) {
				for oc := range outChannels {
					var bias float32
					if biasFlat != nil {
						bias = biasFlat[oc]
					}
					for oy := range outHeight {
						for ox := range outWidth {
							sum := bias
							y0, x0 := oy*c.strides[0]-c.padding[0], ox*c.strides[1]-c.padding[1]
							for ic := range inChannels {
								kernel := w[((oc*inChannels)+ic)*kh*kw:]
								plane := in[ic*height*width:]
								for ky := range kh {
									iy := y0 + ky
									if iy < 0 || iy >= height {
										continue
									}
									for kx := range kw {
										ix := x0 + kx
										if ix < 0 || ix >= width {
											continue
										}
										sum += kernel[ky*kw+kx] * plane[iy*width+ix]
									}
								}
							}
							out[(oc*outHeight+oy)*outWidth+ox] = sum
						}
					}
				}
			})
		})
	})
	return y, nil
}

// PropagateGuide implements guides.Propagating.
func (c *Conv2D) PropagateGuide(guide *tensors.Tensor, method guides.Method) (*tensors.Tensor, error) {
	return guides.Window(guide, [2]int{c.weights.Dim(2), c.weights.Dim(3)}, c.strides, c.padding, method)
}

// String implements fmt.Stringer.
func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(%d->%d, kernel=%dx%d, strides=%v, padding=%v)",
		c.weights.Dim(1), c.weights.Dim(0), c.weights.Dim(2), c.weights.Dim(3), c.strides, c.padding)
}

// Weights returns the convolution weights and bias (which may be nil).
func (c *Conv2D) Weights() (weights, bias *tensors.Tensor) {
	return c.weights, c.bias
}

// checkImage panics if x is not shaped `[channels, height, width]`.
func checkImage(stage string, x *tensors.Tensor) {
	if x.Rank() != 3 {
		exceptions.Panicf("nn.%s: input must be shaped [channels, height, width], got %s", stage, x)
	}
}

// outputSize of a windowed operation, it panics if the input is smaller than the window.
func outputSize(height, width int, window, strides, padding [2]int) (outHeight, outWidth int) {
	if height+2*padding[0] < window[0] || width+2*padding[1] < window[1] {
		exceptions.Panicf("input spatial dimensions %dx%d (padding %v) are smaller than the window %v",
			height, width, padding, window)
	}
	outHeight = (height+2*padding[0]-window[0])/strides[0] + 1
	outWidth = (width+2*padding[1]-window[1])/strides[1] + 1
	return
}
