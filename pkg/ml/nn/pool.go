// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders/guides"
)

// PoolType is the reduction used by a Pool2D.
type PoolType int

const (
	MaxPoolType PoolType = iota
	AvgPoolType
)

// Pool2D is a 2D pooling stage over each channel.
type Pool2D struct {
	poolType                 PoolType
	window, strides, padding [2]int
}

// PoolBuilder configures a Pool2D. Create it with MaxPool2D or AvgPool2D and call Done when set.
type PoolBuilder struct {
	pool           *Pool2D
	stridesDefined bool
}

// MaxPool2D prepares a max-pooling stage. Padded positions are ignored.
//
// It defaults to window 2, strides equal to the window and no padding.
func MaxPool2D() *PoolBuilder {
	return newPool(MaxPoolType)
}

// AvgPool2D prepares an average pooling stage. Padded positions are not counted in the average.
//
// It defaults to window 2, strides equal to the window and no padding.
func AvgPool2D() *PoolBuilder {
	return newPool(AvgPoolType)
}

func newPool(poolType PoolType) *PoolBuilder {
	return &PoolBuilder{pool: &Pool2D{
		poolType: poolType,
		window:   [2]int{2, 2},
	}}
}

// Window sets the window size for both spatial axes.
func (b *PoolBuilder) Window(window int) *PoolBuilder {
	if window <= 0 {
		exceptions.Panicf("nn.Pool2D: window must be > 0, got %d", window)
	}
	b.pool.window = [2]int{window, window}
	return b
}

// Strides sets the strides for both spatial axes. If not set, it defaults to the window size.
func (b *PoolBuilder) Strides(strides int) *PoolBuilder {
	if strides <= 0 {
		exceptions.Panicf("nn.Pool2D: strides must be > 0, got %d", strides)
	}
	b.pool.strides = [2]int{strides, strides}
	b.stridesDefined = true
	return b
}

// Padding sets the padding added to both sides of each spatial axis. Default is 0.
func (b *PoolBuilder) Padding(padding int) *PoolBuilder {
	if padding < 0 {
		exceptions.Panicf("nn.Pool2D: padding must be >= 0, got %d", padding)
	}
	b.pool.padding = [2]int{padding, padding}
	return b
}

// Done returns the configured Pool2D.
func (b *PoolBuilder) Done() *Pool2D {
	if !b.stridesDefined {
		b.pool.strides = b.pool.window
	}
	return b.pool
}

// Forward implements encoders.Stage.
func (p *Pool2D) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	checkImage("Pool2D", x)
	channels, height, width := x.Dim(0), x.Dim(1), x.Dim(2)
	outHeight, outWidth := outputSize(height, width, p.window, p.strides, p.padding)
	y := tensors.FromShape(channels, outHeight, outWidth)
	x.ConstFlatData(func(in []float32) {
		y.MutableFlatData(func(out []float32) {
			for c := range channels {
				plane := in[c*height*width : (c+1)*height*width]
				for oy := range outHeight {
					for ox := range outWidth {
						out[(c*outHeight+oy)*outWidth+ox] = p.reduce(plane, height, width,
							oy*p.strides[0]-p.padding[0], ox*p.strides[1]-p.padding[1])
					}
				}
			}
		})
	})
	return y, nil
}

func (p *Pool2D) reduce(plane []float32, height, width, y0, x0 int) float32 {
	var (
		sum      float32
		count    int
		maxValue = float32(math.Inf(-1))
	)
	for y := max(y0, 0); y < min(y0+p.window[0], height); y++ {
		for x := max(x0, 0); x < min(x0+p.window[1], width); x++ {
			v := plane[y*width+x]
			sum += v
			maxValue = max(maxValue, v)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	if p.poolType == MaxPoolType {
		return maxValue
	}
	return sum / float32(count)
}

// PropagateGuide implements guides.Propagating.
func (p *Pool2D) PropagateGuide(guide *tensors.Tensor, method guides.Method) (*tensors.Tensor, error) {
	return guides.Window(guide, p.window, p.strides, p.padding, method)
}

// String implements fmt.Stringer.
func (p *Pool2D) String() string {
	name := "MaxPool2D"
	if p.poolType == AvgPoolType {
		name = "AvgPool2D"
	}
	return fmt.Sprintf("%s(window=%v, strides=%v, padding=%v)", name, p.window, p.strides, p.padding)
}
