// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package guides

import (
	"math"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Window propagates a guide through a windowed operation over its two last (spatial) axes, like a
// convolution or a pooling, with the given window sizes, strides and (symmetric) paddings per spatial axis.
//
// Leading axes are preserved. See Method for how each output position is computed.
func Window(guide *tensors.Tensor, window, strides, padding [2]int, method Method) (*tensors.Tensor, error) {
	if guide.Rank() < 2 {
		return nil, errors.Errorf("guide must have at least 2 (spatial) axes, got %s", guide)
	}
	for axis := range 2 {
		if window[axis] <= 0 || strides[axis] <= 0 || padding[axis] < 0 {
			return nil, errors.Errorf("invalid window=%v, strides=%v, padding=%v for guide propagation",
				window, strides, padding)
		}
	}
	dims := guide.Dimensions()
	rank := len(dims)
	height, width := dims[rank-2], dims[rank-1]
	if height+2*padding[0] < window[0] || width+2*padding[1] < window[1] {
		return nil, errors.WithStack(&PropagationError{
			Stage:  "window",
			Reason: "guide spatial dimensions are smaller than the window",
		})
	}
	outHeight := (height+2*padding[0]-window[0])/strides[0] + 1
	outWidth := (width+2*padding[1]-window[1])/strides[1] + 1

	outDims := append(dims[:rank-2:rank-2], outHeight, outWidth)
	output := tensors.FromShape(outDims...)
	numPlanes := guide.Size() / (height * width)
	guide.ConstFlatData(func(in []float32) {
		output.MutableFlatData(func(out []float32) {
			for plane := range numPlanes {
				inPlane := in[plane*height*width : (plane+1)*height*width]
				outPlane := out[plane*outHeight*outWidth : (plane+1)*outHeight*outWidth]
				for oy := range outHeight {
					for ox := range outWidth {
						outPlane[oy*outWidth+ox] = reduceWindow(inPlane, height, width,
							oy*strides[0]-padding[0], ox*strides[1]-padding[1], window, method)
					}
				}
			}
		})
	})
	return output, nil
}

// reduceWindow reduces the window of plane starting at (y0, x0), which may start or end in the padding.
func reduceWindow(plane []float32, height, width, y0, x0 int, window [2]int, method Method) float32 {
	var (
		sum      float64
		count    int
		minValue = math.Inf(1)
		maxValue = math.Inf(-1)
		padded   bool
	)
	for y := y0; y < y0+window[0]; y++ {
		for x := x0; x < x0+window[1]; x++ {
			if y < 0 || y >= height || x < 0 || x >= width {
				padded = true
				continue
			}
			v := float64(plane[y*width+x])
			sum += v
			count++
			minValue = min(minValue, v)
			maxValue = max(maxValue, v)
		}
	}
	if count == 0 {
		return 0
	}
	switch method {
	case Inside:
		if padded {
			return 0
		}
		return float32(minValue)
	case All:
		return float32(maxValue)
	default:
		return float32(sum / float64(count))
	}
}
