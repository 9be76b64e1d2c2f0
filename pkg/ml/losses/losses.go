// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package losses implements the perceptual losses used in neural style transfer: a content loss comparing
// encoded features, and a style loss comparing their Gram matrices, optionally restricted to regions of the
// image with guides.
//
// Operators hold on to an encoders.SingleLayerEncoder, so all operators sharing one MultiLayerEncoder can reuse
// its cached activations: PerceptualLoss encodes each input once per MultiLayerEncoder, and the operators read
// the activations from the cache.
package losses

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
)

// MeanSquaredError returns the mean squared error between labels and predictions.
//
// labels and predictions must have the same dimensions, it panics otherwise.
func MeanSquaredError(labels, predictions *tensors.Tensor) float64 {
	if !labels.SameDimensions(predictions) {
		exceptions.Panicf("labels (%s) and predictions (%s) must have same dimensions", labels, predictions)
	}
	var sum float64
	labels.ConstFlatData(func(labelsFlat []float32) {
		predictions.ConstFlatData(func(predictionsFlat []float32) {
			for ii, label := range labelsFlat {
				diff := float64(label) - float64(predictionsFlat[ii])
				sum += diff * diff
			}
		})
	})
	if labels.Size() == 0 {
		return 0
	}
	return sum / float64(labels.Size())
}

// GramMatrix returns the `[channels, channels]` matrix of the inner products between the channels of features,
// shaped `[channels, height, width]`.
//
// If normalize is true, the values are divided by the number of spatial positions (height*width), which makes
// them independent of the image size.
func GramMatrix(features *tensors.Tensor, normalize bool) *tensors.Tensor {
	if features.Rank() != 3 {
		exceptions.Panicf("GramMatrix: features must be shaped [channels, height, width], got %s", features)
	}
	channels := features.Dim(0)
	positions := features.Dim(1) * features.Dim(2)
	scale := 1.0
	if normalize && positions > 0 {
		scale = 1.0 / float64(positions)
	}
	gram := tensors.FromShape(channels, channels)
	features.ConstFlatData(func(in []float32) {
		gram.MutableFlatData(func(out []float32) {
			for c0 := range channels {
				row0 := in[c0*positions : (c0+1)*positions]
				for c1 := c0; c1 < channels; c1++ {
					row1 := in[c1*positions : (c1+1)*positions]
					var dot float64
					for ii, v := range row0 {
						dot += float64(v) * float64(row1[ii])
					}
					value := float32(dot * scale)
					out[c0*channels+c1] = value
					out[c1*channels+c0] = value
				}
			}
		})
	})
	return gram
}

// ApplyGuide returns features multiplied by the guide, shaped `[1, height, width]` (or `[height, width]`), at
// each channel.
func ApplyGuide(features, guide *tensors.Tensor) *tensors.Tensor {
	if features.Rank() != 3 {
		exceptions.Panicf("ApplyGuide: features must be shaped [channels, height, width], got %s", features)
	}
	height, width := features.Dim(1), features.Dim(2)
	if guide.Rank() < 2 || guide.Size() != height*width || guide.Dim(-1) != width || guide.Dim(-2) != height {
		exceptions.Panicf("ApplyGuide: guide %s doesn't match the spatial dimensions of features %s", guide, features)
	}
	guided := features.Clone()
	guide.ConstFlatData(func(guideFlat []float32) {
		guided.MutableFlatData(func(flat []float32) {
			for ii := range flat {
				flat[ii] *= guideFlat[ii%len(guideFlat)]
			}
		})
	})
	return guided
}

// IsFinite returns whether loss is neither NaN nor infinite.
func IsFinite(loss float64) bool {
	return !math.IsNaN(loss) && !math.IsInf(loss, 0)
}
