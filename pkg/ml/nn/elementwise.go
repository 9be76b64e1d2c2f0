// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
)

// ReLU stage: max(x, 0).
type ReLU struct{}

// Forward implements encoders.Stage.
func (ReLU) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	y := x.Clone()
	y.MutableFlatData(func(flat []float32) {
		for ii, v := range flat {
			if v < 0 {
				flat[ii] = 0
			}
		}
	})
	return y, nil
}

// GuidePassThrough implements guides.PassThrough.
func (ReLU) GuidePassThrough() {}

// String implements fmt.Stringer.
func (ReLU) String() string { return "ReLU" }

// Normalize stage subtracts a per-channel mean and divides by a per-channel standard deviation.
// It is usually the first stage of a pre-trained encoder.
type Normalize struct {
	mean, std []float32
}

// NewNormalize creates a Normalize stage. mean and std must have one value per channel.
func NewNormalize(mean, std []float32) *Normalize {
	if len(mean) != len(std) || len(mean) == 0 {
		exceptions.Panicf("nn.NewNormalize: mean (%d values) and std (%d values) must have the same non-zero length",
			len(mean), len(std))
	}
	for ii, s := range std {
		if s <= 0 {
			exceptions.Panicf("nn.NewNormalize: std[%d]=%g must be > 0", ii, s)
		}
	}
	return &Normalize{mean: mean, std: std}
}

// ImageNetNormalize returns the Normalize stage for RGB images in [0, 1] used by networks trained on ImageNet.
func ImageNetNormalize() *Normalize {
	return NewNormalize([]float32{0.485, 0.456, 0.406}, []float32{0.229, 0.224, 0.225})
}

// Forward implements encoders.Stage.
func (n *Normalize) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	checkImage("Normalize", x)
	if x.Dim(0) != len(n.mean) {
		exceptions.Panicf("nn.Normalize: input has %d channels, expected %d", x.Dim(0), len(n.mean))
	}
	planeSize := x.Dim(1) * x.Dim(2)
	y := x.Clone()
	y.MutableFlatData(func(flat []float32) {
		for ii := range flat {
			c := ii / planeSize
			flat[ii] = (flat[ii] - n.mean[c]) / n.std[c]
		}
	})
	return y, nil
}

// GuidePassThrough implements guides.PassThrough.
func (n *Normalize) GuidePassThrough() {}

// String implements fmt.Stringer.
func (n *Normalize) String() string {
	return fmt.Sprintf("Normalize(mean=%v, std=%v)", n.mean, n.std)
}
