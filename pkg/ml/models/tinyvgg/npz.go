// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tinyvgg

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/core/tensors/numpy"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func isNpz(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".npz")
}

// NamedWeights returns the weights and biases of the model keyed by name: "<conv>_W" for the kernels, shaped
// `[outChannels, inChannels, 3, 3]`, and "<conv>_b" for the biases, e.g. "conv1_1_W" and "conv1_1_b".
//
// The tensors are shared with the model.
func (m *Model) NamedWeights() map[string]*tensors.Tensor {
	named := make(map[string]*tensors.Tensor, len(m.weights))
	for ii, name := range m.weightNames {
		named[name] = m.weights[ii]
	}
	return named
}

// SaveNpz saves the weights in NumPy's .npz format, with the names of NamedWeights.
func (m *Model) SaveNpz(path string) error {
	if err := numpy.ToNpzFile(m.NamedWeights(), path); err != nil {
		return errors.WithMessagef(err, "tinyvgg.SaveNpz(%q)", path)
	}
	klog.V(1).Infof("tinyvgg: saved %d params to %q", m.NumParams(), path)
	return nil
}

// LoadNpz reads weights from NumPy's .npz format, with the names of NamedWeights.
//
// Kernels can also be given in the `[3, 3, inChannels, outChannels]` layout used by VGG weights converted from
// TensorFlow, in which case they are transposed. Arrays in the file not used by the model are ignored.
//
// On error, the model weights may have been partially updated.
func (m *Model) LoadNpz(path string) error {
	loaded, err := numpy.FromNpzFile(path)
	if err != nil {
		return errors.WithMessagef(err, "tinyvgg.LoadNpz(%q)", path)
	}
	for ii, name := range m.weightNames {
		w := m.weights[ii]
		src, found := loaded[name]
		if !found {
			return errors.Errorf("tinyvgg.LoadNpz(%q): missing %q, shaped %v", path, name, w.Dimensions())
		}
		if src.Rank() == 4 && !src.SameDimensions(w) {
			src = hwioToOIHW(src)
		}
		if !src.SameDimensions(w) {
			return errors.Errorf("tinyvgg.LoadNpz(%q): %q has dimensions %v, model expects %v",
				path, name, src.Dimensions(), w.Dimensions())
		}
		src.ConstFlatData(func(values []float32) {
			w.MutableFlatData(func(flat []float32) { copy(flat, values) })
		})
		delete(loaded, name)
	}
	if len(loaded) > 0 && klog.V(1).Enabled() {
		unused := make([]string, 0, len(loaded))
		for name := range loaded {
			unused = append(unused, name)
		}
		slices.Sort(unused)
		klog.Infof("tinyvgg.LoadNpz(%q): ignored arrays %v", path, unused)
	}
	return nil
}

// hwioToOIHW transposes a kernel shaped `[kh, kw, in, out]` to `[out, in, kh, kw]`.
func hwioToOIHW(kernel *tensors.Tensor) *tensors.Tensor {
	kh, kw, in, out := kernel.Dim(0), kernel.Dim(1), kernel.Dim(2), kernel.Dim(3)
	transposed := tensors.FromShape(out, in, kh, kw)
	kernel.ConstFlatData(func(src []float32) {
		transposed.MutableFlatData(func(dst []float32) {
			var srcIdx int
			for y := range kh {
				for x := range kw {
					for i := range in {
						for o := range out {
							dst[((o*in+i)*kh+y)*kw+x] = src[srcIdx]
							srcIdx++
						}
					}
				}
			}
		})
	})
	return transposed
}
