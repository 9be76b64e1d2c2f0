// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a `Tensor`, a dense multidimensional array of float32 values held in host memory.
//
// Tensors are the values flowing through encoder stages: images, activations and guides.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(dimensions ...int): creates a tensor with the given dimensions, and zero values.
//
//   - FromFlatDataAndDimensions(data []float32, dimensions ...int): creates a Tensor with the given dimensions,
//     with a copy of the flattened values given. Example:
//
//     t := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2) // Tensor with [[1,2], [3,4]]
//
//   - FromFloat16(data []float16.Float16, dimensions ...int): same as above, converting from half-precision.
//
// Each Tensor carries an identity that is assigned on creation and a version that is bumped every time its
// values are changed with MutableFlatData. Both are part of the Tensor's Key, used to cache results computed
// from the tensor: two tensors with equal contents have different keys, and a tensor changed in place gets a
// new key.
package tensors

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/x448/float16"
)

// Tensor is a dense multidimensional array of float32, stored as a flat slice in row-major order.
//
// It is not safe for concurrent mutation.
type Tensor struct {
	dimensions []int
	flat       []float32

	// id is the identity of the tensor, assigned on creation and never changed.
	id uuid.UUID

	// version is incremented at every MutableFlatData call.
	version uint64

	// key memoizes the Key for the current version, nil if not computed yet.
	key *Key
}

func newTensor(flat []float32, dimensions []int) *Tensor {
	return &Tensor{
		dimensions: dimensions,
		flat:       flat,
		id:         uuid.New(),
	}
}

// sizeOf returns the number of elements of a tensor with the given dimensions, and panics for invalid dimensions.
func sizeOf(dimensions []int) int {
	size := 1
	for axis, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("tensors: cannot create a tensor with dimensions %v: axis #%d has dimension %d <= 0",
				dimensions, axis, dim)
		}
		size *= dim
	}
	return size
}

// FromShape returns a Tensor with the given dimensions, with the data initialized with zeros.
// A call without dimensions returns a scalar.
func FromShape(dimensions ...int) *Tensor {
	size := sizeOf(dimensions)
	return newTensor(make([]float32, size), slices.Clone(dimensions))
}

// FromScalar returns a scalar (rank 0) Tensor with the given value.
func FromScalar(value float32) *Tensor {
	return newTensor([]float32{value}, nil)
}

// FromFlatDataAndDimensions returns a Tensor with the given dimensions and a copy of the given flat values.
//
// It panics if the length of data doesn't match the size of the dimensions.
func FromFlatDataAndDimensions(data []float32, dimensions ...int) *Tensor {
	size := sizeOf(dimensions)
	if len(data) != size {
		exceptions.Panicf("FromFlatDataAndDimensions(%v): data size is %d, but dimensions size is %d",
			dimensions, len(data), size)
	}
	return newTensor(slices.Clone(data), slices.Clone(dimensions))
}

// FromFloat16 returns a Tensor with the given dimensions, with the half-precision data converted to float32.
func FromFloat16(data []float16.Float16, dimensions ...int) *Tensor {
	size := sizeOf(dimensions)
	if len(data) != size {
		exceptions.Panicf("FromFloat16(%v): data size is %d, but dimensions size is %d",
			dimensions, len(data), size)
	}
	flat := make([]float32, size)
	for ii, v := range data {
		flat[ii] = v.Float32()
	}
	return newTensor(flat, slices.Clone(dimensions))
}

// Float16s returns a copy of the tensor values converted to half-precision.
func (t *Tensor) Float16s() []float16.Float16 {
	half := make([]float16.Float16, len(t.flat))
	for ii, v := range t.flat {
		half[ii] = float16.Fromfloat32(v)
	}
	return half
}

// Clone returns a copy of the tensor with its own identity.
func (t *Tensor) Clone() *Tensor {
	return newTensor(slices.Clone(t.flat), slices.Clone(t.dimensions))
}

// Dimensions returns a copy of the tensor dimensions.
func (t *Tensor) Dimensions() []int {
	return slices.Clone(t.dimensions)
}

// Rank returns the number of axes of the tensor.
func (t *Tensor) Rank() int {
	return len(t.dimensions)
}

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int {
	return len(t.flat)
}

// Dim returns the dimension of the given axis. Negative axes count from the end, so -1 is the last axis.
func (t *Tensor) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += t.Rank()
	}
	if adjusted < 0 || adjusted >= t.Rank() {
		exceptions.Panicf("Tensor.Dim(%d) out-of-bounds for rank %d (dimensions=%v)", axis, t.Rank(), t.dimensions)
	}
	return t.dimensions[adjusted]
}

// Memory returns the number of bytes used by the tensor values.
func (t *Tensor) Memory() uint64 {
	return uint64(len(t.flat)) * 4
}

// ConstFlatData calls accessFn with the flat data of the tensor. The data must not be changed.
func (t *Tensor) ConstFlatData(accessFn func(flat []float32)) {
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flat data of the tensor, which can be changed in place.
//
// It bumps the tensor version, so anything cached under the previous Key is no longer reachable.
func (t *Tensor) MutableFlatData(accessFn func(flat []float32)) {
	t.version++
	t.key = nil
	accessFn(t.flat)
}

// At returns the value at the given indices, one per axis.
func (t *Tensor) At(indices ...int) float32 {
	if len(indices) != t.Rank() {
		exceptions.Panicf("Tensor.At(%v) requires %d indices, tensor has dimensions %v", indices, t.Rank(), t.dimensions)
	}
	flatIdx := 0
	for axis, idx := range indices {
		if idx < 0 || idx >= t.dimensions[axis] {
			exceptions.Panicf("Tensor.At(%v): index %d out-of-bounds for axis #%d (dimensions=%v)",
				indices, idx, axis, t.dimensions)
		}
		flatIdx = flatIdx*t.dimensions[axis] + idx
	}
	return t.flat[flatIdx]
}

// SameDimensions returns whether t and other have the same dimensions.
func (t *Tensor) SameDimensions(other *Tensor) bool {
	return slices.Equal(t.dimensions, other.dimensions)
}

// Equal returns whether t and other have the same dimensions and values. Identities are not compared.
func (t *Tensor) Equal(other *Tensor) bool {
	return t.SameDimensions(other) && slices.Equal(t.flat, other.flat)
}

// InDelta returns whether t and other have the same dimensions and all values are within delta of each other.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if !t.SameDimensions(other) {
		return false
	}
	for ii, v := range t.flat {
		if math.Abs(float64(v)-float64(other.flat[ii])) > delta {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. Small tensors are printed with their values.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if t.Size() <= 16 {
		return fmt.Sprintf("Tensor(f32%s: %v)", dimensionsString(t.dimensions), t.flat)
	}
	return fmt.Sprintf("Tensor(f32%s, %s)", dimensionsString(t.dimensions), humanize.Bytes(t.Memory()))
}

func dimensionsString(dimensions []int) string {
	parts := make([]string, len(dimensions))
	for ii, dim := range dimensions {
		parts[ii] = fmt.Sprint(dim)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
