// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package guides propagates guides, spatial masks over the input image, through encoder stages.
//
// A guide marks a region of an image (values in [0, 1]) and is used to restrict a loss to that region.
// To apply it to the activations of some layer, it has to be transformed the same way the spatial axes
// of the image are transformed by the stages up to that layer. Stages describe how they do it by
// implementing Propagating (e.g. convolutions and pooling) or PassThrough (element-wise stages).
//
// Guides are shaped like the images they annotate, with the two spatial axes last, e.g. `[1, height, width]`.
package guides

import (
	"fmt"
	"strings"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Method used to propagate a guide through a windowed stage (convolution or pooling).
type Method int

const (
	// Simple sets each output position to the mean of the guide over its window.
	Simple Method = iota

	// Inside sets each output position to the minimum of the guide over its window, with padding counting
	// as zero: only windows fully inside the region are kept.
	Inside

	// All sets each output position to the maximum of the guide over its window: any window touching the
	// region is kept.
	All
)

var methodNames = []string{"simple", "inside", "all"}

// String implements fmt.Stringer.
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod converts a method name ("simple", "inside" or "all") to a Method.
func ParseMethod(name string) (Method, error) {
	for ii, methodName := range methodNames {
		if strings.EqualFold(name, methodName) {
			return Method(ii), nil
		}
	}
	return Simple, errors.Errorf("unknown guide propagation method %q, valid values are %q", name, methodNames)
}

// Propagating is implemented by stages that transform the spatial axes of their input, and know how
// to transform a guide accordingly.
type Propagating interface {
	PropagateGuide(guide *tensors.Tensor, method Method) (*tensors.Tensor, error)
}

// PassThrough is implemented by stages that don't change the spatial layout of their input (element-wise
// operations), for which the guide is propagated unchanged.
type PassThrough interface {
	GuidePassThrough()
}

// ErrPropagation is the base error of every PropagationError, to be used with errors.Is.
var ErrPropagation = errors.New("guide propagation failed")

// PropagationError is returned when a guide cannot be propagated through a stage.
type PropagationError struct {
	// Stage is the type of the stage the guide could not be propagated through.
	Stage string

	// Reason describes the failure.
	Reason string
}

// Error implements error.
func (e *PropagationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrPropagation, e.Stage, e.Reason)
}

// Unwrap allows errors.Is(err, ErrPropagation).
func (e *PropagationError) Unwrap() error {
	return ErrPropagation
}

// Propagate the guide through stage.
//
// If allowEmpty is false and the propagated guide is all zeros, for instance because the region was too small
// to survive pooling, it returns a PropagationError.
func Propagate(stage any, guide *tensors.Tensor, method Method, allowEmpty bool) (*tensors.Tensor, error) {
	var propagated *tensors.Tensor
	switch s := stage.(type) {
	case Propagating:
		var err error
		propagated, err = s.PropagateGuide(guide, method)
		if err != nil {
			return nil, err
		}
	case PassThrough:
		propagated = guide
	default:
		return nil, errors.WithStack(&PropagationError{
			Stage:  fmt.Sprintf("%T", stage),
			Reason: "stage has no guide propagation semantics",
		})
	}
	if !allowEmpty && IsEmpty(propagated) {
		return nil, errors.WithStack(&PropagationError{
			Stage:  fmt.Sprintf("%T", stage),
			Reason: fmt.Sprintf("guide is empty after propagation with method %q", method),
		})
	}
	return propagated, nil
}

// IsEmpty returns whether all the values of the guide are zero.
func IsEmpty(guide *tensors.Tensor) bool {
	empty := true
	guide.ConstFlatData(func(flat []float32) {
		for _, v := range flat {
			if v != 0 {
				empty = false
				return
			}
		}
	})
	return empty
}
