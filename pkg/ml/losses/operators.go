// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package losses

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders"
	"github.com/pkg/errors"
)

// ErrNoTarget is returned when computing the loss of an operator whose target was not set.
var ErrNoTarget = errors.New("operator target not set")

// Operator computes a loss for an input image, compared to a target.
type Operator interface {
	// Name used when reporting the loss.
	Name() string

	// Encoder used by the operator.
	Encoder() *encoders.SingleLayerEncoder

	// SetTarget encodes and stores the target representation of image.
	SetTarget(image *tensors.Tensor) error

	// Loss returns the loss of input against the target.
	Loss(input *tensors.Tensor) (float64, error)
}

// ContentOperator compares the features of the input with the features of a target image, with the mean
// squared error.
type ContentOperator struct {
	encoder *encoders.SingleLayerEncoder
	target  *tensors.Tensor
}

var _ Operator = (*ContentOperator)(nil)

// NewContentOperator creates a ContentOperator using the given encoder.
func NewContentOperator(encoder *encoders.SingleLayerEncoder) *ContentOperator {
	return &ContentOperator{encoder: encoder}
}

// Name implements Operator.
func (op *ContentOperator) Name() string { return "content/" + op.encoder.Layer() }

// Encoder implements Operator.
func (op *ContentOperator) Encoder() *encoders.SingleLayerEncoder { return op.encoder }

// SetTarget implements Operator.
func (op *ContentOperator) SetTarget(image *tensors.Tensor) error {
	features, err := op.encoder.Forward(image)
	if err != nil {
		return errors.WithMessagef(err, "%s.SetTarget()", op.Name())
	}
	op.target = features
	return nil
}

// Loss implements Operator.
func (op *ContentOperator) Loss(input *tensors.Tensor) (loss float64, err error) {
	if op.target == nil {
		return 0, errors.WithMessage(ErrNoTarget, op.Name())
	}
	features, err := op.encoder.Forward(input)
	if err != nil {
		return 0, errors.WithMessagef(err, "%s.Loss()", op.Name())
	}
	err = exceptions.TryCatch[error](func() { loss = MeanSquaredError(op.target, features) })
	if err != nil {
		return 0, errors.WithMessagef(err, "%s.Loss()", op.Name())
	}
	return loss, nil
}

// String implements fmt.Stringer.
func (op *ContentOperator) String() string {
	return fmt.Sprintf("ContentOperator(%s)", op.encoder)
}

// StyleOperator compares the Gram matrix of the features of the input with the one of a target image, with the
// mean squared error.
//
// Guides can restrict the regions of the input and of the target that are compared.
type StyleOperator struct {
	encoder                 *encoders.SingleLayerEncoder
	normalize               bool
	target                  *tensors.Tensor
	inputGuide, targetGuide *tensors.Tensor
}

var _ Operator = (*StyleOperator)(nil)

// NewStyleOperator creates a StyleOperator using the given encoder, with normalized Gram matrices.
func NewStyleOperator(encoder *encoders.SingleLayerEncoder) *StyleOperator {
	return &StyleOperator{encoder: encoder, normalize: true}
}

// Normalize sets whether the Gram matrices are normalized by the number of spatial positions. Default is true.
func (op *StyleOperator) Normalize(normalize bool) *StyleOperator {
	op.normalize = normalize
	return op
}

// Name implements Operator.
func (op *StyleOperator) Name() string { return "style/" + op.encoder.Layer() }

// Encoder implements Operator.
func (op *StyleOperator) Encoder() *encoders.SingleLayerEncoder { return op.encoder }

// SetInputGuide sets the guide, shaped like the input image spatial dimensions, applied to the input features.
// It is propagated to the layer of the encoder. A nil guide removes it.
func (op *StyleOperator) SetInputGuide(guide *tensors.Tensor) error {
	propagated, err := op.propagate(guide)
	if err != nil {
		return errors.WithMessagef(err, "%s.SetInputGuide()", op.Name())
	}
	op.inputGuide = propagated
	return nil
}

// SetTargetGuide sets the guide applied to the target features. It must be called before SetTarget.
// A nil guide removes it.
func (op *StyleOperator) SetTargetGuide(guide *tensors.Tensor) error {
	propagated, err := op.propagate(guide)
	if err != nil {
		return errors.WithMessagef(err, "%s.SetTargetGuide()", op.Name())
	}
	op.targetGuide = propagated
	return nil
}

func (op *StyleOperator) propagate(guide *tensors.Tensor) (*tensors.Tensor, error) {
	if guide == nil {
		return nil, nil
	}
	return op.encoder.PropagateGuide(guide)
}

// SetTarget implements Operator.
func (op *StyleOperator) SetTarget(image *tensors.Tensor) error {
	gram, err := op.gram(image, op.targetGuide)
	if err != nil {
		return errors.WithMessagef(err, "%s.SetTarget()", op.Name())
	}
	op.target = gram
	return nil
}

// Loss implements Operator.
func (op *StyleOperator) Loss(input *tensors.Tensor) (loss float64, err error) {
	if op.target == nil {
		return 0, errors.WithMessage(ErrNoTarget, op.Name())
	}
	gram, err := op.gram(input, op.inputGuide)
	if err != nil {
		return 0, errors.WithMessagef(err, "%s.Loss()", op.Name())
	}
	err = exceptions.TryCatch[error](func() { loss = MeanSquaredError(op.target, gram) })
	if err != nil {
		return 0, errors.WithMessagef(err, "%s.Loss()", op.Name())
	}
	return loss, nil
}

func (op *StyleOperator) gram(image, guide *tensors.Tensor) (gram *tensors.Tensor, err error) {
	features, err := op.encoder.Forward(image)
	if err != nil {
		return nil, err
	}
	err = exceptions.TryCatch[error](func() {
		if guide != nil {
			features = ApplyGuide(features, guide)
		}
		gram = GramMatrix(features, op.normalize)
	})
	return
}

// String implements fmt.Stringer.
func (op *StyleOperator) String() string {
	return fmt.Sprintf("StyleOperator(%s, normalize=%v, guided=%v)", op.encoder, op.normalize, op.inputGuide != nil)
}
