// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package losses

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type weightedOperator struct {
	op     Operator
	weight float64
}

// PerceptualLoss is the weighted sum of content and style operators.
type PerceptualLoss struct {
	content, style []weightedOperator
}

// NewPerceptualLoss creates an empty PerceptualLoss. Add operators with AddContent and AddStyle.
func NewPerceptualLoss() *PerceptualLoss {
	return &PerceptualLoss{}
}

// AddContent adds a content operator with the given weight. It returns the loss itself, so calls can be cascaded.
func (p *PerceptualLoss) AddContent(op Operator, weight float64) *PerceptualLoss {
	p.content = append(p.content, weightedOperator{op: op, weight: weight})
	return p
}

// AddStyle adds a style operator with the given weight. It returns the loss itself, so calls can be cascaded.
func (p *PerceptualLoss) AddStyle(op Operator, weight float64) *PerceptualLoss {
	p.style = append(p.style, weightedOperator{op: op, weight: weight})
	return p
}

// SetContentImage sets the target of all content operators.
func (p *PerceptualLoss) SetContentImage(image *tensors.Tensor) error {
	return setTargets(p.content, image)
}

// SetStyleImage sets the target of all style operators.
func (p *PerceptualLoss) SetStyleImage(image *tensors.Tensor) error {
	return setTargets(p.style, image)
}

func setTargets(operators []weightedOperator, image *tensors.Tensor) error {
	if err := encodeAll(operators, image); err != nil {
		return err
	}
	for _, w := range operators {
		if err := w.op.SetTarget(image); err != nil {
			return err
		}
	}
	return nil
}

// encodeAll calls Encode on each distinct MultiLayerEncoder used by the operators, so their layers for image are
// computed in one pass and read from the cache by the operators.
func encodeAll(operators []weightedOperator, image *tensors.Tensor) error {
	var seen []*encoders.MultiLayerEncoder
	for _, w := range operators {
		mle := w.op.Encoder().MultiLayerEncoder()
		if slices.Contains(seen, mle) {
			continue
		}
		seen = append(seen, mle)
		if err := mle.Encode(image); err != nil {
			return err
		}
	}
	return nil
}

// Losses holds the individual weighted losses of each operator, and their total.
type Losses struct {
	Total float64
	Names []string
	// Values are the weighted losses, in the same order as Names.
	Values []float64
}

// String implements fmt.Stringer.
func (l Losses) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "total=%.4g", l.Total)
	for ii, name := range l.Names {
		fmt.Fprintf(&sb, ", %s=%.4g", name, l.Values[ii])
	}
	return sb.String()
}

// Loss returns the weighted losses of input for all operators.
func (p *PerceptualLoss) Loss(input *tensors.Tensor) (Losses, error) {
	var losses Losses
	all := append(append([]weightedOperator(nil), p.content...), p.style...)
	if len(all) == 0 {
		return losses, errors.New("PerceptualLoss.Loss(): no operators configured")
	}
	if err := encodeAll(all, input); err != nil {
		return losses, errors.WithMessage(err, "PerceptualLoss.Loss()")
	}
	for _, w := range all {
		value, err := w.op.Loss(input)
		if err != nil {
			return losses, errors.WithMessage(err, "PerceptualLoss.Loss()")
		}
		value *= w.weight
		losses.Names = append(losses.Names, w.op.Name())
		losses.Values = append(losses.Values, value)
		losses.Total += value
	}
	if klog.V(2).Enabled() {
		klog.Infof("PerceptualLoss(input=%s): %s", input.Key(), losses)
	}
	return losses, nil
}
