// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package encoders

import (
	"fmt"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders/guides"
)

// SingleLayerEncoder exposes one layer of a MultiLayerEncoder. It holds no state of its own: activations are
// cached by the MultiLayerEncoder.
//
// Create it with MultiLayerEncoder.ExtractSingleLayerEncoder.
type SingleLayerEncoder struct {
	encoder *MultiLayerEncoder
	layer   string
}

// Layer returns the name of the layer it encodes to.
func (s *SingleLayerEncoder) Layer() string {
	return s.layer
}

// MultiLayerEncoder returns the encoder it was extracted from.
func (s *SingleLayerEncoder) MultiLayerEncoder() *MultiLayerEncoder {
	return s.encoder
}

// Forward returns the activation of the layer for input.
func (s *SingleLayerEncoder) Forward(input *tensors.Tensor) (*tensors.Tensor, error) {
	outputs, err := s.encoder.Forward(input, []string{s.layer}, false)
	if err != nil {
		return nil, err
	}
	return outputs[0], nil
}

// PropagateGuide returns the guide propagated to the layer, using the guides.Simple method and
// not allowing empty guides.
func (s *SingleLayerEncoder) PropagateGuide(guide *tensors.Tensor) (*tensors.Tensor, error) {
	outputs, err := s.encoder.PropagateGuide(guide, []string{s.layer}, guides.Simple, false)
	if err != nil {
		return nil, err
	}
	return outputs[0], nil
}

// String implements fmt.Stringer.
func (s *SingleLayerEncoder) String() string {
	return fmt.Sprintf("SingleLayerEncoder(layer=%q, layers=%v)", s.layer, s.encoder.LayerNames())
}
