// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package encoders

import (
	"fmt"

	"github.com/pkg/errors"
)

// UnknownLayerError is returned whenever a layer name is not part of the encoder, including layers removed
// by MultiLayerEncoder.Trim.
type UnknownLayerError struct {
	Layer string
}

// Error implements error.
func (e *UnknownLayerError) Error() string {
	return fmt.Sprintf("layer %q is not part of the encoder", e.Layer)
}

// IsUnknownLayer returns whether err is or wraps an UnknownLayerError.
func IsUnknownLayer(err error) bool {
	var unknown *UnknownLayerError
	return errors.As(err, &unknown)
}

var (
	// ErrNoLayers is returned when an operation that needs at least one layer, like finding the deepest
	// layer, is given none.
	ErrNoLayers = errors.New("no layers given")

	// ErrDuplicateLayer is returned when building Layers with a repeated name.
	ErrDuplicateLayer = errors.New("duplicate layer name")
)
