// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package encoders implements feature encoders for neural style transfer: a MultiLayerEncoder wraps a
// sequence of named stages (e.g. a pre-trained convolutional network), and exposes the output of any of its
// layers.
//
// Different losses usually need the activations of different layers for the same image. The encoder keeps a
// cache of activations keyed by layer and by the tensors.Key of the input, so running the network for one loss
// can be reused by the others. A SingleLayerEncoder projects one layer of the MultiLayerEncoder, and it is
// what individual losses hold on to.
//
// The encoder can also propagate guides (see package guides) through its stages, to restrict losses to
// regions of the image.
//
// The encoder is not safe for concurrent use.
package encoders

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders/guides"
	"github.com/gomlx/stylekit/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GuidePropagator computes the guide for the output of stage, given the guide of its input.
type GuidePropagator func(stage Stage, guide *tensors.Tensor, method guides.Method, allowEmpty bool) (*tensors.Tensor, error)

// DefaultGuidePropagator uses guides.Propagate.
func DefaultGuidePropagator(stage Stage, guide *tensors.Tensor, method guides.Method, allowEmpty bool) (*tensors.Tensor, error) {
	return guides.Propagate(stage, guide, method, allowEmpty)
}

// MultiLayerEncoder runs inputs through an ordered sequence of named stages (the layers), and returns the
// activations of any requested layers, caching them per input.
type MultiLayerEncoder struct {
	layers     *Layers
	registered sets.Set[string]
	cache      *Cache
	propagator GuidePropagator
}

// New creates a MultiLayerEncoder with the given stages, in order of execution.
//
// It returns an error if a name is empty or repeated.
func New(stages ...NamedStage) (*MultiLayerEncoder, error) {
	layers, err := NewLayers(stages...)
	if err != nil {
		return nil, errors.WithMessage(err, "encoders.New()")
	}
	return &MultiLayerEncoder{
		layers:     layers,
		registered: sets.Make[string](),
		cache:      NewCache(),
		propagator: DefaultGuidePropagator,
	}, nil
}

// WithGuidePropagator sets the function used by PropagateGuide. The default is DefaultGuidePropagator.
//
// It returns the encoder itself, so calls can be cascaded.
func (e *MultiLayerEncoder) WithGuidePropagator(propagator GuidePropagator) *MultiLayerEncoder {
	e.propagator = propagator
	return e
}

// LayerNames returns the names of the current layers, in order.
func (e *MultiLayerEncoder) LayerNames() []string {
	return e.layers.Names()
}

// Contains returns whether name is a layer of the encoder.
func (e *MultiLayerEncoder) Contains(name string) bool {
	return e.layers.Contains(name)
}

// DeepestLayer returns the name among the given layers that is executed last.
func (e *MultiLayerEncoder) DeepestLayer(names ...string) (string, error) {
	return e.layers.Deepest(names...)
}

// Forward returns the activations of the given layers for input, in the order of the layers requested.
// Layers may be repeated.
//
// Activations already cached for input are reused. For the others, the stages are run from the first up to
// the deepest of the missing layers. If store is true, the outputs of all stages run (not only the
// requested ones) are added to the cache.
//
// If any layer is unknown, it returns an UnknownLayerError. If a stage fails, the error is returned and the
// cache is not changed.
func (e *MultiLayerEncoder) Forward(input *tensors.Tensor, layers []string, store bool) ([]*tensors.Tensor, error) {
	for _, layer := range layers {
		if err := e.layers.Verify(layer); err != nil {
			return nil, err
		}
	}
	key := input.Key()
	hits, misses := e.cache.LookupPartial(layers, key)

	var computed map[string]*tensors.Tensor
	if len(misses) > 0 {
		deepest, err := e.layers.Deepest(slices.Collect(misses.All())...)
		if err != nil {
			return nil, err
		}
		stages, err := e.layers.SliceTo(deepest, true)
		if err != nil {
			return nil, err
		}
		computed = make(map[string]*tensors.Tensor, len(stages))
		x := input
		for _, stage := range stages {
			x, err = runStage(stage, x)
			if err != nil {
				return nil, errors.WithMessagef(err, "MultiLayerEncoder.Forward(): layer %q", stage.Name)
			}
			computed[stage.Name] = x
		}
		if store {
			entries := make(map[CacheKey]*tensors.Tensor, len(computed))
			for name, t := range computed {
				entries[CacheKey{Layer: name, Input: key}] = t
			}
			e.cache.Populate(entries)
		}
	}
	if klog.V(2).Enabled() {
		klog.Infof("MultiLayerEncoder.Forward(input=%s): %d cached layers, ran %d stages, store=%v",
			key, len(hits), len(computed), store)
	}

	outputs := make([]*tensors.Tensor, len(layers))
	for ii, layer := range layers {
		if t, found := computed[layer]; found {
			outputs[ii] = t
		} else {
			outputs[ii] = hits[layer]
		}
	}
	return outputs, nil
}

// runStage calls the stage, converting panics to errors.
func runStage(stage NamedStage, x *tensors.Tensor) (y *tensors.Tensor, err error) {
	exception := exceptions.Try(func() {
		y, err = stage.Stage.Forward(x)
	})
	if exception != nil {
		if exceptionErr, ok := exception.(error); ok {
			return nil, exceptionErr
		}
		return nil, errors.Errorf("panic: %v", exception)
	}
	if err != nil {
		return nil, err
	}
	if y == nil {
		return nil, errors.New("stage returned a nil tensor")
	}
	return y, nil
}

// ExtractSingleLayerEncoder returns an encoder for the given layer only, and registers the layer: registered
// layers are the ones computed by Encode, and the default for Trim.
func (e *MultiLayerEncoder) ExtractSingleLayerEncoder(layer string) (*SingleLayerEncoder, error) {
	if err := e.layers.Verify(layer); err != nil {
		return nil, err
	}
	e.registered.Insert(layer)
	return &SingleLayerEncoder{encoder: e, layer: layer}, nil
}

// Get returns ExtractSingleLayerEncoder(layer).
//
// Deprecated: use ExtractSingleLayerEncoder instead.
func (e *MultiLayerEncoder) Get(layer string) (*SingleLayerEncoder, error) {
	klog.Warningf("MultiLayerEncoder.Get() is deprecated and will be removed, use " +
		"MultiLayerEncoder.ExtractSingleLayerEncoder() instead")
	return e.ExtractSingleLayerEncoder(layer)
}

// RegisteredLayers returns the layers registered by ExtractSingleLayerEncoder, in layer order.
// Registered layers that were removed by Trim come last, sorted by name.
func (e *MultiLayerEncoder) RegisteredLayers() []string {
	order := make(map[string]int, e.layers.Len())
	for ii, name := range e.layers.Names() {
		order[name] = ii
	}
	registered := sets.Sorted(e.registered)
	slices.SortStableFunc(registered, func(a, b string) int {
		idxA, foundA := order[a]
		idxB, foundB := order[b]
		switch {
		case foundA && foundB:
			return cmp.Compare(idxA, idxB)
		case foundA:
			return -1
		case foundB:
			return 1
		}
		return 0
	})
	return registered
}

// Encode computes the activations of all registered layers for input, and replaces the whole cache with them:
// afterward, the cache holds exactly one entry per registered layer, all for this input.
//
// It is a no-op if no layer has been registered. Registered layers are never unregistered: if one of them was
// removed by Trim, it returns an UnknownLayerError.
func (e *MultiLayerEncoder) Encode(input *tensors.Tensor) error {
	if len(e.registered) == 0 {
		return nil
	}
	layers := e.RegisteredLayers()
	outputs, err := e.Forward(input, layers, true)
	if err != nil {
		return errors.WithMessage(err, "MultiLayerEncoder.Encode()")
	}
	key := input.Key()
	entries := make(map[CacheKey]*tensors.Tensor, len(layers))
	for ii, layer := range layers {
		entries[CacheKey{Layer: layer, Input: key}] = outputs[ii]
	}
	e.cache.ReplaceAll(entries)
	klog.V(1).Infof("MultiLayerEncoder.Encode(input=%s): cached layers %v", key, layers)
	return nil
}

// EmptyCache removes all cached activations.
func (e *MultiLayerEncoder) EmptyCache() {
	e.cache.Clear()
}

// Cached returns the cached activation of layer for input, if any.
func (e *MultiLayerEncoder) Cached(layer string, input *tensors.Tensor) (*tensors.Tensor, bool) {
	return e.cache.Get(layer, input.Key())
}

// CacheLen returns the number of cached activations.
func (e *MultiLayerEncoder) CacheLen() int {
	return e.cache.Len()
}

// CacheMemory returns the number of bytes used by cached activations.
func (e *MultiLayerEncoder) CacheMemory() uint64 {
	return e.cache.Memory()
}

// Trim permanently removes all stages after the deepest of the given layers, or after the deepest registered
// layer if none are given. Cached activations of removed layers are dropped.
//
// It returns ErrNoLayers if no layers are given and none are registered.
//
// Trimming does not unregister layers: after a registered layer is removed, Trim() and Encode() without
// explicit layers return an UnknownLayerError. Pass the layers to keep explicitly in that case.
func (e *MultiLayerEncoder) Trim(layers ...string) error {
	if len(layers) == 0 {
		layers = e.RegisteredLayers()
	}
	deepest, err := e.layers.Deepest(layers...)
	if err != nil {
		return errors.WithMessage(err, "MultiLayerEncoder.Trim()")
	}
	removed, err := e.layers.DeleteFrom(deepest, false)
	if err != nil {
		return err
	}
	e.cache.DropLayers(removed...)
	klog.V(1).Infof("MultiLayerEncoder.Trim(): removed %d layers after %q: %v", len(removed), deepest, removed)
	return nil
}

// PropagateGuide propagates guide through the stages up to the deepest of the given layers, and returns the
// guides of the requested layers, in the order requested.
//
// Errors returned by the guide propagator are returned unchanged.
func (e *MultiLayerEncoder) PropagateGuide(guide *tensors.Tensor, layers []string, method guides.Method, allowEmpty bool) ([]*tensors.Tensor, error) {
	deepest, err := e.layers.Deepest(layers...)
	if err != nil {
		return nil, err
	}
	stages, err := e.layers.SliceTo(deepest, true)
	if err != nil {
		return nil, err
	}
	propagated := make(map[string]*tensors.Tensor, len(stages))
	for _, stage := range stages {
		guide, err = e.propagator(stage.Stage, guide, method, allowEmpty)
		if err != nil {
			// TODO: add the name of the failing layer once guides.PropagationError carries it.
			return nil, err
		}
		propagated[stage.Name] = guide
	}
	outputs := make([]*tensors.Tensor, len(layers))
	for ii, layer := range layers {
		outputs[ii] = propagated[layer]
	}
	return outputs, nil
}

// String implements fmt.Stringer.
func (e *MultiLayerEncoder) String() string {
	return fmt.Sprintf("MultiLayerEncoder(layers=[%s], registered=%v, %s)",
		strings.Join(e.layers.Names(), ", "), e.RegisteredLayers(), e.cache)
}
