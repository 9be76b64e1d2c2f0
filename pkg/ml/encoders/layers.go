// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package encoders

import (
	"iter"
	"slices"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Stage is one step of computation of an encoder, mapping a tensor to a tensor.
//
// Stages may panic (e.g. with exceptions.Panicf) on invalid inputs: the encoder converts those panics to errors.
type Stage interface {
	Forward(x *tensors.Tensor) (*tensors.Tensor, error)
}

// StageFn adapts a function to a Stage.
type StageFn func(x *tensors.Tensor) (*tensors.Tensor, error)

// Forward implements Stage.
func (fn StageFn) Forward(x *tensors.Tensor) (*tensors.Tensor, error) {
	return fn(x)
}

// NamedStage pairs a Stage with its layer name.
type NamedStage struct {
	Name  string
	Stage Stage
}

// Layers is an ordered collection of uniquely named stages.
//
// The order is the order in which the stages are executed, and it defines which layer is "deeper".
// The collection never grows or is reordered after creation, it can only lose stages at its tail
// (see DeleteFrom).
type Layers struct {
	stages []NamedStage
	index  map[string]int
}

// NewLayers creates the collection with the stages in the given order.
//
// It returns an error if a name is empty or repeated, or if a stage is nil.
func NewLayers(stages ...NamedStage) (*Layers, error) {
	l := &Layers{
		stages: make([]NamedStage, 0, len(stages)),
		index:  make(map[string]int, len(stages)),
	}
	for ii, stage := range stages {
		if stage.Name == "" {
			return nil, errors.Errorf("stage #%d has an empty name", ii)
		}
		if stage.Stage == nil {
			return nil, errors.Errorf("stage #%d (%q) is nil", ii, stage.Name)
		}
		if _, found := l.index[stage.Name]; found {
			return nil, errors.Wrapf(ErrDuplicateLayer, "stage #%d: %q", ii, stage.Name)
		}
		l.index[stage.Name] = len(l.stages)
		l.stages = append(l.stages, stage)
	}
	return l, nil
}

// Len returns the number of stages.
func (l *Layers) Len() int {
	return len(l.stages)
}

// Names returns the layer names in order.
func (l *Layers) Names() []string {
	names := make([]string, len(l.stages))
	for ii, stage := range l.stages {
		names[ii] = stage.Name
	}
	return names
}

// All iterates over the layer names and stages in order.
func (l *Layers) All() iter.Seq2[string, Stage] {
	return func(yield func(string, Stage) bool) {
		for _, stage := range l.stages {
			if !yield(stage.Name, stage.Stage) {
				return
			}
		}
	}
}

// Contains returns whether name is a layer of the collection.
func (l *Layers) Contains(name string) bool {
	_, found := l.index[name]
	return found
}

// Verify returns an UnknownLayerError if name is not a layer of the collection.
func (l *Layers) Verify(name string) error {
	if !l.Contains(name) {
		return errors.WithStack(&UnknownLayerError{Layer: name})
	}
	return nil
}

// Stage returns the stage of the given layer.
func (l *Layers) Stage(name string) (Stage, error) {
	idx, found := l.index[name]
	if !found {
		return nil, errors.WithStack(&UnknownLayerError{Layer: name})
	}
	return l.stages[idx].Stage, nil
}

// Deepest returns the name, among the given ones, that comes last in the collection order.
// Repeated names are fine.
//
// It returns an UnknownLayerError if any of the names is not a layer, and ErrNoLayers if no names are given.
func (l *Layers) Deepest(names ...string) (string, error) {
	if len(names) == 0 {
		return "", errors.WithStack(ErrNoLayers)
	}
	deepestIdx := -1
	for _, name := range names {
		idx, found := l.index[name]
		if !found {
			return "", errors.WithStack(&UnknownLayerError{Layer: name})
		}
		deepestIdx = max(deepestIdx, idx)
	}
	return l.stages[deepestIdx].Name, nil
}

// SliceTo returns the stages before the given layer, and the layer itself if includeLast is true.
//
// The returned slice is a copy.
func (l *Layers) SliceTo(name string, includeLast bool) ([]NamedStage, error) {
	idx, found := l.index[name]
	if !found {
		return nil, errors.WithStack(&UnknownLayerError{Layer: name})
	}
	if includeLast {
		idx++
	}
	return slices.Clone(l.stages[:idx]), nil
}

// SliceFrom returns the stages after the given layer, and the layer itself if includeFirst is true.
//
// The returned slice is a copy.
func (l *Layers) SliceFrom(name string, includeFirst bool) ([]NamedStage, error) {
	idx, found := l.index[name]
	if !found {
		return nil, errors.WithStack(&UnknownLayerError{Layer: name})
	}
	if !includeFirst {
		idx++
	}
	return slices.Clone(l.stages[idx:]), nil
}

// DeleteFrom permanently removes the stages returned by SliceFrom with the same arguments, and returns
// the removed names.
func (l *Layers) DeleteFrom(name string, includeFirst bool) ([]string, error) {
	removed, err := l.SliceFrom(name, includeFirst)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(removed))
	for ii, stage := range removed {
		names[ii] = stage.Name
		delete(l.index, stage.Name)
	}
	newLen := len(l.stages) - len(removed)
	clear(l.stages[newLen:])
	l.stages = l.stages[:newLen]
	return names, nil
}
