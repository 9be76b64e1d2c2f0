// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package encoders

import (
	"testing"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identity = StageFn(func(x *tensors.Tensor) (*tensors.Tensor, error) { return x, nil })

func namedIdentities(names ...string) []NamedStage {
	stages := make([]NamedStage, len(names))
	for ii, name := range names {
		stages[ii] = NamedStage{Name: name, Stage: identity}
	}
	return stages
}

func stageNames(stages []NamedStage) []string {
	names := make([]string, len(stages))
	for ii, stage := range stages {
		names[ii] = stage.Name
	}
	return names
}

func TestNewLayers(t *testing.T) {
	layers, err := NewLayers(namedIdentities("a", "b", "c")...)
	require.NoError(t, err)
	assert.Equal(t, 3, layers.Len())
	assert.Equal(t, []string{"a", "b", "c"}, layers.Names())
	assert.True(t, layers.Contains("b"))
	assert.False(t, layers.Contains("z"))
	require.NoError(t, layers.Verify("c"))

	err = layers.Verify("z")
	require.True(t, IsUnknownLayer(err))
	var unknown *UnknownLayerError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "z", unknown.Layer)

	var names []string
	for name := range layers.All() {
		names = append(names, name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	_, err = NewLayers(namedIdentities("a", "b", "a")...)
	require.ErrorIs(t, err, ErrDuplicateLayer)
	_, err = NewLayers(namedIdentities("a", "")...)
	require.Error(t, err)
	_, err = NewLayers(NamedStage{Name: "a"})
	require.Error(t, err)
}

func TestDeepest(t *testing.T) {
	abc, err := NewLayers(namedIdentities("a", "b", "c")...)
	require.NoError(t, err)
	deepest, err := abc.Deepest("a", "c")
	require.NoError(t, err)
	assert.Equal(t, "c", deepest)
	deepest, err = abc.Deepest("b", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", deepest)

	cba, err := NewLayers(namedIdentities("c", "b", "a")...)
	require.NoError(t, err)
	deepest, err = cba.Deepest("a", "c")
	require.NoError(t, err)
	assert.Equal(t, "a", deepest)

	_, err = abc.Deepest("a", "z")
	require.True(t, IsUnknownLayer(err))
	_, err = abc.Deepest()
	require.ErrorIs(t, err, ErrNoLayers)
}

func TestSlicing(t *testing.T) {
	layers, err := NewLayers(namedIdentities("a", "b", "c", "d")...)
	require.NoError(t, err)

	stages, err := layers.SliceTo("c", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stageNames(stages))
	stages, err = layers.SliceTo("c", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, stageNames(stages))
	stages, err = layers.SliceTo("a", false)
	require.NoError(t, err)
	assert.Empty(t, stages)

	stages, err = layers.SliceFrom("b", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, stageNames(stages))
	stages, err = layers.SliceFrom("b", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, stageNames(stages))

	_, err = layers.SliceTo("z", true)
	require.True(t, IsUnknownLayer(err))
	_, err = layers.SliceFrom("z", true)
	require.True(t, IsUnknownLayer(err))

	removed, err := layers.DeleteFrom("c", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, removed)
	assert.Equal(t, []string{"a", "b", "c"}, layers.Names())
	assert.False(t, layers.Contains("d"))

	removed, err = layers.DeleteFrom("b", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, removed)
	assert.Equal(t, []string{"a"}, layers.Names())
	_, err = layers.Stage("b")
	require.True(t, IsUnknownLayer(err))
	stage, err := layers.Stage("a")
	require.NoError(t, err)
	assert.NotNil(t, stage)
}
