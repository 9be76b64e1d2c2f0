// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/stylekit/pkg/ml/models/tinyvgg"
	"github.com/gomlx/stylekit/ui/commandline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestParseLists(t *testing.T) {
	values, err := parseInts("4, 8,16")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8, 16}, values)
	_, err = parseInts("4,x")
	require.Error(t, err)

	assert.Equal(t, []string{"a.png", "b.png"}, splitList(" a.png,,b.png ,"))
	assert.Nil(t, splitList(""))
}

func TestLoadOrSaveWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinyvgg.weights")
	model := tinyvgg.New().Channels(2, 4).Depth(1).Seed(1).Done()
	require.NoError(t, loadOrSaveWeights(model, path)) // Saves.

	other := tinyvgg.New().Channels(2, 4).Depth(1).Seed(2).Done()
	require.NoError(t, loadOrSaveWeights(other, path)) // Loads.
	assert.Equal(t, model.NumParams(), other.NumParams())
	require.NoError(t, loadOrSaveWeights(other, ""))
}

func writeTestImage(t *testing.T, dir, name string, c color.Color) string {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	content := writeTestImage(t, dir, "content.png", color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	red := writeTestImage(t, dir, "red.png", color.NRGBA{R: 255, A: 255})
	blue := writeTestImage(t, dir, "blue.png", color.NRGBA{B: 255, A: 255})
	*flagContent = content
	*flagStyles = red + "," + blue
	*flagSize = 8
	*flagBatch = 1
	*flagBatches = 3
	*flagQuiet = true

	model := tinyvgg.New().Channels(2, 4).Depth(1).Done()
	settings := commandline.NewSettings().Set("style_weight", 10.0)
	require.NoError(t, run(model, settings))

	// Verbose run, with the periodic cache statistics and style losses logged.
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	require.NoError(t, klogFlags.Set("v", "1"))
	defer func() { _ = klogFlags.Set("v", "0") }()
	*flagReportEvery = 2
	require.NoError(t, run(model, settings))

	*flagStyleLayers = "no_such_layer"
	require.Error(t, run(model, settings))
	*flagStyleLayers = ""

	// Without -batches, the number of steps is derived from -batch, which must be positive.
	*flagBatch = 0
	*flagBatches = 0
	require.ErrorContains(t, run(model, settings), "-batch=0")
	*flagBatch = 1
}
