// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"math"
	"testing"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/ml/datasets"
	"github.com/gomlx/stylekit/pkg/ml/train/metrics"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumStep returns the sum of the indices in the batch as the loss, and records the batches.
type sumStep struct {
	batches [][]int
}

func (s *sumStep) step(_ *Loop, batch []int) (float64, error) {
	s.batches = append(s.batches, batch)
	var sum float64
	for _, idx := range batch {
		sum += float64(idx)
	}
	return sum, nil
}

func TestRunSteps(t *testing.T) {
	sampler, err := datasets.NewInfiniteCycleBatchSampler(3, 2)
	require.NoError(t, err)
	s := &sumStep{}
	mean := metrics.NewMeanMetric("Mean Loss", "~loss", metrics.LossMetricType, nil)
	loop := NewLoop(s.step, mean)

	var order []string
	loop.OnStart("start", 0, func(loop *Loop, sampler datasets.Sampler) error {
		order = append(order, "start")
		return nil
	})
	loop.OnStep("second", 1, func(loop *Loop, values []float64) error {
		order = append(order, "second")
		return nil
	})
	loop.OnStep("first", -1, func(loop *Loop, values []float64) error {
		order = append(order, "first")
		return nil
	})
	loop.OnEnd("end", 0, func(loop *Loop, values []float64) error {
		order = append(order, "end")
		return nil
	})

	values, err := loop.RunSteps(sampler, 4)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}, {2, 0}, {1, 2}, {0, 1}}, s.batches)
	require.Len(t, values, 2)
	// Last batch loss and mean loss.
	assert.Equal(t, 1.0, values[0])
	assert.Equal(t, (1.0+2+3+1)/4, values[1])
	assert.Equal(t, []string{"start", "first", "second", "first", "second", "first", "second", "first", "second",
		"end"}, order)
	assert.Equal(t, 4, loop.LoopStep)
	assert.Len(t, loop.StepDurations, 4)
	assert.Equal(t, time.Millisecond, NewLoop(s.step).MedianStepDuration())

	// Picks up where it left off, but the sampler restarts.
	values, err = loop.RunSteps(sampler, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, loop.StartStep)
	assert.Equal(t, 5, loop.LoopStep)
	assert.Equal(t, []int{0, 1}, s.batches[4])
	assert.Equal(t, 1.0, values[1], "metrics are reset at the start of each run")

	values, err = loop.RunSteps(sampler, 0)
	require.NoError(t, err)
	assert.Nil(t, values)
}

func TestRun(t *testing.T) {
	finite, err := datasets.NewFiniteCycleBatchSampler(3, 2, 2)
	require.NoError(t, err)
	s := &sumStep{}
	loop := NewLoop(s.step)
	var endSteps []int
	loop.OnStep("end_step", 0, func(loop *Loop, values []float64) error {
		endSteps = append(endSteps, loop.EndStep)
		return nil
	})
	values, err := loop.Run(finite)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}, {2, 0}}, s.batches)
	assert.Equal(t, []float64{2}, values)
	assert.Equal(t, []int{2, 2}, endSteps)
	assert.Equal(t, 2, loop.LoopStep)

	// RunSteps beyond the end of a finite sampler.
	_, err = loop.RunSteps(finite, 3)
	require.ErrorContains(t, err, "reached sampler")

	infinite, err := datasets.NewInfiniteCycleBatchSampler(3, 2)
	require.NoError(t, err)
	_, err = loop.Run(infinite)
	require.ErrorContains(t, err, "unbounded")
}

func TestLoopErrors(t *testing.T) {
	sampler, err := datasets.NewInfiniteCycleBatchSampler(2, 1)
	require.NoError(t, err)

	loop := NewLoop(func(loop *Loop, batch []int) (float64, error) {
		if loop.LoopStep == 2 {
			return 0, errors.New("step failed")
		}
		return 1, nil
	})
	_, err = loop.RunSteps(sampler, 5)
	require.ErrorContains(t, err, "step failed")
	assert.Equal(t, 2, loop.LoopStep)

	panicking := NewLoop(func(loop *Loop, batch []int) (float64, error) {
		exceptions.Panicf("bad batch %v", batch)
		return 0, nil
	})
	_, err = panicking.RunSteps(sampler, 1)
	require.ErrorContains(t, err, "bad batch [0]")

	nan := NewLoop(func(loop *Loop, batch []int) (float64, error) { return math.NaN(), nil })
	_, err = nan.RunSteps(sampler, 1)
	require.ErrorContains(t, err, "NaN")

	inf := NewLoop(func(loop *Loop, batch []int) (float64, error) { return math.Inf(1), nil })
	_, err = inf.RunSteps(sampler, 1)
	require.ErrorContains(t, err, "infinity")

	hookFails := NewLoop(func(loop *Loop, batch []int) (float64, error) { return 0, nil })
	hookFails.OnStart("failing", 0, func(loop *Loop, sampler datasets.Sampler) error {
		return errors.New("no start")
	})
	_, err = hookFails.RunSteps(sampler, 1)
	require.ErrorContains(t, err, `OnStart(hook "failing")`)
}

func TestCallbacks(t *testing.T) {
	sampler, err := datasets.NewInfiniteCycleBatchSampler(2, 1)
	require.NoError(t, err)
	loop := NewLoop(func(loop *Loop, batch []int) (float64, error) { return 0, nil })

	var every3, nTimes, exponential []int
	EveryNSteps(loop, 3, "every3", 0, func(loop *Loop, values []float64) error {
		every3 = append(every3, loop.LoopStep)
		return nil
	})
	NTimesDuringLoop(loop, 2, "ntimes", 0, func(loop *Loop, values []float64) error {
		nTimes = append(nTimes, loop.LoopStep)
		return nil
	})
	ExponentialCallback(loop, 2, 2, false, "exponential", 0, func(loop *Loop, values []float64) error {
		exponential = append(exponential, loop.LoopStep)
		return nil
	})
	_, err = loop.RunSteps(sampler, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 8}, every3)
	assert.Equal(t, []int{0, 4, 9}, nTimes)
	assert.Equal(t, []int{2, 6}, exponential)

	require.Panics(t, func() { EveryNSteps(loop, 0, "bad", 0, nil) })
	require.Panics(t, func() { ExponentialCallback(loop, 1, 1, false, "bad", 0, nil) })
}
