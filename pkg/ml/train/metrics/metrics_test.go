// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/gomlx/stylekit/pkg/ml/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseAndMean(t *testing.T) {
	batch := NewBatchLoss()
	assert.True(t, math.IsNaN(batch.Value()))
	mean := NewMeanMetric("Mean Loss", "~loss", LossMetricType, func(v float64) string { return fmt.Sprintf("%.1f", v) })
	for _, v := range []float64{1, 2, 6} {
		batch.Update(v)
		mean.Update(v)
	}
	assert.Equal(t, 6.0, batch.Value())
	assert.Equal(t, 3.0, mean.Value())
	assert.Equal(t, 3, mean.Count())
	assert.Equal(t, "3.0", mean.PrettyPrint(mean.Value()))
	assert.Equal(t, "0.123", batch.PrettyPrint(0.12345))
	mean.Reset()
	batch.Reset()
	assert.True(t, math.IsNaN(mean.Value()))
	assert.True(t, math.IsNaN(batch.Value()))
}

func TestExponentialMovingAverage(t *testing.T) {
	ema := NewExponentialMovingAverageMetric("Moving Average Loss", "~loss", LossMetricType, nil, 0.5)
	ema.Update(4)
	assert.Equal(t, 4.0, ema.Value())
	ema.Update(2) // weight 1/2
	assert.Equal(t, 3.0, ema.Value())
	ema.Update(1) // weight max(0.5, 1/3)
	assert.Equal(t, 2.0, ema.Value())
	ema.Reset()
	assert.True(t, math.IsNaN(ema.Value()))
}

func TestStreamingMedian(t *testing.T) {
	// Sample from 0.01 < r < 1.0 randomly (so median r is expected to be 0.99/2+0.01 = 0.505),
	// and then feed StreamingMedian values of 1/r.
	metric := NewMedianMetric("Median Loss", "med", LossMetricType, nil).WithSampleSize(10_000).WithSeed(1)
	rng := random.NewWithSeed(42)
	const numExamples = 100_001
	values := make([]float64, 0, numExamples)
	for range numExamples {
		r := 1 / (rng.Uniform()*0.99 + 0.01)
		values = append(values, r)
		metric.Update(r)
	}
	slices.Sort(values)
	want := values[numExamples/2]
	require.InDelta(t, want, metric.Value(), 0.1)

	small := NewMedianMetric("Median Loss", "med", LossMetricType, nil)
	for _, v := range []float64{5, 1, 3} {
		small.Update(v)
	}
	assert.Equal(t, 3.0, small.Value())
	small.Reset()
	assert.True(t, math.IsNaN(small.Value()))
}
