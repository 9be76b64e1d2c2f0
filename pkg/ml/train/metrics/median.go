// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math"
	"slices"

	"github.com/gomlx/stylekit/pkg/ml/random"
)

// StreamingMedianMetric implements a metric that keeps an approximate median of a metric from a streaming
// input.
//
// It keeps a uniform random sample (reservoir sampling) of at most maxNumSamples values.
type StreamingMedianMetric struct {
	baseMetric
	maxNumSamples, samplesSeen int
	samples                    []float64
	rng                        *random.Random
}

// NewMedianMetric creates a streaming median metric.
//
// `prettyPrintFn` can be left as nil, and a default will be used.
func NewMedianMetric(name, shortName, metricType string, prettyPrintFn PrettyPrintFn) *StreamingMedianMetric {
	return &StreamingMedianMetric{
		baseMetric: baseMetric{
			name:       name,
			shortName:  shortName,
			metricType: metricType,
			pPrintFn:   prettyPrintFn,
		},
		maxNumSamples: 10_001,
	}
}

// WithSampleSize configures the default number of random samples to keep to estimate the median.
func (m *StreamingMedianMetric) WithSampleSize(n int) *StreamingMedianMetric {
	m.maxNumSamples = n
	return m
}

// WithSeed sets the seed used to select the samples kept. The default is a fixed seed.
func (m *StreamingMedianMetric) WithSeed(seed int64) *StreamingMedianMetric {
	m.rng = random.NewWithSeed(seed)
	return m
}

// Update implements metrics.Interface.
func (m *StreamingMedianMetric) Update(x float64) {
	if m.samples == nil {
		m.samples = make([]float64, 0, min(m.maxNumSamples, 1024))
		m.samplesSeen = 0
		if m.rng == nil {
			m.rng = random.NewWithSeed(int64(m.maxNumSamples))
		}
	}
	m.samplesSeen++

	// Simple case: we have space to simply store the new sampled x.
	if len(m.samples) < m.maxNumSamples {
		m.samples = append(m.samples, x)
		return
	}

	// We must decide whether to keep x:
	if m.rng.Uniform() >= float64(m.maxNumSamples)/float64(m.samplesSeen) {
		return
	}
	// We replace the new sampled x in a random position.
	m.samples[m.rng.IntN(m.maxNumSamples)] = x
}

// Value implements metrics.Interface.
func (m *StreamingMedianMetric) Value() float64 {
	if len(m.samples) == 0 {
		return math.NaN()
	}
	slices.Sort(m.samples)
	return m.samples[len(m.samples)/2]
}

// Reset will delete all samples.
func (m *StreamingMedianMetric) Reset() {
	m.samples = nil
	m.samplesSeen = 0
}
