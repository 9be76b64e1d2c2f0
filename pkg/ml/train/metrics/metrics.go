// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics holds metrics updated with the loss of each training step: the loss of the last batch, its mean,
// an exponential moving average and a streaming median.
//
// They are attached to a train.Loop and displayed by the progress bar in ui/commandline.
package metrics

import (
	"fmt"
	"math"
)

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "Moving-Average-Loss" and "Batch-Loss" would both have the same "loss" metric type.
	MetricType() string

	// Update the metric with the value of a new step.
	Update(value float64)

	// Value returns the current value of the metric. It is NaN if the metric has seen no values.
	Value() float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters when starting a new loop.
	Reset()
}

// LossMetricType is the type of loss metrics.
const LossMetricType = "loss"

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// baseMetric implements a metric.Interface that holds the last value.
type baseMetric struct {
	name, shortName, metricType string
	pPrintFn                    PrettyPrintFn // if nil will display default.
	last                        float64
	seen                        bool
}

func (m *baseMetric) Name() string {
	return m.name
}

func (m *baseMetric) ShortName() string {
	return m.shortName
}

func (m *baseMetric) MetricType() string {
	return m.metricType
}

func (m *baseMetric) Update(value float64) {
	m.last = value
	m.seen = true
}

func (m *baseMetric) Value() float64 {
	if !m.seen {
		return math.NaN()
	}
	return m.last
}

func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn == nil {
		return fmt.Sprintf("%.3g", value)
	}
	return m.pPrintFn(value)
}

func (m *baseMetric) Reset() {
	m.last, m.seen = 0, false
}

// NewBaseMetric creates a metric that returns the value of the last step.
// pPrintFn can be left as nil, and a default will be used.
func NewBaseMetric(name, shortName, metricType string, pPrintFn PrettyPrintFn) Interface {
	return &baseMetric{name: name, shortName: shortName, metricType: metricType, pPrintFn: pPrintFn}
}

// NewBatchLoss returns the metric with the loss of the last step, always the first metric of a train.Loop.
func NewBatchLoss() Interface {
	return NewBaseMetric("Batch Loss", "batch", LossMetricType, nil)
}

// MeanMetric implements a metric that keeps the mean of a metric.
type MeanMetric struct {
	baseMetric
	sum   float64
	count int
}

// NewMeanMetric creates a metric that keeps the mean of all values since the last Reset.
// pPrintFn can be left as nil, and a default will be used.
func NewMeanMetric(name, shortName, metricType string, pPrintFn PrettyPrintFn) *MeanMetric {
	return &MeanMetric{
		baseMetric: baseMetric{name: name, shortName: shortName, metricType: metricType, pPrintFn: pPrintFn},
	}
}

// Update implements metrics.Interface.
func (m *MeanMetric) Update(value float64) {
	m.sum += value
	m.count++
}

// Value implements metrics.Interface.
func (m *MeanMetric) Value() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.count)
}

// Count returns the number of values seen since the last Reset.
func (m *MeanMetric) Count() int {
	return m.count
}

// Reset implements metrics.Interface.
func (m *MeanMetric) Reset() {
	m.sum, m.count = 0, 0
}

// movingAverageMetric implements a metric that keeps the mean of a metric.
//
// It behaves just like a MeanMetric, but each new value has weight of newExampleWeight, and
// the stored weight is capped at (1-newExampleWeight).
type movingAverageMetric struct {
	MeanMetric
	newExampleWeight float64
	mean             float64
}

// NewExponentialMovingAverageMetric creates a metric that takes new values with the given weight
// (newExampleWeight), and decays the rest to 1-newExampleWeight.
//
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
// pPrintFn can be left as nil, and a default will be used.
//
// This doesn't have a set prior, it will start being a normal average until there are enough terms, and it becomes
// an exponential moving average.
func NewExponentialMovingAverageMetric(name, shortName, metricType string, pPrintFn PrettyPrintFn,
	newExampleWeight float64) Interface {
	return &movingAverageMetric{
		MeanMetric:       *NewMeanMetric(name, shortName, metricType, pPrintFn),
		newExampleWeight: newExampleWeight,
	}
}

// Update implements metrics.Interface.
func (m *movingAverageMetric) Update(value float64) {
	m.count++
	weight := max(m.newExampleWeight, 1/float64(m.count))
	m.mean = m.mean*(1-weight) + value*weight
}

// Value implements metrics.Interface.
func (m *movingAverageMetric) Value() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.mean
}

// Reset implements metrics.Interface.
func (m *movingAverageMetric) Reset() {
	m.MeanMetric.Reset()
	m.mean = 0
}
