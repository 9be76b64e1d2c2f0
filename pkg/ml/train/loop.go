// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train runs loops of steps over the batches of a datasets.Sampler, with hooks to attach progress
// reporting, periodic evaluations, early stopping, etc.
package train

import (
	"iter"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/ml/datasets"
	"github.com/gomlx/stylekit/pkg/ml/train/metrics"
	"github.com/pkg/errors"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// StepFn executes one step of the loop for the given batch of indices, and returns its loss.
type StepFn func(loop *Loop, batch []int) (loss float64, err error)

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop, sampler datasets.Sampler) error

// OnStepFn is the type of OnStep hooks. metrics holds the current value of each of Loop.Metrics.
type OnStepFn func(loop *Loop, metrics []float64) error

// OnEndFn is the type of OnEnd hooks.
type OnEndFn func(loop *Loop, metrics []float64) error

// Loop will run a loop, invoking its StepFn every step with the next batch of a sampler,
// and calling the appropriate hooks.
//
// It also converts errors thrown with `panic` by the StepFn and returns them instead as normal errors.
//
// By itself it doesn't do much, but one can attach functionality to it, like progress bars,
// checkpointing, early-stopping strategies, etc.
//
// The public attributes are meant for reading only, don't change them -- behavior
// can be undefined.
type Loop struct {
	// LoopStep currently being executed. It starts at 0 and is not reset between runs.
	LoopStep int

	// StartStep is the value of LoopStep at the start of a run (RunSteps or Run).
	//
	// It is only set and valid during a run.
	StartStep int

	// EndStep is one-past the last step to be executed.
	//
	// It is only set and valid during a run.
	EndStep int

	// Metrics updated with the loss of each step. The first one is always the batch loss.
	Metrics []metrics.Interface

	// SharedData allows for cross-tools to publish and consume information. Keys (strings)
	// and semantics/type of their values are not specified by loop.
	SharedData map[string]any

	// StepDurations collected during the last run.
	StepDurations []time.Duration

	stepFn StepFn

	// Registered hooks.
	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// NewLoop creates a new loop that calls stepFn at every step. The batch loss metric is always included,
// extraMetrics are updated after it with the loss of every step.
func NewLoop(stepFn StepFn, extraMetrics ...metrics.Interface) *Loop {
	return &Loop{
		Metrics:    append([]metrics.Interface{metrics.NewBatchLoss()}, extraMetrics...),
		SharedData: make(map[string]any),
		stepFn:     stepFn,
		onStart:    newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:     newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:      newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// start of loop, called by all looping methods.
//
// It calls the appropriate hooks.
func (loop *Loop) start(sampler datasets.Sampler) error {
	for _, m := range loop.Metrics {
		m.Reset()
	}
	for hook := range loop.onStart.All() {
		err := hook.fn(loop, sampler)
		if err != nil {
			return errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	}
	return nil
}

// step of loop, called by all looping methods.
// It calls the appropriate hooks.
func (loop *Loop) step(batch []int) (values []float64, err error) {
	startTime := time.Now()
	var (
		loss    float64
		stepErr error
	)
	err = exceptions.TryCatch[error](func() {
		loss, stepErr = loop.stepFn(loop, batch)
	})
	loop.StepDurations = append(loop.StepDurations, time.Since(startTime))
	if err == nil {
		err = stepErr
	}
	if err != nil {
		return nil, err
	}
	return loop.postStep(loss)
}

// postStep updates the metrics and calls the onStep hooks.
// It also checks for NaN loss, and returns an error accordingly.
func (loop *Loop) postStep(loss float64) ([]float64, error) {
	values := make([]float64, len(loop.Metrics))
	for ii, m := range loop.Metrics {
		m.Update(loss)
		values[ii] = m.Value()
	}

	// Call "OnStep" hooks.
	for hook := range loop.onStep.All() {
		err := hook.fn(loop, values)
		if err != nil {
			return nil, errors.WithMessagef(err, "train.Loop.OnStep(hook %q)", hook.name)
		}
	}

	if math.IsNaN(loss) {
		return nil, errors.Errorf("batch loss is NaN, training interrupted")
	}
	if math.IsInf(loss, 0) {
		return nil, errors.Errorf("batch loss is infinity (%f), training interrupted", loss)
	}
	return values, nil
}

// end of loop, called by all looping methods.
// It calls the appropriate hooks.
func (loop *Loop) end(values []float64) error {
	for hook := range loop.onEnd.All() {
		if err := hook.fn(loop, values); err != nil {
			return errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	}
	return nil
}

// RunSteps runs those many steps, taking one batch from the sampler per step. StartStep and EndStep are
// adjusted to the current LoopStep, so it can be called multiple times, and it will simply pick up where it
// left of last time.
//
// It works with unbounded samplers. It returns an error if the sampler ends before all steps are executed.
//
// It returns the metrics values after the last step.
func (loop *Loop) RunSteps(sampler datasets.Sampler, steps int) (values []float64, err error) {
	if steps <= 0 {
		return nil, nil
	}
	loop.StartStep = loop.LoopStep
	loop.EndStep = loop.LoopStep + steps
	if err = loop.start(sampler); err != nil {
		return nil, err
	}
	loop.StepDurations = make([]time.Duration, 0, steps)

	next, stop := iter.Pull(sampler.All())
	defer stop()
	for loop.LoopStep = loop.StartStep; loop.LoopStep < loop.EndStep; loop.LoopStep++ {
		batch, ok := next()
		if !ok {
			return nil, errors.Errorf(
				"reached sampler %q end after %d steps (requested %d steps) -- did you mean to use "+
					"an unbounded sampler, or use Loop.Run() instead of Loop.RunSteps() ?",
				sampler.Name(), loop.LoopStep-loop.StartStep, steps)
		}
		values, err = loop.step(batch)
		if err != nil {
			return nil, errors.WithMessagef(err, "Loop.RunSteps(%d): failed step (LoopStep=%d)", steps, loop.LoopStep)
		}
	}
	if err = loop.end(values); err != nil {
		return nil, errors.WithMessagef(err, "Loop.RunSteps(%d): failed end (LoopStep=%d)", steps, loop.LoopStep)
	}
	return values, nil
}

// Run runs one step for each batch of the sampler, which must be finite (sampler.Len() != datasets.Unbounded).
//
// StartStep is adjusted to the current LoopStep, and EndStep to StartStep+sampler.Len().
func (loop *Loop) Run(sampler datasets.Sampler) (values []float64, err error) {
	numBatches := sampler.Len()
	if numBatches == datasets.Unbounded {
		return nil, errors.Errorf("Loop.Run(%q): sampler is unbounded, use Loop.RunSteps() instead", sampler.Name())
	}
	loop.StartStep = loop.LoopStep
	loop.EndStep = loop.LoopStep + numBatches
	if err = loop.start(sampler); err != nil {
		return nil, err
	}
	loop.StepDurations = make([]time.Duration, 0, numBatches)
	for batch := range sampler.All() {
		values, err = loop.step(batch)
		if err != nil {
			return nil, errors.WithMessagef(err, "Loop.Run(%q): failed step (LoopStep=%d)", sampler.Name(), loop.LoopStep)
		}
		loop.LoopStep++
	}
	if err = loop.end(values); err != nil {
		return nil, errors.WithMessagef(err, "Loop.Run(%q): failed end (LoopStep=%d)", sampler.Name(), loop.LoopStep)
	}
	return values, nil
}

// MedianStepDuration returns the median duration of each step. It returns 1 millisecond
// if no step was recorded (to avoid potential division by 0).
func (loop *Loop) MedianStepDuration() time.Duration {
	if len(loop.StepDurations) == 0 {
		// Return something different from 0 to avoid division by 0.
		return time.Millisecond
	}
	times := slices.Clone(loop.StepDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting) to the start of a loop.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{
		name: name,
		fn:   fn,
	})
}

// OnStep adds a hook with given priority and name (for error reporting) to each step of a loop.
// The function `fn` is called after each StepFn.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{
		name: name,
		fn:   fn,
	})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a loop,
// after the last call to StepFn.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{
		name: name,
		fn:   fn,
	})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{
		hooks: make(map[Priority][]H),
	}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}
