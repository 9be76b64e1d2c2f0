// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"fmt"
	"math"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/ml/datasets"
)

// NTimesDuringLoop registers an OnStep hook on the loop that calls fn at most n times per run, spread
// evenly across the steps of the run.
//
// It always calls fn at the last step of the run.
func NTimesDuringLoop(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("NTimesDuringLoop(n=%d): n must be > 0", n)
	}
	var calls int
	name = fmt.Sprintf("NTimesDuringLoop(%d): %s", n, name)
	loop.OnStart(name, priority, func(_ *Loop, _ datasets.Sampler) error {
		calls = 0
		return nil
	})
	loop.OnStep(name, priority, func(loop *Loop, values []float64) error {
		if loop.LoopStep < loop.EndStep-1 && !isEvenlySpacedCall(loop, n, calls) {
			return nil
		}
		calls++
		return fn(loop, values)
	})
}

// isEvenlySpacedCall returns whether the step just finished is due for one more of n calls spread over the
// run, given the number of calls already made.
func isEvenlySpacedCall(loop *Loop, n, calls int) bool {
	total := loop.EndStep - loop.StartStep
	done := loop.LoopStep - loop.StartStep + 1
	return total <= n || calls*total <= done*n
}

// EveryNSteps registers an OnStep hook on the loop that calls fn once every n steps.
// Steps are counted across runs, from the moment it is registered.
//
// Notice that it does not call fn at the last step (except by coincidence).
func EveryNSteps(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNSteps(n=%d): n must be > 0", n)
	}
	var count int
	loop.OnStep(fmt.Sprintf("EveryNSteps(%d): %s", n, name), priority, func(loop *Loop, values []float64) error {
		count++
		if count%n != 0 {
			return nil
		}
		return fn(loop, values)
	})
}

// PeriodicCallback registers an OnStep hook on the loop that calls fn every period of time.
//
// The clock starts at the first step, and restarts after each call of fn returns: so the time spent in fn
// is not counted, and fn is not called exactly at every period.
//
// If callOnEnd is set, fn is also called at the end of the loop.
func PeriodicCallback(loop *Loop, period time.Duration, callOnEnd bool, name string, priority Priority, fn OnStepFn) {
	var last time.Time
	name = fmt.Sprintf("PeriodicCallback(%s): %s", period, name)
	loop.OnStep(name, priority, func(loop *Loop, values []float64) error {
		if last.IsZero() {
			last = time.Now()
			return nil
		}
		if time.Since(last) < period {
			return nil
		}
		err := fn(loop, values)
		last = time.Now()
		return err
	})
	if callOnEnd {
		loop.OnEnd(name, priority, OnEndFn(fn))
	}
}

// ExponentialCallback registers an OnStep hook on the loop that calls fn at exponentially spaced steps:
// the first call is startStep steps after the loop's StartStep, and each interval between calls is
// growthFactor times the previous one.
//
// If callOnEnd is set, fn is also called at the end of the loop.
//
// Example: This will call at steps 100, 100+100*1.2 = 220, 220+100*1.2^2 = 364, ...
//
//	ExponentialCallback(loop, 100, 1.2, false, "my_callback", 0, myCallback)
func ExponentialCallback(loop *Loop, startStep int, growthFactor float64, callOnEnd bool,
	name string, priority Priority, fn OnStepFn) {
	if startStep <= 0 || growthFactor <= 1 {
		exceptions.Panicf("ExponentialCallback(startStep=%d, growthFactor=%g): startStep must be > 0 and "+
			"growthFactor must be > 1", startStep, growthFactor)
	}
	var nextCall, interval int
	advance := func() {
		nextCall += interval
		interval = int(math.Round(float64(interval) * growthFactor))
	}
	name = fmt.Sprintf("ExponentialCallback(%d, %g): %s", startStep, growthFactor, name)
	loop.OnStep(name, priority, func(loop *Loop, values []float64) error {
		if interval == 0 {
			interval = startStep
			for nextCall <= loop.StartStep {
				advance()
			}
		}
		if loop.LoopStep < nextCall {
			return nil
		}
		advance()
		return fn(loop, values)
	})
	if callOnEnd {
		loop.OnEnd(name, priority, OnEndFn(fn))
	}
}
