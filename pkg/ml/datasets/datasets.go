// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets implements samplers of batches of indices into a dataset, to drive training loops over small
// datasets (e.g. a handful of style images) for a fixed or unbounded number of steps.
//
// Samplers produce batches lazily, as the consumer iterates over them, and every iteration starts from the
// beginning.
package datasets

import (
	"fmt"
	"iter"

	"github.com/pkg/errors"
)

// Unbounded is the Len of samplers that never end.
const Unbounded = -1

// Sampler produces batches of indices.
type Sampler interface {
	// Name of the sampler, for logging and progress reporting.
	Name() string

	// All returns an iterator over the batches. Each call starts a new, independent iteration.
	All() iter.Seq[[]int]

	// Len returns the number of batches produced by All, or Unbounded.
	Len() int
}

// takeSampler implements a Sampler that only yields the first take batches of another sampler.
type takeSampler struct {
	sampler Sampler
	take    int
}

// Take returns a wrapper to sampler that only yields its first n batches. n must be >= 0.
func Take(sampler Sampler, n int) (Sampler, error) {
	if n < 0 {
		return nil, errors.Errorf("datasets.Take(%s, %d): n must be >= 0", sampler.Name(), n)
	}
	return &takeSampler{sampler: sampler, take: n}, nil
}

// Name implements Sampler.
func (s *takeSampler) Name() string {
	return fmt.Sprintf("%s [Take %d]", s.sampler.Name(), s.take)
}

// All implements Sampler.
func (s *takeSampler) All() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		if s.take == 0 {
			return
		}
		count := 0
		for batch := range s.sampler.All() {
			if !yield(batch) {
				return
			}
			count++
			if count >= s.take {
				return
			}
		}
	}
}

// Len implements Sampler.
func (s *takeSampler) Len() int {
	n := s.sampler.Len()
	if n == Unbounded || n > s.take {
		return s.take
	}
	return n
}
