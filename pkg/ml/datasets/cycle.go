// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"fmt"
	"iter"

	"github.com/pkg/errors"
)

// InfiniteCycleBatchSampler yields batches of batchSize consecutive indices from the endless cycle
// `0, 1, ..., size-1, 0, 1, ...`. The position in the cycle is carried over from one batch to the next, so
// with size=3 and batchSize=2 the batches are `[0 1] [2 0] [1 2] [0 1] ...`.
type InfiniteCycleBatchSampler struct {
	size, batchSize int
}

var _ Sampler = (*InfiniteCycleBatchSampler)(nil)

// NewInfiniteCycleBatchSampler creates an InfiniteCycleBatchSampler over a dataset with size elements.
// Both size and batchSize must be > 0.
func NewInfiniteCycleBatchSampler(size, batchSize int) (*InfiniteCycleBatchSampler, error) {
	if size <= 0 {
		return nil, errors.Errorf("datasets.NewInfiniteCycleBatchSampler(): size must be > 0, got %d", size)
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("datasets.NewInfiniteCycleBatchSampler(): batchSize must be > 0, got %d", batchSize)
	}
	return &InfiniteCycleBatchSampler{size: size, batchSize: batchSize}, nil
}

// Name implements Sampler.
func (s *InfiniteCycleBatchSampler) Name() string {
	return fmt.Sprintf("InfiniteCycleBatchSampler(size=%d, batchSize=%d)", s.size, s.batchSize)
}

// Size of the dataset sampled.
func (s *InfiniteCycleBatchSampler) Size() int { return s.size }

// BatchSize returns the number of indices per batch.
func (s *InfiniteCycleBatchSampler) BatchSize() int { return s.batchSize }

// All implements Sampler. It never ends: the consumer must stop the iteration.
//
// Each batch is a newly allocated slice, owned by the consumer.
func (s *InfiniteCycleBatchSampler) All() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		next := 0
		for {
			batch := make([]int, s.batchSize)
			for ii := range batch {
				batch[ii] = next
				next = (next + 1) % s.size
			}
			if !yield(batch) {
				return
			}
		}
	}
}

// Len implements Sampler. It returns Unbounded.
func (s *InfiniteCycleBatchSampler) Len() int { return Unbounded }

// FiniteCycleBatchSampler yields the first numBatches batches of an InfiniteCycleBatchSampler.
type FiniteCycleBatchSampler struct {
	*InfiniteCycleBatchSampler
	numBatches int
}

var _ Sampler = (*FiniteCycleBatchSampler)(nil)

// NewFiniteCycleBatchSampler creates a FiniteCycleBatchSampler over a dataset with size elements.
// size and batchSize must be > 0, and numBatches >= 0.
func NewFiniteCycleBatchSampler(size, numBatches, batchSize int) (*FiniteCycleBatchSampler, error) {
	infinite, err := NewInfiniteCycleBatchSampler(size, batchSize)
	if err != nil {
		return nil, errors.WithMessage(err, "datasets.NewFiniteCycleBatchSampler()")
	}
	if numBatches < 0 {
		return nil, errors.Errorf("datasets.NewFiniteCycleBatchSampler(): numBatches must be >= 0, got %d", numBatches)
	}
	return &FiniteCycleBatchSampler{InfiniteCycleBatchSampler: infinite, numBatches: numBatches}, nil
}

// Name implements Sampler.
func (s *FiniteCycleBatchSampler) Name() string {
	return fmt.Sprintf("FiniteCycleBatchSampler(size=%d, numBatches=%d, batchSize=%d)",
		s.size, s.numBatches, s.batchSize)
}

// All implements Sampler.
func (s *FiniteCycleBatchSampler) All() iter.Seq[[]int] {
	take, _ := Take(s.InfiniteCycleBatchSampler, s.numBatches)
	return take.All()
}

// Len implements Sampler. It returns numBatches.
func (s *FiniteCycleBatchSampler) Len() int { return s.numBatches }
