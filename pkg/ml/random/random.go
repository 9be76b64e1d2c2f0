// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package random provides seedable, splittable random number generators used to initialize model weights.
//
// The default algorithm is Philox (4x32, 10 rounds), a counter-based generator: the same seed always
// generates the same sequence, on any platform.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"math"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
)

// StateSize is the number of uint64 values in the state of the generators.
const StateSize = 3

// Interface of for a generic random number generator.
//
// Use the concrete wrapper Random instead for the more convenient tensor methods.
type Interface interface {
	// Uint32 returns 32 random bits.
	Uint32() uint32

	// SplitIface returns a new random number generator that is independent of this one.
	// It will be the same algorithm, but with different states.
	SplitIface() Interface
}

// Random is a generic random number generator.
//
// It wraps a random.Interface and provides a couple of convenience methods.
type Random struct {
	Interface
}

// NewRandom from an Interface.
func NewRandom(r Interface) *Random {
	return &Random{Interface: r}
}

// New creates a new Random object using the default algorithm (Philox), with a state initialized from
// the OS's cryptographically secure random number generator.
func New() (*Random, error) {
	state, err := StateFromOS()
	if err != nil {
		return nil, err
	}
	return NewRandom(NewPhilox(state)), nil
}

// NewWithSeed creates a new Random object using the given seed and the default algorithm (Philox).
func NewWithSeed(seed int64) *Random {
	return NewRandom(NewPhilox(StateFromSeed(seed)))
}

// StateFromOS creates a state using the OS's cryptographically secure random number generator.
func StateFromOS() (state [StateSize]uint64, err error) {
	randomBytes := make([]byte, 8*StateSize)
	if _, err = rand.Read(randomBytes); err != nil {
		err = errors.Wrapf(err, "could not read random bytes from OS")
		return
	}
	for ii := range state {
		state[ii] = binary.BigEndian.Uint64(randomBytes[ii*8:])
	}
	return
}

// StateFromSeed creates a state from a static seed, with the seed as the key and a zero counter.
func StateFromSeed(seed int64) (state [StateSize]uint64) {
	state[0] = uint64(seed)
	return
}

// Uniform returns a uniform random value in `[0, 1)`.
func (r *Random) Uniform() float64 {
	hi, lo := uint64(r.Uint32()), uint64(r.Uint32())
	return float64((hi<<32|lo)>>11) * 0x1.0p-53
}

// Normal returns a random value from a normal distribution with mean 0 and standard deviation 1.
func (r *Random) Normal() float64 {
	// Box-Muller: 1-Uniform() is in (0, 1], so the log is finite.
	u1, u2 := 1-r.Uniform(), r.Uniform()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// IntN returns a random integer uniformly from 0 to n-1. It panics if n <= 0.
func (r *Random) IntN(n int) int {
	if n <= 0 {
		panic(errors.Errorf("random.IntN(%d): n must be > 0", n))
	}
	return int(r.Uniform() * float64(n))
}

// Split returns a new random number generator that is independent of ("split from") this one.
// It will be the same algorithm, but with different states.
func (r *Random) Split() *Random {
	return NewRandom(r.SplitIface())
}

// NormalTensor returns a tensor with the given dimensions, filled with values from a normal distribution
// with mean 0 and the given standard deviation.
func (r *Random) NormalTensor(stddev float64, dimensions ...int) *tensors.Tensor {
	t := tensors.FromShape(dimensions...)
	t.MutableFlatData(func(flat []float32) {
		for ii := range flat {
			flat[ii] = float32(r.Normal() * stddev)
		}
	})
	return t
}

// UniformTensor returns a tensor with the given dimensions, filled with uniform values in `[minValue, maxValue)`.
func (r *Random) UniformTensor(minValue, maxValue float64, dimensions ...int) *tensors.Tensor {
	t := tensors.FromShape(dimensions...)
	t.MutableFlatData(func(flat []float32) {
		for ii := range flat {
			flat[ii] = float32(minValue + r.Uniform()*(maxValue-minValue))
		}
	})
	return t
}
