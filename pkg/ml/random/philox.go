// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package random

import "math/bits"

// Philox constants, from "Parallel Random Numbers: As Easy as 1, 2, 3" (Salmon et al., 2011).
const (
	philoxM0 = 0xD2511F53
	philoxM1 = 0xCD9E8D57
	philoxW0 = 0x9E3779B9
	philoxW1 = 0xBB67AE85

	philoxRounds = 10
)

// Philox is the default implementation of the random.Interface.
//
// Its state is a 64 bits key and a 128 bits counter: each increment of the counter generates 4 random uint32.
type Philox struct {
	key     [2]uint32
	counter [4]uint32
	block   [4]uint32
	used    int
}

var _ Interface = &Philox{}

// NewPhilox returns a new Philox with the given state: state[0] is the key and state[1:] the counter.
func NewPhilox(state [StateSize]uint64) *Philox {
	return &Philox{
		key:     [2]uint32{uint32(state[0]), uint32(state[0] >> 32)},
		counter: [4]uint32{uint32(state[1]), uint32(state[1] >> 32), uint32(state[2]), uint32(state[2] >> 32)},
		used:    4,
	}
}

// State returns the current state, which can be used to create a Philox that continues the same sequence
// from the start of the next block.
func (p *Philox) State() (state [StateSize]uint64) {
	state[0] = uint64(p.key[0]) | uint64(p.key[1])<<32
	state[1] = uint64(p.counter[0]) | uint64(p.counter[1])<<32
	state[2] = uint64(p.counter[2]) | uint64(p.counter[3])<<32
	return
}

// Uint32 implements Interface.
func (p *Philox) Uint32() uint32 {
	if p.used == len(p.block) {
		p.block = philox4x32(p.counter, p.key)
		p.increment()
		p.used = 0
	}
	v := p.block[p.used]
	p.used++
	return v
}

// SplitIface implements Interface: the new generator uses a key drawn from this one.
func (p *Philox) SplitIface() Interface {
	key := uint64(p.Uint32()) | uint64(p.Uint32())<<32
	return NewPhilox([StateSize]uint64{key, 0, 0})
}

func (p *Philox) increment() {
	for ii := range p.counter {
		p.counter[ii]++
		if p.counter[ii] != 0 {
			return
		}
	}
}

func philox4x32(counter [4]uint32, key [2]uint32) [4]uint32 {
	for range philoxRounds {
		hi0, lo0 := bits.Mul32(philoxM0, counter[0])
		hi1, lo1 := bits.Mul32(philoxM1, counter[2])
		counter = [4]uint32{hi1 ^ counter[1] ^ key[0], lo1, hi0 ^ counter[3] ^ key[1], lo0}
		key[0] += philoxW0
		key[1] += philoxW1
	}
	return counter
}
