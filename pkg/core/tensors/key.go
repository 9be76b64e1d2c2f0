// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/google/uuid"
)

// Key identifies a Tensor at a given version, and it is used to key caches of values computed from tensors.
//
// It combines the identity of the tensor, its version (see Tensor.MutableFlatData) and a fingerprint of its
// dimensions and values. It is comparable, and can be used as a map key.
type Key struct {
	ID          uuid.UUID
	Version     uint64
	Fingerprint uint64
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return fmt.Sprintf("%s@v%d#%016x", k.ID, k.Version, k.Fingerprint)
}

// Key returns the Key of the tensor for its current version.
//
// It is computed once per version and memoized in the tensor.
func (t *Tensor) Key() Key {
	if t.key == nil {
		t.key = &Key{
			ID:          t.id,
			Version:     t.version,
			Fingerprint: t.fingerprint(),
		}
	}
	return *t.key
}

// fingerprint hashes the dimensions and values of the tensor with FNV-1a.
func (t *Tensor) fingerprint() uint64 {
	h := fnv.New64a()
	buf := make([]byte, 0, 8*len(t.dimensions)+8)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(t.dimensions)))
	for _, dim := range t.dimensions {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(dim))
	}
	_, _ = h.Write(buf)

	const chunk = 1024
	buf = make([]byte, 0, 4*chunk)
	for start := 0; start < len(t.flat); start += chunk {
		end := min(start+chunk, len(t.flat))
		buf = buf[:0]
		for _, v := range t.flat[start:end] {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}
