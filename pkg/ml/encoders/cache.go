// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package encoders

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/support/sets"
)

// CacheKey identifies a cached activation: the layer that produced it, and the key of the encoder input.
type CacheKey struct {
	Layer string
	Input tensors.Key
}

// Cache of activations, keyed by layer and input.
//
// Each entry holds the output of its layer when the encoder is run on the input with the key: it remains
// valid as long as the input is not changed (see tensors.Tensor.MutableFlatData, which changes the key).
//
// There is no eviction: entries are only removed by ReplaceAll, Clear or DropLayers.
type Cache struct {
	entries map[CacheKey]*tensors.Tensor
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey]*tensors.Tensor)}
}

// Len returns the number of cached activations.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Get returns the activation of layer for the input with the given key, if cached.
func (c *Cache) Get(layer string, input tensors.Key) (*tensors.Tensor, bool) {
	t, found := c.entries[CacheKey{Layer: layer, Input: input}]
	return t, found
}

// LookupPartial returns the cached activations (hits) for the given layers and input key, and the set of
// layers with no cached activation (misses).
func (c *Cache) LookupPartial(layers []string, input tensors.Key) (hits map[string]*tensors.Tensor, misses sets.Set[string]) {
	hits = make(map[string]*tensors.Tensor, len(layers))
	misses = sets.Make[string]()
	for _, layer := range layers {
		if t, found := c.Get(layer, input); found {
			hits[layer] = t
		} else {
			misses.Insert(layer)
		}
	}
	return
}

// Populate merges the entries into the cache, overwriting existing entries with the same key.
func (c *Cache) Populate(entries map[CacheKey]*tensors.Tensor) {
	for key, t := range entries {
		c.entries[key] = t
	}
}

// ReplaceAll discards the contents of the cache, and installs the given entries.
func (c *Cache) ReplaceAll(entries map[CacheKey]*tensors.Tensor) {
	c.entries = make(map[CacheKey]*tensors.Tensor, len(entries))
	c.Populate(entries)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.entries = make(map[CacheKey]*tensors.Tensor)
}

// DropLayers removes the entries of the given layers, for all inputs.
func (c *Cache) DropLayers(layers ...string) {
	drop := sets.MakeWith(layers...)
	for key := range c.entries {
		if drop.Has(key.Layer) {
			delete(c.entries, key)
		}
	}
}

// Keys returns the keys of all cached entries, in no particular order.
func (c *Cache) Keys() []CacheKey {
	keys := make([]CacheKey, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Memory returns the number of bytes used by the cached activations.
func (c *Cache) Memory() uint64 {
	var total uint64
	for _, t := range c.entries {
		total += t.Memory()
	}
	return total
}

// String implements fmt.Stringer.
func (c *Cache) String() string {
	inputs := sets.Make[tensors.Key]()
	for key := range c.entries {
		inputs.Insert(key.Input)
	}
	return fmt.Sprintf("Cache(%d activations, %d inputs, %s)", len(c.entries), len(inputs), humanize.Bytes(c.Memory()))
}
