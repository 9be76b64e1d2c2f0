// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[string](10)
	assert.Len(t, s, 0)

	s.Insert("relu1_1", "relu2_1")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("relu1_1"))
	assert.False(t, s.Has("conv1_1"))

	s2 := MakeWith("relu2_1", "relu3_1")
	diff := s.Sub(s2)
	assert.True(t, diff.Equal(MakeWith("relu1_1")))
	assert.False(t, s.Equal(s2))

	clone := s.Clone()
	clone.Remove("relu1_1", "missing")
	assert.Len(t, clone, 1)
	assert.Len(t, s, 2, "Clone must not share storage")

	assert.Equal(t, []string{"relu1_1", "relu2_1"}, Sorted(s))
	assert.Equal(t, []string{"relu1_1", "relu2_1"}, slices.Sorted(s.All()))
}
