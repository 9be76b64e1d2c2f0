// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package numpy

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// npyBytes builds a version 1.0 .npy file with the given header and data.
func npyBytes(t *testing.T, header string, data any) []byte {
	var buf bytes.Buffer
	buf.WriteString(npyMagic)
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, data))
	return buf.Bytes()
}

func TestNpyRoundTrip(t *testing.T) {
	for _, tensor := range []*tensors.Tensor{
		tensors.FromScalar(3),
		tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3),
		tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 1, 3),
	} {
		var buf bytes.Buffer
		require.NoError(t, ToNpyWriter(tensor, &buf))
		// Data starts at a 64 bytes aligned offset.
		assert.Equal(t, 0, (buf.Len()-4*tensor.Size())%64)
		got, err := FromNpyReader(&buf)
		require.NoError(t, err)
		assert.True(t, got.Equal(tensor), "got %s, wanted %s", got, tensor)
	}
}

func TestNpyTypes(t *testing.T) {
	got, err := FromNpyReader(bytes.NewReader(npyBytes(t,
		"{'descr': '<f8', 'fortran_order': False, 'shape': (2,), }\n", []float64{0.5, -1})))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1}, []float32{got.At(0), got.At(1)})

	// Fortran order: column-major [[1, 2, 3], [4, 5, 6]].
	got, err = FromNpyReader(bytes.NewReader(npyBytes(t,
		"{'descr': '<f4', 'fortran_order': True, 'shape': (2, 3), }\n", []float32{1, 4, 2, 5, 3, 6})))
	require.NoError(t, err)
	want := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.True(t, got.Equal(want), "got %s", got)

	_, err = FromNpyReader(bytes.NewReader(npyBytes(t,
		"{'descr': '<i4', 'fortran_order': False, 'shape': (1,), }\n", []int32{1})))
	require.ErrorContains(t, err, "unsupported NumPy dtype")
	_, err = FromNpyReader(bytes.NewReader(npyBytes(t,
		"{'descr': '>f4', 'fortran_order': False, 'shape': (1,), }\n", []float32{1})))
	require.ErrorContains(t, err, "big-endian")
	_, err = FromNpyReader(bytes.NewReader([]byte("not a numpy file")))
	require.Error(t, err)
}

func TestNpz(t *testing.T) {
	values := map[string]*tensors.Tensor{
		"conv1_1_W": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2),
		"conv1_1_b": tensors.FromFlatDataAndDimensions([]float32{0.5, 0.25}, 2),
	}
	filePath := filepath.Join(t.TempDir(), "weights.npz")
	require.NoError(t, ToNpzFile(values, filePath))
	got, err := FromNpzFile(filePath)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for name, tensor := range values {
		assert.True(t, got[name].Equal(tensor), "tensor %q", name)
	}

	npyPath := filepath.Join(t.TempDir(), "bias.npy")
	require.NoError(t, ToNpyFile(values["conv1_1_b"], npyPath))
	bias, err := FromNpyFile(npyPath)
	require.NoError(t, err)
	assert.True(t, bias.Equal(values["conv1_1_b"]))

	_, err = FromNpzFile(filepath.Join(t.TempDir(), "missing.npz"))
	require.Error(t, err)
}
