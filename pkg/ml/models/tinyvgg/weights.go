// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tinyvgg

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// weightsMagic starts every weights file, followed by the format version.
const (
	weightsMagic   = "TVGG"
	weightsVersion = uint32(1)
)

// WriteWeights writes all weights and biases of the model in half-precision (float16), little-endian.
//
// The format is the magic "TVGG", the version, the number of tensors, and for each tensor its rank, its
// dimensions and its values. All integers are uint32.
func (m *Model) WriteWeights(w io.Writer) error {
	if _, err := io.WriteString(w, weightsMagic); err != nil {
		return errors.Wrap(err, "tinyvgg.WriteWeights()")
	}
	header := []uint32{weightsVersion, uint32(len(m.weights))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "tinyvgg.WriteWeights()")
	}
	for ii, t := range m.weights {
		dims := make([]uint32, 0, t.Rank()+1)
		dims = append(dims, uint32(t.Rank()))
		for _, dim := range t.Dimensions() {
			dims = append(dims, uint32(dim))
		}
		if err := binary.Write(w, binary.LittleEndian, dims); err != nil {
			return errors.Wrapf(err, "tinyvgg.WriteWeights(): tensor #%d", ii)
		}
		if err := binary.Write(w, binary.LittleEndian, t.Float16s()); err != nil {
			return errors.Wrapf(err, "tinyvgg.WriteWeights(): tensor #%d", ii)
		}
	}
	return nil
}

// ReadWeights reads weights written by WriteWeights into the model. The model must have been created with the
// same configuration (except the seed).
//
// On error, the model weights may have been partially updated.
func (m *Model) ReadWeights(r io.Reader) error {
	magic := make([]byte, len(weightsMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return errors.Wrap(err, "tinyvgg.ReadWeights(): reading header")
	}
	if string(magic) != weightsMagic {
		return errors.Errorf("tinyvgg.ReadWeights(): invalid weights file, header %q", magic)
	}
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, header[:]); err != nil {
		return errors.Wrap(err, "tinyvgg.ReadWeights(): reading header")
	}
	if header[0] != weightsVersion {
		return errors.Errorf("tinyvgg.ReadWeights(): unsupported weights version %d", header[0])
	}
	if int(header[1]) != len(m.weights) {
		return errors.Errorf("tinyvgg.ReadWeights(): file has %d tensors, model has %d", header[1], len(m.weights))
	}
	for ii, t := range m.weights {
		var rank uint32
		if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
			return errors.Wrapf(err, "tinyvgg.ReadWeights(): tensor #%d", ii)
		}
		if int(rank) != t.Rank() {
			return errors.Errorf("tinyvgg.ReadWeights(): tensor #%d has rank %d, model expects %s", ii, rank, t)
		}
		dims32 := make([]uint32, rank)
		if err := binary.Read(r, binary.LittleEndian, dims32); err != nil {
			return errors.Wrapf(err, "tinyvgg.ReadWeights(): tensor #%d", ii)
		}
		dims := make([]int, rank)
		for axis, dim := range dims32 {
			dims[axis] = int(dim)
		}
		if !slices.Equal(dims, t.Dimensions()) {
			return errors.Errorf("tinyvgg.ReadWeights(): tensor #%d has dimensions %v, model expects %s", ii, dims, t)
		}
		values := make([]float16.Float16, t.Size())
		if err := binary.Read(r, binary.LittleEndian, values); err != nil {
			return errors.Wrapf(err, "tinyvgg.ReadWeights(): tensor #%d", ii)
		}
		t.MutableFlatData(func(flat []float32) {
			for jj, v := range values {
				flat[jj] = v.Float32()
			}
		})
	}
	return nil
}

// SaveWeights writes the weights to the file in path, see WriteWeights. If path has the extension ".npz",
// the weights are saved in NumPy format instead, see SaveNpz.
func (m *Model) SaveWeights(path string) (err error) {
	if isNpz(path) {
		return m.SaveNpz(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "tinyvgg.SaveWeights(%q)", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "tinyvgg.SaveWeights(%q)", path)
		}
	}()
	w := bufio.NewWriter(f)
	if err = m.WriteWeights(w); err != nil {
		return errors.WithMessagef(err, "tinyvgg.SaveWeights(%q)", path)
	}
	if err = w.Flush(); err != nil {
		return errors.Wrapf(err, "tinyvgg.SaveWeights(%q)", path)
	}
	klog.V(1).Infof("tinyvgg: saved %d params to %q", m.NumParams(), path)
	return nil
}

// LoadWeights reads the weights from the file in path, see ReadWeights. If path has the extension ".npz",
// the weights are read in NumPy format instead, see LoadNpz.
func (m *Model) LoadWeights(path string) error {
	if isNpz(path) {
		return m.LoadNpz(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "tinyvgg.LoadWeights(%q)", path)
	}
	defer func() { _ = f.Close() }()
	if err = m.ReadWeights(bufio.NewReader(f)); err != nil {
		return errors.WithMessagef(err, "tinyvgg.LoadWeights(%q)", path)
	}
	if info, statErr := f.Stat(); statErr == nil && klog.V(1).Enabled() {
		klog.Infof("tinyvgg: loaded %d params (%s) from %q", m.NumParams(), humanize.Bytes(uint64(info.Size())), path)
	}
	return nil
}
