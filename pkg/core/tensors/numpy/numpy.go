// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numpy allows one to read/write tensors to Python's NumPy npy and npz file formats.
//
// Tensors are always float32: on reading, float16 ("<f2") and float64 ("<f8") arrays are converted.
// Big-endian arrays are not supported.
package numpy

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

const npyMagic = "\x93NUMPY"

// FromNpyFile reads a .npy file and returns a tensors.Tensor.
func FromNpyFile(filePath string) (*tensors.Tensor, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	return FromNpyReader(file)
}

// FromNpyReader reads a .npy file from an io.Reader and returns a tensors.Tensor.
func FromNpyReader(r io.Reader) (*tensors.Tensor, error) {
	preamble := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, errors.Wrapf(err, "failed to read .npy magic string")
	}
	if string(preamble[:len(npyMagic)]) != npyMagic {
		return nil, errors.Errorf("invalid .npy file format: magic string mismatch")
	}

	var headerLen uint32
	switch major := preamble[len(npyMagic)]; {
	case major == 1:
		var len16 uint16
		if err := binary.Read(r, binary.LittleEndian, &len16); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v1.0)")
		}
		headerLen = uint32(len16)
	case major >= 2:
		if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v2.0+)")
		}
	default:
		return nil, errors.Errorf("unsupported .npy version: %d.%d", major, preamble[len(npyMagic)+1])
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}

	// Example: "{'descr': '<f4', 'fortran_order': False, 'shape': (1, 2, 3), }"
	descr, dims, fortranOrder, err := parseNpyHeader(string(headerBytes))
	if err != nil {
		return nil, errors.WithMessage(err, "failed to parse .npy header")
	}
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	values, err := readValues(r, descr, size)
	if err != nil {
		return nil, err
	}
	if fortranOrder && len(dims) > 1 {
		values = fortranToCLayout(dims, values)
	}
	if len(dims) == 0 {
		return tensors.FromScalar(values[0]), nil
	}
	return tensors.FromFlatDataAndDimensions(values, dims...), nil
}

// readValues reads size values of the given NumPy type, converting them to float32.
func readValues(r io.Reader, descr string, size int) ([]float32, error) {
	if strings.HasPrefix(descr, ">") {
		return nil, errors.Errorf("big-endian .npy files (%q) are not supported", descr)
	}
	values := make([]float32, size)
	var err error
	switch strings.TrimLeft(descr, "<=|") {
	case "f4":
		err = binary.Read(r, binary.LittleEndian, values)
	case "f2":
		halves := make([]float16.Float16, size)
		if err = binary.Read(r, binary.LittleEndian, halves); err == nil {
			for ii, h := range halves {
				values[ii] = h.Float32()
			}
		}
	case "f8":
		doubles := make([]float64, size)
		if err = binary.Read(r, binary.LittleEndian, doubles); err == nil {
			for ii, d := range doubles {
				values[ii] = float32(d)
			}
		}
	default:
		return nil, errors.Errorf("unsupported NumPy dtype %q, only float16, float32 and float64 are supported", descr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tensor data (expected %d values of type %q)", size, descr)
	}
	return values, nil
}

// fortranToCLayout converts values stored in column-major (Fortran) order to row-major (C) order.
func fortranToCLayout(dims []int, values []float32) []float32 {
	rank := len(dims)
	fortranStrides := make([]int, rank)
	stride := 1
	for axis, dim := range dims {
		fortranStrides[axis] = stride
		stride *= dim
	}
	cValues := make([]float32, len(values))
	indices := make([]int, rank)
	for cIdx := range cValues {
		var fortranIdx int
		for axis, axisIdx := range indices {
			fortranIdx += axisIdx * fortranStrides[axis]
		}
		cValues[cIdx] = values[fortranIdx]

		// Increment indices in row-major order.
		for axis := rank - 1; axis >= 0; axis-- {
			indices[axis]++
			if indices[axis] < dims[axis] {
				break
			}
			indices[axis] = 0
		}
	}
	return cValues
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// parseNpyHeader extracts dtype, shape, and fortran_order from the .npy header string.
// It only handles the dictionary as written by NumPy, it is not a generic Python literal parser.
func parseNpyHeader(header string) (descr string, dims []int, fortranOrder bool, err error) {
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in header: %q", header)
		return
	}
	descr = mDescr[1]

	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in header: %q", header)
		return
	}
	fortranOrder = mFortran[1] == "True"

	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in header: %q", header)
		return
	}
	dims = []int{}
	for _, p := range strings.Split(mShape[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" { // Trailing comma, like in "(10,)", or scalar "()".
			continue
		}
		dim, pErr := strconv.Atoi(p)
		if pErr != nil {
			err = errors.Wrapf(pErr, "invalid shape value %q in header", p)
			return
		}
		dims = append(dims, dim)
	}
	return
}

// FromNpzFile reads a .npz file and returns a map of tensor names to tensors.Tensor.
func FromNpzFile(filePath string) (map[string]*tensors.Tensor, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat .npz file %q", filePath)
	}
	return FromNpzReader(file, info.Size())
}

// FromNpzReader reads a .npz file (a zip archive of .npy files) from an io.ReaderAt and size,
// returning a map of tensor names to tensors.Tensor.
//
// Files in the archive not ending in ".npy" are ignored.
func FromNpzReader(r io.ReaderAt, size int64) (map[string]*tensors.Tensor, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create zip reader for .npz")
	}
	results := make(map[string]*tensors.Tensor)
	for _, f := range zipReader.File {
		cleanPath := path.Clean(f.Name)
		if path.IsAbs(cleanPath) || strings.HasPrefix(cleanPath, "..") {
			return nil, errors.Errorf("invalid path in .npz archive: %q (normalized to %q)", f.Name, cleanPath)
		}
		name, isNpy := strings.CutSuffix(f.Name, ".npy")
		if !isNpy {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q within .npz", f.Name)
		}
		tensor, err := FromNpyReader(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read tensor %q from .npz", f.Name)
		}
		results[name] = tensor
	}
	return results, nil
}

// ToNpyWriter serializes a tensors.Tensor to an io.Writer in .npy format (version 1.0, "<f4").
func ToNpyWriter(tensor *tensors.Tensor, w io.Writer) error {
	dims := tensor.Dimensions()
	var shapeTuple string
	switch len(dims) {
	case 0:
		shapeTuple = "()"
	case 1:
		shapeTuple = fmt.Sprintf("(%d,)", dims[0])
	default:
		dimsStr := make([]string, len(dims))
		for ii, dim := range dims {
			dimsStr[ii] = strconv.Itoa(dim)
		}
		shapeTuple = fmt.Sprintf("(%s)", strings.Join(dimsStr, ", "))
	}

	// The preamble (magic, version and header length: 10 bytes) plus the header, terminated by a newline,
	// is padded with spaces to a multiple of 64 bytes.
	var header bytes.Buffer
	fmt.Fprintf(&header, "{'descr': '<f4', 'fortran_order': False, 'shape': %s, }", shapeTuple)
	for (10+header.Len()+1)%64 != 0 {
		header.WriteByte(' ')
	}
	header.WriteByte('\n')
	if header.Len() > math.MaxUint16 {
		return errors.Errorf("ToNpyWriter(%s): header too long", tensor)
	}

	var buf bytes.Buffer
	buf.WriteString(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(header.Len()))
	buf.Write(header.Bytes())
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write .npy header")
	}
	var err error
	tensor.ConstFlatData(func(flat []float32) {
		err = binary.Write(w, binary.LittleEndian, flat)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to write tensor data")
	}
	return nil
}

// ToNpyFile serializes a tensors.Tensor to a .npy file.
func ToNpyFile(tensor *tensors.Tensor, filePath string) (err error) {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npy file %q", filePath)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "failed to close .npy file %q", filePath)
		}
	}()
	return ToNpyWriter(tensor, file)
}

// ToNpzFile serializes a map of tensors to a .npz file.
func ToNpzFile(tensorsMap map[string]*tensors.Tensor, filePath string) (err error) {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npz file %q", filePath)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "failed to close .npz file %q", filePath)
		}
	}()
	return ToNpzWriter(tensorsMap, file)
}

// ToNpzWriter serializes a map of tensors to an io.Writer as a .npz archive. Tensors are written sorted by name.
func ToNpzWriter(tensorsMap map[string]*tensors.Tensor, w io.Writer) error {
	names := make([]string, 0, len(tensorsMap))
	for name := range tensorsMap {
		names = append(names, name)
	}
	slices.Sort(names)

	zipWriter := zip.NewWriter(w)
	for _, name := range names {
		npyName := name + ".npy"
		fileWriter, err := zipWriter.Create(npyName)
		if err != nil {
			return errors.Wrapf(err, "failed to create %q in .npz archive", npyName)
		}
		if err := ToNpyWriter(tensorsMap[name], fileWriter); err != nil {
			return errors.WithMessagef(err, "failed to write tensor %q to .npz archive", name)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return errors.Wrapf(err, "failed to close zip archive")
	}
	return nil
}
