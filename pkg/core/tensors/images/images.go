// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package images provides functions to transform images back and forth from tensors, and to load images
// and guides (region masks) from files.
//
// Tensors are laid out channels first: a single image is shaped `[channels, height, width]`.
package images

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/pkg/errors"
)

// ToTensorConfig holds the configuration returned by the ToTensor function. Once configured,
// use Single to convert an image.
type ToTensorConfig struct {
	channels int
	maxValue float64
}

// ToTensor converts an image to a tensor.
//
// It returns a configuration object that can be further configured. Once set, use the Single method.
func ToTensor() *ToTensorConfig {
	return &ToTensorConfig{
		channels: 3,
		maxValue: 1.0,
	}
}

// WithAlpha configures the conversion to include the alpha channel, so the converted tensor will have 4
// channels. The default is dropping the alpha channel.
func (tt *ToTensorConfig) WithAlpha() *ToTensorConfig {
	tt.channels = 4
	return tt
}

// Grayscale configures the conversion to a single channel with the luminance of the image.
// This is the format of guides.
func (tt *ToTensorConfig) Grayscale() *ToTensorConfig {
	tt.channels = 1
	return tt
}

// MaxValue sets the value each channel is scaled to at full intensity. It defaults to 1.0.
func (tt *ToTensorConfig) MaxValue(v float64) *ToTensorConfig {
	tt.maxValue = v
	return tt
}

// Single converts the given img to a tensor shaped `[channels, height, width]`.
func (tt *ToTensorConfig) Single(img image.Image) *tensors.Tensor {
	bounds := img.Bounds()
	height, width := bounds.Dy(), bounds.Dx()
	if height == 0 || width == 0 {
		exceptions.Panicf("images.ToTensor: cannot convert empty image with bounds %v", bounds)
	}
	t := tensors.FromShape(tt.channels, height, width)
	planeSize := height * width
	scale := tt.maxValue / 0xFFFF
	t.MutableFlatData(func(flat []float32) {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pos := y*width + x
				c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
				if tt.channels == 1 {
					gray := color.Gray16Model.Convert(c).(color.Gray16)
					flat[pos] = float32(float64(gray.Y) * scale)
					continue
				}
				flat[pos] = float32(float64(c.R) * scale)
				flat[planeSize+pos] = float32(float64(c.G) * scale)
				flat[2*planeSize+pos] = float32(float64(c.B) * scale)
				if tt.channels == 4 {
					flat[3*planeSize+pos] = float32(float64(c.A) * scale)
				}
			}
		}
	})
	return t
}

// ToImageConfig holds the configuration returned by the ToImage function. Once configured,
// use Single to convert a tensor.
type ToImageConfig struct {
	maxValue float64
}

// ToImage returns a configuration that can be used to convert tensors shaped `[channels, height, width]` back
// to images. Use Single to convert.
func ToImage() *ToImageConfig {
	return &ToImageConfig{maxValue: 1.0}
}

// MaxValue sets the tensor value that is mapped to full intensity. Default to 1.0.
func (ti *ToImageConfig) MaxValue(v float64) *ToImageConfig {
	ti.maxValue = v
	return ti
}

// Single converts a tensor with 1 (grayscale), 3 (RGB) or 4 (RGBA) channels to an image.
// Values are clipped to [0, maxValue].
func (ti *ToImageConfig) Single(t *tensors.Tensor) image.Image {
	if t.Rank() != 3 {
		exceptions.Panicf("images.ToImage: tensor must be shaped [channels, height, width], got %s", t)
	}
	channels, height, width := t.Dim(0), t.Dim(1), t.Dim(2)
	if channels != 1 && channels != 3 && channels != 4 {
		exceptions.Panicf("images.ToImage: tensor must have 1, 3 or 4 channels, got %s", t)
	}
	toUint8 := func(v float32) uint8 {
		scaled := math.Round(float64(v) / ti.maxValue * 255)
		return uint8(max(0, min(255, scaled)))
	}
	planeSize := height * width
	var img image.Image
	t.ConstFlatData(func(flat []float32) {
		if channels == 1 {
			gray := image.NewGray(image.Rect(0, 0, width, height))
			for pos := range planeSize {
				gray.Pix[pos] = toUint8(flat[pos])
			}
			img = gray
			return
		}
		rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
		for pos := range planeSize {
			rgba.Pix[4*pos] = toUint8(flat[pos])
			rgba.Pix[4*pos+1] = toUint8(flat[planeSize+pos])
			rgba.Pix[4*pos+2] = toUint8(flat[2*planeSize+pos])
			if channels == 4 {
				rgba.Pix[4*pos+3] = toUint8(flat[3*planeSize+pos])
			} else {
				rgba.Pix[4*pos+3] = 255
			}
		}
		img = rgba
	})
	return img
}

// Load reads the image in path, crops and resizes it to a square of the given size, and converts it
// to an RGB tensor shaped `[3, size, size]` with values in [0, 1].
func Load(path string, size int) (*tensors.Tensor, error) {
	img, err := open(path, size)
	if err != nil {
		return nil, err
	}
	var t *tensors.Tensor
	err = exceptions.TryCatch[error](func() { t = ToTensor().Single(img) })
	if err != nil {
		return nil, errors.WithMessagef(err, "converting image %q to tensor", path)
	}
	return t, nil
}

// LoadGuide reads the mask image in path, crops and resizes it like Load, and converts it to a guide shaped
// `[1, size, size]` with values in [0, 1].
func LoadGuide(path string, size int) (*tensors.Tensor, error) {
	img, err := open(path, size)
	if err != nil {
		return nil, err
	}
	var t *tensors.Tensor
	err = exceptions.TryCatch[error](func() { t = ToTensor().Grayscale().Single(img) })
	if err != nil {
		return nil, errors.WithMessagef(err, "converting guide %q to tensor", path)
	}
	return t, nil
}

func open(path string, size int) (image.Image, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid image size %d for %q, it must be > 0", size, path)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", path)
	}
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos), nil
}
