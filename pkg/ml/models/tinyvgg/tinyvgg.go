// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tinyvgg builds a small VGG-style convolutional network, to be used as a feature encoder for style
// transfer.
//
// The network is a preprocessing (normalization) stage followed by blocks of 3x3 convolutions, each followed
// by a ReLU, and a max-pooling at the end of each block. Layers are named like in the VGG papers:
//
//	preprocessing, conv1_1, relu1_1, conv1_2, relu1_2, pool1, conv2_1, relu2_1, ...
//
// Weights are randomly initialized from a seed (random features are enough for texture statistics), and can
// be saved and loaded with WriteWeights and ReadWeights.
//
// Example:
//
//	model := tinyvgg.New().Channels(16, 32, 64).Seed(42).Done()
//	encoder, err := model.NewEncoder()
package tinyvgg

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/ml/encoders"
	"github.com/gomlx/stylekit/pkg/ml/nn"
	"github.com/gomlx/stylekit/pkg/ml/random"
	"github.com/pkg/errors"
)

// PreprocessingLayer is the name of the first layer, that normalizes the input image.
const PreprocessingLayer = "preprocessing"

// ConvLayer returns the name of the conv-th convolution (1-based) of the block-th block (1-based).
func ConvLayer(block, conv int) string { return fmt.Sprintf("conv%d_%d", block, conv) }

// ReLULayer returns the name of the activation following ConvLayer(block, conv).
func ReLULayer(block, conv int) string { return fmt.Sprintf("relu%d_%d", block, conv) }

// PoolLayer returns the name of the pooling at the end of the block-th block (1-based).
func PoolLayer(block int) string { return fmt.Sprintf("pool%d", block) }

// Config for a Model. Create it with New, and call Done to build the model.
type Config struct {
	inputChannels int
	channels      []int
	depth         int
	seed          int64
}

// New returns a configuration with the default values: 3 input channels (RGB), blocks with 16, 32 and 64
// channels, 2 convolutions per block and seed 0.
func New() *Config {
	return &Config{
		inputChannels: 3,
		channels:      []int{16, 32, 64},
		depth:         2,
	}
}

// InputChannels sets the number of channels of the input images. Default is 3.
//
// With 3 channels the preprocessing uses the ImageNet normalization, otherwise a normalization of values
// in [0, 1] to around [-2, 2].
func (c *Config) InputChannels(channels int) *Config {
	if channels <= 0 {
		exceptions.Panicf("tinyvgg: input channels must be > 0, got %d", channels)
	}
	c.inputChannels = channels
	return c
}

// Channels sets the number of blocks and the output channels of the convolutions of each block.
func (c *Config) Channels(channels ...int) *Config {
	if len(channels) == 0 {
		exceptions.Panicf("tinyvgg: at least one block is required")
	}
	for ii, ch := range channels {
		if ch <= 0 {
			exceptions.Panicf("tinyvgg: channels of block %d must be > 0, got %d", ii+1, ch)
		}
	}
	c.channels = channels
	return c
}

// Depth sets the number of convolutions per block. Default is 2.
func (c *Config) Depth(depth int) *Config {
	if depth <= 0 {
		exceptions.Panicf("tinyvgg: depth must be > 0, got %d", depth)
	}
	c.depth = depth
	return c
}

// Seed sets the seed used to initialize the weights. Default is 0.
func (c *Config) Seed(seed int64) *Config {
	c.seed = seed
	return c
}

// Done builds the model, with weights initialized with He initialization (normal distribution with
// stddev=sqrt(2/fanIn)) and zero biases.
func (c *Config) Done() *Model {
	rng := random.NewWithSeed(c.seed)
	m := &Model{
		numBlocks: len(c.channels),
		depth:     c.depth,
	}
	if c.inputChannels == 3 {
		m.stages = append(m.stages, encoders.NamedStage{Name: PreprocessingLayer, Stage: nn.ImageNetNormalize()})
	} else {
		mean, std := make([]float32, c.inputChannels), make([]float32, c.inputChannels)
		for ii := range mean {
			mean[ii], std[ii] = 0.5, 0.25
		}
		m.stages = append(m.stages, encoders.NamedStage{Name: PreprocessingLayer, Stage: nn.NewNormalize(mean, std)})
	}

	inChannels := c.inputChannels
	for blockIdx, outChannels := range c.channels {
		block := blockIdx + 1
		for convIdx := range c.depth {
			conv := convIdx + 1
			fanIn := inChannels * 3 * 3
			weights := rng.NormalTensor(math.Sqrt(2.0/float64(fanIn)), outChannels, inChannels, 3, 3)
			bias := tensors.FromShape(outChannels)
			m.weights = append(m.weights, weights, bias)
			m.weightNames = append(m.weightNames, ConvLayer(block, conv)+"_W", ConvLayer(block, conv)+"_b")
			m.stages = append(m.stages,
				encoders.NamedStage{Name: ConvLayer(block, conv), Stage: nn.NewConv2D(weights, bias).PadSame().Done()},
				encoders.NamedStage{Name: ReLULayer(block, conv), Stage: nn.ReLU{}})
			inChannels = outChannels
		}
		m.stages = append(m.stages, encoders.NamedStage{Name: PoolLayer(block), Stage: nn.MaxPool2D().Done()})
	}
	return m
}

// Model holds the stages and weights of a tinyvgg network.
type Model struct {
	stages      []encoders.NamedStage
	weights     []*tensors.Tensor
	weightNames []string
	numBlocks   int
	depth       int
}

// Stages returns the named stages of the network, in order.
func (m *Model) Stages() []encoders.NamedStage {
	return m.stages
}

// LayerNames returns the names of all layers, in order.
func (m *Model) LayerNames() []string {
	names := make([]string, len(m.stages))
	for ii, stage := range m.stages {
		names[ii] = stage.Name
	}
	return names
}

// NewEncoder returns a MultiLayerEncoder over the stages of the network.
//
// The stages share the weights with the model, so ReadWeights affects encoders already created. Empty their
// caches after reading weights.
func (m *Model) NewEncoder() (*encoders.MultiLayerEncoder, error) {
	encoder, err := encoders.New(m.stages...)
	if err != nil {
		return nil, errors.WithMessage(err, "tinyvgg.NewEncoder()")
	}
	return encoder, nil
}

// StyleLayers returns the layers usually used for style losses: the first activation of each block.
func (m *Model) StyleLayers() []string {
	layers := make([]string, m.numBlocks)
	for ii := range layers {
		layers[ii] = ReLULayer(ii+1, 1)
	}
	return layers
}

// ContentLayer returns the layer usually used for the content loss: the last activation of the second block,
// or of the first block if there is only one.
func (m *Model) ContentLayer() string {
	return ReLULayer(min(2, m.numBlocks), m.depth)
}

// NumParams returns the number of weights and biases of the network.
func (m *Model) NumParams() int {
	var n int
	for _, w := range m.weights {
		n += w.Size()
	}
	return n
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	return fmt.Sprintf("tinyvgg(%d blocks x %d convolutions, %d params)", m.numBlocks, m.depth, m.NumParams())
}
