// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// stylekit measures the perceptual (content and style) distances between an input image and a set of
// style images, using a tinyvgg encoder.
//
// The style images are visited in batches, cycling over them, and each batch is one step of a train.Loop:
//
//	stylekit -content=photo.jpg -styles=starry.jpg,scream.jpg -batch=1 -batches=10 -set="style_weight=1e4"
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/stylekit/pkg/core/tensors"
	"github.com/gomlx/stylekit/pkg/core/tensors/images"
	"github.com/gomlx/stylekit/pkg/ml/datasets"
	"github.com/gomlx/stylekit/pkg/ml/encoders"
	"github.com/gomlx/stylekit/pkg/ml/losses"
	"github.com/gomlx/stylekit/pkg/ml/models/tinyvgg"
	"github.com/gomlx/stylekit/pkg/ml/train"
	"github.com/gomlx/stylekit/pkg/ml/train/metrics"
	"github.com/gomlx/stylekit/pkg/support/fsutil"
	"github.com/gomlx/stylekit/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagContent = flag.String("content", "", "Content image, whose features are the target of the content loss.")
	flagInput   = flag.String("input", "", "Image to measure. Defaults to the -content image.")
	flagStyles  = flag.String("styles", "", "Comma-separated list of style images.")
	flagGuide   = flag.String("guide", "", "Optional mask image: style features are only compared where the "+
		"mask is white.")
	flagSize    = flag.Int("size", 128, "Images are cropped and resized to squares of this size.")
	flagBatch   = flag.Int("batch", 1, "Number of style images per step.")
	flagBatches = flag.Int("batches", 0, "Number of steps to run. Defaults to one pass over the style images.")

	flagChannels     = flag.String("channels", "16,32,64", "Comma-separated number of channels of each tinyvgg block.")
	flagDepth        = flag.Int("depth", 2, "Number of convolutions of each tinyvgg block.")
	flagSeed         = flag.Int64("seed", 0, "Seed for the random weights of tinyvgg.")
	flagWeights      = flag.String("weights", "", "File with tinyvgg weights, in NumPy format if it ends with \".npz\". If it doesn't exist it is created with the random weights.")
	flagStyleLayers  = flag.String("style_layers", "", "Comma-separated style layers. Defaults to the first activation of each block.")
	flagContentLayer = flag.String("content_layer", "", "Content layer. Defaults to the last activation of the second block.")
	flagLayers       = flag.Bool("layers", false, "List the layers of the encoder and exit.")
	flagQuiet        = flag.Bool("quiet", false, "Don't display the progress bar.")
	flagReportEvery  = flag.Int("report_every", 10, "With -v=1, log the encoder cache statistics every this many steps. Set to 0 to disable.")
)

func main() {
	klog.InitFlags(nil)
	settings := commandline.NewSettings().
		Set("content_weight", 1.0).
		Set("style_weight", 1e3).
		Set("normalize_gram", true)
	settingsFlag := settings.CreateSettingsFlag("")
	flag.Parse()
	defer klog.Flush()

	paramsSet := must.M1(settings.ParseSettings(*settingsFlag))
	if len(paramsSet) > 0 {
		fmt.Printf("Settings:\n%s\n", settings.SprintModified(paramsSet))
	}

	model := tinyvgg.New().
		Channels(must.M1(parseInts(*flagChannels))...).
		Depth(*flagDepth).
		Seed(*flagSeed).
		Done()
	if *flagLayers {
		fmt.Println(model)
		fmt.Println(strings.Join(model.LayerNames(), "\n"))
		return
	}
	if *flagContent == "" || *flagStyles == "" {
		klog.Errorf("Flags -content and -styles are required. See 'stylekit -help'.")
		os.Exit(1)
	}
	must.M(loadOrSaveWeights(model, *flagWeights))
	must.M(run(model, settings))
}

func parseInts(list string) ([]int, error) {
	var values []int
	for _, part := range strings.Split(list, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q as a list of integers", list)
		}
		values = append(values, v)
	}
	return values, nil
}

func splitList(list string) []string {
	var parts []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// loadOrSaveWeights loads the weights file if it exists, otherwise saves the current weights to it.
func loadOrSaveWeights(model *tinyvgg.Model, path string) error {
	if path == "" {
		return nil
	}
	path, err := fsutil.ReplaceTildeInDir(path)
	if err != nil {
		return err
	}
	exists, err := fsutil.FileExists(path)
	if err != nil {
		return err
	}
	if exists {
		return model.LoadWeights(path)
	}
	klog.Infof("Weights file %q not found, saving current weights to it", path)
	return model.SaveWeights(path)
}

// styleSet holds the style images and the losses measured for each of them.
type styleSet struct {
	names  []string
	images []*tensors.Tensor
	means  []*metrics.MeanMetric
}

// logLosses logs the mean loss of each style image visited so far.
func (s *styleSet) logLosses(loop *train.Loop, _ []float64) error {
	for ii, name := range s.names {
		mean := s.means[ii]
		if mean.Count() > 0 {
			klog.Infof("Step %d: %s: %s (%d visits)", loop.LoopStep, name, mean.PrettyPrint(mean.Value()), mean.Count())
		}
	}
	return nil
}

func loadStyles(paths []string, size int) (*styleSet, error) {
	s := &styleSet{}
	for _, path := range paths {
		img, err := images.Load(path, size)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		s.names = append(s.names, name)
		s.images = append(s.images, img)
		s.means = append(s.means, metrics.NewMeanMetric(name, name, metrics.LossMetricType, nil))
	}
	return s, nil
}

// buildLoss registers the style and content layers in the encoder, and returns the perceptual loss
// combining them.
func buildLoss(model *tinyvgg.Model, encoder *encoders.MultiLayerEncoder, settings *commandline.Settings,
	guide *tensors.Tensor) (*losses.PerceptualLoss, error) {
	styleLayers := splitList(*flagStyleLayers)
	if len(styleLayers) == 0 {
		styleLayers = model.StyleLayers()
	}
	contentLayer := *flagContentLayer
	if contentLayer == "" {
		contentLayer = model.ContentLayer()
	}

	perceptual := losses.NewPerceptualLoss()
	contentEncoder, err := encoder.ExtractSingleLayerEncoder(contentLayer)
	if err != nil {
		return nil, err
	}
	perceptual.AddContent(losses.NewContentOperator(contentEncoder), commandline.GetOr(settings, "content_weight", 1.0))

	styleWeight := commandline.GetOr(settings, "style_weight", 1e3) / float64(len(styleLayers))
	normalize := commandline.GetOr(settings, "normalize_gram", true)
	for _, layer := range styleLayers {
		styleEncoder, err := encoder.ExtractSingleLayerEncoder(layer)
		if err != nil {
			return nil, err
		}
		op := losses.NewStyleOperator(styleEncoder).Normalize(normalize)
		if guide != nil {
			if err = op.SetInputGuide(guide); err != nil {
				return nil, err
			}
			if err = op.SetTargetGuide(guide); err != nil {
				return nil, err
			}
		}
		perceptual.AddStyle(op, styleWeight)
	}
	return perceptual, nil
}

func run(model *tinyvgg.Model, settings *commandline.Settings) error {
	if *flagBatch <= 0 {
		return errors.Errorf("invalid -batch=%d, it must be > 0", *flagBatch)
	}
	paths, err := fsutil.ExpandPaths(splitList(*flagStyles)...)
	if err != nil {
		return err
	}
	styles, err := loadStyles(paths, *flagSize)
	if err != nil {
		return err
	}
	contentPath, err := fsutil.ReplaceTildeInDir(*flagContent)
	if err != nil {
		return err
	}
	content, err := images.Load(contentPath, *flagSize)
	if err != nil {
		return err
	}
	input := content
	if *flagInput != "" {
		inputPath, err := fsutil.ReplaceTildeInDir(*flagInput)
		if err != nil {
			return err
		}
		if input, err = images.Load(inputPath, *flagSize); err != nil {
			return err
		}
	}
	var guide *tensors.Tensor
	if *flagGuide != "" {
		guidePath, err := fsutil.ReplaceTildeInDir(*flagGuide)
		if err != nil {
			return err
		}
		if guide, err = images.LoadGuide(guidePath, *flagSize); err != nil {
			return err
		}
	}

	encoder, err := model.NewEncoder()
	if err != nil {
		return err
	}
	perceptual, err := buildLoss(model, encoder, settings, guide)
	if err != nil {
		return err
	}
	if err = encoder.Trim(); err != nil {
		return err
	}
	klog.V(1).Infof("Encoder: %s", encoder)
	if err = perceptual.SetContentImage(content); err != nil {
		return err
	}

	numBatches := *flagBatches
	if numBatches <= 0 {
		numBatches = (len(styles.images) + *flagBatch - 1) / *flagBatch
	}
	sampler, err := datasets.NewFiniteCycleBatchSampler(len(styles.images), numBatches, *flagBatch)
	if err != nil {
		return err
	}

	loop := train.NewLoop(func(_ *train.Loop, batch []int) (float64, error) {
		var sum float64
		for _, idx := range batch {
			if err := perceptual.SetStyleImage(styles.images[idx]); err != nil {
				return 0, err
			}
			l, err := perceptual.Loss(input)
			if err != nil {
				return 0, err
			}
			klog.V(1).Infof("%s: %s", styles.names[idx], l)
			styles.means[idx].Update(l.Total)
			sum += l.Total
		}
		return sum / float64(len(batch)), nil
	},
		metrics.NewMeanMetric("Mean Loss", "~loss", metrics.LossMetricType, nil),
		metrics.NewMedianMetric("Median Loss", "med", metrics.LossMetricType, nil))
	cacheStats := func() (string, string) {
		return "Cache", fmt.Sprintf("%d activations, %s", encoder.CacheLen(), humanize.Bytes(encoder.CacheMemory()))
	}
	if !*flagQuiet {
		commandline.AttachProgressBar(loop, cacheStats)
	}
	if klog.V(1).Enabled() {
		if *flagReportEvery > 0 {
			train.EveryNSteps(loop, *flagReportEvery, "cache stats", 0, func(loop *train.Loop, _ []float64) error {
				name, value := cacheStats()
				klog.Infof("Step %d: %s: %s", loop.LoopStep, name, value)
				return nil
			})
		}
		train.ExponentialCallback(loop, 1, 2, false, "style losses", 0, styles.logLosses)
	}
	values, err := loop.Run(sampler)
	if err != nil {
		return err
	}

	fmt.Printf("%s, %d steps:\n%s\n", sampler.Name(), loop.LoopStep, commandline.SprintMetrics(loop, values))
	rows := make([][]string, 0, len(styles.names))
	for ii, name := range styles.names {
		mean := styles.means[ii]
		rows = append(rows, []string{name, strconv.Itoa(mean.Count()), mean.PrettyPrint(mean.Value())})
	}
	fmt.Println(commandline.FormatTable([]string{"Style", "Visits", "Mean loss"}, rows))
	fmt.Printf("Encoder cache: %d activations, %s\n", encoder.CacheLen(), humanize.Bytes(encoder.CacheMemory()))
	return nil
}
