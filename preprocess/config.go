// Package preprocess - molding of raw images into the fixed-size batched
// tensor an instance segmentation network consumes.
package preprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// Config holds every knob the molding pipeline reads. It is an explicit
// immutable value passed into every call; there is no process-wide state.
type Config struct {
	// Name of the model configuration for debugging purposes.
	Name string
	// MeanPixel is the per-channel mean subtracted during molding, given
	// in RGB order as published with the trained weights. Images are BGR
	// in memory; the subtraction maps each mean to its matching channel
	// explicitly (see meanForPlane), never by index coincidence.
	MeanPixel [3]float32
	// ImageMinDim is the minimum side length the resizer grows images
	// toward. Zero disables the rule.
	ImageMinDim int
	// ImageMaxDim is the side length of the square molded canvas and the
	// hard cap on the longest image side. Zero disables the rule.
	ImageMaxDim int
	// ImagePadding pads resized images to ImageMaxDim x ImageMaxDim.
	// Required for batching more than one image.
	ImagePadding bool
	// NumClasses is the class count of the trained model, including the
	// background class at id 0.
	NumClasses int
	// DetectionCapacity is the fixed row count of the network's raw
	// detections buffer.
	DetectionCapacity int
	// MaskHeight and MaskWidth are the fixed resolution of the network's
	// per-instance probability masks.
	MaskHeight int
	MaskWidth  int
	// ChannelPermutation selects, for each output plane, the source BGR
	// channel feeding it. The trained model's input convention is a fixed
	// contract; the default {2, 1, 0} produces RGB planes from BGR pixels.
	ChannelPermutation [3]int
	// MoldWorkers bounds the per-image molding fan-out in MoldInputs.
	// Zero means one worker per available CPU.
	MoldWorkers int
}

// Validate checks the configuration for values the pipeline cannot
// operate with.
//
// Returns:
// - error wrapping common.ErrInvalidInput when a field is unusable.
//
// @example
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
func (c Config) Validate() error {
	if c.ImageMinDim < 0 || c.ImageMaxDim < 0 {
		return errors.Wrapf(common.ErrInvalidInput,
			"dimension limits min=%d max=%d", c.ImageMinDim, c.ImageMaxDim)
	}
	if c.ImagePadding && c.ImageMaxDim == 0 {
		return errors.Wrap(common.ErrInvalidInput,
			"padding requires a max dimension")
	}
	if c.NumClasses <= 0 {
		return errors.Wrapf(common.ErrInvalidInput, "num classes %d", c.NumClasses)
	}
	if c.DetectionCapacity <= 0 {
		return errors.Wrapf(common.ErrInvalidInput,
			"detection capacity %d", c.DetectionCapacity)
	}
	if c.MaskHeight <= 0 || c.MaskWidth <= 0 {
		return errors.Wrapf(common.ErrInvalidInput,
			"mask shape %dx%d", c.MaskHeight, c.MaskWidth)
	}
	var seen [3]bool
	for _, ch := range c.ChannelPermutation {
		if ch < 0 || ch > 2 || seen[ch] {
			return errors.Wrapf(common.ErrInvalidInput,
				"channel permutation %v is not a permutation of {0,1,2}",
				c.ChannelPermutation)
		}
		seen[ch] = true
	}
	if c.MoldWorkers < 0 {
		return errors.Wrapf(common.ErrInvalidInput, "mold workers %d", c.MoldWorkers)
	}
	return nil
}

// COCOConfig returns the standard configuration for Mask R-CNN weights
// trained on the COCO dataset.
//
// Returns:
// - A Config matching the published COCO training setup.
//
// @example
// cfg := preprocess.COCOConfig()
// molded, metas, windows, err := preprocess.MoldInputs(images, cfg)
func COCOConfig() Config {
	return Config{
		Name:               "mask-rcnn-coco",
		MeanPixel:          [3]float32{123.7, 116.8, 103.9},
		ImageMinDim:        800,
		ImageMaxDim:        1024,
		ImagePadding:       true,
		NumClasses:         81,
		DetectionCapacity:  100,
		MaskHeight:         28,
		MaskWidth:          28,
		ChannelPermutation: [3]int{2, 1, 0},
	}
}
