// Package detector - end-to-end orchestration of the molding pipeline:
// mold images, run the inference engine, unmold the raw output.
package detector

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/common"
	"github.com/nvr-ai/go-maskrcnn/images"
	"github.com/nvr-ai/go-maskrcnn/inference"
	"github.com/nvr-ai/go-maskrcnn/postprocess"
	"github.com/nvr-ai/go-maskrcnn/preprocess"
)

// Detector ties the three pipeline stages together around a
// caller-provided inference engine.
type Detector struct {
	cfg    preprocess.Config
	engine inference.Engine
}

// New creates a Detector.
//
// Arguments:
// - cfg: The molding configuration; must match the engine's trained model.
// - engine: The network implementation invoked between mold and unmold.
//
// Returns:
// - A ready Detector.
// - error wrapping common.ErrInvalidInput for an unusable configuration.
//
// @example
// det, err := detector.New(preprocess.COCOConfig(), engine)
func New(cfg preprocess.Config, engine inference.Engine) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.Wrap(common.ErrInvalidInput, "engine is nil")
	}
	return &Detector{cfg: cfg, engine: engine}, nil
}

// Detect runs the full pipeline over a batch of BGR images and returns
// one unmolded result per image, in input order.
//
// Arguments:
// - imgs: 3-channel 8-bit BGR source images.
//
// Returns:
// - One *postprocess.Detections per image; each owns its masks.
// - error naming the failing image index.
//
// @example
// results, err := det.Detect([]gocv.Mat{frame})
//
//	for _, r := range results {
//	    defer r.Close()
//	}
func (d *Detector) Detect(imgs []gocv.Mat) ([]*postprocess.Detections, error) {
	batch, metas, windows, err := preprocess.MoldInputs(imgs, d.cfg)
	if err != nil {
		return nil, err
	}

	raw, err := d.engine.Infer(batch, metas)
	if err != nil {
		return nil, err
	}
	if len(raw.Detections) != len(imgs) || len(raw.Masks) != len(imgs) {
		return nil, errors.Wrapf(common.ErrShapeMismatch,
			"engine produced %d detection and %d mask tensors for %d images",
			len(raw.Detections), len(raw.Masks), len(imgs))
	}

	results := make([]*postprocess.Detections, 0, len(imgs))
	for i := range imgs {
		res, err := postprocess.UnmoldDetections(
			raw.Detections[i], raw.Masks[i],
			metas[i].OriginalHeight, metas[i].OriginalWidth,
			windows[i],
		)
		if err != nil {
			for _, r := range results {
				r.Close()
			}
			return nil, errors.Wrapf(err, "image %d", i)
		}
		results = append(results, res)
	}
	return results, nil
}

// DetectImage is a convenience wrapper for a single Go-native image.
//
// Arguments:
// - img: The source image.
//
// Returns:
// - The unmolded detections for the image.
// - error from conversion or any pipeline stage.
//
// @example
// result, err := det.DetectImage(decoded)
// defer result.Close()
func (d *Detector) DetectImage(img image.Image) (*postprocess.Detections, error) {
	mat, err := images.FromImage(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	results, err := d.Detect([]gocv.Mat{mat})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// Close releases the underlying engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
