// Package postprocess - inversion of raw network output back into the
// coordinate space and resolution of the original image.
package postprocess

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// maskThreshold binarizes the resized probability mask. Matches the
// threshold the model was evaluated with.
const maskThreshold = 0.5

// UnmoldMask rasterizes one small probability mask into a full-size
// binary mask: the mask is resized with bilinear interpolation to the
// box extent, thresholded at 0.5 into {0, 1}, scaled to {0, 255}, and
// pasted into a zero-filled 8-bit canvas at the box position.
//
// Boxes reaching outside the canvas are clamped: both the box and the
// matching region of the resized mask are cut to the canvas bounds
// before pasting, uniformly. A box with no canvas overlap yields an
// all-zero canvas. A paste is never allowed to write outside the canvas.
//
// Arguments:
// - mask: Probability values in [0, 1], row-major, maskH*maskW long.
// - maskH: Mask height in pixels.
// - maskW: Mask width in pixels.
// - box: Target box (y1, x1, y2, x2) in canvas coordinates.
// - canvasH: Canvas height in pixels.
// - canvasW: Canvas width in pixels.
//
// Returns:
// - The 8-bit single-channel canvas, owned by the caller.
// - error wrapping common.ErrInvalidInput or common.ErrOutOfRange.
//
// @example
// full, err := postprocess.UnmoldMask(prob, 28, 28, box, 600, 800)
func UnmoldMask(
	mask []float32,
	maskH, maskW int,
	box common.Box,
	canvasH, canvasW int,
) (gocv.Mat, error) {
	if maskH <= 0 || maskW <= 0 || len(mask) != maskH*maskW {
		return gocv.NewMat(), errors.Wrapf(common.ErrInvalidInput,
			"mask buffer has %d values for shape %dx%d", len(mask), maskH, maskW)
	}
	if canvasH <= 0 || canvasW <= 0 {
		return gocv.NewMat(), errors.Wrapf(common.ErrOutOfRange,
			"canvas %dx%d", canvasH, canvasW)
	}
	boxH := box.Y2 - box.Y1
	boxW := box.X2 - box.X1
	if boxH <= 0 || boxW <= 0 {
		return gocv.NewMat(), errors.Wrapf(common.ErrInvalidInput,
			"degenerate box %v", box)
	}

	src := gocv.NewMatWithSize(maskH, maskW, gocv.MatTypeCV32F)
	srcData, err := src.DataPtrFloat32()
	if err != nil {
		src.Close()
		return gocv.NewMat(), errors.Wrap(common.ErrInvalidInput, err.Error())
	}
	copy(srcData, mask)

	resized := gocv.NewMat()
	gocv.Resize(src, &resized, image.Pt(boxW, boxH), 0, 0, gocv.InterpolationLinear)
	src.Close()

	binary := gocv.NewMat()
	gocv.Threshold(resized, &binary, maskThreshold, 1, gocv.ThresholdBinary)
	resized.Close()
	binary.MultiplyFloat(255)

	mask8 := gocv.NewMat()
	binary.ConvertTo(&mask8, gocv.MatTypeCV8U)
	binary.Close()
	defer mask8.Close()

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0),
		canvasH, canvasW, gocv.MatTypeCV8U)

	// Clamp the destination to the canvas, and the source to match.
	dst := box.ToRect().Intersect(image.Rect(0, 0, canvasW, canvasH))
	if dst.Empty() {
		return canvas, nil
	}
	srcRect := image.Rect(
		dst.Min.X-box.X1, dst.Min.Y-box.Y1,
		dst.Max.X-box.X1, dst.Max.Y-box.Y1,
	)

	srcRegion := mask8.Region(srcRect)
	dstRegion := canvas.Region(dst)
	srcRegion.CopyTo(&dstRegion)
	srcRegion.Close()
	dstRegion.Close()

	return canvas, nil
}
