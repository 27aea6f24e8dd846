package preprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// ResizeImage scales one image against the (minDim, maxDim) constraints
// and optionally pads it to the square maxDim canvas.
//
// The scale is isotropic and may only grow the image toward minDim; the
// maxDim clamp always wins over the growth rule. Padding is centered and
// zero-filled. The returned Window records the sub-rectangle of the
// output occupied by actual image content, which is the only record the
// unmolding step needs to invert the transform.
//
// The input Mat is never modified; the returned Mat is always a fresh
// allocation owned by the caller.
//
// Arguments:
// - img: A 3-channel source image.
// - minDim: Minimum side length to grow toward, 0 to disable.
// - maxDim: Hard cap on the longest side and the padded canvas size, 0 to disable.
// - doPadding: Whether to pad the result to maxDim x maxDim.
//
// Returns:
// - The transformed image.
// - The content Window in output coordinates.
// - The isotropic scale applied.
// - The Padding insets applied (all zero when doPadding is false).
// - error wrapping common.ErrInvalidInput for unusable inputs.
//
// @example
// molded, window, scale, padding, err := preprocess.ResizeImage(img, 800, 1024, true)
func ResizeImage(
	img gocv.Mat,
	minDim, maxDim int,
	doPadding bool,
) (gocv.Mat, common.Window, float64, common.Padding, error) {
	var window common.Window
	var padding common.Padding

	if img.Empty() {
		return gocv.NewMat(), window, 0, padding,
			errors.Wrap(common.ErrInvalidInput, "image is empty")
	}
	if img.Channels() != 3 {
		return gocv.NewMat(), window, 0, padding,
			errors.Wrapf(common.ErrInvalidInput, "image has %d channels, want 3",
				img.Channels())
	}
	if minDim < 0 || maxDim < 0 {
		return gocv.NewMat(), window, 0, padding,
			errors.Wrapf(common.ErrInvalidInput, "dimension limits min=%d max=%d",
				minDim, maxDim)
	}
	if doPadding && maxDim == 0 {
		return gocv.NewMat(), window, 0, padding,
			errors.Wrap(common.ErrInvalidInput, "padding requires a max dimension")
	}

	h := img.Rows()
	w := img.Cols()
	if h <= 0 || w <= 0 {
		return gocv.NewMat(), window, 0, padding,
			errors.Wrapf(common.ErrInvalidInput, "image dimensions %dx%d", h, w)
	}

	// Scale up but not down.
	scale := 1.0
	if minDim != 0 {
		scale = math.Max(1, float64(minDim)/float64(min(h, w)))
	}
	// The max dimension clamp always wins over the growth rule.
	if maxDim != 0 {
		imageMax := max(h, w)
		if math.Round(float64(imageMax)*scale) > float64(maxDim) {
			scale = float64(maxDim) / float64(imageMax)
		}
	}

	out := gocv.NewMat()
	if scale != 1 {
		gocv.Resize(img, &out,
			image.Pt(
				int(math.Round(float64(w)*scale)),
				int(math.Round(float64(h)*scale)),
			),
			0, 0, gocv.InterpolationLinear)
	} else {
		out = img.Clone()
	}

	resizedH := out.Rows()
	resizedW := out.Cols()
	window = common.Window{Y1: 0, X1: 0, Y2: resizedH, X2: resizedW}

	if doPadding {
		padding = common.Padding{
			Top:  (maxDim - resizedH) / 2,
			Left: (maxDim - resizedW) / 2,
		}
		padding.Bottom = maxDim - resizedH - padding.Top
		padding.Right = maxDim - resizedW - padding.Left

		padded := gocv.NewMat()
		gocv.CopyMakeBorder(out, &padded,
			padding.Top, padding.Bottom, padding.Left, padding.Right,
			gocv.BorderConstant, color.RGBA{})
		out.Close()
		out = padded

		window = common.Window{
			Y1: padding.Top,
			X1: padding.Left,
			Y2: padding.Top + resizedH,
			X2: padding.Left + resizedW,
		}
	}

	return out, window, scale, padding, nil
}
