package preprocess

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// zeroBorder is the constant fill used for padded mask borders.
var zeroBorder = color.RGBA{}

// ResizeMasks applies the same scale and padding insets as ResizeImage
// to a set of ground-truth masks, keeping them pixel-aligned with the
// molded image during training data preparation. Any image/mask pair
// processed with the same scale and padding values stays aligned.
//
// Arguments:
// - masks: Full-resolution masks to transform.
// - scale: The isotropic scale reported by ResizeImage.
// - padding: The insets reported by ResizeImage.
//
// Returns:
// - The transformed masks, in input order, owned by the caller.
// - error wrapping common.ErrInvalidInput naming the failing mask index.
//
// @example
// aligned, err := preprocess.ResizeMasks(gtMasks, scale, padding)
func ResizeMasks(masks []gocv.Mat, scale float64, padding common.Padding) ([]gocv.Mat, error) {
	if scale <= 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput, "scale %f", scale)
	}
	if padding.Top < 0 || padding.Bottom < 0 || padding.Left < 0 || padding.Right < 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput, "negative padding %+v", padding)
	}

	out := make([]gocv.Mat, 0, len(masks))
	for i, mask := range masks {
		if mask.Empty() {
			closeMats(out)
			return nil, errors.Wrapf(common.ErrInvalidInput, "mask %d is empty", i)
		}

		resized := gocv.NewMat()
		gocv.Resize(mask, &resized,
			image.Pt(
				int(math.Round(float64(mask.Cols())*scale)),
				int(math.Round(float64(mask.Rows())*scale)),
			),
			0, 0, gocv.InterpolationLinear)

		if !padding.IsZero() {
			padded := gocv.NewMat()
			gocv.CopyMakeBorder(resized, &padded,
				padding.Top, padding.Bottom, padding.Left, padding.Right,
				gocv.BorderConstant, zeroBorder)
			resized.Close()
			resized = padded
		}
		out = append(out, resized)
	}
	return out, nil
}

// ResizeMaskImages is the pure-Go twin of ResizeMasks for tooling built
// without cgo/OpenCV: bilinear resize of Go-native masks by the scale,
// then the identical padding insets with zero fill.
//
// Arguments:
// - masks: Full-resolution masks to transform.
// - scale: The isotropic scale reported by ResizeImage.
// - padding: The insets reported by ResizeImage.
//
// Returns:
// - The transformed masks as grayscale images, in input order.
// - error wrapping common.ErrInvalidInput naming the failing mask index.
//
// @example
// aligned, err := preprocess.ResizeMaskImages(gtMasks, scale, padding)
func ResizeMaskImages(
	masks []image.Image,
	scale float64,
	padding common.Padding,
) ([]image.Image, error) {
	if scale <= 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput, "scale %f", scale)
	}
	if padding.Top < 0 || padding.Bottom < 0 || padding.Left < 0 || padding.Right < 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput, "negative padding %+v", padding)
	}

	out := make([]image.Image, 0, len(masks))
	for i, mask := range masks {
		if mask == nil {
			return nil, errors.Wrapf(common.ErrInvalidInput, "mask %d is nil", i)
		}
		bounds := mask.Bounds()
		newW := int(math.Round(float64(bounds.Dx()) * scale))
		newH := int(math.Round(float64(bounds.Dy()) * scale))
		resized := resize.Resize(uint(newW), uint(newH), mask, resize.Bilinear)

		if padding.IsZero() {
			out = append(out, resized)
			continue
		}

		canvas := image.NewGray(image.Rect(0, 0,
			padding.Left+newW+padding.Right,
			padding.Top+newH+padding.Bottom))
		draw.Draw(canvas,
			image.Rect(padding.Left, padding.Top, padding.Left+newW, padding.Top+newH),
			resized, image.Point{}, draw.Src)
		out = append(out, canvas)
	}
	return out, nil
}

func closeMats(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}
