// Package images - conversions between Go-native images and OpenCV Mats.
package images

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// FromImage converts a Go-native image.Image into a 3-channel 8-bit BGR
// Mat, the in-memory layout the molding pipeline operates on.
//
// Arguments:
// - img: The source image.
//
// Returns:
// - A CV8UC3 Mat in BGR channel order.
// - error if the image is nil or has no pixels.
//
// @example
// mat, err := images.FromImage(decoded)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer mat.Close()
func FromImage(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.NewMat(), errors.Wrap(common.ErrInvalidInput, "image is nil")
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), errors.Wrapf(common.ErrInvalidInput,
			"image dimensions %dx%d", width, height)
	}

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	data, err := mat.DataPtrUint8()
	if err != nil {
		mat.Close()
		return gocv.NewMat(), errors.Wrap(common.ErrInvalidInput, err.Error())
	}

	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			data[idx] = uint8(b >> 8)
			data[idx+1] = uint8(g >> 8)
			data[idx+2] = uint8(r >> 8)
			idx += 3
		}
	}
	return mat, nil
}

// MaskToImage converts a single-channel 8-bit mask Mat into an
// image.Gray, for callers that want to composite or encode unmolded
// masks with stdlib tooling.
//
// Arguments:
// - mask: A CV8U single-channel Mat, typically an unmolded binary mask.
//
// Returns:
// - The mask as an *image.Gray.
// - error if the Mat is empty or not single-channel 8-bit.
//
// @example
// gray, err := images.MaskToImage(fullMask)
func MaskToImage(mask gocv.Mat) (*image.Gray, error) {
	if mask.Empty() {
		return nil, errors.Wrap(common.ErrInvalidInput, "mask is empty")
	}
	if mask.Channels() != 1 || mask.Type() != gocv.MatTypeCV8U {
		return nil, errors.Wrapf(common.ErrInvalidInput,
			"mask must be CV8U single-channel, got type %d with %d channels",
			mask.Type(), mask.Channels())
	}

	data, err := mask.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(common.ErrInvalidInput, err.Error())
	}

	gray := image.NewGray(image.Rect(0, 0, mask.Cols(), mask.Rows()))
	copy(gray.Pix, data)
	return gray, nil
}

// ResizeImage resizes a Go-native image with bilinear interpolation. It
// is the pure-Go twin of the Mat resize used inside the pipeline, for
// tooling built without cgo/OpenCV.
//
// Arguments:
// - img: The source image.
// - width: Target width in pixels.
// - height: Target height in pixels.
//
// Returns:
// - The resized image.
// - error if dimensions are not positive.
//
// @example
// small, err := images.ResizeImage(mask, 512, 384)
func ResizeImage(img image.Image, width, height int) (image.Image, error) {
	if img == nil {
		return nil, errors.Wrap(common.ErrInvalidInput, "image is nil")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput,
			"target dimensions %dx%d", width, height)
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear), nil
}
