package preprocess

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// moldedImage is the per-image intermediate carried between the fan-out
// workers and the batch stacking step.
type moldedImage struct {
	planar []float32
	height int
	width  int
	window common.Window
	meta   common.ImageMeta
}

// reorderToPlanar converts an interleaved 3-channel pixel buffer into a
// channel-planar float32 buffer. Output plane p is fed by source channel
// perm[p]; with BGR input, perm {2, 1, 0} yields RGB planes.
//
// Arguments:
// - data: Interleaved pixel data, height*width*3 bytes.
// - height: Image height in pixels.
// - width: Image width in pixels.
// - perm: Source channel index feeding each output plane.
//
// Returns:
// - A planar float32 buffer of length 3*height*width.
//
// @example
// planar := reorderToPlanar(bgr, h, w, [3]int{2, 1, 0})
func reorderToPlanar(data []uint8, height, width int, perm [3]int) []float32 {
	planeSize := height * width
	planar := make([]float32, 3*planeSize)
	for p := 0; p < 3; p++ {
		src := perm[p]
		out := planar[p*planeSize : (p+1)*planeSize]
		for i := 0; i < planeSize; i++ {
			out[i] = float32(data[i*3+src])
		}
	}
	return planar
}

// meanForPlane returns the configured mean pixel value for output plane
// p. Config.MeanPixel is in RGB order while the source image is BGR, so
// the source channel selected by the permutation is mapped to its mean
// explicitly: BGR channel c holds the color at RGB index 2-c.
func meanForPlane(cfg Config, p int) float32 {
	srcChannel := cfg.ChannelPermutation[p]
	return cfg.MeanPixel[2-srcChannel]
}

// MoldImage converts one BGR image into the float32 channel-planar
// buffer the network consumes: the per-channel mean pixel is subtracted
// and the interleaved pixels are reordered into planes following the
// configured permutation.
//
// Arguments:
// - img: A 3-channel 8-bit BGR image, already resized/padded.
// - cfg: The pipeline configuration.
//
// Returns:
// - A planar float32 buffer of length 3*rows*cols.
// - error wrapping common.ErrInvalidInput for unusable images.
//
// @example
// planar, err := preprocess.MoldImage(molded, cfg)
func MoldImage(img gocv.Mat, cfg Config) ([]float32, error) {
	if img.Empty() {
		return nil, errors.Wrap(common.ErrInvalidInput, "image is empty")
	}
	if img.Channels() != 3 || img.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Wrapf(common.ErrInvalidInput,
			"image must be CV8UC3, got type %d with %d channels",
			img.Type(), img.Channels())
	}

	data, err := img.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(common.ErrInvalidInput, err.Error())
	}

	height := img.Rows()
	width := img.Cols()
	planar := reorderToPlanar(data, height, width, cfg.ChannelPermutation)

	planeSize := height * width
	for p := 0; p < 3; p++ {
		mean := meanForPlane(cfg, p)
		plane := planar[p*planeSize : (p+1)*planeSize]
		for i := range plane {
			plane[i] -= mean
		}
	}
	return planar, nil
}

// MoldInputs resizes, normalizes, and batches a set of images into one
// [N, 3, H, W] tensor, along with the per-image metadata and windows the
// unmolding step needs to invert the transform.
//
// Per-image molding is fanned out across a bounded worker pool since
// each image is independent. Batching more than one image requires
// identical molded dimensions, which the configuration guarantees only
// with ImagePadding enabled.
//
// Arguments:
// - imgs: The source images, 3-channel 8-bit BGR.
// - cfg: The pipeline configuration.
//
// Returns:
// - The molded batch tensor of shape [N, 3, H, W].
// - Per-image ImageMeta, in input order.
// - Per-image content Windows, in input order.
// - error naming the failing image index.
//
// @example
// molded, metas, windows, err := preprocess.MoldInputs(imgs, preprocess.COCOConfig())
func MoldInputs(
	imgs []gocv.Mat,
	cfg Config,
) (*tensor.Dense, []common.ImageMeta, []common.Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if len(imgs) == 0 {
		return nil, nil, nil, errors.Wrap(common.ErrInvalidInput, "no images")
	}

	workers := cfg.MoldWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	molded := make([]moldedImage, len(imgs))
	moldErrs := make([]error, len(imgs))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range imgs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			molded[idx], moldErrs[idx] = moldOne(imgs[idx], idx, cfg)
		}(i)
	}
	wg.Wait()

	for _, err := range moldErrs {
		if err != nil {
			return nil, nil, nil, err
		}
	}

	// Batching requires one fixed shape across the batch.
	height := molded[0].height
	width := molded[0].width
	for i := 1; i < len(molded); i++ {
		if molded[i].height != height || molded[i].width != width {
			return nil, nil, nil, errors.Wrapf(common.ErrShapeMismatch,
				"image %d molded to %dx%d, batch is %dx%d (is ImagePadding enabled?)",
				i, molded[i].height, molded[i].width, height, width)
		}
	}

	planeCount := 3 * height * width
	backing := make([]float32, len(molded)*planeCount)
	metas := make([]common.ImageMeta, len(molded))
	windows := make([]common.Window, len(molded))
	for i := range molded {
		copy(backing[i*planeCount:(i+1)*planeCount], molded[i].planar)
		metas[i] = molded[i].meta
		windows[i] = molded[i].window
	}

	batch := tensor.New(
		tensor.WithShape(len(molded), 3, height, width),
		tensor.WithBacking(backing),
	)
	return batch, metas, windows, nil
}

// moldOne runs the resize and normalize steps for a single image.
func moldOne(img gocv.Mat, idx int, cfg Config) (moldedImage, error) {
	resized, window, _, _, err := ResizeImage(
		img, cfg.ImageMinDim, cfg.ImageMaxDim, cfg.ImagePadding)
	if err != nil {
		return moldedImage{}, errors.Wrapf(err, "image %d", idx)
	}
	defer resized.Close()

	planar, err := MoldImage(resized, cfg)
	if err != nil {
		return moldedImage{}, errors.Wrapf(err, "image %d", idx)
	}

	return moldedImage{
		planar: planar,
		height: resized.Rows(),
		width:  resized.Cols(),
		window: window,
		meta: common.ImageMeta{
			ID:             idx,
			OriginalHeight: img.Rows(),
			OriginalWidth:  img.Cols(),
			Window:         window,
			ActiveClassIDs: make([]int32, cfg.NumClasses),
		},
	}, nil
}
