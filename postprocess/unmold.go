package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// Detections is the unmolded result for one image. The four fields are
// parallel: index i names the same detection in each of them. When no
// detection survives, every field is a non-nil empty slice.
type Detections struct {
	// Boxes in integer original-image pixel coordinates.
	Boxes []common.Box
	// ClassIDs of the detections.
	ClassIDs []int64
	// Scores are the detection confidences.
	Scores []float32
	// Masks are full-resolution binary masks, one per detection, sized
	// to the original image. Owned by the caller.
	Masks []gocv.Mat
}

// Close releases the mask Mats held by the result.
func (d *Detections) Close() {
	for i := range d.Masks {
		d.Masks[i].Close()
	}
	d.Masks = d.Masks[:0]
}

// UnmoldDetections converts one image's raw network output back into
// original-image space.
//
// The detections tensor is a fixed-capacity buffer of rows
// (y1, x1, y2, x2, classId, score); valid rows are a contiguous prefix
// ending at the first row whose class id is the sentinel 0, regardless
// of what later rows contain. For each valid detection the mask channel
// matching that detection's own class id is gathered, the box is mapped
// from molded to original coordinates using the Window recorded at mold
// time, zero-area boxes are dropped preserving order, and each survivor
// is rasterized to a full-resolution binary mask.
//
// Arguments:
// - detections: Raw detections tensor of shape [capacity, 6].
// - rawMasks: Raw masks tensor of shape [capacity, maskH, maskW, numClasses].
// - origHeight: Original image height.
// - origWidth: Original image width.
// - window: The content Window recorded by the resizer for this image.
//
// Returns:
// - The unmolded Detections, with well-formed empty slices when nothing survives.
// - error wrapping common.ErrShapeMismatch or common.ErrInvalidInput,
//   naming the offending tensor or detection index.
//
// @example
// result, err := postprocess.UnmoldDetections(det, masks, 600, 800, window)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer result.Close()
func UnmoldDetections(
	detections *tensor.Dense,
	rawMasks *tensor.Dense,
	origHeight, origWidth int,
	window common.Window,
) (*Detections, error) {
	if origHeight <= 0 || origWidth <= 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput,
			"original image %dx%d", origHeight, origWidth)
	}
	if window.Height() <= 0 || window.Width() <= 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput, "empty %v", window)
	}

	detData, capacity, err := checkDetectionsShape(detections)
	if err != nil {
		return nil, err
	}
	maskData, maskH, maskW, numClasses, err := checkMasksShape(rawMasks, capacity)
	if err != nil {
		return nil, err
	}

	// The detections buffer is padded with sentinel rows: valid rows are
	// the contiguous prefix before the first class id 0.
	n := capacity
	for i := 0; i < capacity; i++ {
		if detData[i*common.DetectionColumns+4] == common.SentinelClassID {
			n = i
			break
		}
	}

	// Recover the single isotropic scale from the window. Two ratios are
	// computed but rounding may have made them differ slightly; the
	// smaller one is the scale that was actually applied.
	hScale := float32(origHeight) / float32(window.Height())
	wScale := float32(origWidth) / float32(window.Width())
	scale := math32.Min(hScale, wScale)

	result := &Detections{
		Boxes:    make([]common.Box, 0, n),
		ClassIDs: make([]int64, 0, n),
		Scores:   make([]float32, 0, n),
		Masks:    make([]gocv.Mat, 0, n),
	}

	maskSize := maskH * maskW
	for i := 0; i < n; i++ {
		row := detData[i*common.DetectionColumns : (i+1)*common.DetectionColumns]
		classID := int64(row[4])

		box := common.Box{
			Y1: int(math32.Round((row[0] - float32(window.Y1)) * scale)),
			X1: int(math32.Round((row[1] - float32(window.X1)) * scale)),
			Y2: int(math32.Round((row[2] - float32(window.Y1)) * scale)),
			X2: int(math32.Round((row[3] - float32(window.X1)) * scale)),
		}

		// Zero-area boxes mostly show up early in training when the
		// network weights are still close to random.
		if box.Area() <= 0 {
			continue
		}

		if classID < 0 || classID >= int64(numClasses) {
			result.Close()
			return nil, errors.Wrapf(common.ErrInvalidInput,
				"detection %d: class id %d outside [0, %d)", i, classID, numClasses)
		}

		// Gather the probability plane matching this detection's own
		// class id, not a fixed channel.
		gathered := make([]float32, maskSize)
		base := i * maskSize * numClasses
		for px := 0; px < maskSize; px++ {
			gathered[px] = maskData[base+px*numClasses+int(classID)]
		}

		fullMask, err := UnmoldMask(gathered, maskH, maskW, box, origHeight, origWidth)
		if err != nil {
			result.Close()
			return nil, errors.Wrapf(err, "detection %d", i)
		}

		result.Boxes = append(result.Boxes, box)
		result.ClassIDs = append(result.ClassIDs, classID)
		result.Scores = append(result.Scores, row[5])
		result.Masks = append(result.Masks, fullMask)
	}

	return result, nil
}

// checkDetectionsShape validates the raw detections tensor and returns
// its flat float32 backing and row capacity.
func checkDetectionsShape(detections *tensor.Dense) ([]float32, int, error) {
	if detections == nil {
		return nil, 0, errors.Wrap(common.ErrInvalidInput, "detections tensor is nil")
	}
	shape := detections.Shape()
	if len(shape) != 2 || shape[1] != common.DetectionColumns {
		return nil, 0, errors.Wrapf(common.ErrShapeMismatch,
			"detections tensor has shape %v, want [capacity, %d]",
			shape, common.DetectionColumns)
	}
	data, ok := detections.Data().([]float32)
	if !ok {
		return nil, 0, errors.Wrap(common.ErrInvalidInput,
			"detections tensor is not float32")
	}
	return data, shape[0], nil
}

// checkMasksShape validates the raw masks tensor against the detections
// capacity and returns its flat backing plus dimensions.
func checkMasksShape(rawMasks *tensor.Dense, capacity int) ([]float32, int, int, int, error) {
	if rawMasks == nil {
		return nil, 0, 0, 0, errors.Wrap(common.ErrInvalidInput, "masks tensor is nil")
	}
	shape := rawMasks.Shape()
	if len(shape) != 4 {
		return nil, 0, 0, 0, errors.Wrapf(common.ErrShapeMismatch,
			"masks tensor has rank %d, want 4", len(shape))
	}
	if shape[0] != capacity {
		return nil, 0, 0, 0, errors.Wrapf(common.ErrShapeMismatch,
			"masks capacity %d does not match detections capacity %d",
			shape[0], capacity)
	}
	data, ok := rawMasks.Data().([]float32)
	if !ok {
		return nil, 0, 0, 0, errors.Wrap(common.ErrInvalidInput,
			"masks tensor is not float32")
	}
	return data, shape[1], shape[2], shape[3], nil
}
