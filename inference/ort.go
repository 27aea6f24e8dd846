package inference

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// ORTConfig configures the ONNX Runtime engine.
type ORTConfig struct {
	// ModelPath is the path to the exported ONNX model.
	ModelPath string
	// LibraryPath overrides the ONNX Runtime shared library location.
	// Empty selects a platform default.
	LibraryPath string
	// InputSize is the side length of the square molded canvas the model
	// was exported with (preprocess.Config.ImageMaxDim).
	InputSize int
	// DetectionCapacity is the fixed row count of the detections buffer.
	DetectionCapacity int
	// MaskHeight and MaskWidth are the fixed mask resolution.
	MaskHeight int
	MaskWidth  int
	// NumClasses is the model's class count including background.
	NumClasses int
	// UseCoreML enables the CoreML execution provider.
	UseCoreML bool
}

// ORTEngine is an Engine backed by an ONNX Runtime session with bound
// fixed-shape input and output tensors. Device placement of the molded
// batch happens here: the bound input buffer is the accelerator-visible
// staging area, and a failed run is a fatal resource error.
type ORTEngine struct {
	session       *ort.AdvancedSession
	input         *ort.Tensor[float32]
	outDetections *ort.Tensor[float32]
	outMasks      *ort.Tensor[float32]
	cfg           ORTConfig
}

// NewORTEngine creates an ONNX Runtime engine for a Mask R-CNN export
// with input "images" [1, 3, size, size] and outputs "detections"
// [1, capacity, 6] and "mrcnn_mask" [1, capacity, maskH, maskW, classes].
//
// Arguments:
// - cfg: The engine configuration.
//
// Returns:
// - A ready engine; Close must be called when done.
// - error wrapping common.ErrFatalResource if the runtime cannot be set up.
//
// @example
//
//	engine, err := inference.NewORTEngine(inference.ORTConfig{
//	    ModelPath:         "mask_rcnn_coco.onnx",
//	    InputSize:         1024,
//	    DetectionCapacity: 100,
//	    MaskHeight:        28,
//	    MaskWidth:         28,
//	    NumClasses:        81,
//	})
//
// defer engine.Close()
func NewORTEngine(cfg ORTConfig) (*ORTEngine, error) {
	if cfg.InputSize <= 0 || cfg.DetectionCapacity <= 0 ||
		cfg.MaskHeight <= 0 || cfg.MaskWidth <= 0 || cfg.NumClasses <= 0 {
		return nil, errors.Wrapf(common.ErrInvalidInput,
			"engine config %+v", cfg)
	}

	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = defaultSharedLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrapf(common.ErrFatalResource,
			"initializing ONNX Runtime: %s", err)
	}

	input, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)))
	if err != nil {
		return nil, errors.Wrapf(common.ErrFatalResource,
			"creating input tensor: %s", err)
	}

	outDetections, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, int64(cfg.DetectionCapacity), common.DetectionColumns))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrapf(common.ErrFatalResource,
			"creating detections tensor: %s", err)
	}

	outMasks, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, int64(cfg.DetectionCapacity),
			int64(cfg.MaskHeight), int64(cfg.MaskWidth), int64(cfg.NumClasses)))
	if err != nil {
		input.Destroy()
		outDetections.Destroy()
		return nil, errors.Wrapf(common.ErrFatalResource,
			"creating masks tensor: %s", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		outDetections.Destroy()
		outMasks.Destroy()
		return nil, errors.Wrapf(common.ErrFatalResource,
			"creating session options: %s", err)
	}
	defer options.Destroy()

	if cfg.UseCoreML {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			input.Destroy()
			outDetections.Destroy()
			outMasks.Destroy()
			return nil, errors.Wrapf(common.ErrFatalResource,
				"enabling CoreML: %s", err)
		}
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"images"},
		[]string{"detections", "mrcnn_mask"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{outDetections, outMasks},
		options,
	)
	if err != nil {
		input.Destroy()
		outDetections.Destroy()
		outMasks.Destroy()
		return nil, errors.Wrapf(common.ErrFatalResource,
			"creating session: %s", err)
	}

	return &ORTEngine{
		session:       session,
		input:         input,
		outDetections: outDetections,
		outMasks:      outMasks,
		cfg:           cfg,
	}, nil
}

// Infer runs the model once per image in the molded batch. The session
// is bound to batch size 1, so a batch of N runs N times against the
// same bound tensors, snapshotting the outputs after each run.
//
// Arguments:
// - batch: The molded [N, 3, size, size] tensor from preprocess.MoldInputs.
// - metas: Per-image metadata from molding (unused by the ONNX graph,
//   carried for engines that need it).
//
// Returns:
// - Raw detections and masks per image, in batch order.
// - error wrapping common.ErrShapeMismatch for a wrong batch shape or
//   common.ErrFatalResource for a failed run.
func (e *ORTEngine) Infer(batch *tensor.Dense, metas []common.ImageMeta) (*RawOutput, error) {
	if batch == nil {
		return nil, errors.Wrap(common.ErrInvalidInput, "batch tensor is nil")
	}
	shape := batch.Shape()
	size := e.cfg.InputSize
	if len(shape) != 4 || shape[1] != 3 || shape[2] != size || shape[3] != size {
		return nil, errors.Wrapf(common.ErrShapeMismatch,
			"batch tensor has shape %v, want [N, 3, %d, %d]", shape, size, size)
	}
	data, ok := batch.Data().([]float32)
	if !ok {
		return nil, errors.Wrap(common.ErrInvalidInput, "batch tensor is not float32")
	}

	n := shape[0]
	imageLen := 3 * size * size
	detLen := e.cfg.DetectionCapacity * common.DetectionColumns
	maskLen := e.cfg.DetectionCapacity * e.cfg.MaskHeight * e.cfg.MaskWidth * e.cfg.NumClasses

	out := &RawOutput{
		Detections: make([]*tensor.Dense, 0, n),
		Masks:      make([]*tensor.Dense, 0, n),
	}
	for i := 0; i < n; i++ {
		copy(e.input.GetData(), data[i*imageLen:(i+1)*imageLen])

		if err := e.session.Run(); err != nil {
			return nil, errors.Wrapf(common.ErrFatalResource,
				"image %d: session run: %s", i, err)
		}

		detCopy := make([]float32, detLen)
		copy(detCopy, e.outDetections.GetData())
		maskCopy := make([]float32, maskLen)
		copy(maskCopy, e.outMasks.GetData())

		out.Detections = append(out.Detections, tensor.New(
			tensor.WithShape(e.cfg.DetectionCapacity, common.DetectionColumns),
			tensor.WithBacking(detCopy),
		))
		out.Masks = append(out.Masks, tensor.New(
			tensor.WithShape(e.cfg.DetectionCapacity,
				e.cfg.MaskHeight, e.cfg.MaskWidth, e.cfg.NumClasses),
			tensor.WithBacking(maskCopy),
		))
	}
	return out, nil
}

// Close releases the session and its bound tensors.
func (e *ORTEngine) Close() error {
	e.session.Destroy()
	e.input.Destroy()
	e.outDetections.Destroy()
	e.outMasks.Destroy()
	if err := ort.DestroyEnvironment(); err != nil {
		return errors.Wrapf(common.ErrFatalResource,
			"destroying ONNX Runtime environment: %s", err)
	}
	return nil
}

// defaultSharedLibPath returns the ONNX Runtime library location for the
// current platform when no override is configured.
func defaultSharedLibPath() string {
	if runtime.GOOS == "windows" {
		return "./third_party/onnxruntime.dll"
	}
	if runtime.GOOS == "darwin" {
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.dylib"
		}
		return "./third_party/onnxruntime_amd64.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}
