// Package inference - the black-box seam between molding and unmolding.
// A network implementation consumes the molded batch tensor and produces
// the raw fixed-capacity detection and mask buffers.
package inference

import (
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-maskrcnn/common"
)

// RawOutput is the network's raw output for one molded batch, one entry
// per image in batch order.
//
// Wire contracts, reproduced bit-for-bit from the trained model:
//   - Detections[i] has shape [capacity, 6] with columns
//     (y1, x1, y2, x2, classId, score) and class id 0 as the
//     "no detection" sentinel padding the tail of the buffer.
//   - Masks[i] has shape [capacity, maskH, maskW, numClasses].
type RawOutput struct {
	Detections []*tensor.Dense
	Masks      []*tensor.Dense
}

// Engine runs network inference over a molded batch. The call is the
// only blocking, non-deterministic step of the pipeline; failures are
// fatal to the request, surfaced as common.ErrFatalResource, and never
// retried internally.
type Engine interface {
	// Infer runs the network over a molded [N, 3, H, W] batch.
	Infer(batch *tensor.Dense, metas []common.ImageMeta) (*RawOutput, error)
	// Close releases the engine's resources.
	Close() error
}
