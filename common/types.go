// Package common - shared geometry and metadata types for the molding pipeline.
package common

import (
	"fmt"
	"image"
)

// SentinelClassID marks the end of valid rows in a fixed-capacity
// detections buffer. This is a hard invariant of the trained model's
// output contract: class id 0 can never name a genuine foreground class,
// because the valid-count scan stops at the first row carrying it.
const SentinelClassID = 0

// DetectionColumns is the number of columns in one detection row, in the
// fixed wire order (y1, x1, y2, x2, classId, score).
const DetectionColumns = 6

// Window identifies the sub-rectangle of the padded canvas occupied by
// actual resized image content, excluding padding. Coordinates are
// (y1, x1, y2, x2) in padded-canvas space.
type Window struct {
	Y1, X1, Y2, X2 int
}

// Height returns the vertical extent of the window.
func (w Window) Height() int { return w.Y2 - w.Y1 }

// Width returns the horizontal extent of the window.
func (w Window) Width() int { return w.X2 - w.X1 }

func (w Window) String() string {
	return fmt.Sprintf("Window (%d, %d, %d, %d)", w.Y1, w.X1, w.Y2, w.X2)
}

// Padding holds the four border insets applied when an image is padded to
// the square molded canvas. All insets are non-negative.
type Padding struct {
	Top, Bottom, Left, Right int
}

// IsZero reports whether no padding was applied.
func (p Padding) IsZero() bool {
	return p.Top == 0 && p.Bottom == 0 && p.Left == 0 && p.Right == 0
}

// ImageMeta carries the per-image facts that must survive from molding
// through to detection unmolding: the original dimensions and the Window
// are the only channel holding the inverse-transform parameters.
type ImageMeta struct {
	// ID identifies the image within a batch.
	ID int
	// OriginalHeight is the image height before molding.
	OriginalHeight int
	// OriginalWidth is the image width before molding.
	OriginalWidth int
	// Window is the content sub-rectangle in molded space.
	Window Window
	// ActiveClassIDs is a per-class activity flag vector. It is
	// zero-initialized here; callers fill it for training-time use.
	ActiveClassIDs []int32
}

// Box is an axis-aligned box (y1, x1, y2, x2) in integer pixel
// coordinates of the original image.
type Box struct {
	Y1, X1, Y2, X2 int
}

// Area returns the signed area of the box. Non-positive area marks a
// degenerate detection.
func (b Box) Area() int {
	return (b.Y2 - b.Y1) * (b.X2 - b.X1)
}

// ToRect converts the box to an image.Rectangle.
//
// Returns:
// - An image.Rectangle with canonicalized coordinates.
//
// @example
// box := Box{Y1: 10, X1: 10, Y2: 20, X2: 30}
// rect := box.ToRect() // (10,10)-(30,20)
func (b Box) ToRect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2).Canon()
}

func (b Box) String() string {
	return fmt.Sprintf("Box (%d, %d, %d, %d)", b.Y1, b.X1, b.Y2, b.X2)
}
