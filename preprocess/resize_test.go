package preprocess

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/common"
	"github.com/nvr-ai/go-maskrcnn/images"
)

func newTestMat(t *testing.T, rows, cols int) gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0),
		rows, cols, gocv.MatTypeCV8UC3)
	require.False(t, mat.Empty(), "test mat should not be empty")
	return mat
}

// TestResizeImageSquareCanvas checks that with min=max=M and padding on,
// every image molds to an exact MxM canvas with a consistent window.
func TestResizeImageSquareCanvas(t *testing.T) {
	const dim = 1024
	tests := []struct {
		name string
		h, w int
	}{
		{"landscape", 600, 800},
		{"square", 1024, 1024},
		{"portrait", 500, 300},
		{"tiny", 17, 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newTestMat(t, tt.h, tt.w)
			defer img.Close()

			out, window, scale, padding, err := ResizeImage(img, dim, dim, true)
			require.NoError(t, err, "resize should succeed")
			defer out.Close()

			assert.Equal(t, dim, out.Rows(), "canvas height should be M")
			assert.Equal(t, dim, out.Cols(), "canvas width should be M")

			assert.GreaterOrEqual(t, window.Y1, 0)
			assert.GreaterOrEqual(t, window.X1, 0)
			assert.LessOrEqual(t, window.Y2, dim)
			assert.LessOrEqual(t, window.X2, dim)

			wantH := int(math.Round(float64(tt.h) * scale))
			wantW := int(math.Round(float64(tt.w) * scale))
			assert.Equal(t, wantH, window.Height(), "window height should be round(h*scale)")
			assert.Equal(t, wantW, window.Width(), "window width should be round(w*scale)")

			assert.Equal(t, dim, padding.Top+padding.Bottom+window.Height(),
				"vertical insets plus content should fill the canvas")
			assert.Equal(t, dim, padding.Left+padding.Right+window.Width(),
				"horizontal insets plus content should fill the canvas")
		})
	}
}

// TestResizeImageIdentity checks that with no constraints and no padding
// the image passes through untouched.
func TestResizeImageIdentity(t *testing.T) {
	img := newTestMat(t, 100, 100)
	defer img.Close()
	before := images.MatChecksum(img)

	out, window, scale, padding, err := ResizeImage(img, 0, 0, false)
	require.NoError(t, err, "identity resize should succeed")
	defer out.Close()

	assert.Equal(t, 1.0, scale, "scale should stay 1")
	assert.Equal(t, common.Window{Y1: 0, X1: 0, Y2: 100, X2: 100}, window)
	assert.True(t, padding.IsZero(), "padding should be all zero")
	assert.Equal(t, before, images.MatChecksum(out), "pixels should be unchanged")
	assert.Equal(t, before, images.MatChecksum(img), "input should not be modified")
}

// TestResizeImageEndToEnd pins the exact transform for the canonical
// 600x800 input against min 800, max 1024, padding on.
func TestResizeImageEndToEnd(t *testing.T) {
	img := newTestMat(t, 600, 800)
	defer img.Close()

	out, window, scale, padding, err := ResizeImage(img, 800, 1024, true)
	require.NoError(t, err, "resize should succeed")
	defer out.Close()

	// min-dim rule asks for 800/600, but round(800*1.3333) exceeds 1024,
	// so the max-dim clamp wins: 1024/800 = 1.28.
	assert.InDelta(t, 1.28, scale, 1e-9, "max-dim clamp should win")
	assert.Equal(t, 1024, out.Rows())
	assert.Equal(t, 1024, out.Cols())
	assert.Equal(t, common.Padding{Top: 128, Bottom: 128, Left: 0, Right: 0}, padding)
	assert.Equal(t, common.Window{Y1: 128, X1: 0, Y2: 896, X2: 1024}, window)
}

// TestResizeImageGrowOnly checks the min-dim rule grows small images and
// never shrinks larger ones.
func TestResizeImageGrowOnly(t *testing.T) {
	small := newTestMat(t, 200, 400)
	defer small.Close()

	out, _, scale, _, err := ResizeImage(small, 400, 0, false)
	require.NoError(t, err)
	defer out.Close()
	assert.InDelta(t, 2.0, scale, 1e-9, "short side should grow to min dim")
	assert.Equal(t, 400, out.Rows())
	assert.Equal(t, 800, out.Cols())

	big := newTestMat(t, 500, 600)
	defer big.Close()
	out2, _, scale2, _, err := ResizeImage(big, 400, 0, false)
	require.NoError(t, err)
	defer out2.Close()
	assert.Equal(t, 1.0, scale2, "images above min dim must not shrink")
}

func TestResizeImageInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "empty image",
			run: func() error {
				empty := gocv.NewMat()
				defer empty.Close()
				_, _, _, _, err := ResizeImage(empty, 800, 1024, true)
				return err
			},
		},
		{
			name: "single channel",
			run: func() error {
				gray := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8U)
				defer gray.Close()
				_, _, _, _, err := ResizeImage(gray, 800, 1024, true)
				return err
			},
		},
		{
			name: "negative min dim",
			run: func() error {
				img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
				defer img.Close()
				_, _, _, _, err := ResizeImage(img, -1, 0, false)
				return err
			},
		},
		{
			name: "padding without max dim",
			run: func() error {
				img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
				defer img.Close()
				_, _, _, _, err := ResizeImage(img, 800, 0, true)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err, "should reject invalid input")
			assert.True(t, errors.Is(err, common.ErrInvalidInput),
				"error should classify as ErrInvalidInput, got %v", err)
		})
	}
}
