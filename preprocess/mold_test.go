package preprocess

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/common"
)

func testConfig() Config {
	cfg := COCOConfig()
	cfg.NumClasses = 4
	cfg.DetectionCapacity = 8
	return cfg
}

// TestReorderToPlanar pins the interleaved-to-planar permutation on a
// hand-built two-pixel buffer.
func TestReorderToPlanar(t *testing.T) {
	// Two BGR pixels: (10, 20, 30) and (11, 21, 31).
	data := []uint8{10, 20, 30, 11, 21, 31}

	planar := reorderToPlanar(data, 1, 2, [3]int{2, 1, 0})
	assert.Equal(t, []float32{30, 31, 20, 21, 10, 11}, planar,
		"perm {2,1,0} should yield R, G, B planes from BGR pixels")

	identity := reorderToPlanar(data, 1, 2, [3]int{0, 1, 2})
	assert.Equal(t, []float32{10, 11, 20, 21, 30, 31}, identity,
		"identity perm should keep BGR plane order")
}

// TestMoldImageChannelContract verifies the fixed channel contract: the
// RGB-order mean is applied to the matching BGR channel before the
// planes are emitted in configured order. A mismatch here corrupts
// results silently downstream, so it is pinned exactly.
func TestMoldImageChannelContract(t *testing.T) {
	img := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
	defer img.Close()
	data, err := img.DataPtrUint8()
	require.NoError(t, err)
	// One BGR pixel: B=10, G=20, R=30.
	data[0], data[1], data[2] = 10, 20, 30

	cfg := testConfig()
	cfg.MeanPixel = [3]float32{1, 2, 3} // RGB order.

	planar, err := MoldImage(img, cfg)
	require.NoError(t, err, "mold should succeed")
	require.Len(t, planar, 3)

	assert.Equal(t, float32(29), planar[0], "plane 0 should be R - meanR")
	assert.Equal(t, float32(18), planar[1], "plane 1 should be G - meanG")
	assert.Equal(t, float32(7), planar[2], "plane 2 should be B - meanB")
}

func TestMoldImageInvalidInput(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	_, err := MoldImage(empty, testConfig())
	assert.True(t, errors.Is(err, common.ErrInvalidInput), "empty mat should be rejected")

	gray := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8U)
	defer gray.Close()
	_, err = MoldImage(gray, testConfig())
	assert.True(t, errors.Is(err, common.ErrInvalidInput), "single channel should be rejected")
}

// TestMoldInputs checks batching of two differently sized images into
// one fixed-shape tensor with per-image metadata.
func TestMoldInputs(t *testing.T) {
	a := newTestMat(t, 600, 800)
	defer a.Close()
	b := newTestMat(t, 300, 500)
	defer b.Close()

	cfg := testConfig()
	batch, metas, windows, err := MoldInputs([]gocv.Mat{a, b}, cfg)
	require.NoError(t, err, "molding should succeed")

	assert.Equal(t, []int(batch.Shape()), []int{2, 3, 1024, 1024},
		"batch should stack into one [N,3,H,W] tensor")

	require.Len(t, metas, 2)
	require.Len(t, windows, 2)

	assert.Equal(t, 0, metas[0].ID)
	assert.Equal(t, 1, metas[1].ID)
	assert.Equal(t, 600, metas[0].OriginalHeight)
	assert.Equal(t, 800, metas[0].OriginalWidth)
	assert.Equal(t, 300, metas[1].OriginalHeight)
	assert.Equal(t, 500, metas[1].OriginalWidth)

	for i := range metas {
		assert.Equal(t, windows[i], metas[i].Window,
			"meta window should match the returned window")
		require.Len(t, metas[i].ActiveClassIDs, cfg.NumClasses,
			"class activity vector should span all classes")
		for _, flag := range metas[i].ActiveClassIDs {
			assert.Zero(t, flag, "class activity vector should be zero-initialized")
		}
	}

	assert.Equal(t, common.Window{Y1: 128, X1: 0, Y2: 896, X2: 1024}, windows[0])
}

// TestMoldInputsShapeMismatch checks that unpadded images of differing
// sizes cannot be batched and that the error names the image.
func TestMoldInputsShapeMismatch(t *testing.T) {
	a := newTestMat(t, 100, 100)
	defer a.Close()
	b := newTestMat(t, 120, 100)
	defer b.Close()

	cfg := testConfig()
	cfg.ImageMinDim = 0
	cfg.ImageMaxDim = 0
	cfg.ImagePadding = false

	_, _, _, err := MoldInputs([]gocv.Mat{a, b}, cfg)
	require.Error(t, err, "differing molded shapes must not batch")
	assert.True(t, errors.Is(err, common.ErrShapeMismatch))
	assert.Contains(t, err.Error(), "image 1", "error should localize the image")
}

func TestMoldInputsEmptyBatch(t *testing.T) {
	_, _, _, err := MoldInputs(nil, testConfig())
	assert.True(t, errors.Is(err, common.ErrInvalidInput), "empty batch should be rejected")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative min dim", func(c *Config) { c.ImageMinDim = -1 }},
		{"padding without max dim", func(c *Config) { c.ImageMaxDim = 0 }},
		{"zero classes", func(c *Config) { c.NumClasses = 0 }},
		{"zero capacity", func(c *Config) { c.DetectionCapacity = 0 }},
		{"zero mask shape", func(c *Config) { c.MaskHeight = 0 }},
		{"repeated channel", func(c *Config) { c.ChannelPermutation = [3]int{0, 0, 2} }},
		{"channel out of range", func(c *Config) { c.ChannelPermutation = [3]int{0, 1, 3} }},
		{"negative workers", func(c *Config) { c.MoldWorkers = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := COCOConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err, "config should be rejected")
			assert.True(t, errors.Is(err, common.ErrInvalidInput))
		})
	}

	assert.NoError(t, COCOConfig().Validate(), "stock config should validate")
}
