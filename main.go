package main

import (
	"fmt"
	"os"

	"github.com/8ff/prettyTimer"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-maskrcnn/detector"
	"github.com/nvr-ai/go-maskrcnn/inference"
	"github.com/nvr-ai/go-maskrcnn/preprocess"
)

var (
	modelPath = "./mask_rcnn_coco.onnx"
	imagePath = "./testdata/frame.jpg"
)

func main() {
	os.Exit(run())
}

// run executes the demo pipeline: load an image, mold it, run the ONNX
// model, and unmold boxes, scores, and masks back to image space.
//
// Returns:
// - Exit code (0 for success, 1 for error).
func run() int {
	if p := os.Getenv("MODEL_PATH"); p != "" {
		modelPath = p
	}
	if p := os.Getenv("IMAGE_PATH"); p != "" {
		imagePath = p
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		fmt.Printf("Error loading input image %s\n", imagePath)
		return 1
	}
	defer img.Close()
	fmt.Printf("Loaded image: %dx%d\n", img.Cols(), img.Rows())

	cfg := preprocess.COCOConfig()
	engine, err := inference.NewORTEngine(inference.ORTConfig{
		ModelPath:         modelPath,
		InputSize:         cfg.ImageMaxDim,
		DetectionCapacity: cfg.DetectionCapacity,
		MaskHeight:        cfg.MaskHeight,
		MaskWidth:         cfg.MaskWidth,
		NumClasses:        cfg.NumClasses,
		UseCoreML:         os.Getenv("USE_COREML") == "true",
	})
	if err != nil {
		fmt.Printf("Error creating engine: %s\n", err)
		return 1
	}

	det, err := detector.New(cfg, engine)
	if err != nil {
		fmt.Printf("Error creating detector: %s\n", err)
		return 1
	}
	defer det.Close()

	timingStats := prettyTimer.NewTimingStats()
	for i := 0; i < 5; i++ {
		timingStats.Start()
		results, err := det.Detect([]gocv.Mat{img})
		if err != nil {
			fmt.Printf("Error running detection: %s\n", err)
			return 1
		}
		timingStats.Finish()

		fmt.Printf("\n--- Detection %d Results ---\n", i+1)
		res := results[0]
		for j := range res.Boxes {
			fmt.Printf("Detection %d: class %d score %.3f %s\n",
				j, res.ClassIDs[j], res.Scores[j], res.Boxes[j])
		}
		fmt.Printf("Total detections: %d\n", len(res.Boxes))
		res.Close()
	}

	timingStats.PrintStats()
	return 0
}
