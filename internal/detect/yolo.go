package detect

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"platetrack/internal/domain/plate"
)

// YOLOConfig holds the settings for the ONNX plate model.
type YOLOConfig struct {
	ModelPath   string
	NMSThresh   float32
	InputWidth  int
	InputHeight int
}

func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:   "models/plate.onnx",
		NMSThresh:   0.45,
		InputWidth:  640,
		InputHeight: 640,
	}
}

// YOLODetector runs a single-class YOLOv8 plate model through the OpenCV
// DNN module.
type YOLODetector struct {
	net       gocv.Net
	cfg       YOLOConfig
	inputSize image.Point
}

func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load plate model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		cfg:       cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

func (d *YOLODetector) Close() error {
	return d.net.Close()
}

func (d *YOLODetector) Detect(frame gocv.Mat, confThreshold float64) ([]Result, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	imgW := float32(frame.Cols())
	imgH := float32(frame.Rows())

	blob := gocv.BlobFromImage(frame, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	boxes, confidences := d.parseOutput(output, imgW, imgH, float32(confThreshold))
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, float32(confThreshold), d.cfg.NMSThresh)

	results := make([]Result, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		b := plate.Box{
			X: float64(box.Min.X),
			Y: float64(box.Min.Y),
			W: float64(box.Dx()),
			H: float64(box.Dy()),
		}
		crop, err := encodeCrop(frame, b)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			Box:        b,
			Confidence: float64(confidences[idx]),
			Crop:       crop,
		})
	}
	return results, nil
}

// parseOutput reads the YOLOv8 output tensor. For a single-class model the
// shape is [1, 5, N]: 4 box coordinates plus one class score per candidate,
// laid out column-major.
func (d *YOLODetector) parseOutput(output gocv.Mat, imgW, imgH, confThreshold float32) ([]image.Rectangle, []float32) {
	rows := output.Cols() // candidates
	cols := output.Rows() // 4 + classes

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, nil
	}

	var boxes []image.Rectangle
	var confidences []float32
	for i := 0; i < rows; i++ {
		score := float32(0)
		for c := 4; c < cols; c++ {
			if s := data[c*rows+i]; s > score {
				score = s
			}
		}
		if score < confThreshold {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * imgW / float32(d.cfg.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.cfg.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.cfg.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.cfg.InputHeight))

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, score)
	}
	return boxes, confidences
}
