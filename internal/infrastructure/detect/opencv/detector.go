// Package opencv runs person detection and pose estimation through OpenCV
// DNN models. Mats are not safe for concurrent use, so every net is guarded
// by its own mutex and inference runs one frame at a time.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/farsight/personfinder/internal/core/domain"
)

const (
	detectorInputSize = 300
	personClassID     = 0
)

// PersonDetector wraps an SSD-style detection net. The net's output rows are
// [imgID, classID, confidence, x1, y1, x2, y2] with normalized coordinates.
type PersonDetector struct {
	mu                  sync.Mutex
	net                 gocv.Net
	confidenceThreshold float32
}

func NewPersonDetector(modelPath, configPath string, confidenceThreshold float64) (*PersonDetector, error) {
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("load detection net from %s: empty net", modelPath)
	}
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.5
	}
	return &PersonDetector{
		net:                 net,
		confidenceThreshold: float32(confidenceThreshold),
	}, nil
}

func (d *PersonDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func (d *PersonDetector) DetectPersons(ctx context.Context, frame image.Image) ([]domain.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "opencv.DetectPersons", fmt.Errorf("nil frame"))
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("frame to mat: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(mat, 1.0/127.5,
		image.Pt(detectorInputSize, detectorInputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	bounds := frame.Bounds()
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())

	out := prob.Reshape(1, prob.Total()/7)
	defer out.Close()

	var detections []domain.Detection
	for i := 0; i < out.Rows(); i++ {
		if int(out.GetFloatAt(i, 1)) != personClassID {
			continue
		}
		conf := out.GetFloatAt(i, 2)
		if conf < d.confidenceThreshold {
			continue
		}

		box := image.Rect(
			int(float64(out.GetFloatAt(i, 3))*width),
			int(float64(out.GetFloatAt(i, 4))*height),
			int(float64(out.GetFloatAt(i, 5))*width),
			int(float64(out.GetFloatAt(i, 6))*height),
		).Add(bounds.Min).Intersect(bounds)
		if box.Dx() <= 0 || box.Dy() <= 0 {
			continue
		}

		detections = append(detections, domain.Detection{
			Box:        box,
			Confidence: float64(conf),
		})
	}
	return detections, nil
}
