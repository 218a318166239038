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
	poseInputSize         = 256
	keypointConfidenceMin = 0.1
)

// PoseEstimator wraps a heatmap-based pose net that emits one heatmap per
// COCO keypoint. The peak of each heatmap becomes the keypoint position,
// scaled back into crop coordinates.
type PoseEstimator struct {
	mu  sync.Mutex
	net gocv.Net
}

func NewPoseEstimator(modelPath string) (*PoseEstimator, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("load pose net from %s: empty net", modelPath)
	}
	return &PoseEstimator{net: net}, nil
}

func (p *PoseEstimator) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.net.Close()
}

// EstimateKeypoints returns flattened [x, y, confidence] triples for all 17
// COCO keypoints in crop coordinates. A crop where no heatmap clears the
// confidence floor yields (nil, nil): no pose, not a failure.
func (p *PoseEstimator) EstimateKeypoints(ctx context.Context, crop image.Image) (domain.PoseKeypoints, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if crop == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "opencv.EstimateKeypoints", fmt.Errorf("nil crop"))
	}

	mat, err := gocv.ImageToMatRGB(crop)
	if err != nil {
		return nil, fmt.Errorf("crop to mat: %w", err)
	}
	defer mat.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(poseInputSize, poseInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	p.net.SetInput(blob, "")
	heatmaps := p.net.Forward("")
	defer heatmaps.Close()

	sizes := heatmaps.Size()
	if len(sizes) != 4 || sizes[1] < domain.KeypointCount {
		return nil, fmt.Errorf("unexpected pose output shape %v", sizes)
	}

	bounds := crop.Bounds()
	keypoints := make(domain.PoseKeypoints, 0, domain.KeypointCount*3)
	anyFound := false
	for k := 0; k < domain.KeypointCount; k++ {
		channel := gocv.GetBlobChannel(heatmaps, 0, k)
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(channel)
		scaleX := float32(bounds.Dx()) / float32(channel.Cols())
		scaleY := float32(bounds.Dy()) / float32(channel.Rows())
		channel.Close()

		if maxVal >= keypointConfidenceMin {
			anyFound = true
		}
		keypoints = append(keypoints,
			float32(maxLoc.X)*scaleX,
			float32(maxLoc.Y)*scaleY,
			maxVal,
		)
	}
	if !anyFound {
		return nil, nil
	}
	return keypoints, nil
}
