// Package unavailable provides stand-in vision adapters used when model
// files are missing at startup. The API stays up and reports the condition
// per request instead of crashing the process.
package unavailable

import (
	"context"
	"fmt"
	"image"

	"github.com/farsight/personfinder/internal/core/domain"
)

type Detector struct {
	reason string
}

func NewDetector(reason string) *Detector {
	return &Detector{reason: reason}
}

func (d *Detector) DetectPersons(context.Context, image.Image) ([]domain.Detection, error) {
	return nil, domain.WrapError(domain.ErrModelUnavailable, "detect", fmt.Errorf("%s", d.reason))
}

type Pose struct {
	reason string
}

func NewPose(reason string) *Pose {
	return &Pose{reason: reason}
}

func (p *Pose) EstimateKeypoints(context.Context, image.Image) (domain.PoseKeypoints, error) {
	return nil, domain.WrapError(domain.ErrModelUnavailable, "pose", fmt.Errorf("%s", p.reason))
}

type Embedder struct {
	reason string
}

func NewEmbedder(reason string) *Embedder {
	return &Embedder{reason: reason}
}

func (e *Embedder) ExtractEmbedding(context.Context, image.Image) ([]float32, error) {
	return nil, domain.WrapError(domain.ErrModelUnavailable, "embed", fmt.Errorf("%s", e.reason))
}
