package ports

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/farsight/personfinder/internal/core/domain"
)

// PipelineObserver receives per-frame pipeline telemetry. Implementations
// must be safe for concurrent use.
type PipelineObserver interface {
	FrameProcessed(detected int)
	InferenceDone(stage string, elapsed time.Duration)
}

// PersonDetector finds person bounding boxes in a frame.
type PersonDetector interface {
	DetectPersons(ctx context.Context, frame image.Image) ([]domain.Detection, error)
}

// PoseEstimator returns COCO-17 keypoints for a person crop. A nil sequence
// with a nil error means no pose was found; that is not a failure.
type PoseEstimator interface {
	EstimateKeypoints(ctx context.Context, crop image.Image) (domain.PoseKeypoints, error)
}

// ColorClassifier maps a pixel region to a discrete color label.
type ColorClassifier interface {
	Classify(region image.Image) string
}

// SimilarityProvider scores a person crop against a free-text description.
// It is an optional capability; absence removes the semantic factor entirely.
type SimilarityProvider interface {
	Similarity(ctx context.Context, crop image.Image, description string) (float64, error)
}

// FaceEmbedder extracts the first detected face's embedding from an image.
// Returns domain.ErrNoFaceFound when the image contains no usable face.
type FaceEmbedder interface {
	ExtractEmbedding(ctx context.Context, img image.Image) ([]float32, error)
}

// FaceGallery is the shared store of face records. List returns records in
// original insertion order; matching relies on that order for tie-breaks.
type FaceGallery interface {
	Create(ctx context.Context, rec *domain.FaceRecord) error
	GetByID(ctx context.Context, personID string) (*domain.FaceRecord, error)
	List(ctx context.Context) ([]domain.FaceRecord, error)
	UpdateStatus(ctx context.Context, personID string, status domain.CaseStatus) error
}

// PhotoStorage stores uploaded reference photos. Remove exists so a failed
// registration can roll back the saved file.
type PhotoStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// MatchPublisher fans emitted match events out to downstream consumers.
type MatchPublisher interface {
	PublishMatch(ctx context.Context, event domain.MatchEvent) error
	SubscribeMatches(ctx context.Context, handler func(context.Context, domain.MatchEvent) error) error
}

// SightingStore persists durable sighting records and serves the per-case
// sighting history.
type SightingStore interface {
	RecordSighting(ctx context.Context, s domain.Sighting) error
	RecentSightings(ctx context.Context, missingPersonID string, limit int) ([]domain.Sighting, error)
}
