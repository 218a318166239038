package usecase

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"time"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
)

// DefaultTolerance is the maximum embedding distance for a gallery candidate
// to count as a match.
const DefaultTolerance = 0.6

// MatchImageUseCase compares a still image against the gallery.
type MatchImageUseCase struct {
	embedder ports.FaceEmbedder
	gallery  ports.FaceGallery
	counters *Counters
	observer ports.PipelineObserver // optional, may be nil
	now      func() time.Time
}

type MatchImageOption func(*MatchImageUseCase)

func WithMatchObserver(observer ports.PipelineObserver) MatchImageOption {
	return func(uc *MatchImageUseCase) { uc.observer = observer }
}

func NewMatchImageUseCase(embedder ports.FaceEmbedder, gallery ports.FaceGallery, counters *Counters, opts ...MatchImageOption) *MatchImageUseCase {
	uc := &MatchImageUseCase{
		embedder: embedder,
		gallery:  gallery,
		counters: counters,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// MatchImage extracts the probe embedding and ranks gallery records within
// tolerance by confidence. An image without a face yields an empty list, not
// an error. Ties keep original gallery order (stable sort).
func (uc *MatchImageUseCase) MatchImage(ctx context.Context, img image.Image, tolerance float64) ([]domain.FaceMatch, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if uc.counters != nil {
		uc.counters.FrameScanned()
	}

	embedStart := time.Now()
	probe, err := uc.embedder.ExtractEmbedding(ctx, img)
	if uc.observer != nil {
		uc.observer.InferenceDone("embed", time.Since(embedStart))
	}
	if err != nil {
		if domain.IsKind(err, domain.ErrNoFaceFound) {
			return []domain.FaceMatch{}, nil
		}
		return nil, fmt.Errorf("extract probe embedding: %w", err)
	}
	if uc.counters != nil {
		uc.counters.FacesFound(1)
	}

	records, err := uc.gallery.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}

	matches := make([]domain.FaceMatch, 0, len(records))
	now := uc.now().UTC()
	for _, rec := range records {
		dist, err := EmbeddingDistance(probe, rec.Embedding)
		if err != nil {
			continue
		}
		if dist > tolerance {
			continue
		}
		matches = append(matches, domain.FaceMatch{
			PersonID:   rec.PersonID,
			Name:       rec.Name,
			Confidence: DistanceToConfidence(dist),
			Distance:   round4(dist),
			Timestamp:  now,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches, nil
}

// EmbeddingDistance is the euclidean distance between two face embeddings.
func EmbeddingDistance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// DistanceToConfidence converts an embedding distance to a percentage,
// clamped to [0, 100].
func DistanceToConfidence(distance float64) float64 {
	confidence := (1 - distance) * 100
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return round2(confidence)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
