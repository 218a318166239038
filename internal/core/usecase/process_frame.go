package usecase

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
	"github.com/farsight/personfinder/internal/vision/imaging"
	"github.com/farsight/personfinder/internal/vision/regions"
)

const (
	// Detections below this confidence are dropped before attribute work.
	defaultDetectionConfidence = 0.5
	// Matches at or below this score are never surfaced.
	defaultMatchThreshold = 0.7
)

// ProcessFrameUseCase runs the per-frame detection-to-match pipeline:
// person boxes, pose keypoints, region colors, then weighted scoring against
// every active profile.
type ProcessFrameUseCase struct {
	detector   ports.PersonDetector
	pose       ports.PoseEstimator
	colors     ports.ColorClassifier
	similarity ports.SimilarityProvider // optional, may be nil

	counters *Counters
	observer ports.PipelineObserver // optional, may be nil
	logger   *slog.Logger

	detectionConfidence float64
	matchThreshold      float64
	now                 func() time.Time
}

type ProcessFrameOption func(*ProcessFrameUseCase)

func WithThresholds(detection, match float64) ProcessFrameOption {
	return func(uc *ProcessFrameUseCase) {
		if detection > 0 {
			uc.detectionConfidence = detection
		}
		if match > 0 {
			uc.matchThreshold = match
		}
	}
}

func WithClock(now func() time.Time) ProcessFrameOption {
	return func(uc *ProcessFrameUseCase) { uc.now = now }
}

func WithObserver(observer ports.PipelineObserver) ProcessFrameOption {
	return func(uc *ProcessFrameUseCase) { uc.observer = observer }
}

func NewProcessFrameUseCase(
	detector ports.PersonDetector,
	pose ports.PoseEstimator,
	colors ports.ColorClassifier,
	similarity ports.SimilarityProvider,
	counters *Counters,
	logger *slog.Logger,
	opts ...ProcessFrameOption,
) *ProcessFrameUseCase {
	uc := &ProcessFrameUseCase{
		detector:            detector,
		pose:                pose,
		colors:              colors,
		similarity:          similarity,
		counters:            counters,
		logger:              logger,
		detectionConfidence: defaultDetectionConfidence,
		matchThreshold:      defaultMatchThreshold,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessFrame scores every person detected in the frame against every
// profile and returns the matches above the decision threshold. Continuity
// across frames is the stream session's concern, not this pipeline's.
func (uc *ProcessFrameUseCase) ProcessFrame(
	ctx context.Context,
	frame image.Image,
	profiles []domain.MissingPersonProfile,
) ([]domain.MatchResult, error) {
	if frame == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process frame", fmt.Errorf("nil frame"))
	}
	if uc.counters != nil {
		uc.counters.FrameScanned()
	}

	detectStart := time.Now()
	detections, err := uc.detector.DetectPersons(ctx, frame)
	if uc.observer != nil {
		uc.observer.InferenceDone("detect", time.Since(detectStart))
	}
	if err != nil {
		return nil, fmt.Errorf("detect persons: %w", err)
	}
	if uc.observer != nil {
		uc.observer.FrameProcessed(len(detections))
	}

	var matches []domain.MatchResult
	for _, det := range detections {
		if det.Confidence < uc.detectionConfidence {
			continue
		}
		box := det.Box.Intersect(frame.Bounds())
		if box.Dx() <= 0 || box.Dy() <= 0 {
			continue
		}
		crop := imaging.Crop(frame, box)

		att := uc.extractAttributes(ctx, crop)

		for _, profile := range profiles {
			semantic, semanticOK := uc.semanticSimilarity(ctx, crop, profile)
			confidence := scoreMatch(att, profile, semantic, semanticOK)
			if confidence <= uc.matchThreshold {
				continue
			}
			matches = append(matches, domain.MatchResult{
				EventID:          uuid.NewString(),
				DetectedPersonID: fmt.Sprintf("person_%d_%d", box.Min.X, box.Min.Y),
				MissingPersonID:  profile.ID,
				Confidence:       confidence,
				Attributes:       att,
				Timestamp:        uc.now().UTC(),
			})
		}
	}
	return matches, nil
}

// extractAttributes runs pose estimation and region color classification for
// one person crop. Pose failures leave both colors unset; a frame is never
// aborted for a single person's missing keypoints.
func (uc *ProcessFrameUseCase) extractAttributes(ctx context.Context, crop image.Image) domain.DetectedAttributes {
	att := domain.DetectedAttributes{Accessories: []string{}}

	poseStart := time.Now()
	kp, err := uc.pose.EstimateKeypoints(ctx, crop)
	if uc.observer != nil {
		uc.observer.InferenceDone("pose", time.Since(poseStart))
	}
	if err != nil {
		uc.logger.Warn("pose_estimation_failed", "error", err)
		return att
	}
	if !kp.Complete() {
		return att
	}

	// "Unknown" is kept as a real label here: it participates in scoring and
	// simply never equals a profile color.
	if torso := regions.Torso(crop, kp); torso != nil {
		att.TopColor = uc.colors.Classify(torso)
	}
	if legs := regions.Legs(crop, kp); legs != nil {
		att.BottomColor = uc.colors.Classify(legs)
	}
	return att
}

func (uc *ProcessFrameUseCase) semanticSimilarity(ctx context.Context, crop image.Image, profile domain.MissingPersonProfile) (float64, bool) {
	if uc.similarity == nil || profile.Description == "" {
		return 0, false
	}
	sim, err := uc.similarity.Similarity(ctx, crop, profile.Description)
	if err != nil {
		// Provider failure removes the factor for this frame, nothing more.
		uc.logger.Warn("similarity_failed", "missing_person_id", profile.ID, "error", err)
		return 0, false
	}
	return sim, true
}
