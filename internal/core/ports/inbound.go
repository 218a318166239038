package ports

import (
	"context"
	"image"
	"io"

	"github.com/farsight/personfinder/internal/core/domain"
)

// FrameProcessor is the inbound contract for per-frame matching.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, frame image.Image, profiles []domain.MissingPersonProfile) ([]domain.MatchResult, error)
}

// Registration carries the metadata for a new missing-person upload.
type Registration struct {
	Name        string
	Age         int
	Description string
	LastSeen    string
	ReportedBy  string
	Filename    string
}

// PersonRegistrar is the inbound contract for uploading a known person.
type PersonRegistrar interface {
	RegisterPerson(ctx context.Context, reg Registration, photo io.Reader) (*domain.FaceRecord, error)
}

// FaceMatcher compares a still image against the gallery.
type FaceMatcher interface {
	MatchImage(ctx context.Context, img image.Image, tolerance float64) ([]domain.FaceMatch, error)
}

// ProfileSearcher ranks gallery profiles by free-text keyword overlap.
type ProfileSearcher interface {
	SearchByDescription(ctx context.Context, description string) ([]domain.ProfileHit, error)
}

// StatsProvider derives live counters from current state.
type StatsProvider interface {
	LiveStats(ctx context.Context) (domain.LiveStats, error)
}

// StatusUpdater changes the status of an existing case.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, personID string, status domain.CaseStatus) error
}

// GalleryReader lists all stored records.
type GalleryReader interface {
	ListPersons(ctx context.Context) ([]domain.FaceRecord, error)
}
