package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
)

// CaseAdminUseCase covers the read/update operations over the gallery that
// have no matching work attached: live stats, listings, status changes.
type CaseAdminUseCase struct {
	gallery  ports.FaceGallery
	counters *Counters
}

func NewCaseAdminUseCase(gallery ports.FaceGallery, counters *Counters) *CaseAdminUseCase {
	return &CaseAdminUseCase{gallery: gallery, counters: counters}
}

// LiveStats derives counters from current gallery state plus the pipeline
// scan counters. Read-only, no side effects.
func (uc *CaseAdminUseCase) LiveStats(ctx context.Context) (domain.LiveStats, error) {
	records, err := uc.gallery.List(ctx)
	if err != nil {
		return domain.LiveStats{}, fmt.Errorf("list gallery: %w", err)
	}

	searching := 0
	for _, rec := range records {
		if rec.Status == domain.StatusSearching {
			searching++
		}
	}

	stats := domain.LiveStats{
		ActiveMatches:       searching,
		TotalMissingPersons: len(records),
		SearchingCount:      searching,
	}
	if uc.counters != nil {
		stats.TotalScans = uc.counters.TotalScans()
		stats.FacesDetected = uc.counters.FacesDetected()
	}
	return stats, nil
}

func (uc *CaseAdminUseCase) ListPersons(ctx context.Context) ([]domain.FaceRecord, error) {
	return uc.gallery.List(ctx)
}

// UpdateStatus changes a case status; unknown ids surface ErrPersonNotFound.
func (uc *CaseAdminUseCase) UpdateStatus(ctx context.Context, personID string, status domain.CaseStatus) error {
	if strings.TrimSpace(string(status)) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "update status", fmt.Errorf("empty status"))
	}
	if err := uc.gallery.UpdateStatus(ctx, personID, status); err != nil {
		return fmt.Errorf("update case status: %w", err)
	}
	return nil
}
