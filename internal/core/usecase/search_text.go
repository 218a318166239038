package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/farsight/personfinder/internal/core/domain"
	"github.com/farsight/personfinder/internal/core/ports"
)

// SearchTextUseCase ranks gallery profiles by case-insensitive whole-token
// overlap between the query and the stored name/description. No stemming.
type SearchTextUseCase struct {
	gallery ports.FaceGallery
}

func NewSearchTextUseCase(gallery ports.FaceGallery) *SearchTextUseCase {
	return &SearchTextUseCase{gallery: gallery}
}

func (uc *SearchTextUseCase) SearchByDescription(ctx context.Context, description string) ([]domain.ProfileHit, error) {
	keywords := tokenize(description)
	if len(keywords) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search by description", fmt.Errorf("empty description"))
	}

	records, err := uc.gallery.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}

	hits := make([]domain.ProfileHit, 0, len(records))
	for _, rec := range records {
		tokens := tokenSet(rec.Name, rec.Description)
		score := 0
		for _, kw := range keywords {
			if tokens[kw] {
				score++
			}
		}
		if score == 0 {
			continue
		}
		hits = append(hits, domain.ProfileHit{
			PersonID:    rec.PersonID,
			Name:        rec.Name,
			Age:         rec.Age,
			Description: rec.Description,
			LastSeen:    rec.LastSeen,
			ReportedBy:  rec.ReportedBy,
			Status:      rec.Status,
			MatchScore:  score,
			PhotoPath:   rec.PhotoPath,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].MatchScore > hits[j].MatchScore
	})
	return hits, nil
}

// tokenize lowercases, splits on whitespace and strips trailing punctuation,
// so the query and stored fields compare under the same normalization.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, tok := range fields {
		if tok = strings.Trim(tok, ".,;:!?"); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func tokenSet(fields ...string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range fields {
		for _, tok := range tokenize(f) {
			set[tok] = true
		}
	}
	return set
}
