package usecase

import (
	"strings"

	"github.com/farsight/personfinder/internal/core/domain"
)

// Factor weights for the match confidence accumulation.
const (
	topColorWeight    = 0.4
	bottomColorWeight = 0.3
	semanticWeight    = 0.3
)

// scoreMatch combines the available appearance factors into one confidence in
// [0, 1]. A factor enters the denominator only when both sides carry data, so
// missing information is never penalized, only positive matches rewarded.
func scoreMatch(att domain.DetectedAttributes, profile domain.MissingPersonProfile, semantic float64, semanticAvailable bool) float64 {
	var score, factors float64

	if profile.TopColor != "" && att.TopColor != "" {
		if strings.EqualFold(profile.TopColor, att.TopColor) {
			score += topColorWeight
		}
		factors += topColorWeight
	}

	if profile.BottomColor != "" && att.BottomColor != "" {
		if strings.EqualFold(profile.BottomColor, att.BottomColor) {
			score += bottomColorWeight
		}
		factors += bottomColorWeight
	}

	if semanticAvailable && profile.Description != "" {
		score += semantic * semanticWeight
		factors += semanticWeight
	}

	if factors <= 0 {
		return 0.0
	}
	result := score / factors
	if result > 1.0 {
		result = 1.0
	}
	return result
}
