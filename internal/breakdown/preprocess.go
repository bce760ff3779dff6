// Package breakdown validates and prices option selections against the
// pairwise rules of a category.
package breakdown

import "configurator-service/internal/models"

// PreprocessOptions controls how rules are bucketed
type PreprocessOptions struct {
	// SortRules attributes each rule to the option displayed later
	SortRules bool
}

// PreprocessedRules groups rules by their canonical option1
type PreprocessedRules struct {
	SupplementByOption1 map[int64][]models.SupplementRule
	ForbiddenByOption1  map[int64][]models.ForbiddenRule
}

// PreprocessRules buckets the category rules by canonical option1.
// The input configuration is never modified.
func PreprocessRules(cfg *models.CategoryConfig, opts PreprocessOptions) PreprocessedRules {
	result := PreprocessedRules{
		SupplementByOption1: make(map[int64][]models.SupplementRule),
		ForbiddenByOption1:  make(map[int64][]models.ForbiddenRule),
	}

	var position map[int64]int
	if opts.SortRules {
		position = displayPositions(cfg)
	}

	for _, rule := range cfg.Rules {
		pair := rule.Pair()
		if position[pair.Option1ID] < position[pair.Option2ID] {
			pair = pair.Swapped()
		}

		switch r := rule.(type) {
		case models.SupplementRule:
			r.RulePair = pair
			result.SupplementByOption1[pair.Option1ID] = append(result.SupplementByOption1[pair.Option1ID], r)
		case models.ForbiddenRule:
			r.RulePair = pair
			result.ForbiddenByOption1[pair.Option1ID] = append(result.ForbiddenByOption1[pair.Option1ID], r)
		}
	}

	return result
}

// displayPositions maps every option to the display index of its component
func displayPositions(cfg *models.CategoryConfig) map[int64]int {
	position := make(map[int64]int, len(cfg.Options))
	for idx, componentID := range cfg.Category.ProductBreakdown {
		component, ok := cfg.Components[componentID]
		if !ok {
			continue
		}
		for _, optionID := range component.AvailableOptions {
			position[optionID] = idx
		}
	}
	return position
}
