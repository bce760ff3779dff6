package breakdown

import (
	"fmt"
	"sort"

	"configurator-service/internal/models"
)

// Result is the outcome of validating a breakdown
type Result struct {
	IsValid        bool     `json:"is_valid"`
	BreakdownPrice float64  `json:"breakdown_price"`
	Errors         []string `json:"errors"`
}

// Validator checks breakdowns against one category configuration.
// It is safe for concurrent use once built.
type Validator struct {
	config *models.CategoryConfig
	rules  PreprocessedRules

	// forbidden rules indexed under both of their options
	forbidden map[int64][]models.ForbiddenRule

	optionComponent map[int64]int64
	requiredUnits   map[int64]int
	order           []int64
}

// NewValidator precomputes the lookup maps for a category configuration
func NewValidator(cfg *models.CategoryConfig, opts PreprocessOptions) *Validator {
	v := &Validator{
		config:          cfg,
		rules:           PreprocessRules(cfg, opts),
		forbidden:       make(map[int64][]models.ForbiddenRule),
		optionComponent: make(map[int64]int64),
		requiredUnits:   make(map[int64]int),
	}

	for _, component := range cfg.Components {
		v.requiredUnits[component.ID] = component.RequiredUnits
		for _, optionID := range component.AvailableOptions {
			v.optionComponent[optionID] = component.ID
		}
	}

	for _, rule := range cfg.Rules {
		forbidden, ok := rule.(models.ForbiddenRule)
		if !ok {
			continue
		}
		v.forbidden[forbidden.Option1ID] = append(v.forbidden[forbidden.Option1ID], forbidden)
		if forbidden.Option2ID != forbidden.Option1ID {
			mirrored := forbidden
			mirrored.RulePair = forbidden.RulePair.Swapped()
			v.forbidden[forbidden.Option2ID] = append(v.forbidden[forbidden.Option2ID], mirrored)
		}
	}
	v.order = v.componentOrder()

	return v
}

// Rules returns the preprocessed rules the validator prices with
func (v *Validator) Rules() PreprocessedRules {
	return v.rules
}

// ComponentOf returns the component owning an option
func (v *Validator) ComponentOf(optionID int64) (int64, bool) {
	componentID, ok := v.optionComponent[optionID]
	return componentID, ok
}

// Validate checks completeness, unit bounds and forbidden combinations and
// prices the breakdown. Errors keep the order in which they were found.
func (v *Validator) Validate(b models.Breakdown) Result {
	var price float64
	errs := []string{}

	remaining := make(map[int64]int, len(v.requiredUnits))
	for componentID, units := range v.requiredUnits {
		remaining[componentID] = units
	}
	reported := make(map[int64]bool)

	for _, entry := range b {
		componentID, ok := v.optionComponent[entry.OptionID]
		if !ok {
			errs = append(errs, fmt.Sprintf("Option with id %d is not part of the product breakdown", entry.OptionID))
			continue
		}

		if entry.Units < 1 {
			errs = append(errs, fmt.Sprintf("The unit count of %d is non strictly positive number", entry.OptionID))
			continue
		}

		remaining[componentID] -= entry.Units

		unitPrice := v.basePrice(entry.OptionID)
		for _, supplement := range v.rules.SupplementByOption1[entry.OptionID] {
			if b.Contains(supplement.Option2ID) {
				unitPrice += supplement.PriceAdjustment
			}
		}
		price += float64(entry.Units) * unitPrice

		for _, rule := range v.forbidden[entry.OptionID] {
			if reported[rule.ID] || !b.Contains(rule.Option2ID) {
				continue
			}
			reported[rule.ID] = true
			errs = append(errs, "Invalid combination: "+rule.Message)
		}
	}

	for _, componentID := range v.order {
		missing := remaining[componentID]
		switch {
		case missing < 0:
			errs = append(errs, fmt.Sprintf("Provided %d units in excess for component %s", -missing, v.componentName(componentID)))
		case missing > 0:
			errs = append(errs, fmt.Sprintf("Missing %d units for component %s", missing, v.componentName(componentID)))
		}
	}

	return Result{
		IsValid:        len(errs) == 0 && price >= 0,
		BreakdownPrice: price,
		Errors:         errs,
	}
}

func (v *Validator) basePrice(optionID int64) float64 {
	if option, ok := v.config.Options[optionID]; ok {
		return option.BasePrice
	}
	return 0
}

func (v *Validator) componentName(componentID int64) string {
	if component, ok := v.config.Components[componentID]; ok {
		return component.Name
	}
	return ""
}

// componentOrder lists components in display order, then any component
// missing from the display order by id
func (v *Validator) componentOrder() []int64 {
	order := make([]int64, 0, len(v.requiredUnits))
	seen := make(map[int64]bool, len(v.requiredUnits))
	for _, componentID := range v.config.Category.ProductBreakdown {
		if _, ok := v.requiredUnits[componentID]; ok && !seen[componentID] {
			order = append(order, componentID)
			seen[componentID] = true
		}
	}

	var rest []int64
	for componentID := range v.requiredUnits {
		if !seen[componentID] {
			rest = append(rest, componentID)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })

	return append(order, rest...)
}
