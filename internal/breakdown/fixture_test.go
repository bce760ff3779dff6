package breakdown

import "configurator-service/internal/models"

// bicycleConfig mirrors the seeded "Bicycles" category
func bicycleConfig() *models.CategoryConfig {
	cfg := models.NewCategoryConfig(models.Category{
		ID:               1,
		Name:             "Bicycles",
		Description:      "Fully customizable bicycles for all terrains",
		ProductBreakdown: []int64{1, 2, 3, 4, 5},
	})

	components := []models.Component{
		{ID: 1, Name: "Frame Type", RequiredUnits: 1, AvailableOptions: []int64{1, 2, 3}},
		{ID: 2, Name: "Frame Finish", RequiredUnits: 1, AvailableOptions: []int64{4, 5}},
		{ID: 3, Name: "Wheels", RequiredUnits: 1, AvailableOptions: []int64{6, 7, 8}},
		{ID: 4, Name: "Rim Color", RequiredUnits: 1, AvailableOptions: []int64{9, 10, 11}},
		{ID: 5, Name: "Chain", RequiredUnits: 1, AvailableOptions: []int64{12, 13}},
	}
	for i := range components {
		cfg.Components[components[i].ID] = &components[i]
	}

	options := []models.ComponentOption{
		{ID: 1, Name: "Full-suspension", BasePrice: 130},
		{ID: 2, Name: "Diamond", BasePrice: 100},
		{ID: 3, Name: "Step-through", BasePrice: 110},
		{ID: 4, Name: "Matte", BasePrice: 35},
		{ID: 5, Name: "Shiny", BasePrice: 30},
		{ID: 6, Name: "Road wheels", BasePrice: 80},
		{ID: 7, Name: "Mountain wheels", BasePrice: 90},
		{ID: 8, Name: "Fat bike wheels", BasePrice: 120},
		{ID: 9, Name: "Red", BasePrice: 15},
		{ID: 10, Name: "Black", BasePrice: 20},
		{ID: 11, Name: "Blue", BasePrice: 20},
		{ID: 12, Name: "Single-speed chain", BasePrice: 43},
		{ID: 13, Name: "8-speed chain", BasePrice: 55},
	}
	for i := range options {
		cfg.Options[options[i].ID] = &options[i]
	}

	cfg.Rules = []models.Rule{
		models.SupplementRule{
			RulePair:        models.RulePair{ID: 2, Option1ID: 1, Option2ID: 4},
			PriceAdjustment: 15,
			Message:         "Matte finish supplement for full-suspension frames",
		},
		models.ForbiddenRule{
			RulePair: models.RulePair{ID: 1, Option1ID: 8, Option2ID: 9},
			Message:  "Fat bike wheels cannot have red rims",
		},
	}

	return cfg
}

func breakdownOf(pairs ...int64) models.Breakdown {
	b := make(models.Breakdown, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		b = append(b, models.BreakdownEntry{OptionID: pairs[i], Units: int(pairs[i+1])})
	}
	return b
}
