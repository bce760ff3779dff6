package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"configurator-service/internal/breakdown"
	"configurator-service/internal/globalid"
	"configurator-service/internal/models"
)

type categoryView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	ProductBreakdown []string `json:"product_breakdown"`
}

type componentView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	RequiredUnits    int      `json:"required_units"`
	AvailableOptions []string `json:"available_options"`
}

type optionView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BasePrice   float64 `json:"base_price"`
}

type ruleView struct {
	ID              string          `json:"id"`
	Kind            models.RuleKind `json:"kind"`
	Option1ID       string          `json:"option1_id"`
	Option2ID       string          `json:"option2_id"`
	PriceAdjustment float64         `json:"price_adjustment,omitempty"`
	Message         string          `json:"message"`
}

// configurationView is a category configuration with every id replaced by its
// global id. Rules are grouped under the option displayed later.
type configurationView struct {
	Category         categoryView             `json:"category"`
	Components       map[string]componentView `json:"components"`
	ComponentOptions map[string]optionView    `json:"component_options"`
	SupplementRules  map[string][]ruleView    `json:"supplement_rules"`
	ForbiddenRules   map[string][]ruleView    `json:"forbidden_rules"`
}

func optionIDs(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = globalid.Encode(globalid.KindOption, id)
	}
	return out
}

func newRuleView(rule models.Rule) ruleView {
	rec := models.ToRecord(rule)
	return ruleView{
		ID:              globalid.Encode(globalid.KindRule, rec.ID),
		Kind:            rec.Kind,
		Option1ID:       globalid.Encode(globalid.KindOption, rec.Option1ID),
		Option2ID:       globalid.Encode(globalid.KindOption, rec.Option2ID),
		PriceAdjustment: rec.PriceAdjustment,
		Message:         rec.Message,
	}
}

func newConfigurationView(cfg *models.CategoryConfig) configurationView {
	view := configurationView{
		Category: categoryView{
			ID:               globalid.Encode(globalid.KindCategory, cfg.Category.ID),
			Name:             cfg.Category.Name,
			Description:      cfg.Category.Description,
			ProductBreakdown: make([]string, len(cfg.Category.ProductBreakdown)),
		},
		Components:       make(map[string]componentView, len(cfg.Components)),
		ComponentOptions: make(map[string]optionView, len(cfg.Options)),
		SupplementRules:  make(map[string][]ruleView),
		ForbiddenRules:   make(map[string][]ruleView),
	}

	for i, id := range cfg.Category.ProductBreakdown {
		view.Category.ProductBreakdown[i] = globalid.Encode(globalid.KindComponent, id)
	}

	for _, component := range cfg.Components {
		gid := globalid.Encode(globalid.KindComponent, component.ID)
		view.Components[gid] = componentView{
			ID:               gid,
			Name:             component.Name,
			Description:      component.Description,
			RequiredUnits:    component.RequiredUnits,
			AvailableOptions: optionIDs(component.AvailableOptions),
		}
	}

	for _, option := range cfg.Options {
		gid := globalid.Encode(globalid.KindOption, option.ID)
		view.ComponentOptions[gid] = optionView{
			ID:          gid,
			Name:        option.Name,
			Description: option.Description,
			BasePrice:   option.BasePrice,
		}
	}

	rules := breakdown.PreprocessRules(cfg, breakdown.PreprocessOptions{SortRules: true})
	for optionID, supplements := range rules.SupplementByOption1 {
		gid := globalid.Encode(globalid.KindOption, optionID)
		for _, rule := range supplements {
			view.SupplementRules[gid] = append(view.SupplementRules[gid], newRuleView(rule))
		}
	}
	for optionID, forbidden := range rules.ForbiddenByOption1 {
		gid := globalid.Encode(globalid.KindOption, optionID)
		for _, rule := range forbidden {
			view.ForbiddenRules[gid] = append(view.ForbiddenRules[gid], newRuleView(rule))
		}
	}

	return view
}

func newInventoryView(available map[int64]int) map[string]int {
	view := make(map[string]int, len(available))
	for optionID, units := range available {
		view[globalid.Encode(globalid.KindOption, optionID)] = units
	}
	return view
}

type sessionOrderConfigurationView struct {
	ConfigurationID string   `json:"configuration_id"`
	PurchasedCount  int      `json:"purchased_count"`
	Components      []string `json:"components"`
}

type sessionOrderView struct {
	OrderID        string                          `json:"order_id"`
	Status         string                          `json:"status"`
	TotalPrice     float64                         `json:"total_price"`
	Configurations []sessionOrderConfigurationView `json:"configurations"`
}

func newSessionOrderView(order *models.SessionOrder) sessionOrderView {
	view := sessionOrderView{
		OrderID:        globalid.Encode(globalid.KindOrder, order.OrderID),
		Status:         order.Status,
		TotalPrice:     order.TotalPrice,
		Configurations: make([]sessionOrderConfigurationView, len(order.Configurations)),
	}
	for i, cfg := range order.Configurations {
		view.Configurations[i] = sessionOrderConfigurationView{
			ConfigurationID: globalid.Encode(globalid.KindConfiguration, cfg.ConfigurationID),
			PurchasedCount:  cfg.PurchasedCount,
			Components:      cfg.Components,
		}
	}
	return view
}

type reservationView struct {
	OptionID      string `json:"option_id"`
	ReservedUnits int    `json:"reserved_units"`
	ExpiresAt     string `json:"expires_at"`
}

func newReservationViews(reservations []models.InventoryReservation) []reservationView {
	views := make([]reservationView, len(reservations))
	for i, r := range reservations {
		views[i] = reservationView{
			OptionID:      globalid.Encode(globalid.KindOption, r.OptionID),
			ReservedUnits: r.ReservedUnits,
			ExpiresAt:     r.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}
	return views
}

type breakdownItem struct {
	OptionID string
	Units    int
}

// componentBreakdown is a JSON object of option global id to units that
// keeps the order in which the keys were written
type componentBreakdown []breakdownItem

func (b *componentBreakdown) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("component breakdown must be an object")
	}

	seen := make(map[string]bool)
	items := componentBreakdown{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		if seen[key] {
			return fmt.Errorf("option %s appears more than once", key)
		}
		seen[key] = true

		var units int
		if err := dec.Decode(&units); err != nil {
			return fmt.Errorf("units of option %s: %w", key, err)
		}
		items = append(items, breakdownItem{OptionID: key, Units: units})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*b = items
	return nil
}

// toBreakdown translates option global ids into local ids
func (b componentBreakdown) toBreakdown() (models.Breakdown, error) {
	out := make(models.Breakdown, 0, len(b))
	for _, item := range b {
		optionID, err := globalid.DecodeAs(globalid.KindOption, item.OptionID)
		if err != nil {
			return nil, fmt.Errorf("invalid option id %q: %w", item.OptionID, err)
		}
		out = append(out, models.BreakdownEntry{OptionID: optionID, Units: item.Units})
	}
	return out, nil
}
