package models

import (
	"encoding/json"
	"fmt"
)

// RuleKind tags the variant of a pairwise option rule
type RuleKind string

// Rule kinds
const (
	RuleKindSupplement RuleKind = "SUPPLEMENT"
	RuleKindForbidden  RuleKind = "FORBIDDEN"
)

// RulePair holds the two options a rule relates. Stored rules are order invariant.
type RulePair struct {
	ID        int64 `json:"id"`
	Option1ID int64 `json:"option1_id"`
	Option2ID int64 `json:"option2_id"`
}

// Swapped returns the pair with option1 and option2 exchanged
func (p RulePair) Swapped() RulePair {
	return RulePair{ID: p.ID, Option1ID: p.Option2ID, Option2ID: p.Option1ID}
}

// Rule is either a SupplementRule or a ForbiddenRule
type Rule interface {
	Kind() RuleKind
	Pair() RulePair
	isRule()
}

// SupplementRule adjusts the price of option1 when option2 is co-selected
type SupplementRule struct {
	RulePair
	PriceAdjustment float64 `json:"price_adjustment"`
	Message         string  `json:"message"`
}

func (SupplementRule) Kind() RuleKind   { return RuleKindSupplement }
func (r SupplementRule) Pair() RulePair { return r.RulePair }
func (SupplementRule) isRule()          {}

// ForbiddenRule rejects any breakdown selecting both options
type ForbiddenRule struct {
	RulePair
	Message string `json:"message"`
}

func (ForbiddenRule) Kind() RuleKind   { return RuleKindForbidden }
func (r ForbiddenRule) Pair() RulePair { return r.RulePair }
func (ForbiddenRule) isRule()          {}

// ParseRule builds a rule from its stored kind and JSON payload
func ParseRule(pair RulePair, kind string, value []byte) (Rule, error) {
	if len(value) == 0 {
		value = []byte("{}")
	}

	switch RuleKind(kind) {
	case RuleKindSupplement:
		var payload struct {
			PriceAdjustment float64 `json:"price_adjustment"`
			Message         string  `json:"message"`
		}
		if err := json.Unmarshal(value, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode supplement rule %d: %w", pair.ID, err)
		}
		return SupplementRule{RulePair: pair, PriceAdjustment: payload.PriceAdjustment, Message: payload.Message}, nil

	case RuleKindForbidden:
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(value, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode forbidden rule %d: %w", pair.ID, err)
		}
		return ForbiddenRule{RulePair: pair, Message: payload.Message}, nil
	}

	return nil, fmt.Errorf("unknown rule kind %q for rule %d", kind, pair.ID)
}

// RuleRecord is the serialisable form of a rule, used for caching and API views
type RuleRecord struct {
	RulePair
	Kind            RuleKind `json:"kind"`
	PriceAdjustment float64  `json:"price_adjustment,omitempty"`
	Message         string   `json:"message"`
}

// ToRecord flattens a rule into a RuleRecord
func ToRecord(rule Rule) RuleRecord {
	switch r := rule.(type) {
	case SupplementRule:
		return RuleRecord{RulePair: r.RulePair, Kind: RuleKindSupplement, PriceAdjustment: r.PriceAdjustment, Message: r.Message}
	case ForbiddenRule:
		return RuleRecord{RulePair: r.RulePair, Kind: RuleKindForbidden, Message: r.Message}
	}
	return RuleRecord{RulePair: rule.Pair(), Kind: rule.Kind()}
}

// FromRecord rebuilds a rule from its RuleRecord
func FromRecord(rec RuleRecord) (Rule, error) {
	switch rec.Kind {
	case RuleKindSupplement:
		return SupplementRule{RulePair: rec.RulePair, PriceAdjustment: rec.PriceAdjustment, Message: rec.Message}, nil
	case RuleKindForbidden:
		return ForbiddenRule{RulePair: rec.RulePair, Message: rec.Message}, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q for rule %d", rec.Kind, rec.ID)
}

// MarshalJSON encodes the rules alongside the rest of the configuration
func (c *CategoryConfig) MarshalJSON() ([]byte, error) {
	type alias CategoryConfig
	records := make([]RuleRecord, len(c.Rules))
	for i, rule := range c.Rules {
		records[i] = ToRecord(rule)
	}
	return json.Marshal(struct {
		*alias
		Rules []RuleRecord `json:"rules"`
	}{alias: (*alias)(c), Rules: records})
}

// UnmarshalJSON decodes a configuration produced by MarshalJSON
func (c *CategoryConfig) UnmarshalJSON(data []byte) error {
	type alias CategoryConfig
	aux := struct {
		*alias
		Rules []RuleRecord `json:"rules"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.Rules = make([]Rule, 0, len(aux.Rules))
	for _, rec := range aux.Rules {
		rule, err := FromRecord(rec)
		if err != nil {
			return err
		}
		c.Rules = append(c.Rules, rule)
	}
	return nil
}
