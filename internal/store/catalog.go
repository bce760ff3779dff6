package store

import (
	"context"
	"database/sql"
	"fmt"

	"configurator-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const categoryConfigQuery = `
	SELECT
		c.id AS category_id,
		c.name AS category_name,
		COALESCE(c.description, '') AS category_description,
		pc.id AS component_id,
		pc.name AS component_name,
		COALESCE(pc.description, '') AS component_description,
		pcc.quantity AS required_units,
		o.id AS option_id,
		o.name AS option_name,
		COALESCE(o.description, '') AS option_description,
		o.base_price AS base_price,
		r.id AS rule_id,
		r.product_component_option_id_1 AS rule_option1_id,
		r.product_component_option_id_2 AS rule_option2_id,
		r.kind AS rule_kind,
		r.rule_value AS rule_value
	FROM product_category c
	INNER JOIN product_category_component pcc ON pcc.product_category_id = c.id
	INNER JOIN product_component pc ON pc.id = pcc.product_component_id
	INNER JOIN product_component_option o ON o.product_component_id = pc.id
	LEFT JOIN product_component_option_rule r ON r.product_component_option_id_1 = o.id
	WHERE %s AND o.is_active = TRUE
	ORDER BY pcc.display_order ASC, pc.id ASC, o.id ASC, r.id ASC`

type categoryConfigRow struct {
	CategoryID           int64          `db:"category_id"`
	CategoryName         string         `db:"category_name"`
	CategoryDescription  string         `db:"category_description"`
	ComponentID          int64          `db:"component_id"`
	ComponentName        string         `db:"component_name"`
	ComponentDescription string         `db:"component_description"`
	RequiredUnits        int            `db:"required_units"`
	OptionID             int64          `db:"option_id"`
	OptionName           string         `db:"option_name"`
	OptionDescription    string         `db:"option_description"`
	BasePrice            float64        `db:"base_price"`
	RuleID               sql.NullInt64  `db:"rule_id"`
	RuleOption1ID        sql.NullInt64  `db:"rule_option1_id"`
	RuleOption2ID        sql.NullInt64  `db:"rule_option2_id"`
	RuleKind             sql.NullString `db:"rule_kind"`
	RuleValue            sql.NullString `db:"rule_value"`
}

// LoadCategoryConfig materializes the component, option and rule graph of a
// category. It returns nil when the category does not exist or has no active
// options.
func (s *Store) LoadCategoryConfig(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error) {
	var (
		where string
		arg   interface{}
	)
	if ident.ID != 0 {
		where, arg = "c.id = $1", ident.ID
	} else {
		where, arg = "c.name = $1", ident.Name
	}

	var rows []categoryConfigRow
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &rows, fmt.Sprintf(categoryConfigQuery, where), arg); err != nil {
		return nil, fmt.Errorf("failed to load category %s: %w", ident, err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return buildCategoryConfig(rows)
}

func buildCategoryConfig(rows []categoryConfigRow) (*models.CategoryConfig, error) {
	first := rows[0]
	cfg := models.NewCategoryConfig(models.Category{
		ID:               first.CategoryID,
		Name:             first.CategoryName,
		Description:      first.CategoryDescription,
		ProductBreakdown: []int64{},
	})

	seenRules := make(map[int64]bool)
	for _, row := range rows {
		component, ok := cfg.Components[row.ComponentID]
		if !ok {
			component = &models.Component{
				ID:               row.ComponentID,
				Name:             row.ComponentName,
				Description:      row.ComponentDescription,
				RequiredUnits:    row.RequiredUnits,
				AvailableOptions: []int64{},
			}
			cfg.Components[row.ComponentID] = component
			cfg.Category.ProductBreakdown = append(cfg.Category.ProductBreakdown, row.ComponentID)
		}

		if _, ok := cfg.Options[row.OptionID]; !ok {
			cfg.Options[row.OptionID] = &models.ComponentOption{
				ID:          row.OptionID,
				Name:        row.OptionName,
				Description: row.OptionDescription,
				BasePrice:   row.BasePrice,
			}
			component.AvailableOptions = append(component.AvailableOptions, row.OptionID)
		}

		if !row.RuleID.Valid || seenRules[row.RuleID.Int64] {
			continue
		}

		rule, err := models.ParseRule(models.RulePair{
			ID:        row.RuleID.Int64,
			Option1ID: row.RuleOption1ID.Int64,
			Option2ID: row.RuleOption2ID.Int64,
		}, row.RuleKind.String, []byte(row.RuleValue.String))
		if err != nil {
			return nil, err
		}

		cfg.Rules = append(cfg.Rules, rule)
		seenRules[row.RuleID.Int64] = true
	}

	return cfg, nil
}
