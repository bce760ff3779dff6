package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"configurator-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateSessionOrder opens an order for the session and customer, or returns
// the id of the order already open for them
func (s *Store) CreateSessionOrder(ctx context.Context, sessionID, customerID string) (int64, error) {
	var orderID int64
	now := time.Now()

	err := sqlx.GetContext(ctx, s.conn(ctx), &orderID, `
		INSERT INTO customer_order (session_id, customer_id, order_status, total_price, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (session_id, customer_id) WHERE order_status = 'SESSION_ON_GOING' DO NOTHING
		RETURNING id`,
		sessionID, customerID, models.OrderStatusSessionOnGoing, now)
	if err == nil {
		return orderID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}

	order, err := s.GetOpenOrder(ctx, sessionID, customerID)
	if err != nil {
		return 0, err
	}
	if order == nil {
		return 0, fmt.Errorf("failed to create order: open order for session %s vanished", sessionID)
	}
	return order.ID, nil
}

// GetOpenOrder returns the SESSION_ON_GOING order of a session, or nil
func (s *Store) GetOpenOrder(ctx context.Context, sessionID, customerID string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.conn(ctx), &order, `
		SELECT id, session_id, customer_id, order_status, total_price, created_at, updated_at
		FROM customer_order
		WHERE session_id = $1 AND customer_id = $2 AND order_status = $3`,
		sessionID, customerID, models.OrderStatusSessionOnGoing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// AddConfigurationToOrder attaches a configuration to an order, adding to the
// purchased count when the pair already exists
func (s *Store) AddConfigurationToOrder(ctx context.Context, link models.OrderConfiguration) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO customer_order_configuration (customer_order_id, product_configuration_id, purchased_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_order_id, product_configuration_id)
		DO UPDATE SET purchased_count = customer_order_configuration.purchased_count + EXCLUDED.purchased_count`,
		link.OrderID, link.ConfigurationID, link.PurchasedCount)
	if err != nil {
		return fmt.Errorf("failed to add configuration %d to order %d: %w", link.ConfigurationID, link.OrderID, err)
	}
	return nil
}

// AddToOrderTotal increases the order total by amount
func (s *Store) AddToOrderTotal(ctx context.Context, orderID int64, amount float64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE customer_order SET total_price = total_price + $1, updated_at = $2
		WHERE id = $3`,
		amount, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order total: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update order total: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("order %d not found", orderID)
	}
	return nil
}

// SaveConfiguration persists a snapshot of the breakdown and returns its id
func (s *Store) SaveConfiguration(ctx context.Context, cfg models.SavedConfiguration) (int64, error) {
	var configurationID int64
	err := sqlx.GetContext(ctx, s.conn(ctx), &configurationID, `
		INSERT INTO product_configuration (product_category_id, created_at)
		VALUES ($1, $2)
		RETURNING id`,
		cfg.CategoryID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to save configuration: %w", err)
	}

	for _, entry := range cfg.Breakdown {
		_, err := s.conn(ctx).ExecContext(ctx, `
			INSERT INTO product_configuration_component_option (product_configuration_id, product_component_option_id, quantity)
			VALUES ($1, $2, $3)`,
			configurationID, entry.OptionID, entry.Units)
		if err != nil {
			return 0, fmt.Errorf("failed to save configuration option %d: %w", entry.OptionID, err)
		}
	}

	return configurationID, nil
}

type sessionOrderRow struct {
	ConfigurationID int64  `db:"configuration_id"`
	PurchasedCount  int    `db:"purchased_count"`
	OptionName      string `db:"option_name"`
}

// GetSessionOrder returns the open order of a session with the option names
// of every attached configuration, or nil when there is no open order
func (s *Store) GetSessionOrder(ctx context.Context, sessionID, customerID string) (*models.SessionOrder, error) {
	order, err := s.GetOpenOrder(ctx, sessionID, customerID)
	if err != nil || order == nil {
		return nil, err
	}

	var rows []sessionOrderRow
	err = sqlx.SelectContext(ctx, s.conn(ctx), &rows, `
		SELECT coc.product_configuration_id AS configuration_id,
			coc.purchased_count AS purchased_count,
			o.name AS option_name
		FROM customer_order_configuration coc
		INNER JOIN product_configuration_component_option pcco ON pcco.product_configuration_id = coc.product_configuration_id
		INNER JOIN product_component_option o ON o.id = pcco.product_component_option_id
		WHERE coc.customer_order_id = $1
		ORDER BY coc.product_configuration_id ASC, o.id ASC`,
		order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order configurations: %w", err)
	}

	return buildSessionOrder(order, rows), nil
}

func buildSessionOrder(order *models.Order, rows []sessionOrderRow) *models.SessionOrder {
	result := &models.SessionOrder{
		OrderID:        order.ID,
		Status:         order.Status,
		TotalPrice:     order.TotalPrice,
		Configurations: []models.SessionOrderConfiguration{},
	}

	for _, row := range rows {
		n := len(result.Configurations)
		if n == 0 || result.Configurations[n-1].ConfigurationID != row.ConfigurationID {
			result.Configurations = append(result.Configurations, models.SessionOrderConfiguration{
				ConfigurationID: row.ConfigurationID,
				PurchasedCount:  row.PurchasedCount,
				Components:      []string{},
			})
			n++
		}
		last := &result.Configurations[n-1]
		last.Components = append(last.Components, row.OptionName)
	}

	return result
}
