package store

import (
	"context"
	"fmt"
	"time"

	"configurator-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type optionQuantity struct {
	OptionID int64 `db:"option_id"`
	Quantity int   `db:"quantity"`
}

func toQuantityMap(rows []optionQuantity) map[int64]int {
	result := make(map[int64]int, len(rows))
	for _, row := range rows {
		result[row.OptionID] = row.Quantity
	}
	return result
}

// ReadStock returns the physical stock of each requested option
func (s *Store) ReadStock(ctx context.Context, optionIDs []int64) (map[int64]int, error) {
	if len(optionIDs) == 0 {
		return map[int64]int{}, nil
	}

	var rows []optionQuantity
	err := sqlx.SelectContext(ctx, s.conn(ctx), &rows, `
		SELECT product_component_option_id AS option_id, total_stock AS quantity
		FROM inventory
		WHERE product_component_option_id = ANY($1)`,
		pq.Array(optionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to read stock: %w", err)
	}
	return toQuantityMap(rows), nil
}

// LockStock reads the physical stock of each requested option and locks the
// inventory rows until the surrounding transaction ends. Rows are locked in
// option id order.
func (s *Store) LockStock(ctx context.Context, optionIDs []int64) (map[int64]int, error) {
	if len(optionIDs) == 0 {
		return map[int64]int{}, nil
	}

	var rows []optionQuantity
	err := sqlx.SelectContext(ctx, s.conn(ctx), &rows, `
		SELECT product_component_option_id AS option_id, total_stock AS quantity
		FROM inventory
		WHERE product_component_option_id = ANY($1)
		ORDER BY product_component_option_id
		FOR UPDATE`,
		pq.Array(optionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}
	return toQuantityMap(rows), nil
}

// ReadActiveReservations sums unexpired reservations per option across all sessions
func (s *Store) ReadActiveReservations(ctx context.Context, optionIDs []int64, now time.Time) (map[int64]int, error) {
	if len(optionIDs) == 0 {
		return map[int64]int{}, nil
	}

	var rows []optionQuantity
	err := sqlx.SelectContext(ctx, s.conn(ctx), &rows, `
		SELECT product_component_option_id AS option_id, COALESCE(SUM(reserved_units), 0) AS quantity
		FROM inventory_reservation
		WHERE product_component_option_id = ANY($1) AND expires_at > $2
		GROUP BY product_component_option_id`,
		pq.Array(optionIDs), now)
	if err != nil {
		return nil, fmt.Errorf("failed to read reservations: %w", err)
	}
	return toQuantityMap(rows), nil
}

// UpsertReservation adds units to the session reservation of an option. A new
// or lapsed reservation starts over with expiresAt; an active one keeps its
// original expiry.
func (s *Store) UpsertReservation(ctx context.Context, sessionID string, optionID int64, units int, now, expiresAt time.Time) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO inventory_reservation (session_id, product_component_option_id, reserved_units, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, product_component_option_id) DO UPDATE SET
			reserved_units = CASE
				WHEN inventory_reservation.expires_at > $4 THEN inventory_reservation.reserved_units + EXCLUDED.reserved_units
				ELSE EXCLUDED.reserved_units
			END,
			created_at = CASE
				WHEN inventory_reservation.expires_at > $4 THEN inventory_reservation.created_at
				ELSE EXCLUDED.created_at
			END,
			expires_at = CASE
				WHEN inventory_reservation.expires_at > $4 THEN inventory_reservation.expires_at
				ELSE EXCLUDED.expires_at
			END`,
		sessionID, optionID, units, now, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert reservation for option %d: %w", optionID, err)
	}
	return nil
}

// GetSessionReservations lists the reservations held by a session
func (s *Store) GetSessionReservations(ctx context.Context, sessionID string) ([]models.InventoryReservation, error) {
	reservations := []models.InventoryReservation{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &reservations, `
		SELECT session_id, product_component_option_id, reserved_units, created_at, expires_at
		FROM inventory_reservation
		WHERE session_id = $1
		ORDER BY product_component_option_id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

// PurgeExpiredReservations deletes reservations that lapsed before the cutoff
func (s *Store) PurgeExpiredReservations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		"DELETE FROM inventory_reservation WHERE expires_at <= $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reservations: %w", err)
	}
	return res.RowsAffected()
}
