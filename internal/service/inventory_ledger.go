package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"configurator-service/config"
	"configurator-service/internal/models"
	"configurator-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrInvalidUnits is returned when a reservation asks for a non positive unit count
var ErrInvalidUnits = errors.New("reserved units must be positive")

// ConfigurationProvider resolves category configurations
type ConfigurationProvider interface {
	GetProductConfiguration(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error)
}

// ReservationResult reports whether every requested option could be reserved
type ReservationResult struct {
	Success    bool               `json:"success"`
	Shortfalls []models.Shortfall `json:"shortfalls"`
}

// InventoryLedger computes availability and records session reservations
type InventoryLedger struct {
	store              InventoryStore
	catalog            ConfigurationProvider
	reservationTTL     time.Duration
	overbookingPercent int
	maxDisplayUnits    int
	now                func() time.Time
	logger             *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(store InventoryStore, catalog ConfigurationProvider, cfg config.BusinessConfig) *InventoryLedger {
	return &InventoryLedger{
		store:              store,
		catalog:            catalog,
		reservationTTL:     cfg.ReservationTTL,
		overbookingPercent: cfg.OverbookingPercent,
		maxDisplayUnits:    cfg.MaxDisplayUnits,
		now:                time.Now,
		logger:             util.GetLogger(),
	}
}

// overbooked returns floor(total * (100+pct) / 100)
func (l *InventoryLedger) overbooked(total int) int {
	return total + total*l.overbookingPercent/100
}

// GetAvailableInventory returns physical stock, or session availability when
// sessionScoped is set. Options without an inventory row are omitted.
// Session availability may be negative.
func (l *InventoryLedger) GetAvailableInventory(ctx context.Context, optionIDs []int64, sessionScoped bool) (map[int64]int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.GetAvailableInventory",
		attribute.Bool("session_scoped", sessionScoped))
	defer span.End()

	stock, err := l.store.ReadStock(ctx, optionIDs)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	if !sessionScoped {
		return stock, nil
	}

	reserved, err := l.store.ReadActiveReservations(ctx, optionIDs, l.now())
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	available := make(map[int64]int, len(stock))
	for optionID, total := range stock {
		available[optionID] = l.overbooked(total) - reserved[optionID]
	}
	return available, nil
}

// GetSessionInventoryForProductOptions returns the session availability of
// every option of a category, clamped to [0, maxUnits]. A maxUnits below one
// falls back to the configured display limit. An unknown category yields an
// empty map.
func (l *InventoryLedger) GetSessionInventoryForProductOptions(ctx context.Context, ident models.CategoryIdentifier, maxUnits int) (map[int64]int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.GetSessionInventoryForProductOptions")
	defer span.End()

	if maxUnits < 1 {
		maxUnits = l.maxDisplayUnits
	}

	cfg, err := l.catalog.GetProductConfiguration(ctx, ident)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return map[int64]int{}, nil
	}

	available, err := l.GetAvailableInventory(ctx, cfg.OptionIDs(), true)
	if err != nil {
		return nil, err
	}

	for optionID, units := range available {
		available[optionID] = clamp(units, 0, maxUnits)
	}
	return available, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ReserveInventoryForSession reserves every entry of the breakdown for the
// session, or nothing at all. It joins the transaction carried by ctx when
// there is one. Inventory rows are locked in option id order so concurrent
// reservations serialize per option.
func (l *InventoryLedger) ReserveInventoryForSession(ctx context.Context, sessionID string, b models.Breakdown) (ReservationResult, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.ReserveInventoryForSession",
		attribute.String("session_id", sessionID),
		attribute.Int("entries", len(b)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	requested := make(map[int64]int, len(b))
	for _, entry := range b {
		if entry.Units < 1 {
			return ReservationResult{}, fmt.Errorf("%w: option %d asks for %d", ErrInvalidUnits, entry.OptionID, entry.Units)
		}
		requested[entry.OptionID] += entry.Units
	}

	optionIDs := make([]int64, 0, len(requested))
	for optionID := range requested {
		optionIDs = append(optionIDs, optionID)
	}
	sort.Slice(optionIDs, func(i, j int) bool { return optionIDs[i] < optionIDs[j] })

	result := ReservationResult{Success: true, Shortfalls: []models.Shortfall{}}
	if len(optionIDs) == 0 {
		return result, nil
	}

	err := l.store.InTx(ctx, func(ctx context.Context) error {
		now := l.now()

		stock, err := l.store.LockStock(ctx, optionIDs)
		if err != nil {
			return err
		}
		reserved, err := l.store.ReadActiveReservations(ctx, optionIDs, now)
		if err != nil {
			return err
		}

		for _, optionID := range optionIDs {
			available := l.overbooked(stock[optionID]) - reserved[optionID]
			if requested[optionID] > available {
				if available < 0 {
					available = 0
				}
				result.Shortfalls = append(result.Shortfalls, models.Shortfall{
					OptionID:  optionID,
					Requested: requested[optionID],
					Available: available,
				})
			}
		}
		if len(result.Shortfalls) > 0 {
			result.Success = false
			return nil
		}

		expiresAt := now.Add(l.reservationTTL)
		for _, optionID := range optionIDs {
			if err := l.store.UpsertReservation(ctx, sessionID, optionID, requested[optionID], now, expiresAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		util.InventoryReservationsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return ReservationResult{}, fmt.Errorf("failed to reserve inventory: %w", err)
	}

	if !result.Success {
		util.InventoryReservationsTotal.WithLabelValues("shortfall").Inc()
		l.logger.Info("Reservation rejected",
			zap.String("session_id", sessionID),
			zap.Int("shortfalls", len(result.Shortfalls)))
		return result, nil
	}

	util.InventoryReservationsTotal.WithLabelValues("reserved").Inc()
	return result, nil
}

// GetSessionReservations lists the reservations still active for a session
func (l *InventoryLedger) GetSessionReservations(ctx context.Context, sessionID string) ([]models.InventoryReservation, error) {
	reservations, err := l.store.GetSessionReservations(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	active := make([]models.InventoryReservation, 0, len(reservations))
	for i := range reservations {
		if reservations[i].IsActive(now) {
			active = append(active, reservations[i])
		}
	}
	return active, nil
}

// PurgeExpiredReservations deletes reservations that expired more than
// olderThan ago
func (l *InventoryLedger) PurgeExpiredReservations(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.PurgeExpiredReservations")
	defer span.End()

	purged, err := l.store.PurgeExpiredReservations(ctx, l.now().Add(-olderThan))
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}

	util.ReservationsPurgedTotal.Add(float64(purged))
	return purged, nil
}
