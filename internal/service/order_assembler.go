package service

import (
	"context"
	"errors"
	"fmt"

	"configurator-service/internal/models"
	"configurator-service/internal/util"

	"go.uber.org/zap"
)

// ErrMissingSession is returned when a session or customer id is empty
var ErrMissingSession = errors.New("session and customer ids are required")

// OrderAssembler owns session orders and the configurations attached to them
type OrderAssembler struct {
	store  OrderStore
	logger *zap.Logger
}

// NewOrderAssembler creates a new order assembler
func NewOrderAssembler(store OrderStore) *OrderAssembler {
	return &OrderAssembler{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateSessionOrder returns the open order of the session, creating it when
// needed. Repeated calls return the same id.
func (a *OrderAssembler) CreateSessionOrder(ctx context.Context, sessionID, customerID string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderAssembler.CreateSessionOrder")
	defer span.End()

	if sessionID == "" || customerID == "" {
		return 0, ErrMissingSession
	}

	orderID, err := a.store.CreateSessionOrder(ctx, sessionID, customerID)
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}

	util.SessionOrdersCreatedTotal.Inc()
	a.logger.Debug("Session order ready",
		zap.String("session_id", sessionID),
		zap.Int64("order_id", orderID))
	return orderID, nil
}

// AddConfigurationToOrder attaches a configuration to an order. Attaching the
// same configuration again adds to its purchased count. Counts below one are
// treated as one.
func (a *OrderAssembler) AddConfigurationToOrder(ctx context.Context, configurationID, orderID int64, purchasedCount int) error {
	ctx, span := util.StartSpan(ctx, "OrderAssembler.AddConfigurationToOrder")
	defer span.End()

	if purchasedCount < 1 {
		purchasedCount = 1
	}

	return a.store.AddConfigurationToOrder(ctx, models.OrderConfiguration{
		OrderID:         orderID,
		ConfigurationID: configurationID,
		PurchasedCount:  purchasedCount,
	})
}

// SaveConfiguration stores a snapshot of the breakdown under the category
func (a *OrderAssembler) SaveConfiguration(ctx context.Context, categoryID int64, b models.Breakdown) (int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderAssembler.SaveConfiguration")
	defer span.End()

	if len(b) == 0 {
		return 0, fmt.Errorf("failed to save configuration: empty breakdown")
	}

	return a.store.SaveConfiguration(ctx, models.SavedConfiguration{
		CategoryID: categoryID,
		Breakdown:  b,
	})
}

// AddToOrderTotal increases the running total of an order
func (a *OrderAssembler) AddToOrderTotal(ctx context.Context, orderID int64, amount float64) error {
	return a.store.AddToOrderTotal(ctx, orderID, amount)
}

// GetSessionOrder returns the open order of a session, or nil when there is none
func (a *OrderAssembler) GetSessionOrder(ctx context.Context, sessionID, customerID string) (*models.SessionOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderAssembler.GetSessionOrder")
	defer span.End()

	if sessionID == "" || customerID == "" {
		return nil, ErrMissingSession
	}

	order, err := a.store.GetSessionOrder(ctx, sessionID, customerID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to get session order: %w", err)
	}
	return order, nil
}

// HandleSessionStarted opens the order of a freshly started session
func (a *OrderAssembler) HandleSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error {
	orderID, err := a.CreateSessionOrder(ctx, event.SessionID, event.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to open order for session %s: %w", event.SessionID, err)
	}

	a.logger.Info("Opened session order",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID),
		zap.Int64("order_id", orderID))
	return nil
}

// HandleSessionEnded records the end of a session. The open order and any
// reservations are left to expire.
func (a *OrderAssembler) HandleSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error {
	a.logger.Info("Session ended",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID),
		zap.String("customer_id", event.CustomerID))
	return nil
}
