package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"configurator-service/internal/breakdown"
	"configurator-service/internal/models"
	"configurator-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Checkout error codes
const (
	CodeInvalidConfiguration = "400"
	CodeCheckoutInProgress   = "409"
	CodeFailedDependency     = "424"
)

// Checkout error descriptions
const (
	DescriptionReservationFailed  = "Unable to reserve inventory"
	DescriptionAssemblyFailed     = "Unable to assemble order"
	DescriptionCheckoutInProgress = "A checkout with this idempotency key is in progress"
)

const checkoutLockTTL = 30 * time.Second

var (
	errReservationRejected  = errors.New("reservation rejected")
	errInvalidConfiguration = errors.New("invalid configuration")
)

// BreakdownEvaluator validates and prices breakdowns
type BreakdownEvaluator interface {
	EvaluateBreakdown(ctx context.Context, ident models.CategoryIdentifier, b models.Breakdown) (breakdown.Result, error)
}

// CheckoutRequest adds a configured product to the order of a session
type CheckoutRequest struct {
	SessionID      string
	CustomerID     string
	CategoryID     int64
	Breakdown      models.Breakdown
	PurchasedCount int
	IdempotencyKey string
}

// CheckoutError is a coded failure reported to the buyer
type CheckoutError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CheckoutResult is the outcome of a checkout
type CheckoutResult struct {
	IsSuccess       bool               `json:"is_success"`
	OrderID         int64              `json:"order_id,omitempty"`
	ConfigurationID int64              `json:"configuration_id,omitempty"`
	UnitPrice       float64            `json:"unit_price,omitempty"`
	Errors          []CheckoutError    `json:"errors"`
	Shortfalls      []models.Shortfall `json:"shortfalls,omitempty"`
}

func failedCheckout(code, description string) *CheckoutResult {
	return &CheckoutResult{
		IsSuccess: false,
		Errors:    []CheckoutError{{Code: code, Description: description}},
	}
}

// CheckoutService validates a breakdown, reserves its stock and attaches it
// to the session order as one unit of work
type CheckoutService struct {
	tx             Transactor
	catalog        BreakdownEvaluator
	ledger         *InventoryLedger
	orders         *OrderAssembler
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	events         CheckoutEvents
	logger         *zap.Logger
}

// NewCheckoutService creates a checkout service. idempotency and events may be nil.
func NewCheckoutService(
	tx Transactor,
	catalog BreakdownEvaluator,
	ledger *InventoryLedger,
	orders *OrderAssembler,
	idempotency IdempotencyStore,
	idempotencyTTL time.Duration,
	events CheckoutEvents,
) *CheckoutService {
	return &CheckoutService{
		tx:             tx,
		catalog:        catalog,
		ledger:         ledger,
		orders:         orders,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		events:         events,
		logger:         util.GetLogger(),
	}
}

// AddConfigurationToSessionOrder validates the breakdown and, in the same
// transaction, reserves stock for every purchased copy, opens or finds the
// session order, saves the configuration, attaches it and updates the order
// total. Business failures are
// reported in the result; only infrastructure failures outside the
// transaction are returned as errors.
func (s *CheckoutService) AddConfigurationToSessionOrder(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.AddConfigurationToSessionOrder",
		attribute.String("session_id", req.SessionID),
		attribute.Int64("category_id", req.CategoryID))
	defer span.End()

	if req.SessionID == "" || req.CustomerID == "" {
		return nil, ErrMissingSession
	}
	if req.PurchasedCount < 1 {
		req.PurchasedCount = 1
	}

	idempotencyKey := ""
	if req.IdempotencyKey != "" && s.idempotency != nil {
		idempotencyKey = scopedIdempotencyKey(req)
		cached, release, err := s.claimIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
		defer release()
	}

	var (
		evaluation  breakdown.Result
		evalErr     error
		reservation ReservationResult
		result      = &CheckoutResult{IsSuccess: true, Errors: []CheckoutError{}}
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		evaluation, evalErr = s.catalog.EvaluateBreakdown(ctx, models.CategoryIdentifier{ID: req.CategoryID}, req.Breakdown)
		if evalErr != nil {
			return evalErr
		}
		if !evaluation.IsValid {
			return errInvalidConfiguration
		}
		result.UnitPrice = evaluation.BreakdownPrice

		var err error
		reservation, err = s.ledger.ReserveInventoryForSession(ctx, req.SessionID, scaleBreakdown(req.Breakdown, req.PurchasedCount))
		if err != nil {
			return err
		}
		if !reservation.Success {
			return errReservationRejected
		}

		if result.OrderID, err = s.orders.CreateSessionOrder(ctx, req.SessionID, req.CustomerID); err != nil {
			return err
		}
		if result.ConfigurationID, err = s.orders.SaveConfiguration(ctx, req.CategoryID, req.Breakdown); err != nil {
			return err
		}
		if err := s.orders.AddConfigurationToOrder(ctx, result.ConfigurationID, result.OrderID, req.PurchasedCount); err != nil {
			return err
		}
		return s.orders.AddToOrderTotal(ctx, result.OrderID, evaluation.BreakdownPrice*float64(req.PurchasedCount))
	})

	if evalErr != nil {
		util.RecordError(span, evalErr)
		return nil, evalErr
	}

	switch {
	case errors.Is(err, errInvalidConfiguration):
		util.CheckoutsTotal.WithLabelValues("invalid").Inc()
		invalid := &CheckoutResult{IsSuccess: false, Errors: make([]CheckoutError, 0, len(evaluation.Errors))}
		for _, msg := range evaluation.Errors {
			invalid.Errors = append(invalid.Errors, CheckoutError{Code: CodeInvalidConfiguration, Description: msg})
		}
		if len(invalid.Errors) == 0 {
			invalid.Errors = append(invalid.Errors, CheckoutError{Code: CodeInvalidConfiguration, Description: "Configuration price is negative"})
		}
		return invalid, nil

	case errors.Is(err, errReservationRejected):
		util.CheckoutsTotal.WithLabelValues("reservation_failed").Inc()
		s.publishReservationRejected(ctx, req.SessionID, reservation.Shortfalls)
		failed := failedCheckout(CodeFailedDependency, DescriptionReservationFailed)
		failed.Shortfalls = reservation.Shortfalls
		return failed, nil

	case err != nil:
		util.CheckoutsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		util.WithTrace(ctx, s.logger).Error("Checkout rolled back",
			zap.String("session_id", req.SessionID),
			zap.Int64("category_id", req.CategoryID),
			zap.Error(fmt.Errorf("failed to assemble order: %w", err)))
		return failedCheckout(CodeFailedDependency, DescriptionAssemblyFailed), nil
	}

	util.CheckoutsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Configuration added to session order",
		zap.String("session_id", req.SessionID),
		zap.Int64("order_id", result.OrderID),
		zap.Int64("configuration_id", result.ConfigurationID),
		zap.Float64("unit_price", result.UnitPrice))

	s.publishConfigurationAdded(ctx, req, result)
	s.rememberResult(ctx, idempotencyKey, result)
	return result, nil
}

// scopedIdempotencyKey confines a client key to the session and customer
// that sent it
func scopedIdempotencyKey(req *CheckoutRequest) string {
	return req.SessionID + ":" + req.CustomerID + ":" + req.IdempotencyKey
}

// scaleBreakdown returns the units needed to build count copies of b
func scaleBreakdown(b models.Breakdown, count int) models.Breakdown {
	scaled := make(models.Breakdown, len(b))
	for i, entry := range b {
		scaled[i] = models.BreakdownEntry{OptionID: entry.OptionID, Units: entry.Units * count}
	}
	return scaled
}

// claimIdempotencyKey returns the stored result of a completed checkout, or
// locks the key for this checkout. The returned release func unlocks it.
func (s *CheckoutService) claimIdempotencyKey(ctx context.Context, key string) (*CheckoutResult, func(), error) {
	var cached CheckoutResult
	found, err := s.idempotency.GetIdempotencyKey(ctx, key, &cached)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if found {
		s.logger.Info("Duplicate checkout request detected", zap.String("idempotency_key", key))
		return &cached, nil, nil
	}

	lockKey := "checkout:" + key
	acquired, err := s.idempotency.AcquireLock(ctx, lockKey, checkoutLockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock idempotency key: %w", err)
	}
	if !acquired {
		return failedCheckout(CodeCheckoutInProgress, DescriptionCheckoutInProgress), nil, nil
	}

	release := func() {
		if err := s.idempotency.ReleaseLock(context.Background(), lockKey); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.String("idempotency_key", key), zap.Error(err))
		}
	}
	return nil, release, nil
}

func (s *CheckoutService) rememberResult(ctx context.Context, key string, result *CheckoutResult) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.SetIdempotencyKey(ctx, key, result, s.idempotencyTTL); err != nil {
		s.logger.Warn("Failed to store idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (s *CheckoutService) publishConfigurationAdded(ctx context.Context, req *CheckoutRequest, result *CheckoutResult) {
	if s.events == nil {
		return
	}

	event := &models.ConfigurationAddedEvent{
		BaseEvent:       models.NewBaseEvent(models.EventTypeConfigurationAdded),
		OrderID:         result.OrderID,
		SessionID:       req.SessionID,
		ConfigurationID: result.ConfigurationID,
		CategoryID:      req.CategoryID,
		Price:           result.UnitPrice,
		Breakdown:       req.Breakdown,
	}
	if err := s.events.PublishConfigurationAdded(ctx, event); err != nil {
		s.logger.Error("Failed to publish ConfigurationAdded event", zap.Error(err))
	}
}

func (s *CheckoutService) publishReservationRejected(ctx context.Context, sessionID string, shortfalls []models.Shortfall) {
	if s.events == nil {
		return
	}

	event := &models.ReservationRejectedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeReservationRejected),
		SessionID:  sessionID,
		Shortfalls: shortfalls,
	}
	if err := s.events.PublishReservationRejected(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReservationRejected event", zap.Error(err))
	}
}
