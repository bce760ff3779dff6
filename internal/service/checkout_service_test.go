package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	store       *memStore
	idempotency *memIdempotency
	events      *memEvents
	svc         *CheckoutService
}

func newCheckoutFixture() *checkoutFixture {
	store := newMemStore()
	catalog := NewCatalogService(store, nil, 0)
	ledger := NewInventoryLedger(store, catalog, testBusinessConfig())
	orders := NewOrderAssembler(store)
	idempotency := newMemIdempotency()
	events := &memEvents{}

	return &checkoutFixture{
		store:       store,
		idempotency: idempotency,
		events:      events,
		svc:         NewCheckoutService(store, catalog, ledger, orders, idempotency, testBusinessConfig().IdempotencyTTL, events),
	}
}

func validRequest() *CheckoutRequest {
	// Full-suspension, Matte, Mountain wheels, Blue, 8-speed chain
	return &CheckoutRequest{
		SessionID:  "s-1",
		CustomerID: "c-1",
		CategoryID: 1,
		Breakdown:  breakdownOf(1, 1, 4, 1, 7, 1, 11, 1, 13, 1),
	}
}

func TestCheckoutAddsConfigurationToOrder(t *testing.T) {
	f := newCheckoutFixture()
	req := validRequest()
	req.PurchasedCount = 2

	result, err := f.svc.AddConfigurationToSessionOrder(context.Background(), req)
	require.NoError(t, err)

	require.True(t, result.IsSuccess)
	assert.Empty(t, result.Errors)
	assert.InDelta(t, 345.0, result.UnitPrice, 1e-9)

	order := f.store.order(result.OrderID)
	assert.InDelta(t, 690.0, order.total, 1e-9)
	assert.Equal(t, 2, order.configs[result.ConfigurationID])
	assert.Equal(t, 2, f.store.reservedUnits("s-1", 1))
	assert.Equal(t, 2, f.store.reservedUnits("s-1", 13))
	require.Len(t, f.events.added, 1)
	assert.Equal(t, result.OrderID, f.events.added[0].OrderID)
}

func TestCheckoutRejectsInvalidBreakdown(t *testing.T) {
	f := newCheckoutFixture()
	req := validRequest()
	req.Breakdown = breakdownOf(1, 1, 5, 1, 8, 1, 9, 1, 13, 1)

	result, err := f.svc.AddConfigurationToSessionOrder(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.IsSuccess)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeInvalidConfiguration, result.Errors[0].Code)
	assert.Equal(t, "Invalid combination: Fat bike wheels cannot have red rims", result.Errors[0].Description)
	assert.Equal(t, 0, f.store.reservationCount())
	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 0, f.store.commits)
	assert.Equal(t, 1, f.store.rollbacks)
}

func TestCheckoutReservationShortfallRollsBack(t *testing.T) {
	f := newCheckoutFixture()
	req := validRequest()
	req.Breakdown = breakdownOf(1, 1, 4, 1, 7, 1, 11, 1, 13, 1)

	f.store.mu.Lock()
	f.store.state.stock[13] = 0
	f.store.mu.Unlock()

	result, err := f.svc.AddConfigurationToSessionOrder(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.IsSuccess)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeFailedDependency, result.Errors[0].Code)
	assert.Equal(t, DescriptionReservationFailed, result.Errors[0].Description)
	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, int64(13), result.Shortfalls[0].OptionID)

	assert.Equal(t, 0, f.store.reservationCount())
	assert.Equal(t, 0, f.store.orderCount())
	require.Len(t, f.events.rejected, 1)
}

func TestCheckoutReservesUnitsForEveryPurchasedCopy(t *testing.T) {
	f := newCheckoutFixture()
	req := validRequest()
	req.PurchasedCount = 12

	result, err := f.svc.AddConfigurationToSessionOrder(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.IsSuccess)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeFailedDependency, result.Errors[0].Code)
	assert.Equal(t, DescriptionReservationFailed, result.Errors[0].Description)
	require.Len(t, result.Shortfalls, 5)
	for _, shortfall := range result.Shortfalls {
		assert.Equal(t, 12, shortfall.Requested)
		assert.Equal(t, 11, shortfall.Available)
	}

	assert.Equal(t, 0, f.store.reservationCount())
	assert.Equal(t, 0, f.store.orderCount())
	assert.Empty(t, f.events.added)
}

func TestCheckoutStorageFailureRollsBackReservation(t *testing.T) {
	f := newCheckoutFixture()
	f.store.failSaveConfiguration = errors.New("disk full")

	result, err := f.svc.AddConfigurationToSessionOrder(context.Background(), validRequest())
	require.NoError(t, err)

	assert.False(t, result.IsSuccess)
	assert.Equal(t, CodeFailedDependency, result.Errors[0].Code)
	assert.Equal(t, DescriptionAssemblyFailed, result.Errors[0].Description)
	assert.Equal(t, 0, f.store.reservationCount())
	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 1, f.store.rollbacks)
	assert.Empty(t, f.events.added)
}

func TestCheckoutRepeatsAccumulateOnSameOrder(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	first, err := f.svc.AddConfigurationToSessionOrder(ctx, validRequest())
	require.NoError(t, err)
	second, err := f.svc.AddConfigurationToSessionOrder(ctx, validRequest())
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.NotEqual(t, first.ConfigurationID, second.ConfigurationID)
	assert.InDelta(t, 690.0, f.store.order(first.OrderID).total, 1e-9)
	assert.Equal(t, 2, f.store.reservedUnits("s-1", 1))
}

func TestCheckoutIdempotencyKeyReplaysResult(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	req := validRequest()
	req.IdempotencyKey = "key-1"
	first, err := f.svc.AddConfigurationToSessionOrder(ctx, req)
	require.NoError(t, err)

	req = validRequest()
	req.IdempotencyKey = "key-1"
	second, err := f.svc.AddConfigurationToSessionOrder(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ConfigurationID, second.ConfigurationID)
	assert.Equal(t, 1, f.store.reservedUnits("s-1", 1))
	assert.Len(t, f.events.added, 1)
	assert.Empty(t, f.idempotency.locks)
}

func TestCheckoutIdempotencyKeyIsScopedToSession(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	req := validRequest()
	req.IdempotencyKey = "key-1"
	first, err := f.svc.AddConfigurationToSessionOrder(ctx, req)
	require.NoError(t, err)

	req = validRequest()
	req.SessionID = "s-2"
	req.CustomerID = "c-2"
	req.IdempotencyKey = "key-1"
	second, err := f.svc.AddConfigurationToSessionOrder(ctx, req)
	require.NoError(t, err)

	require.True(t, second.IsSuccess)
	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.NotEqual(t, first.ConfigurationID, second.ConfigurationID)
	assert.Equal(t, 1, f.store.reservedUnits("s-1", 1))
	assert.Equal(t, 1, f.store.reservedUnits("s-2", 1))
	assert.Equal(t, 2, f.store.orderCount())
	assert.Len(t, f.events.added, 2)
	assert.Len(t, f.idempotency.results, 2)
}

func TestCheckoutIdempotencyKeyInProgress(t *testing.T) {
	f := newCheckoutFixture()
	f.idempotency.locks["checkout:s-1:c-1:key-1"] = true

	req := validRequest()
	req.IdempotencyKey = "key-1"
	result, err := f.svc.AddConfigurationToSessionOrder(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.IsSuccess)
	assert.Equal(t, CodeCheckoutInProgress, result.Errors[0].Code)
	assert.Equal(t, 0, f.store.reservationCount())
}

func TestCheckoutRequiresSession(t *testing.T) {
	f := newCheckoutFixture()
	req := validRequest()
	req.CustomerID = ""

	_, err := f.svc.AddConfigurationToSessionOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrMissingSession)
}
