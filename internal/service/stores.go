package service

import (
	"context"
	"time"

	"configurator-service/internal/models"
)

// Transactor runs fn in a transaction carried by the context passed to fn
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogStore loads category configurations
type CatalogStore interface {
	LoadCategoryConfig(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error)
}

// CatalogCache is an optional read-through cache of category configurations
type CatalogCache interface {
	GetCategoryConfig(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error)
	SetCategoryConfig(ctx context.Context, cfg *models.CategoryConfig, ttl time.Duration) error
}

// InventoryStore reads stock and persists session reservations
type InventoryStore interface {
	Transactor
	ReadStock(ctx context.Context, optionIDs []int64) (map[int64]int, error)
	LockStock(ctx context.Context, optionIDs []int64) (map[int64]int, error)
	ReadActiveReservations(ctx context.Context, optionIDs []int64, now time.Time) (map[int64]int, error)
	UpsertReservation(ctx context.Context, sessionID string, optionID int64, units int, now, expiresAt time.Time) error
	GetSessionReservations(ctx context.Context, sessionID string) ([]models.InventoryReservation, error)
	PurgeExpiredReservations(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrderStore persists session orders and saved configurations
type OrderStore interface {
	Transactor
	CreateSessionOrder(ctx context.Context, sessionID, customerID string) (int64, error)
	AddConfigurationToOrder(ctx context.Context, link models.OrderConfiguration) error
	AddToOrderTotal(ctx context.Context, orderID int64, amount float64) error
	SaveConfiguration(ctx context.Context, cfg models.SavedConfiguration) (int64, error)
	GetSessionOrder(ctx context.Context, sessionID, customerID string) (*models.SessionOrder, error)
}

// IdempotencyStore remembers checkout results under client supplied keys
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string, dest interface{}) (bool, error)
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// CheckoutEvents publishes the outcome of checkouts
type CheckoutEvents interface {
	PublishConfigurationAdded(ctx context.Context, event *models.ConfigurationAddedEvent) error
	PublishReservationRejected(ctx context.Context, event *models.ReservationRejectedEvent) error
}
