package worker

import (
	"context"
	"time"

	"configurator-service/internal/broker"
	"configurator-service/internal/models"
	"configurator-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageSource delivers messages to a handler until ctx is cancelled
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// SessionHandler reacts to session lifecycle events
type SessionHandler interface {
	HandleSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error
	HandleSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error
}

// SessionWorker opens session orders from session events
type SessionWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSessionWorker creates a new session worker
func NewSessionWorker(consumer MessageSource, sessions SessionHandler) *SessionWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnSessionStarted(sessions.HandleSessionStarted)
	eventHandler.OnSessionEnded(sessions.HandleSessionEnded)

	return &SessionWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *SessionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting session worker")
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *SessionWorker) handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *SessionWorker) Stop() error {
	w.logger.Info("Stopping session worker")
	return w.consumer.Close()
}

// ReservationPurger deletes reservations that expired long ago
type ReservationPurger interface {
	PurgeExpiredReservations(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ReservationSweeper periodically removes lapsed reservation rows.
// Availability never depends on it; expired rows are ignored by reads.
type ReservationSweeper struct {
	purger      ReservationPurger
	interval    time.Duration
	gracePeriod time.Duration
	logger      *zap.Logger
}

// NewReservationSweeper creates a new reservation sweeper
func NewReservationSweeper(purger ReservationPurger, interval, gracePeriod time.Duration) *ReservationSweeper {
	return &ReservationSweeper{
		purger:      purger,
		interval:    interval,
		gracePeriod: gracePeriod,
		logger:      util.GetLogger(),
	}
}

// Start sweeps once per interval until ctx is cancelled
func (s *ReservationSweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting reservation sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping reservation sweeper")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single purge pass
func (s *ReservationSweeper) Sweep(ctx context.Context) int64 {
	purged, err := s.purger.PurgeExpiredReservations(ctx, s.gracePeriod)
	if err != nil {
		s.logger.Error("Failed to purge expired reservations", zap.Error(err))
		return 0
	}
	if purged > 0 {
		s.logger.Info("Purged expired reservations", zap.Int64("count", purged))
	}
	return purged
}
