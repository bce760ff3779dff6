package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"configurator-service/internal/broker"
	"configurator-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (f *fakeSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range f.messages {
		f.errs = append(f.errs, handler(ctx, msg))
	}
	return nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeSessions struct {
	started []string
	ended   []string
}

func (f *fakeSessions) HandleSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error {
	f.started = append(f.started, event.SessionID)
	return nil
}

func (f *fakeSessions) HandleSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error {
	f.ended = append(f.ended, event.SessionID)
	return nil
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func TestSessionWorkerDispatchesEvents(t *testing.T) {
	source := &fakeSource{messages: []kafka.Message{
		message(t, &models.SessionStartedEvent{BaseEvent: models.NewBaseEvent(models.EventTypeSessionStarted), SessionID: "s-1"}),
		message(t, &models.ConfigurationAddedEvent{BaseEvent: models.NewBaseEvent(models.EventTypeConfigurationAdded), SessionID: "s-1"}),
		message(t, &models.SessionEndedEvent{BaseEvent: models.NewBaseEvent(models.EventTypeSessionEnded), SessionID: "s-1"}),
	}}
	sessions := &fakeSessions{}

	w := NewSessionWorker(source, sessions)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())

	assert.Equal(t, []string{"s-1"}, sessions.started)
	assert.Equal(t, []string{"s-1"}, sessions.ended)
	assert.Equal(t, []error{nil, nil, nil}, source.errs)
	assert.True(t, source.closed)
}

type fakePurger struct {
	calls  int
	result int64
	err    error
	grace  time.Duration
}

func (f *fakePurger) PurgeExpiredReservations(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.calls++
	f.grace = olderThan
	return f.result, f.err
}

func TestSweepReportsPurgedRows(t *testing.T) {
	purger := &fakePurger{result: 3}
	sweeper := NewReservationSweeper(purger, time.Minute, time.Hour)

	assert.Equal(t, int64(3), sweeper.Sweep(context.Background()))
	assert.Equal(t, time.Hour, purger.grace)

	purger.err = errors.New("db down")
	assert.Equal(t, int64(0), sweeper.Sweep(context.Background()))
}

func TestSweeperStopsOnCancel(t *testing.T) {
	purger := &fakePurger{}
	sweeper := NewReservationSweeper(purger, 5*time.Millisecond, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sweeper.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, purger.calls, 0)
}
