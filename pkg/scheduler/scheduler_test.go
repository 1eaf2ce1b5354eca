package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/clock"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
	"github.com/PermAdut/autoservice-notify/pkg/queue/memory"
	"github.com/PermAdut/autoservice-notify/pkg/scheduler"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	reminders []notify.MaintenanceReminder
	err       error
	calls     []time.Time
	scanned   chan struct{}
}

func newFakeSource(reminders ...notify.MaintenanceReminder) *fakeSource {
	return &fakeSource{reminders: reminders, scanned: make(chan struct{}, 16)}
}

func (f *fakeSource) DueReminders(_ context.Context, dueBefore time.Time) ([]notify.MaintenanceReminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dueBefore)
	f.scanned <- struct{}{}
	return f.reminders, f.err
}

func (f *fakeSource) dueBefore() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func reminder(id string) notify.MaintenanceReminder {
	due := t0.Add(48 * time.Hour)
	return notify.MaintenanceReminder{
		ReminderID: id,
		Car:        notify.Car{Make: "Toyota", Model: "Corolla"},
		Type:       "oil_change",
		DueDate:    &due,
		Recipient:  notify.Contact{Phone: "+15550001111"},
		Company:    notify.Company{Name: "Downtown Auto"},
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	producer := notify.NewProducer(memory.New())

	_, err := scheduler.New(nil, producer)
	require.ErrorIs(t, err, scheduler.ErrSourceRequired)

	_, err = scheduler.New(newFakeSource(), nil)
	require.ErrorIs(t, err, scheduler.ErrEnqueuerRequired)

	for _, expr := range []string{"not a cron expression", "* * * *", "0 0 9 * * *"} {
		_, err = scheduler.New(newFakeSource(), producer, scheduler.WithSchedule(expr))
		require.ErrorIs(t, err, scheduler.ErrInvalidSchedule, expr)
	}
}

func TestNextUsesLocation(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s, err := scheduler.New(newFakeSource(), notify.NewProducer(memory.New()), scheduler.WithLocation(ny))
	require.NoError(t, err)

	// 09:00 in New York on March 1st is 14:00 UTC.
	assert.True(t, s.Next(t0).Equal(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)))

	s, err = scheduler.New(newFakeSource(), notify.NewProducer(memory.New()))
	require.NoError(t, err)
	assert.True(t, s.Next(t0).Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
	assert.True(t, s.Next(t0.Add(2*time.Hour)).Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))
}

func TestRunOnceEnqueuesDueReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fc := clock.NewFake(t0)
	store := memory.New(queue.WithClock(fc))
	invalid := reminder("r-bad")
	invalid.DueDate = nil

	source := newFakeSource(reminder("r-1"), reminder("r-2"), invalid)
	s, err := scheduler.New(source, notify.NewProducer(store), scheduler.WithClock(fc))
	require.NoError(t, err)

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Result{Scanned: 3, Enqueued: 2, Skipped: 1}, res)
	assert.Equal(t, []time.Time{t0.Add(scheduler.DefaultLookahead)}, source.dueBefore())

	// A second scan finds the same reminders pending and adds nothing.
	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enqueued)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Waiting)
}

func TestRunOnceErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("source failure", func(t *testing.T) {
		t.Parallel()

		source := newFakeSource()
		source.err = errors.New("connection refused")
		s, err := scheduler.New(source, notify.NewProducer(memory.New()))
		require.NoError(t, err)

		_, err = s.RunOnce(ctx)
		require.ErrorIs(t, err, source.err)
	})

	t.Run("storage failure aborts", func(t *testing.T) {
		t.Parallel()

		store := memory.New()
		require.NoError(t, store.Close())

		s, err := scheduler.New(newFakeSource(reminder("r-1"), reminder("r-2")), notify.NewProducer(store))
		require.NoError(t, err)

		res, err := s.RunOnce(ctx)
		require.ErrorIs(t, err, queue.ErrStorageUnavailable)
		assert.Equal(t, scheduler.Result{Scanned: 2}, res)
	})
}

func TestRunFollowsSchedule(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clock.NewFake(t0)
	source := newFakeSource(reminder("r-1"))
	s, err := scheduler.New(source, notify.NewProducer(memory.New(queue.WithClock(fc))),
		scheduler.WithClock(fc),
		scheduler.WithLookahead(24*time.Hour),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	fc.BlockUntil(1)
	require.NoError(t, scheduler.Healthcheck(s)(ctx))
	require.ErrorIs(t, s.Run(ctx), scheduler.ErrAlreadyRunning)
	assert.Empty(t, source.dueBefore(), "nothing runs before 09:00")

	fc.Advance(time.Hour)
	<-source.scanned

	fc.BlockUntil(1)
	fc.Advance(24 * time.Hour)
	<-source.scanned

	nine := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	calls := source.dueBefore()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Equal(nine.Add(24*time.Hour)))
	assert.True(t, calls[1].Equal(nine.Add(48*time.Hour)))

	cancel()
	require.NoError(t, <-done)
	require.Error(t, scheduler.Healthcheck(s)(context.Background()))
}

func TestRunOnStart(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := clock.NewFake(t0)
	source := newFakeSource()
	s, err := scheduler.New(source, notify.NewProducer(memory.New()),
		scheduler.WithClock(fc),
		scheduler.WithRunOnStart(true),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-source.scanned
	fc.BlockUntil(1)
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, source.dueBefore(), 1)
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	opts, err := scheduler.Config{Schedule: "30 7 * * 1-5", TimeZone: "Europe/Minsk", Lookahead: time.Hour}.Options()
	require.NoError(t, err)

	s, err := scheduler.New(newFakeSource(), notify.NewProducer(memory.New()), opts...)
	require.NoError(t, err)
	// Minsk is UTC+3: 07:30 local on Monday March 2nd is 04:30 UTC.
	assert.True(t, s.Next(t0).Equal(time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC)))

	_, err = scheduler.Config{TimeZone: "Mars/Olympus"}.Options()
	require.Error(t, err)
}
