package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedulerFixture(t *testing.T) (*testFixture, *Scheduler) {
	t.Helper()

	f := newFixture(t)
	s := NewScheduler(f.engine, zerolog.Nop())
	return f, s
}

func TestScheduler_Schedule(t *testing.T) {
	_, s := newSchedulerFixture(t)

	when := time.Now().Add(time.Hour)
	entry, err := s.Schedule(context.Background(), "restart_service",
		map[string]interface{}{"service": "nginx"}, when, Recurrence{}, "admin")
	require.NoError(t, err)

	assert.Equal(t, SchedulePending, entry.Status)
	assert.Equal(t, when, entry.ScheduledFor)
	assert.Len(t, s.List(), 1)
}

func TestScheduler_Schedule_Validation(t *testing.T) {
	_, s := newSchedulerFixture(t)

	_, err := s.Schedule(context.Background(), "nope", nil, time.Now(), Recurrence{}, "admin")
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = s.Schedule(context.Background(), "get_status",
		map[string]interface{}{"service": "x"}, time.Now(), Recurrence{}, "admin")
	assert.ErrorIs(t, err, ErrReadAction)

	_, err = s.Schedule(context.Background(), "restart_service",
		map[string]interface{}{"service": "x"}, time.Now(),
		Recurrence{Kind: RecurrenceInterval}, "admin")
	assert.Error(t, err)

	_, err = s.Schedule(context.Background(), "restart_service",
		map[string]interface{}{"service": "x"}, time.Now(),
		Recurrence{Kind: RecurrenceCron, Expr: "not a cron"}, "admin")
	assert.Error(t, err)
}

func TestScheduler_SweepDue_OneShot(t *testing.T) {
	f, s := newSchedulerFixture(t)

	current := time.Now()
	s.now = func() time.Time { return current }

	entry, err := s.Schedule(context.Background(), "restart_service",
		map[string]interface{}{"service": "nginx"}, current.Add(time.Minute), Recurrence{}, "admin")
	require.NoError(t, err)

	// Not due yet
	assert.Empty(t, s.SweepDue(context.Background()))

	current = current.Add(2 * time.Minute)

	proposed := s.SweepDue(context.Background())
	require.Len(t, proposed, 1)
	assert.Equal(t, StatusProposed, proposed[0].Status)
	assert.Equal(t, "restart_service", proposed[0].Action)

	// The proposal goes through the normal confirmation machine; the
	// schedule itself is finished and never bypassed confirmation.
	entries := s.List()
	require.Len(t, entries, 1)
	assert.Equal(t, ScheduleDone, entries[0].Status)
	assert.Equal(t, proposed[0].ID, entries[0].LastRequestID)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Len(t, f.engine.ListPending(), 1)

	// No audit record until a terminal transition
	assert.Empty(t, f.auditRecords(t))

	// Sweep is idempotent for one-shot entries
	assert.Empty(t, s.SweepDue(context.Background()))
}

func TestScheduler_SweepDue_IntervalRecurrence(t *testing.T) {
	_, s := newSchedulerFixture(t)

	current := time.Now()
	s.now = func() time.Time { return current }

	_, err := s.Schedule(context.Background(), "update_config",
		map[string]interface{}{"service": "dns"}, current,
		Recurrence{Kind: RecurrenceInterval, Interval: 10 * time.Minute}, "admin")
	require.NoError(t, err)

	proposed := s.SweepDue(context.Background())
	require.Len(t, proposed, 1)

	entries := s.List()
	require.Len(t, entries, 1)
	assert.Equal(t, SchedulePending, entries[0].Status)
	assert.Equal(t, current.Add(10*time.Minute), entries[0].ScheduledFor)

	// Re-armed entry is not due until the interval elapses
	assert.Empty(t, s.SweepDue(context.Background()))

	current = current.Add(11 * time.Minute)
	assert.Len(t, s.SweepDue(context.Background()), 1)
}

func TestScheduler_CancelledDueEntryIsNotProposed(t *testing.T) {
	f, s := newSchedulerFixture(t)

	current := time.Now()
	s.now = func() time.Time { return current }

	entry, err := s.Schedule(context.Background(), "restart_service",
		map[string]interface{}{"service": "nginx"}, current, Recurrence{}, "admin")
	require.NoError(t, err)

	// The entry is already due when it gets cancelled; the sweep must
	// re-check the status before proposing.
	_, err = s.Cancel(entry.ID)
	require.NoError(t, err)

	assert.Empty(t, s.SweepDue(context.Background()))
	assert.Empty(t, f.engine.ListPending())

	entries := s.List()
	require.Len(t, entries, 1)
	assert.Equal(t, ScheduleCancelled, entries[0].Status)
	assert.Empty(t, entries[0].LastRequestID)
}

func TestScheduler_CancelRacingSweep(t *testing.T) {
	for i := 0; i < 25; i++ {
		f, s := newSchedulerFixture(t)

		entry, err := s.Schedule(context.Background(), "restart_service",
			map[string]interface{}{"service": "nginx"}, time.Now().Add(-time.Second), Recurrence{}, "admin")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var cancelErr error
		var proposed []*Request

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = s.Cancel(entry.ID)
		}()
		go func() {
			defer wg.Done()
			proposed = s.SweepDue(context.Background())
		}()
		wg.Wait()

		// Exactly one side wins: a successful cancel means the sweep
		// proposed nothing, a failed cancel means it already fired.
		if cancelErr == nil {
			assert.Empty(t, proposed)
			assert.Empty(t, f.engine.ListPending())
		} else {
			assert.Len(t, proposed, 1)
		}
	}
}

func TestScheduler_Cancel(t *testing.T) {
	_, s := newSchedulerFixture(t)

	entry, err := s.Schedule(context.Background(), "restart_service",
		map[string]interface{}{"service": "nginx"}, time.Now().Add(time.Hour), Recurrence{}, "admin")
	require.NoError(t, err)

	cancelled, err := s.Cancel(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ScheduleCancelled, cancelled.Status)

	// Cancelled entries never fire
	assert.Empty(t, s.SweepDue(context.Background()))

	_, err = s.Cancel(entry.ID)
	assert.Error(t, err)

	_, err = s.Cancel("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
