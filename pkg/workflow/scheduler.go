package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/wicaksono/opsagent/pkg/action"
)

// RecurrenceKind represents how a scheduled action repeats
type RecurrenceKind string

const (
	RecurrenceNone     RecurrenceKind = "none"
	RecurrenceInterval RecurrenceKind = "interval"
	RecurrenceCron     RecurrenceKind = "cron"
)

// Recurrence describes the repeat rule for a scheduled action
type Recurrence struct {
	Kind     RecurrenceKind `json:"kind"`
	Interval time.Duration  `json:"interval,omitempty"`
	Expr     string         `json:"expr,omitempty"` // 5-field cron expression
}

// ScheduleStatus tracks the lifecycle of a scheduled action
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleDone      ScheduleStatus = "done"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduledAction is a deferred action request. A periodic sweep
// promotes due entries into Propose; scheduling never bypasses
// confirmation for Write or Destructive actions.
type ScheduledAction struct {
	ID            string                 `json:"id"`
	Action        string                 `json:"action"`
	Arguments     map[string]interface{} `json:"arguments"`
	Actor         string                 `json:"actor"`
	ScheduledFor  time.Time              `json:"scheduled_for"`
	Recurrence    Recurrence             `json:"recurrence"`
	Status        ScheduleStatus         `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	LastProposed  *time.Time             `json:"last_proposed,omitempty"`
	LastRequestID string                 `json:"last_request_id,omitempty"`
}

func (s *ScheduledAction) clone() *ScheduledAction {
	c := *s
	return &c
}

// Scheduler holds scheduled actions and promotes due entries into the
// engine's normal propose/confirm/expire machine.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*ScheduledAction

	engine *Engine
	logger zerolog.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler bound to a workflow engine
func NewScheduler(engine *Engine, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		entries: make(map[string]*ScheduledAction),
		engine:  engine,
		logger:  logger,
		now:     time.Now,
	}
}

// Schedule creates a scheduled action. The action must be registered
// and confirmable; the same rules as Propose apply.
func (s *Scheduler) Schedule(ctx context.Context, name string, args map[string]interface{}, when time.Time, recurrence Recurrence, actor string) (*ScheduledAction, error) {
	def, err := s.engine.actions.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	if def.Risk == action.RiskRead {
		return nil, fmt.Errorf("%w: %s", ErrReadAction, name)
	}
	if err := validateRecurrence(recurrence); err != nil {
		return nil, err
	}

	entry := &ScheduledAction{
		ID:           uuid.NewString(),
		Action:       name,
		Arguments:    args,
		Actor:        actor,
		ScheduledFor: when,
		Recurrence:   recurrence,
		Status:       SchedulePending,
		CreatedAt:    s.now(),
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	s.logger.Info().
		Str("schedule_id", entry.ID).
		Str("action", name).
		Time("scheduled_for", when).
		Str("recurrence", string(recurrence.Kind)).
		Msg("Action scheduled")

	return entry.clone(), nil
}

// SweepDue promotes every due pending entry into a proposal. Recurring
// entries are re-armed with their next run time; one-shot entries are
// marked done. Returns the requests proposed by this pass.
func (s *Scheduler) SweepDue(ctx context.Context) []*Request {
	now := s.now()

	s.mu.Lock()
	due := []string{}
	for id, entry := range s.entries {
		if entry.Status == SchedulePending && !entry.ScheduledFor.After(now) {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	proposed := []*Request{}
	for _, id := range due {
		// Cancel may race the sweep, so the pending check and the
		// propose happen under the same lock hold.
		s.mu.Lock()
		entry, ok := s.entries[id]
		if !ok || entry.Status != SchedulePending {
			s.mu.Unlock()
			continue
		}

		req, err := s.engine.Propose(ctx, entry.Action, entry.Arguments, entry.Actor)
		if err != nil {
			s.mu.Unlock()
			s.logger.Error().
				Err(err).
				Str("schedule_id", id).
				Str("action", entry.Action).
				Msg("Failed to propose scheduled action")
			continue
		}

		entry.LastProposed = &now
		entry.LastRequestID = req.ID

		next, rearm := nextRun(entry.Recurrence, now)
		if rearm {
			entry.ScheduledFor = next
		} else {
			entry.Status = ScheduleDone
		}
		s.mu.Unlock()

		proposed = append(proposed, req)

		s.logger.Info().
			Str("schedule_id", id).
			Str("request_id", req.ID).
			Str("action", entry.Action).
			Msg("Scheduled action promoted to proposal")
	}

	return proposed
}

// List returns all scheduled actions
func (s *Scheduler) List() []*ScheduledAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*ScheduledAction, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry.clone())
	}
	return entries
}

// Cancel marks a pending scheduled action as cancelled
func (s *Scheduler) Cancel(id string) (*ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if entry.Status != SchedulePending {
		return nil, fmt.Errorf("schedule %s is %s, cannot cancel", id, entry.Status)
	}

	entry.Status = ScheduleCancelled
	return entry.clone(), nil
}

// validateRecurrence checks a recurrence rule at schedule time
func validateRecurrence(r Recurrence) error {
	switch r.Kind {
	case "", RecurrenceNone:
		return nil
	case RecurrenceInterval:
		if r.Interval <= 0 {
			return fmt.Errorf("interval recurrence requires a positive interval")
		}
		return nil
	case RecurrenceCron:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(r.Expr); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown recurrence kind: %s", r.Kind)
	}
}

// nextRun computes the next run time after now. The second return
// value is false for one-shot schedules.
func nextRun(r Recurrence, now time.Time) (time.Time, bool) {
	switch r.Kind {
	case RecurrenceInterval:
		return now.Add(r.Interval), true
	case RecurrenceCron:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err := parser.Parse(r.Expr)
		if err != nil {
			return time.Time{}, false
		}
		return sched.Next(now), true
	default:
		return time.Time{}, false
	}
}
