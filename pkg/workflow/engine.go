package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wicaksono/opsagent/pkg/action"
)

const (
	// DefaultWriteTTL bounds how long a Write-class proposal stays open
	DefaultWriteTTL = 15 * time.Minute
	// DefaultDestructiveTTL is shorter: a stale destructive proposal is
	// worse than a stale write proposal.
	DefaultDestructiveTTL = 5 * time.Minute
)

// Engine owns action requests from proposal to terminal state. It
// validates transitions against the state table, executes confirmed
// actions through the action registry's tool invoke, and writes exactly
// one audit record per terminal transition.
type Engine struct {
	mu       sync.Mutex
	requests map[string]*Request

	actions *action.Registry
	audit   AuditStore
	notify  Notifier
	logger  zerolog.Logger

	writeTTL       time.Duration
	destructiveTTL time.Duration

	now func() time.Time
}

// EngineOptions configures the workflow engine
type EngineOptions struct {
	Actions        *action.Registry
	Audit          AuditStore
	Notifier       Notifier
	Logger         zerolog.Logger
	WriteTTL       time.Duration
	DestructiveTTL time.Duration
}

// NewEngine creates a workflow engine
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Actions == nil {
		return nil, fmt.Errorf("action registry is required")
	}
	if opts.Audit == nil {
		opts.Audit = NewMemoryAuditStore()
	}
	if opts.WriteTTL <= 0 {
		opts.WriteTTL = DefaultWriteTTL
	}
	if opts.DestructiveTTL <= 0 {
		opts.DestructiveTTL = DefaultDestructiveTTL
	}

	return &Engine{
		requests:       make(map[string]*Request),
		actions:        opts.Actions,
		audit:          opts.Audit,
		notify:         opts.Notifier,
		logger:         opts.Logger,
		writeTTL:       opts.WriteTTL,
		destructiveTTL: opts.DestructiveTTL,
		now:            time.Now,
	}, nil
}

// Propose creates a request in Proposed state for a registered Write or
// Destructive action. Nothing is executed.
func (e *Engine) Propose(ctx context.Context, name string, args map[string]interface{}, actor string) (*Request, error) {
	def, err := e.actions.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	if def.Risk == action.RiskRead {
		return nil, fmt.Errorf("%w: %s", ErrReadAction, name)
	}

	req := &Request{
		ID:        uuid.NewString(),
		Action:    name,
		Arguments: args,
		Risk:      def.Risk,
		Status:    StatusProposed,
		Actor:     actor,
		CreatedAt: e.now(),
	}

	e.mu.Lock()
	e.requests[req.ID] = req
	e.mu.Unlock()

	e.logger.Info().
		Str("request_id", req.ID).
		Str("action", name).
		Str("risk", string(def.Risk)).
		Str("actor", actor).
		Msg("Action proposed")

	e.emit(EventProposed, req.clone())

	return req.clone(), nil
}

// Confirm transitions a Proposed request through execution. Validation,
// execution and audit happen synchronously in one call; the caller
// observes Executed or Failed, never a bare Confirmed. Execution is
// at-most-once per request id.
func (e *Engine) Confirm(ctx context.Context, id, actor string) (*Request, error) {
	e.mu.Lock()
	req, ok := e.requests[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !canTransition(req.Status, StatusConfirmed) {
		status := req.Status
		e.mu.Unlock()
		return nil, &InvalidStateError{RequestID: id, Status: status, Attempted: StatusConfirmed}
	}

	decided := e.now()
	req.Status = StatusConfirmed
	req.DecidedAt = &decided
	name := req.Action
	args := req.Arguments
	e.mu.Unlock()

	e.logger.Info().
		Str("request_id", id).
		Str("action", name).
		Str("actor", actor).
		Msg("Action confirmed, executing")

	// Same validation and execution contract as a direct tool invoke
	result, execErr := e.actions.Tools().Invoke(ctx, name, args)

	e.mu.Lock()
	executed := e.now()
	req.ExecutedAt = &executed
	eventType := EventExecuted
	if execErr != nil {
		req.Status = StatusFailed
		req.Error = execErr.Error()
		eventType = EventFailed
	} else {
		req.Status = StatusExecuted
		req.Result = result
	}
	snapshot := req.clone()
	e.mu.Unlock()

	e.writeAudit(ctx, snapshot, actor)
	e.emit(eventType, snapshot)

	return snapshot, nil
}

// Reject transitions a Proposed request to Rejected. The handler is
// never invoked.
func (e *Engine) Reject(ctx context.Context, id, actor string) (*Request, error) {
	e.mu.Lock()
	req, ok := e.requests[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !canTransition(req.Status, StatusRejected) {
		status := req.Status
		e.mu.Unlock()
		return nil, &InvalidStateError{RequestID: id, Status: status, Attempted: StatusRejected}
	}

	decided := e.now()
	req.Status = StatusRejected
	req.DecidedAt = &decided
	snapshot := req.clone()
	e.mu.Unlock()

	e.logger.Info().
		Str("request_id", id).
		Str("action", snapshot.Action).
		Str("actor", actor).
		Msg("Action rejected")

	e.writeAudit(ctx, snapshot, actor)
	e.emit(EventRejected, snapshot)

	return snapshot, nil
}

// ExpireStale sweeps Proposed requests past their risk-class TTL into
// Expired. Running the sweep repeatedly is idempotent: a request
// expires exactly once. Returns the requests expired by this pass.
func (e *Engine) ExpireStale(ctx context.Context) []*Request {
	now := e.now()

	e.mu.Lock()
	expired := []*Request{}
	for _, req := range e.requests {
		if req.Status != StatusProposed {
			continue
		}
		if now.Sub(req.CreatedAt) <= e.ttlFor(req.Risk) {
			continue
		}
		decided := now
		req.Status = StatusExpired
		req.DecidedAt = &decided
		expired = append(expired, req.clone())
	}
	e.mu.Unlock()

	for _, snapshot := range expired {
		e.logger.Info().
			Str("request_id", snapshot.ID).
			Str("action", snapshot.Action).
			Msg("Action proposal expired")
		e.writeAudit(ctx, snapshot, "system")
		e.emit(EventExpired, snapshot)
	}

	return expired
}

// Get returns a request by id
func (e *Engine) Get(id string) (*Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return req.clone(), nil
}

// ListPending returns all requests still in Proposed state
func (e *Engine) ListPending() []*Request {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending := []*Request{}
	for _, req := range e.requests {
		if req.Status == StatusProposed {
			pending = append(pending, req.clone())
		}
	}
	return pending
}

// Audit exposes the audit store for the dashboard's audit page
func (e *Engine) Audit() AuditStore {
	return e.audit
}

func (e *Engine) ttlFor(risk action.RiskClass) time.Duration {
	if risk == action.RiskDestructive {
		return e.destructiveTTL
	}
	return e.writeTTL
}

// writeAudit appends the single audit record for a terminal transition
func (e *Engine) writeAudit(ctx context.Context, req *Request, actor string) {
	record := AuditRecord{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Action:    req.Action,
		Arguments: req.Arguments,
		Risk:      req.Risk,
		Outcome:   req.Status,
		Actor:     actor,
		Timestamp: e.now(),
	}

	if err := e.audit.Append(ctx, record); err != nil {
		e.logger.Error().
			Err(err).
			Str("request_id", req.ID).
			Str("outcome", string(req.Status)).
			Msg("Failed to append audit record")
	}
}

func (e *Engine) emit(eventType EventType, req *Request) {
	if e.notify == nil {
		return
	}
	e.notify(Event{Type: eventType, Request: req})
}
