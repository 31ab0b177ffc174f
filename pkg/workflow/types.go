package workflow

import (
	"time"

	"github.com/wicaksono/opsagent/pkg/action"
)

// Status represents the lifecycle state of an action request
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// transitions is the allowed state transition table. Terminal states
// have no successors; transitions are monotonic and one-directional.
var transitions = map[Status][]Status{
	StatusProposed:  {StatusConfirmed, StatusRejected, StatusExpired},
	StatusConfirmed: {StatusExecuted, StatusFailed},
}

// canTransition reports whether from -> to is a legal transition
func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no legal successors
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Request is a proposed invocation of a Write or Destructive action.
// It is owned by the engine until it reaches a terminal state.
type Request struct {
	ID         string                 `json:"id"`
	Action     string                 `json:"action"`
	Arguments  map[string]interface{} `json:"arguments"`
	Risk       action.RiskClass       `json:"risk"`
	Status     Status                 `json:"status"`
	Actor      string                 `json:"actor"`
	CreatedAt  time.Time              `json:"created_at"`
	DecidedAt  *time.Time             `json:"decided_at,omitempty"`
	ExecutedAt *time.Time             `json:"executed_at,omitempty"`
	Result     interface{}            `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// clone returns a copy safe to hand to callers
func (r *Request) clone() *Request {
	c := *r
	return &c
}

// AuditRecord is an immutable append-only entry written exactly once
// per terminal transition of a request.
type AuditRecord struct {
	ID        string                 `json:"id"`
	RequestID string                 `json:"request_id"`
	Action    string                 `json:"action"`
	Arguments map[string]interface{} `json:"arguments"`
	Risk      action.RiskClass       `json:"risk"`
	Outcome   Status                 `json:"outcome"`
	Actor     string                 `json:"actor"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventType identifies a workflow state change
type EventType string

const (
	EventProposed  EventType = "action_proposed"
	EventExecuted  EventType = "action_executed"
	EventFailed    EventType = "action_failed"
	EventRejected  EventType = "action_rejected"
	EventExpired   EventType = "action_expired"
	EventScheduled EventType = "action_scheduled"
)

// Event is emitted on every request state change
type Event struct {
	Type    EventType `json:"type"`
	Request *Request  `json:"request"`
}

// Notifier receives workflow events. Delivery happens outside the
// engine's critical section.
type Notifier func(Event)
