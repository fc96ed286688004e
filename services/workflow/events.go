package workflow

import (
	"log/slog"
	"sync"
	"time"
)

// EventKind identifies a workflow execution event.
type EventKind string

const (
	EventNodeEnter    EventKind = "node-enter"
	EventNodeExit     EventKind = "node-exit"
	EventEdgeTraverse EventKind = "edge-traverse"
	EventError        EventKind = "error"
	EventCompletion   EventKind = "completion"
)

// Event is an immutable audit record. Payload holds the kind-specific fields.
type Event struct {
	ID              string    `json:"id"`
	Sequence        int64     `json:"sequence"`
	Kind            EventKind `json:"kind"`
	NodeID          string    `json:"nodeId,omitempty"`
	EdgeID          string    `json:"edgeId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	TimestampMillis int64     `json:"timestampMillis"`
	Payload         Payload   `json:"data,omitempty"`
}

// Payload is implemented by the per-kind event payloads below.
type Payload interface {
	Kind() EventKind
}

// NodeEnterPayload accompanies node-enter.
type NodeEnterPayload struct {
	NodeKind NodeKind `json:"nodeType"`
	From     string   `json:"from,omitempty"`
}

// ExitReason says why a node stopped being active.
type ExitReason string

const (
	ExitCompleted ExitReason = "completed"
	ExitNavigated ExitReason = "navigated"
	ExitError     ExitReason = "error"
)

// NodeExitPayload accompanies node-exit.
type NodeExitPayload struct {
	Reason ExitReason     `json:"reason"`
	Data   map[string]any `json:"data,omitempty"`
}

// EdgeTraversePayload accompanies edge-traverse.
type EdgeTraversePayload struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	EdgeKind EdgeKind `json:"edgeType,omitempty"`
}

// ErrorCause distinguishes node failures from rejected transitions.
type ErrorCause string

const (
	CauseExecution  ErrorCause = "execution"
	CauseValidation ErrorCause = "validation"
)

// ErrorPayload accompanies error.
type ErrorPayload struct {
	Message        string     `json:"message"`
	Cause          ErrorCause `json:"cause"`
	Target         string     `json:"target,omitempty"`
	FailedCriteria []string   `json:"failedCriteria,omitempty"`
}

// CompletionPayload accompanies completion.
type CompletionPayload struct {
	Progress            float64 `json:"progress"`
	ExecutionTimeMillis int64   `json:"executionTimeMillis"`
}

func (NodeEnterPayload) Kind() EventKind    { return EventNodeEnter }
func (NodeExitPayload) Kind() EventKind     { return EventNodeExit }
func (EdgeTraversePayload) Kind() EventKind { return EventEdgeTraverse }
func (ErrorPayload) Kind() EventKind        { return EventError }
func (CompletionPayload) Kind() EventKind   { return EventCompletion }

// Handler receives events from a Dispatcher.
type Handler func(Event)

type subscriber struct {
	id   uint64
	kind EventKind // empty for all kinds
	fn   Handler
}

// Dispatcher delivers events to subscribers synchronously, in subscription order.
// A panicking handler is logged and skipped.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
	logger *slog.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Subscription cancels a registration made on a Dispatcher.
type Subscription struct {
	d  *Dispatcher
	id uint64
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (s Subscription) Unsubscribe() {
	if s.d == nil {
		return
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for i, sub := range s.d.subs {
		if sub.id == s.id {
			s.d.subs = append(s.d.subs[:i:i], s.d.subs[i+1:]...)
			return
		}
	}
}

// On registers fn for events of the given kind.
func (d *Dispatcher) On(kind EventKind, fn Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subs = append(d.subs, subscriber{id: d.nextID, kind: kind, fn: fn})
	return Subscription{d: d, id: d.nextID}
}

// OnAny registers fn for every event.
func (d *Dispatcher) OnAny(fn Handler) Subscription {
	return d.On("", fn)
}

// Subscribe registers a handler typed by payload, e.g.
//
//	Subscribe(d, func(ev Event, p ErrorPayload) { ... })
func Subscribe[P Payload](d *Dispatcher, fn func(Event, P)) Subscription {
	var zero P
	return d.On(zero.Kind(), func(ev Event) {
		if p, ok := ev.Payload.(P); ok {
			fn(ev, p)
		}
	})
}

// Emit delivers events in order.
func (d *Dispatcher) Emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	d.mu.RLock()
	subs := make([]subscriber, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, ev := range events {
		for _, sub := range subs {
			if sub.kind != "" && sub.kind != ev.Kind {
				continue
			}
			d.deliver(sub, ev)
		}
	}
}

func (d *Dispatcher) deliver(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event handler panicked", "kind", ev.Kind, "node", ev.NodeID, "panic", r)
		}
	}()
	sub.fn(ev)
}
