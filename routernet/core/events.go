package core

import (
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a record emitted by the network builder for external consumers.
type Event interface {
	EventName() string
}

// NodeCloned records a single unit created by CloneAggregatorNode or
// CloneDisgregatorNode.
type NodeCloned struct {
	Kind    Role             `json:"kind"`
	Node    common.Address   `json:"node"`
	Outputs []common.Address `json:"outputs"`
}

func (e NodeCloned) EventName() string {
	if e.Kind == RoleAggregator {
		return "AggregatorNodeCloned"
	}
	return "DisgregatorNodeCloned"
}

// LayerCreated records a whole layer built by CreateAggregatorLayer or
// CreateDisgregatorLayer.
type LayerCreated struct {
	Kind       Role             `json:"kind"`
	Nodes      []common.Address `json:"nodes"`
	Inputs     []common.Address `json:"inputs"`
	Multiplier int              `json:"multiplier"`
}

func (e LayerCreated) EventName() string {
	if e.Kind == RoleAggregator {
		return "AggregatorLayerCreated"
	}
	return "DisgregatorLayerCreated"
}

// EventSink receives builder events. Implementations must not block.
type EventSink interface {
	Emit(Event)
}

// EventLog keeps every event in memory, in emission order.
type EventLog struct {
	events []Event
	mu     sync.RWMutex
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Emit appends ev.
func (l *EventLog) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Events returns a copy of the recorded events.
func (l *EventLog) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}

// Len returns the number of recorded events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch e := ev.(type) {
	case NodeCloned:
		logger.Info(e.EventName(),
			slog.String("node", e.Node.Hex()),
			slog.Int("outputs", len(e.Outputs)))
	case LayerCreated:
		logger.Info(e.EventName(),
			slog.Int("nodes", len(e.Nodes)),
			slog.Int("inputs", len(e.Inputs)),
			slog.Int("multiplier", e.Multiplier))
	default:
		logger.Info(ev.EventName())
	}
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ev Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ev)
		}
	}
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
