package service

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples editor sessions from their observers
// ─────────────────────────────────────────────────────────────

const (
	EventBlocksChanged    = "editor:blocks-changed"
	EventSelectionChanged = "editor:selection-changed"
	EventAutosaveStatus   = "autosave:status"
)

// EventEmitter receives editor events. The MCP server and CLI log them; a
// UI host would forward them to its frontend.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to a logger at debug level.
type LogEmitter struct {
	Log *log.Logger
}

func (e LogEmitter) Emit(_ context.Context, event string, data any) {
	l := e.Log
	if l == nil {
		l = log.Default()
	}
	l.Debug("event", "name", event, "data", data)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded payloads of one event, oldest first.
func (m *MockEmitter) Named(event string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}
