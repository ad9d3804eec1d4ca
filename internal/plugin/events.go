package plugin

import "go.uber.org/zap"

// EventType is the kind of lifecycle change a Manager reports.
type EventType int

// Manager events.
const (
	// EventInstalled - a package was extracted and registered.
	EventInstalled EventType = iota

	// EventEnabled - a plugin was loaded and initialized.
	EventEnabled

	// EventDisabled - a plugin was shut down and unloaded.
	EventDisabled

	// EventUninstalled - a plugin and its directory were removed.
	EventUninstalled

	// EventRefreshed - the catalog was rebuilt from disk.
	EventRefreshed

	// EventError - a lifecycle step failed.
	EventError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventInstalled:
		return "installed"
	case EventEnabled:
		return "enabled"
	case EventDisabled:
		return "disabled"
	case EventUninstalled:
		return "uninstalled"
	case EventRefreshed:
		return "refreshed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle change.
type Event struct {
	Type   EventType
	Plugin string
	Error  error
}

// EventHandler receives Manager events. Handlers run after the Manager lock
// is released and may call back into the Manager. Panics are recovered.
type EventHandler func(event Event)

func (m *Manager) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	m.hmu.Lock()
	handlers := append([]EventHandler(nil), m.handlers...)
	m.hmu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			m.safeCall(h, ev)
		}
	}
}

func (m *Manager) safeCall(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked",
				zap.Stringer("event", ev.Type),
				zap.String("plugin", ev.Plugin),
				zap.Any("panic", r))
		}
	}()
	h(ev)
}

// Subscribe registers a handler for Manager events.
func (m *Manager) Subscribe(h EventHandler) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.handlers = append(m.handlers, h)
}

// eventFor returns the event for a completed operation.
func eventFor(t EventType, id string, err error) Event {
	if err != nil {
		return Event{Type: EventError, Plugin: id, Error: err}
	}
	return Event{Type: t, Plugin: id}
}
