package project

import (
	"sync"

	core "homefi-backend/core/project"
)

var (
	eventSinksMu sync.Mutex
	eventSinks   []func(core.Event)
)

// RegisterEventSink adds a callback to receive ledger events.
func RegisterEventSink(sink func(core.Event)) {
	if sink == nil {
		return
	}
	eventSinksMu.Lock()
	eventSinks = append(eventSinks, sink)
	eventSinksMu.Unlock()
}

// PublishEvent forwards an event to registered sinks.
func PublishEvent(evt core.Event) {
	eventSinksMu.Lock()
	sinks := append([]func(core.Event){}, eventSinks...)
	eventSinksMu.Unlock()
	for _, sink := range sinks {
		sink(evt)
	}
}
