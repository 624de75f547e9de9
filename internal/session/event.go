package session

import (
	"time"

	"github.com/nomiku/nomiku-go/internal/device"
)

// EventKind identifies a lifecycle or state event.
type EventKind uint8

const (
	EventConnect EventKind = iota + 1
	EventClose
	EventError
	EventState
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventState:
		return "state"
	default:
		return "unknown"
	}
}

// Origin says what produced a state event.
type Origin string

const (
	OriginMessage Origin = "message" // inbound device message
	OriginCommand Origin = "command" // local change
	OriginExpiry  Origin = "expiry"  // provisional timeout
)

// Event is delivered to the Emitter. Err is set for EventError; Snapshot
// and Origin are set for EventState.
type Event struct {
	Kind     EventKind
	Err      error
	Snapshot device.Snapshot
	Origin   Origin
	Time     time.Time
}

// Emitter receives events. Emit is called without any Machine lock held,
// so it may call back into the Machine.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) { f(e) }

type noopEmitter struct{}

func (noopEmitter) Emit(Event) {}
