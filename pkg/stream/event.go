package stream

import (
	"fmt"
	"time"

	"github.com/HuiFDU/adcsync/pkg/frame"
)

// EventKind discriminates the payload of an Event.
type EventKind int

const (
	// EventFrame carries a decoded Frame.
	EventFrame EventKind = iota
	// EventError carries the validation error of a rejected frame span.
	EventError
	// EventSynchronized marks the transition from Hunting to Synced.
	EventSynchronized
	// EventSyncLost marks the transition from Synced to Hunting.
	EventSyncLost
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventError:
		return "error"
	case EventSynchronized:
		return "synchronized"
	case EventSyncLost:
		return "sync_lost"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one output of the synchronizer. Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	Frame  frame.Frame // EventFrame
	Err    error       // EventError
	Raw    []byte      // EventError: the rejected bytes
	Offset uint64      // stream position of the first byte of the span

	// Set by the Decoder stage.
	Timestamp time.Time
	Session   string
}

func (e Event) String() string {
	switch e.Kind {
	case EventFrame:
		return fmt.Sprintf("frame @%d [%s]", e.Offset, e.Frame.Hex())
	case EventError:
		return fmt.Sprintf("error @%d [%s]: %v", e.Offset, frame.FormatHex(e.Raw), e.Err)
	default:
		return fmt.Sprintf("%s @%d", e.Kind, e.Offset)
	}
}
