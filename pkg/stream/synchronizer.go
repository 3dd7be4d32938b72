package stream

import (
	"bytes"
	"fmt"

	"github.com/HuiFDU/adcsync/pkg/frame"
)

// State is the alignment state of a Synchronizer.
type State int

const (
	// Hunting means no frame alignment is established.
	Hunting State = iota
	// Synced means the stream is consumed in frame-length strides.
	Synced
)

func (s State) String() string {
	switch s {
	case Hunting:
		return "hunting"
	case Synced:
		return "synced"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SyncLossPolicy selects how many bytes are dropped when a frame fails while Synced.
type SyncLossPolicy int

const (
	// DiscardFrame drops the whole misaligned frame span.
	DiscardFrame SyncLossPolicy = iota
	// DiscardByte drops only the first byte and rescans the rest.
	DiscardByte
)

func (p SyncLossPolicy) String() string {
	switch p {
	case DiscardFrame:
		return "frame"
	case DiscardByte:
		return "byte"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseSyncLossPolicy parses "frame" or "byte". An empty string selects DiscardFrame.
func ParseSyncLossPolicy(s string) (SyncLossPolicy, error) {
	switch s {
	case "", "frame":
		return DiscardFrame, nil
	case "byte":
		return DiscardByte, nil
	default:
		return DiscardFrame, fmt.Errorf("unknown sync loss policy %q (want frame or byte)", s)
	}
}

// Stats holds the byte and event accounting of a Synchronizer.
// BytesIn always equals BytesDecoded + BytesDiscarded + Pending().
type Stats struct {
	BytesIn        uint64
	BytesDecoded   uint64
	BytesDiscarded uint64
	Frames         uint64
	Errors         uint64 // validation failures while Synced
	HuntRejects    uint64 // candidate frames rejected while Hunting
	SyncLosses     uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithSyncLossPolicy sets the discard granularity used when sync is lost.
func WithSyncLossPolicy(p SyncLossPolicy) Option {
	return func(s *Synchronizer) { s.policy = p }
}

// WithHuntRejects makes candidate rejections while Hunting produce EventError
// events. By default they are only counted.
func WithHuntRejects(report bool) Option {
	return func(s *Synchronizer) { s.reportHunt = report }
}

// Synchronizer recovers frame alignment from an unframed byte stream.
//
// It is a synchronous transformation with no I/O, timers or locking. One
// Synchronizer serves exactly one connection and must not be shared between
// goroutines.
type Synchronizer struct {
	spec       *frame.Spec
	policy     SyncLossPolicy
	reportHunt bool

	state State
	acc   bytes.Buffer
	stats Stats
}

// New creates a Synchronizer in the Hunting state. spec must pass Check.
func New(spec *frame.Spec, opts ...Option) (*Synchronizer, error) {
	if err := spec.Check(); err != nil {
		return nil, err
	}
	s := &Synchronizer{spec: spec, state: Hunting}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Spec returns the frame spec the synchronizer decodes with.
func (s *Synchronizer) Spec() *frame.Spec { return s.spec }

// State returns the current alignment state.
func (s *Synchronizer) State() State { return s.state }

// Pending returns the number of buffered bytes not yet decoded or discarded.
func (s *Synchronizer) Pending() int { return s.acc.Len() }

// Stats returns a snapshot of the accounting counters.
func (s *Synchronizer) Stats() Stats { return s.stats }

// Reset drops all buffered bytes and returns to Hunting. Counters are kept.
// Dropped bytes are accounted as discarded.
func (s *Synchronizer) Reset() {
	s.stats.BytesDiscarded += uint64(s.acc.Len())
	s.acc.Reset()
	s.state = Hunting
}

// Feed appends b to the accumulator and returns every event the new data
// made possible, in the order produced. It never blocks and never retains b.
func (s *Synchronizer) Feed(b []byte) []Event {
	s.acc.Write(b)
	s.stats.BytesIn += uint64(len(b))

	var events []Event
	n := s.spec.Length

	for {
		buf := s.acc.Bytes()

		if s.state == Synced {
			if len(buf) < n {
				return events
			}
			offset := s.offset()
			f, err := s.spec.Validate(buf[:n])
			if err == nil {
				events = append(events, Event{Kind: EventFrame, Frame: f, Offset: offset})
				s.consume(n)
				continue
			}

			s.stats.Errors++
			s.stats.SyncLosses++
			events = append(events,
				Event{Kind: EventError, Err: err, Raw: copyBytes(buf[:n]), Offset: offset},
				Event{Kind: EventSyncLost, Offset: offset},
			)
			s.state = Hunting
			if s.policy == DiscardByte {
				s.discard(1)
			} else {
				s.discard(n)
			}
			continue
		}

		// Hunting.
		if len(buf) < 2 {
			return events
		}
		if !s.spec.StartMarker(buf) {
			s.discard(1)
			continue
		}
		if len(buf) < n {
			return events
		}

		offset := s.offset()
		f, err := s.spec.Validate(buf[:n])
		if err != nil {
			s.stats.HuntRejects++
			if s.reportHunt {
				events = append(events, Event{Kind: EventError, Err: err, Raw: copyBytes(buf[:n]), Offset: offset})
			}
			s.discard(1)
			continue
		}

		events = append(events,
			Event{Kind: EventFrame, Frame: f, Offset: offset},
			Event{Kind: EventSynchronized, Offset: offset},
		)
		s.consume(n)
		s.state = Synced
	}
}

// offset is the stream position of the first pending byte.
func (s *Synchronizer) offset() uint64 {
	return s.stats.BytesDecoded + s.stats.BytesDiscarded
}

func (s *Synchronizer) consume(n int) {
	s.acc.Next(n)
	s.stats.BytesDecoded += uint64(n)
	s.stats.Frames++
}

func (s *Synchronizer) discard(n int) {
	s.acc.Next(n)
	s.stats.BytesDiscarded += uint64(n)
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
