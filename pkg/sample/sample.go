package sample

import (
	"github.com/HuiFDU/adcsync/pkg/stream"
)

// Converter is a function type that converts decoder events to Records.
type Converter func(in <-chan stream.Event) <-chan Record

// Filter transforms a Record stream.
type Filter func(in <-chan Record) <-chan Record

// NewConverter creates a converter that maps every EventFrame through m.
// Other events are passed to diag, if set, on the converter goroutine.
// Records are delivered in order and never dropped; the output channel is
// closed when in is closed.
func NewConverter(m *Mapper, bufSize int, diag func(stream.Event)) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan stream.Event) <-chan Record {
		out := make(chan Record, bufSize)

		go func() {
			defer close(out)

			for ev := range in {
				if ev.Kind != stream.EventFrame {
					if diag != nil {
						diag(ev)
					}
					continue
				}

				rec := m.Map(ev.Frame, ev.Timestamp)
				rec.Session = ev.Session
				out <- rec
			}
		}()

		return out
	}
}
