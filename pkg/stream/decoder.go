package stream

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HuiFDU/adcsync/pkg/adc"
	"github.com/HuiFDU/adcsync/pkg/frame"
	"github.com/HuiFDU/adcsync/pkg/logging"
)

// Observer is notified of every chunk and event handled by a Decoder.
// Calls happen on the decoder goroutine, in stream order. ObserveChunk is
// called once a chunk of n bytes has been fed, with the number of bytes the
// synchronizer discarded while consuming it, before the chunk's events.
type Observer interface {
	ObserveChunk(n int, discarded uint64)
	ObserveEvent(ev Event)
}

// Decoder turns a channel of raw chunks into an ordered channel of events.
// The returned channel is closed when in is closed or ctx is cancelled.
type Decoder func(ctx context.Context, in <-chan adc.Chunk) <-chan Event

// NewDecoder creates a Decoder for spec. Each call of the returned function
// starts a new session with its own Synchronizer, so calling it again after a
// reconnect starts from Hunting with an empty accumulator.
func NewDecoder(spec *frame.Spec, bufSize int, observer Observer, opts ...Option) (Decoder, error) {
	// Fail early on a bad spec instead of inside the goroutine.
	if _, err := New(spec, opts...); err != nil {
		return nil, err
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(ctx context.Context, in <-chan adc.Chunk) <-chan Event {
		out := make(chan Event, bufSize)
		syn, _ := New(spec, opts...)
		session := uuid.NewString()

		go func() {
			defer close(out)

			log := logging.GetLogger().With(zap.String("session", session), zap.String("variant", spec.Name))
			log.Info("Decoder started")
			defer func() {
				st := syn.Stats()
				log.Info("Decoder stopped",
					zap.Uint64("bytes_in", st.BytesIn),
					zap.Uint64("bytes_discarded", st.BytesDiscarded),
					zap.Uint64("frames", st.Frames),
					zap.Uint64("errors", st.Errors),
					zap.Uint64("sync_losses", st.SyncLosses),
					zap.Int("pending", syn.Pending()),
				)
			}()

			for {
				var chunk adc.Chunk
				var ok bool
				select {
				case <-ctx.Done():
					return
				case chunk, ok = <-in:
					if !ok {
						return
					}
				}

				before := syn.Stats().BytesDiscarded
				events := syn.Feed(chunk.Data)
				if observer != nil {
					observer.ObserveChunk(len(chunk.Data), syn.Stats().BytesDiscarded-before)
				}

				for _, ev := range events {
					ev.Timestamp = chunk.Timestamp
					ev.Session = session
					if observer != nil {
						observer.ObserveEvent(ev)
					}

					// Blocking send: decoded frames are never dropped.
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}()

		return out
	}, nil
}
