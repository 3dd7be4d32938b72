package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HuiFDU/adcsync/pkg/frame"
	"github.com/HuiFDU/adcsync/pkg/stream"
)

const namespace = "adcsync"

// NewRegistry creates a private registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler exposing reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Decoder holds the stream decoder metrics and implements stream.Observer.
type Decoder struct {
	BytesReceived  prometheus.Counter
	BytesDiscarded prometheus.Counter
	Chunks         prometheus.Counter
	Frames         *prometheus.CounterVec // labels: variant
	FrameErrors    *prometheus.CounterVec // labels: reason
	SyncEvents     *prometheus.CounterVec // labels: event=synchronized|sync_lost
	Synced         prometheus.Gauge       // 1 while synchronized
}

var _ stream.Observer = (*Decoder)(nil)

// NewDecoder registers and returns the decoder metrics.
func NewDecoder(reg prometheus.Registerer) *Decoder {
	m := &Decoder{
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the device.",
		}),
		BytesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_discarded_total",
			Help:      "Total bytes dropped while hunting or after a sync loss.",
		}),
		Chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Total chunks read from the device.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Frames decoded by variant.",
		}, []string{"variant"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Frame validation failures by reason.",
		}, []string{"reason"}),
		SyncEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_transitions_total",
			Help:      "Synchronizer state transitions.",
		}, []string{"event"}),
		Synced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synchronized",
			Help:      "1 while the stream is synchronized, 0 while hunting.",
		}),
	}
	reg.MustRegister(m.BytesReceived, m.BytesDiscarded, m.Chunks, m.Frames, m.FrameErrors, m.SyncEvents, m.Synced)
	return m
}

// ObserveChunk implements stream.Observer.
func (m *Decoder) ObserveChunk(n int, discarded uint64) {
	m.Chunks.Inc()
	m.BytesReceived.Add(float64(n))
	if discarded > 0 {
		m.BytesDiscarded.Add(float64(discarded))
	}
}

// ObserveEvent implements stream.Observer.
func (m *Decoder) ObserveEvent(ev stream.Event) {
	switch ev.Kind {
	case stream.EventFrame:
		m.Frames.WithLabelValues(ev.Frame.Spec()).Inc()
	case stream.EventError:
		m.FrameErrors.WithLabelValues(frame.Reason(ev.Err)).Inc()
	case stream.EventSynchronized:
		m.SyncEvents.WithLabelValues(ev.Kind.String()).Inc()
		m.Synced.Set(1)
	case stream.EventSyncLost:
		m.SyncEvents.WithLabelValues(ev.Kind.String()).Inc()
		m.Synced.Set(0)
	}
}
