package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/frame"
	"github.com/HuiFDU/adcsync/pkg/sample"
	"github.com/HuiFDU/adcsync/pkg/stream"
)

const defaultWindow = 60 * time.Second

var _ RecordMonitor = (*Monitor)(nil)

// ChannelStats summarizes one channel over the monitor window.
type ChannelStats struct {
	Channel frame.ChannelID
	Name    string
	Unit    string
	Count   int
	Min     float64
	Max     float64
	Mean    float64
	Last    float64
	Rate    float64 // unit/s between the two newest readings, 0 with fewer than two
}

// Status is the decoder state as seen through diagnostic events.
type Status struct {
	State       stream.State
	Session     string
	Frames      uint64
	Errors      uint64
	SyncLosses  uint64
	LastError   error
	LastErrorAt time.Time
}

// RecordMonitor keeps a time window of Records and notifies listeners.
type RecordMonitor interface {
	ProcessRecords(input <-chan sample.Record)
	Records() []sample.Record                                     // Records within the window, oldest first
	Latest() (sample.Record, bool)                                // Newest record
	Series(id frame.ChannelID) []float64                          // Physical values of one channel, oldest first
	Stats() []ChannelStats                                        // Per-channel summary ordered by first appearance
	OnUpdate(func(records []sample.Record, stats []ChannelStats)) // Register callback for updates
}

// Monitor implements RecordMonitor.
// Records are kept in a FIFO ordered oldest to newest; removal is based on
// timestamp (time window), not on the number of records.
type Monitor struct {
	records []sample.Record
	status  Status

	mu sync.RWMutex

	callbacks []func(records []sample.Record, stats []ChannelStats)
	cbMu      sync.RWMutex

	windowDuration time.Duration

	// Set when the input channel closes, prevents further callbacks.
	shutdown bool
}

// New creates a Monitor using the measurement window of cfg.
func New(cfg *config.Config) *Monitor {
	window := time.Duration(cfg.Measurement.WindowSeconds * float64(time.Second))
	if window <= 0 {
		window = defaultWindow
	}
	return &Monitor{
		records:        make([]sample.Record, 0),
		windowDuration: window,
		status:         Status{State: stream.Hunting},
	}
}

// ProcessRecords consumes input until it is closed.
// When the input channel closes, it sets shutdown flag to prevent further callbacks.
func (m *Monitor) ProcessRecords(input <-chan sample.Record) {
	for rec := range input {
		m.processRecord(rec)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

func (m *Monitor) processRecord(rec sample.Record) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.status.Frames++
	if rec.Session != "" {
		m.status.Session = rec.Session
	}

	// Remove records outside the time window of the newest one.
	cutoff := rec.Timestamp.Add(-m.windowDuration)
	cutoffIndex := 0
	for i, r := range m.records {
		if r.Timestamp.After(cutoff) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		m.records = append(m.records[:0], m.records[cutoffIndex:]...)
	}

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// ObserveDiagnostic records a non-frame decoder event. It is meant to be
// passed as the diag function of sample.NewConverter.
func (m *Monitor) ObserveDiagnostic(ev stream.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Session != "" {
		m.status.Session = ev.Session
	}
	switch ev.Kind {
	case stream.EventSynchronized:
		m.status.State = stream.Synced
	case stream.EventSyncLost:
		m.status.State = stream.Hunting
		m.status.SyncLosses++
	case stream.EventError:
		m.status.Errors++
		m.status.LastError = ev.Err
		m.status.LastErrorAt = ev.Timestamp
	}
}

// Status returns the decoder status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Records returns a copy of the records within the window.
func (m *Monitor) Records() []sample.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]sample.Record, len(m.records))
	copy(result, m.records)
	return result
}

// Latest returns the newest record.
func (m *Monitor) Latest() (sample.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return sample.Record{}, false
	}
	return m.records[len(m.records)-1], true
}

// Series returns the physical values of channel id within the window.
func (m *Monitor) Series(id frame.ChannelID) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]float64, 0, len(m.records))
	for _, rec := range m.records {
		if rd, ok := rec.Reading(id); ok {
			result = append(result, rd.Physical)
		}
	}
	return result
}

// Stats returns per-channel statistics over the window.
func (m *Monitor) Stats() []ChannelStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return computeStats(m.records)
}

// OnUpdate registers a callback function that will be called when records are updated.
// The callback should copy data quickly and return as fast as possible.
func (m *Monitor) OnUpdate(callback func(records []sample.Record, stats []ChannelStats)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before starting a new measurement chain.
func (m *Monitor) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
	m.status.State = stream.Hunting
}

// notifyCallbacks invokes all registered callbacks with current data.
// Makes copies of data while holding read lock, then calls callbacks without lock.
func (m *Monitor) notifyCallbacks() {
	m.mu.RLock()
	recordsCopy := make([]sample.Record, len(m.records))
	copy(recordsCopy, m.records)
	stats := computeStats(m.records)
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]func(records []sample.Record, stats []ChannelStats), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(recordsCopy, stats)
		}
	}
}

func computeStats(records []sample.Record) []ChannelStats {
	var stats []ChannelStats
	index := make(map[frame.ChannelID]int)
	prev := make(map[frame.ChannelID]time.Time)

	for _, rec := range records {
		for _, rd := range rec.Readings {
			i, ok := index[rd.Channel]
			if !ok {
				i = len(stats)
				index[rd.Channel] = i
				stats = append(stats, ChannelStats{
					Channel: rd.Channel,
					Min:     math.Inf(1),
					Max:     math.Inf(-1),
				})
			}
			s := &stats[i]
			s.Name = rd.Name
			s.Unit = rd.Unit
			if s.Count > 0 {
				if dt := rec.Timestamp.Sub(prev[rd.Channel]).Seconds(); dt > 0 {
					s.Rate = (rd.Physical - s.Last) / dt
				}
			}
			s.Count++
			s.Min = min(s.Min, rd.Physical)
			s.Max = max(s.Max, rd.Physical)
			s.Mean += (rd.Physical - s.Mean) / float64(s.Count)
			s.Last = rd.Physical
			prev[rd.Channel] = rec.Timestamp
		}
	}
	return stats
}
