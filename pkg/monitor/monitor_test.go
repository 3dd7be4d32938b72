package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/frame"
	"github.com/HuiFDU/adcsync/pkg/sample"
	"github.com/HuiFDU/adcsync/pkg/stream"
)

func record(ts time.Time, pressure, temperature float64) sample.Record {
	return sample.Record{
		Timestamp: ts,
		Spec:      frame.VariantMixed,
		Readings: []sample.Reading{
			{Channel: frame.Ch1, Name: "temperature", Unit: "°C", Physical: temperature, Calibrated: true},
			{Channel: frame.Ch2, Name: "pressure", Unit: "kPa", Physical: pressure, Calibrated: true},
		},
	}
}

func TestNew(t *testing.T) {
	m := New(config.Default())

	assert.NotNil(t, m)
	assert.Empty(t, m.Records())
	assert.Empty(t, m.Stats())
	_, ok := m.Latest()
	assert.False(t, ok)
	assert.Equal(t, stream.Hunting, m.Status().State)
	assert.Equal(t, 60*time.Second, m.windowDuration)
}

func TestNew_InvalidWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Measurement.WindowSeconds = 0
	assert.Equal(t, defaultWindow, New(cfg).windowDuration)
}

func TestProcessRecord_Basic(t *testing.T) {
	m := New(config.Default())

	now := time.Now()
	rec := record(now, 500, 20)
	m.processRecord(rec)

	records := m.Records()
	require.Len(t, records, 1)
	assert.Equal(t, rec, records[0])

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, rec, latest)
}

func TestProcessRecord_WindowRemoval(t *testing.T) {
	cfg := config.Default()
	cfg.Measurement.WindowSeconds = 1.0
	m := New(cfg)

	now := time.Now()
	m.processRecord(record(now, 100, 0))
	m.processRecord(record(now.Add(500*time.Millisecond), 200, 0))
	m.processRecord(record(now.Add(1500*time.Millisecond), 300, 0)) // first one falls out

	assert.Equal(t, []float64{200, 300}, m.Series(frame.Ch2))
}

func TestSeries(t *testing.T) {
	m := New(config.Default())

	now := time.Now()
	for i := 0; i < 5; i++ {
		m.processRecord(record(now.Add(time.Duration(i)*time.Second), float64(100+i), float64(-i)))
	}

	assert.Equal(t, []float64{100, 101, 102, 103, 104}, m.Series(frame.Ch2))
	assert.Equal(t, []float64{0, -1, -2, -3, -4}, m.Series(frame.Ch1))
	assert.Empty(t, m.Series(frame.Ch7))
}

func TestStats(t *testing.T) {
	m := New(config.Default())

	now := time.Now()
	m.processRecord(record(now, 100, 20))
	m.processRecord(record(now.Add(500*time.Millisecond), 400, 22))
	m.processRecord(record(now.Add(time.Second), 250, 21))

	stats := m.Stats()
	require.Len(t, stats, 2)

	temp := stats[0]
	assert.Equal(t, frame.Ch1, temp.Channel)
	assert.Equal(t, "temperature", temp.Name)
	assert.Equal(t, "°C", temp.Unit)
	assert.Equal(t, 3, temp.Count)
	assert.Equal(t, 20.0, temp.Min)
	assert.Equal(t, 22.0, temp.Max)
	assert.InDelta(t, 21.0, temp.Mean, 1e-12)
	assert.Equal(t, 21.0, temp.Last)
	assert.InDelta(t, -2.0, temp.Rate, 1e-9) // 22 -> 21 in 0.5 s

	pressure := stats[1]
	assert.Equal(t, 100.0, pressure.Min)
	assert.Equal(t, 400.0, pressure.Max)
	assert.InDelta(t, 250.0, pressure.Mean, 1e-12)
	assert.InDelta(t, -300.0, pressure.Rate, 1e-9)
}

func TestStats_SingleReadingHasNoRate(t *testing.T) {
	m := New(config.Default())
	m.processRecord(record(time.Now(), 100, 20))

	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Zero(t, stats[1].Rate)
	assert.Equal(t, 100.0, stats[1].Min)
	assert.Equal(t, 100.0, stats[1].Max)
}

func TestObserveDiagnostic(t *testing.T) {
	m := New(config.Default())
	ts := time.Now()

	m.ObserveDiagnostic(stream.Event{Kind: stream.EventSynchronized, Session: "abc"})
	st := m.Status()
	assert.Equal(t, stream.Synced, st.State)
	assert.Equal(t, "abc", st.Session)

	err := &frame.TagMismatchError{Channel: frame.Ch2, Offset: 2, Expected: 2, Found: 3}
	m.ObserveDiagnostic(stream.Event{Kind: stream.EventError, Err: err, Timestamp: ts})
	m.ObserveDiagnostic(stream.Event{Kind: stream.EventSyncLost})

	st = m.Status()
	assert.Equal(t, stream.Hunting, st.State)
	assert.Equal(t, uint64(1), st.Errors)
	assert.Equal(t, uint64(1), st.SyncLosses)
	assert.True(t, errors.Is(st.LastError, frame.ErrTagMismatch))
	assert.Equal(t, ts, st.LastErrorAt)
}

func TestOnUpdate(t *testing.T) {
	m := New(config.Default())

	var gotRecords int
	var gotStats []ChannelStats
	m.OnUpdate(func(records []sample.Record, stats []ChannelStats) {
		gotRecords = len(records)
		gotStats = stats
	})

	now := time.Now()
	m.processRecord(record(now, 100, 20))
	m.processRecord(record(now.Add(time.Second), 200, 20))

	assert.Equal(t, 2, gotRecords)
	require.Len(t, gotStats, 2)
	assert.Equal(t, 200.0, gotStats[1].Last)
	assert.Equal(t, uint64(2), m.Status().Frames)
}

func TestRecords_ReturnsCopy(t *testing.T) {
	m := New(config.Default())
	m.processRecord(record(time.Now(), 100, 20))

	records := m.Records()
	records[0].Spec = "changed"

	latest, _ := m.Latest()
	assert.Equal(t, frame.VariantMixed, latest.Spec)
}
