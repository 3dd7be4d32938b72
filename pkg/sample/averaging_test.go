package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuiFDU/adcsync/pkg/frame"
)

func record(ts time.Time, readings ...Reading) Record {
	return Record{Timestamp: ts, Spec: frame.VariantMixed, Readings: readings}
}

func reading(id frame.ChannelID, raw int32, physical float64) Reading {
	return Reading{Channel: id, Name: id.String(), Raw: raw, Value: float64(raw), Physical: physical}
}

func TestAverageRecords(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		records []Record
		want    map[frame.ChannelID]float64
		wantRaw map[frame.ChannelID]int32
	}{
		{
			name:    "single record",
			records: []Record{record(now, reading(frame.Ch1, 10, 1.0))},
			want:    map[frame.ChannelID]float64{frame.Ch1: 1.0},
			wantRaw: map[frame.ChannelID]int32{frame.Ch1: 10},
		},
		{
			name: "three records",
			records: []Record{
				record(now, reading(frame.Ch1, 10, 1.0), reading(frame.Ch2, 100, 10)),
				record(now, reading(frame.Ch1, 11, 2.0), reading(frame.Ch2, 200, 20)),
				record(now, reading(frame.Ch1, 13, 3.0), reading(frame.Ch2, 300, 30)),
			},
			want:    map[frame.ChannelID]float64{frame.Ch1: 2.0, frame.Ch2: 20},
			wantRaw: map[frame.ChannelID]int32{frame.Ch1: 11, frame.Ch2: 200},
		},
		{
			name: "channel missing from older record",
			records: []Record{
				record(now, reading(frame.Ch1, 10, 1.0)),
				record(now, reading(frame.Ch1, 20, 3.0), reading(frame.Ch2, 50, 5)),
			},
			want:    map[frame.ChannelID]float64{frame.Ch1: 2.0, frame.Ch2: 5},
			wantRaw: map[frame.ChannelID]int32{frame.Ch1: 15, frame.Ch2: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg := averageRecords(tt.records)
			require.Len(t, avg.Readings, len(tt.want))
			for id, want := range tt.want {
				rd, ok := avg.Reading(id)
				require.True(t, ok)
				assert.InDelta(t, want, rd.Physical, 1e-12)
				assert.Equal(t, tt.wantRaw[id], rd.Raw)
			}
		})
	}
}

func TestAverageRecords_Empty(t *testing.T) {
	assert.Equal(t, Record{}, averageRecords(nil))
}

func TestAverageRecords_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	records := []Record{
		record(now, reading(frame.Ch1, 10, 1.0)),
		record(now.Add(time.Second), reading(frame.Ch1, 20, 3.0)),
	}

	avg := averageRecords(records)
	assert.Equal(t, now.Add(time.Second), avg.Timestamp)
	assert.Equal(t, 3.0, records[1].Readings[0].Physical)
}

func TestAveragingConverter_MovingWindow(t *testing.T) {
	converter := NewAveragingConverter(2, 10)
	input := make(chan Record, 10)
	output := converter(input)

	now := time.Now()
	for i, v := range []float64{1, 3, 5, 7} {
		input <- record(now.Add(time.Duration(i)*time.Second), reading(frame.Ch2, int32(v), v))
	}
	close(input)

	var got []float64
	for rec := range output {
		rd, ok := rec.Reading(frame.Ch2)
		require.True(t, ok)
		got = append(got, rd.Physical)
	}
	assert.Equal(t, []float64{1, 2, 4, 6}, got)
}

func TestAveragingConverter_Passthrough(t *testing.T) {
	converter := NewAveragingConverter(0, 0)
	input := make(chan Record, 3)
	output := converter(input)

	now := time.Now()
	input <- record(now, reading(frame.Ch1, 1, 1))
	input <- record(now, reading(frame.Ch1, 9, 9))
	close(input)

	var got []float64
	for rec := range output {
		rd, _ := rec.Reading(frame.Ch1)
		got = append(got, rd.Physical)
	}
	assert.Equal(t, []float64{1, 9}, got)
}
