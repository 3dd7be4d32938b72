package sample

import (
	"math"

	"github.com/HuiFDU/adcsync/pkg/frame"
)

// NewAveragingConverter creates a filter that replaces every Record with the
// per-channel moving average of the last windowSize Records. This reduces noise
// in the measurements. A windowSize of 1 or less passes Records through.
func NewAveragingConverter(windowSize int, bufSize int) Filter {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Record) <-chan Record {
		out := make(chan Record, bufSize)

		go func() {
			defer close(out)

			buffer := make([]Record, 0, windowSize)
			for rec := range in {
				buffer = append(buffer, rec)
				if len(buffer) > windowSize {
					buffer = buffer[1:] // Remove oldest
				}
				out <- averageRecords(buffer)
			}
		}()

		return out
	}
}

// averageRecords averages each reading of the newest record over all records
// that carry the same channel. Uses the most recent record's timestamp.
func averageRecords(records []Record) Record {
	if len(records) == 0 {
		return Record{}
	}

	last := records[len(records)-1]
	if len(records) == 1 {
		return last
	}

	type sum struct {
		raw, value, physical float64
		n                    int
	}
	sums := make(map[frame.ChannelID]*sum, len(last.Readings))
	for _, rd := range last.Readings {
		sums[rd.Channel] = &sum{}
	}
	for _, rec := range records {
		for _, rd := range rec.Readings {
			s, ok := sums[rd.Channel]
			if !ok {
				continue
			}
			s.raw += float64(rd.Raw)
			s.value += rd.Value
			s.physical += rd.Physical
			s.n++
		}
	}

	avg := last
	avg.Readings = make([]Reading, len(last.Readings))
	for i, rd := range last.Readings {
		s := sums[rd.Channel]
		n := float64(s.n)
		rd.Raw = int32(math.Round(s.raw / n))
		rd.Value = s.value / n
		rd.Physical = s.physical / n
		avg.Readings[i] = rd
	}
	return avg
}
