package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/HuiFDU/adcsync/pkg/monitor"
	"github.com/HuiFDU/adcsync/pkg/sample"
)

// sparkPoints is the width of the per-channel trend line.
const sparkPoints = 24

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// console prints the latest readings, throttled to one line per interval.
type console struct {
	w        io.Writer
	interval time.Duration
	mon      *monitor.Monitor

	mu         sync.Mutex
	lastUpdate time.Time
	series     []float64 // reused by Downsample
}

func newConsole(w io.Writer, interval time.Duration, mon *monitor.Monitor) *console {
	return &console{
		w:        w,
		interval: interval,
		mon:      mon,
		series:   make([]float64, 0, sparkPoints),
	}
}

// update is registered with monitor.OnUpdate. It runs on the monitor
// goroutine, so it returns quickly when throttled.
func (c *console) update(records []sample.Record, stats []monitor.ChannelStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.interval {
		return
	}
	c.lastUpdate = now
	c.print(records, stats)
}

// finish prints a final summary line.
func (c *console) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.mon.Status()
	fmt.Fprintf(c.w, "%d records, %d frame errors, %d sync losses\n", st.Frames, st.Errors, st.SyncLosses)
}

func (c *console) print(records []sample.Record, stats []monitor.ChannelStats) {
	if len(records) == 0 {
		return
	}
	st := c.mon.Status()
	latest := records[len(records)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] errors=%d losses=%d",
		latest.Timestamp.Format("15:04:05.000"), st.State, st.Errors, st.SyncLosses)
	for _, s := range stats {
		c.series = sample.Downsample(c.series, channelSeries(records, s), sparkPoints)
		fmt.Fprintf(&b, " | %s %.2f %s %s", s.Name, s.Last, s.Unit, sparkline(c.series))
	}
	fmt.Fprintln(c.w, b.String())
}

func channelSeries(records []sample.Record, s monitor.ChannelStats) []float64 {
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		if rd, ok := rec.Reading(s.Channel); ok {
			values = append(values, rd.Physical)
		}
	}
	return values
}

// sparkline renders values scaled between their own min and max.
func sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	out := make([]rune, len(values))
	top := len(sparkLevels) - 1
	for i, v := range values {
		level := 0
		if hi > lo {
			level = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		out[i] = sparkLevels[level]
	}
	return string(out)
}
