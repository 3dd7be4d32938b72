package sample

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/frame"
)

// ErrDegenerateRange reports a calibration whose input range is empty.
// Mapping through such a calibration saturates to ToMin.
var ErrDegenerateRange = errors.New("sample: degenerate calibration range")

// LinearMap rescales value from [fromMin, fromMax] to [toMin, toMax].
// Values outside the input range are extrapolated, not clamped.
// When fromMin == fromMax the result is toMin.
func LinearMap(value, fromMin, fromMax, toMin, toMax float64) float64 {
	if fromMax == fromMin {
		return toMin
	}
	return toMin + (value-fromMin)/(fromMax-fromMin)*(toMax-toMin)
}

// Calibration maps the decoded value of one channel to a physical quantity.
type Calibration struct {
	Channel frame.ChannelID
	Name    string
	Unit    string
	FromMin float64
	FromMax float64
	ToMin   float64
	ToMax   float64
}

// FromConfig converts the calibration section of the configuration.
func FromConfig(cfgs []config.CalibrationConfig) []Calibration {
	cals := make([]Calibration, 0, len(cfgs))
	for _, c := range cfgs {
		cals = append(cals, Calibration{
			Channel: c.Channel,
			Name:    c.Name,
			Unit:    c.Unit,
			FromMin: c.FromMin,
			FromMax: c.FromMax,
			ToMin:   c.ToMin,
			ToMax:   c.ToMax,
		})
	}
	return cals
}

// Apply maps v through the calibration.
func (c Calibration) Apply(v float64) float64 {
	return LinearMap(v, c.FromMin, c.FromMax, c.ToMin, c.ToMax)
}

// Degenerate reports whether the input range is empty.
func (c Calibration) Degenerate() bool {
	return c.FromMin == c.FromMax
}

// Inverse returns the calibration mapping physical values back to decoded values.
func (c Calibration) Inverse() Calibration {
	inv := c
	inv.FromMin, inv.FromMax = c.ToMin, c.ToMax
	inv.ToMin, inv.ToMax = c.FromMin, c.FromMax
	return inv
}

// Check returns ErrDegenerateRange for an empty input range.
func (c Calibration) Check() error {
	if c.Degenerate() {
		return fmt.Errorf("%w: %s (%s) from %g to %g", ErrDegenerateRange, c.Channel, c.Name, c.FromMin, c.FromMax)
	}
	return nil
}

// Reading is one channel of a Record.
type Reading struct {
	Channel    frame.ChannelID
	Name       string
	Unit       string
	Raw        int32
	Value      float64 // decoded value (volts for ADC channels)
	Physical   float64 // calibrated value, equal to Value for uncalibrated channels
	Calibrated bool
}

// Record is a decoded frame in physical units.
type Record struct {
	Timestamp time.Time
	Session   string
	Spec      string
	Readings  []Reading
}

// Reading returns the reading of a channel.
func (r Record) Reading(id frame.ChannelID) (Reading, bool) {
	for _, rd := range r.Readings {
		if rd.Channel == id {
			return rd, true
		}
	}
	return Reading{}, false
}

// DefaultUnit is the unit of a channel's decoded value before calibration.
func DefaultUnit(id frame.ChannelID) string {
	switch id {
	case frame.Ch3Pressure:
		return "kPa"
	case frame.Ch3Temperature:
		return "°C"
	default:
		return "V"
	}
}

// Mapper applies per-channel calibrations to decoded frames.
// It is immutable and safe for concurrent use.
type Mapper struct {
	cals map[frame.ChannelID]Calibration
}

// NewMapper creates a Mapper. A later calibration for the same channel wins.
func NewMapper(cals []Calibration) *Mapper {
	m := &Mapper{cals: make(map[frame.ChannelID]Calibration, len(cals))}
	for _, c := range cals {
		m.cals[c.Channel] = c
	}
	return m
}

// Calibrations returns the calibrations ordered by channel.
func (m *Mapper) Calibrations() []Calibration {
	out := make([]Calibration, 0, len(m.cals))
	for _, c := range m.cals {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Map converts every decoded sample of f into a Reading.
func (m *Mapper) Map(f frame.Frame, ts time.Time) Record {
	samples := f.Samples()
	rec := Record{
		Timestamp: ts,
		Spec:      f.Spec(),
		Readings:  make([]Reading, 0, len(samples)),
	}

	for _, s := range samples {
		rd := Reading{
			Channel:  s.Channel,
			Name:     s.Channel.String(),
			Unit:     DefaultUnit(s.Channel),
			Raw:      s.Raw,
			Value:    s.Value,
			Physical: s.Value,
		}
		if c, ok := m.cals[s.Channel]; ok {
			rd.Physical = c.Apply(s.Value)
			rd.Calibrated = true
			if c.Name != "" {
				rd.Name = c.Name
			}
			if c.Unit != "" {
				rd.Unit = c.Unit
			}
		}
		rec.Readings = append(rec.Readings, rd)
	}
	return rec
}
