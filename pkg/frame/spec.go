package frame

import (
	"fmt"
	"sort"
)

// FieldKind selects how a ChannelField is validated and decoded.
type FieldKind int

const (
	// Tagged is a big-endian field whose top 4 bits carry the channel tag and
	// whose remaining bits carry an unsigned sample.
	Tagged FieldKind = iota
	// Sentinel is a single byte that must hold a fixed value. It yields no sample.
	Sentinel
	// Plain is a big-endian value with no tag, optionally masked and signed.
	Plain
	// SubFrame is a nested block delimited by start and end sentinel bytes whose
	// interior Plain fields are addressed relative to the sub-frame start.
	SubFrame
)

func (k FieldKind) String() string {
	switch k {
	case Tagged:
		return "tagged"
	case Sentinel:
		return "sentinel"
	case Plain:
		return "plain"
	case SubFrame:
		return "subframe"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Full-scale codes of 12-bit and 8-bit ADCs.
const (
	FullScale12 = 4095
	FullScale8  = 255
)

// Scale converts a raw value to its unit value at decode time.
// unit = raw / Divisor (Divisor 0 means 1); when FullScale is non-zero the
// result is then mapped to volts as unit / FullScale * VRef.
type Scale struct {
	Divisor   float64
	FullScale float64
	VRef      float64
}

// Voltage returns the scale for an ADC code over fullScale with reference vref.
func Voltage(fullScale, vref float64) Scale {
	return Scale{FullScale: fullScale, VRef: vref}
}

// Divide returns a fixed-point scale, e.g. Divide(10) for one decimal place.
func Divide(d float64) Scale {
	return Scale{Divisor: d}
}

// Apply converts raw into its unit value. No rounding is performed.
func (s Scale) Apply(raw int32) float64 {
	v := float64(raw)
	if s.Divisor != 0 {
		v /= s.Divisor
	}
	if s.FullScale != 0 {
		v = v / s.FullScale * s.VRef
	}
	return v
}

// ChannelField describes one field of a frame.
type ChannelField struct {
	Channel ChannelID
	Kind    FieldKind
	Offset  int // byte index into the frame (into the sub-frame for interior fields)
	Width   int // 1 or 2; total length for SubFrame

	// Tagged and Plain.
	Mask   uint16 // sample bits; zero means all bits below the tag
	Signed bool   // two's-complement interpretation before scaling (Plain only)
	Scale  Scale

	// Sentinel uses Start; SubFrame uses Start and End.
	Start byte
	End   byte

	// Fields holds the interior of a SubFrame.
	Fields []ChannelField

	// ValidateOnly fields are checked but produce no DecodedSample.
	ValidateOnly bool
}

// StartMarker reports whether buf begins with a plausible frame start.
// It is called with at least two bytes.
type StartMarker func(buf []byte) bool

// TagNibble matches frames whose first byte carries tag in its top nibble.
func TagNibble(tag uint8) StartMarker {
	return func(buf []byte) bool {
		return len(buf) > 0 && buf[0]>>4 == tag
	}
}

// SentinelByte matches frames whose first byte equals b.
func SentinelByte(b byte) StartMarker {
	return func(buf []byte) bool {
		return len(buf) > 0 && buf[0] == b
	}
}

// Spec is the declarative description of one wire frame format.
// A Spec is immutable once built and safe for concurrent use.
type Spec struct {
	Name        string
	Length      int
	Fields      []ChannelField
	StartMarker StartMarker
}

// Check verifies the static invariants of the spec.
func (s *Spec) Check() error {
	if s == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}
	if s.Length < 2 {
		return fmt.Errorf("%w: %s: frame length %d, need at least 2", ErrInvalidSpec, s.Name, s.Length)
	}
	if s.StartMarker == nil {
		return fmt.Errorf("%w: %s: no start marker", ErrInvalidSpec, s.Name)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: %s: no fields", ErrInvalidSpec, s.Name)
	}
	if err := checkFields(s.Name, s.Fields, s.Length, false); err != nil {
		return err
	}
	return nil
}

func checkFields(name string, fields []ChannelField, length int, interior bool) error {
	type span struct{ lo, hi int }
	spans := make([]span, 0, len(fields))

	for i, f := range fields {
		if f.Offset < 0 || f.Width <= 0 || f.Offset+f.Width > length {
			return fmt.Errorf("%w: %s: field %d (%s) range [%d,%d) outside %d bytes",
				ErrInvalidSpec, name, i, f.Channel, f.Offset, f.Offset+f.Width, length)
		}
		if f.Kind != Sentinel && !f.Channel.Valid() {
			return fmt.Errorf("%w: %s: field %d has invalid channel 0x%02x", ErrInvalidSpec, name, i, uint8(f.Channel))
		}

		switch f.Kind {
		case Tagged:
			if interior {
				return fmt.Errorf("%w: %s: tagged field inside sub-frame", ErrInvalidSpec, name)
			}
			if f.Width != 2 && f.Width != 1 {
				return fmt.Errorf("%w: %s: %s width %d", ErrInvalidSpec, name, f.Channel, f.Width)
			}
			if tag := f.Channel.Tag(); tag == 0 || tag > MaxTag {
				return fmt.Errorf("%w: %s: %s cannot be tagged", ErrInvalidSpec, name, f.Channel)
			}
		case Sentinel:
			if f.Width != 1 {
				return fmt.Errorf("%w: %s: sentinel width %d", ErrInvalidSpec, name, f.Width)
			}
		case Plain:
			if f.Width != 2 && f.Width != 1 {
				return fmt.Errorf("%w: %s: %s width %d", ErrInvalidSpec, name, f.Channel, f.Width)
			}
		case SubFrame:
			if interior {
				return fmt.Errorf("%w: %s: nested sub-frame", ErrInvalidSpec, name)
			}
			if f.Width < 2 {
				return fmt.Errorf("%w: %s: sub-frame width %d", ErrInvalidSpec, name, f.Width)
			}
			// Interior fields live strictly between the two sentinels.
			for _, in := range f.Fields {
				if in.Kind != Plain {
					return fmt.Errorf("%w: %s: sub-frame field %s is %s", ErrInvalidSpec, name, in.Channel, in.Kind)
				}
				if in.Offset < 1 || in.Offset+in.Width > f.Width-1 {
					return fmt.Errorf("%w: %s: sub-frame field %s overlaps sentinels", ErrInvalidSpec, name, in.Channel)
				}
			}
			if err := checkFields(name, f.Fields, f.Width, true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s: unknown field kind %d", ErrInvalidSpec, name, int(f.Kind))
		}

		spans = append(spans, span{f.Offset, f.Offset + f.Width})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })
	for i := 1; i < len(spans); i++ {
		if spans[i].lo < spans[i-1].hi {
			return fmt.Errorf("%w: %s: overlapping fields at byte %d", ErrInvalidSpec, name, spans[i].lo)
		}
	}
	return nil
}

// sampleMask returns the bits of a field that carry the sample.
func (f *ChannelField) sampleMask() uint16 {
	if f.Mask != 0 {
		return f.Mask
	}
	switch {
	case f.Kind == Tagged && f.Width == 2:
		return 0x0FFF
	case f.Kind == Tagged:
		return 0x0F
	case f.Width == 2:
		return 0xFFFF
	default:
		return 0xFF
	}
}
