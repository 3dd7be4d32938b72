package frame

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodedSample is one decoded channel field.
type DecodedSample struct {
	Channel ChannelID
	Raw     int32   // raw sample after tag removal and sign interpretation
	Value   float64 // Raw converted by the field's Scale
}

// Frame is a fully decoded and validated frame. It is only produced by
// Validate, so a Frame is never half-populated.
type Frame struct {
	spec    string
	samples []DecodedSample
	raw     []byte
}

// Spec returns the name of the spec the frame was decoded with.
func (f Frame) Spec() string { return f.spec }

// Len returns the number of decoded samples.
func (f Frame) Len() int { return len(f.samples) }

// Samples returns the decoded samples in field order.
func (f Frame) Samples() []DecodedSample {
	out := make([]DecodedSample, len(f.samples))
	copy(out, f.samples)
	return out
}

// Sample returns the decoded sample for a channel.
func (f Frame) Sample(id ChannelID) (DecodedSample, bool) {
	for _, s := range f.samples {
		if s.Channel == id {
			return s, true
		}
	}
	return DecodedSample{}, false
}

// Raw returns a copy of the wire bytes the frame was decoded from.
func (f Frame) Raw() []byte {
	out := make([]byte, len(f.raw))
	copy(out, f.raw)
	return out
}

// Hex formats the wire bytes as space separated upper-case hex, e.g. "10 01 20 02".
func (f Frame) Hex() string {
	return FormatHex(f.raw)
}

// FormatHex formats b as space separated upper-case hex pairs.
func FormatHex(b []byte) string {
	return fmt.Sprintf("% X", b)
}

// ParseHex is the inverse of FormatHex. Whitespace between pairs is ignored
// and either case is accepted.
func ParseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

// Validate decodes b against spec. b must be exactly spec.Length bytes long.
// Fields are decoded in declared order and decoding stops at the first failure.
// Validate never modifies b and keeps no reference to it.
func Validate(spec *Spec, b []byte) (Frame, error) {
	if len(b) != spec.Length {
		return Frame{}, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrFrameLength, spec.Name, spec.Length, len(b))
	}

	samples := make([]DecodedSample, 0, len(spec.Fields))
	for i := range spec.Fields {
		var err error
		samples, err = decodeField(&spec.Fields[i], b, 0, samples)
		if err != nil {
			return Frame{}, err
		}
	}

	raw := make([]byte, len(b))
	copy(raw, b)
	return Frame{spec: spec.Name, samples: samples, raw: raw}, nil
}

// Validate is a convenience for Validate(s, b).
func (s *Spec) Validate(b []byte) (Frame, error) {
	return Validate(s, b)
}

// decodeField checks one field located at base+f.Offset and appends its samples.
func decodeField(f *ChannelField, b []byte, base int, out []DecodedSample) ([]DecodedSample, error) {
	off := base + f.Offset

	switch f.Kind {
	case Tagged:
		word := readBE(b[off : off+f.Width])
		shift := uint(8*f.Width - 4)
		tag := uint8(word >> shift)
		if want := f.Channel.Tag(); tag != want {
			return out, &TagMismatchError{Channel: f.Channel, Offset: off, Expected: want, Found: tag}
		}
		if f.ValidateOnly {
			return out, nil
		}
		raw := int32(word & f.sampleMask())
		return append(out, DecodedSample{Channel: f.Channel, Raw: raw, Value: f.Scale.Apply(raw)}), nil

	case Sentinel:
		if b[off] != f.Start {
			return out, &FramingMismatchError{Channel: f.Channel, Offset: off, Expected: f.Start, Found: b[off]}
		}
		return out, nil

	case Plain:
		if f.ValidateOnly {
			return out, nil
		}
		raw := plainValue(f, b[off:off+f.Width])
		return append(out, DecodedSample{Channel: f.Channel, Raw: raw, Value: f.Scale.Apply(raw)}), nil

	case SubFrame:
		if b[off] != f.Start {
			return out, &FramingMismatchError{Channel: f.Channel, Offset: off, Expected: f.Start, Found: b[off]}
		}
		last := off + f.Width - 1
		if b[last] != f.End {
			return out, &FramingMismatchError{Channel: f.Channel, Offset: last, Expected: f.End, Found: b[last]}
		}
		if f.ValidateOnly {
			return out, nil
		}
		for i := range f.Fields {
			var err error
			out, err = decodeField(&f.Fields[i], b, off, out)
			if err != nil {
				return out, err
			}
		}
		return out, nil
	}

	return out, fmt.Errorf("%w: unknown field kind %d", ErrInvalidSpec, int(f.Kind))
}

func readBE(b []byte) uint16 {
	if len(b) == 1 {
		return uint16(b[0])
	}
	return binary.BigEndian.Uint16(b)
}

func plainValue(f *ChannelField, b []byte) int32 {
	word := readBE(b)
	if f.Signed {
		if f.Width == 1 {
			return int32(int8(word))
		}
		return int32(int16(word))
	}
	return int32(word & f.sampleMask())
}
