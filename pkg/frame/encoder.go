package frame

import (
	"encoding/binary"
	"fmt"
)

// Encode builds the wire bytes for spec from raw channel values. Channels
// missing from values encode as zero; tags and sentinels are always filled in.
// It is the inverse of Validate and exists for simulators and test fixtures.
func Encode(spec *Spec, values map[ChannelID]int32) ([]byte, error) {
	buf := make([]byte, spec.Length)
	for i := range spec.Fields {
		if err := encodeField(&spec.Fields[i], buf, 0, values); err != nil {
			return nil, fmt.Errorf("encode %s: %w", spec.Name, err)
		}
	}
	return buf, nil
}

func encodeField(f *ChannelField, buf []byte, base int, values map[ChannelID]int32) error {
	off := base + f.Offset

	switch f.Kind {
	case Tagged:
		mask := f.sampleMask()
		v := values[f.Channel]
		if v < 0 || uint32(v) > uint32(mask) {
			return fmt.Errorf("%s value %d does not fit mask 0x%X", f.Channel, v, mask)
		}
		shift := uint(8*f.Width - 4)
		word := uint16(f.Channel.Tag())<<shift | uint16(v)
		writeBE(buf[off:off+f.Width], word)

	case Sentinel:
		buf[off] = f.Start

	case Plain:
		v := values[f.Channel]
		if f.Signed {
			lo, hi := int32(-1<<(8*f.Width-1)), int32(1<<(8*f.Width-1)-1)
			if v < lo || v > hi {
				return fmt.Errorf("%s value %d out of signed %d-byte range", f.Channel, v, f.Width)
			}
		} else if mask := f.sampleMask(); v < 0 || uint32(v) > uint32(mask) {
			return fmt.Errorf("%s value %d does not fit mask 0x%X", f.Channel, v, mask)
		}
		writeBE(buf[off:off+f.Width], uint16(v))

	case SubFrame:
		buf[off] = f.Start
		buf[off+f.Width-1] = f.End
		for i := range f.Fields {
			if err := encodeField(&f.Fields[i], buf, off, values); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("%w: unknown field kind %d", ErrInvalidSpec, int(f.Kind))
	}
	return nil
}

func writeBE(b []byte, v uint16) {
	if len(b) == 1 {
		b[0] = byte(v)
		return
	}
	binary.BigEndian.PutUint16(b, v)
}

// VoltageToCode converts a voltage to a 12-bit ADC code with reference vref.
// Voltages outside [0, vref] are clamped; the result is truncated, not rounded.
func VoltageToCode(v, vref float64) uint16 {
	if v < 0 {
		v = 0
	} else if v > vref {
		v = vref
	}
	return uint16(v / vref * FullScale12)
}
