package frame

import "fmt"

// Sentinel values used by the device family.
const (
	SubFrameStart  byte = 0xAF
	SubFrameEnd    byte = 0xFA
	PacketSentinel byte = 0xFF
)

// Variant names accepted by Variant.
const (
	VariantEightChannel  = "eight_channel"
	VariantMixed         = "mixed"
	VariantSingleChannel = "single_channel"
	VariantProbe         = "probe"
)

// Default reference voltages per variant.
const (
	DefaultVRef       = 3.0
	SingleChannelVRef = 2.998
)

// Variants lists the built-in variant names.
func Variants() []string {
	return []string{VariantEightChannel, VariantMixed, VariantSingleChannel, VariantProbe}
}

// Variant returns the built-in spec with the given name. A zero vref selects
// the variant's default reference voltage.
func Variant(name string, vref float64) (*Spec, error) {
	switch name {
	case VariantEightChannel:
		return EightChannel(orDefault(vref, DefaultVRef)), nil
	case VariantMixed:
		return Mixed(orDefault(vref, DefaultVRef)), nil
	case VariantSingleChannel:
		return SingleChannel(orDefault(vref, SingleChannelVRef)), nil
	case VariantProbe:
		return Probe(), nil
	default:
		return nil, fmt.Errorf("unknown frame variant %q (want one of %v)", name, Variants())
	}
}

// DefaultVRefFor returns the reference voltage a variant uses when none is configured.
func DefaultVRefFor(name string) float64 {
	if name == VariantSingleChannel {
		return SingleChannelVRef
	}
	return DefaultVRef
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// EightChannel is the 16-byte frame of eight tagged 12-bit channels, tags 1..8
// in field order.
func EightChannel(vref float64) *Spec {
	fields := make([]ChannelField, 0, 8)
	for i := 0; i < 8; i++ {
		fields = append(fields, tagged(ChannelID(i+1), i*2, vref))
	}
	return &Spec{
		Name:        VariantEightChannel,
		Length:      16,
		Fields:      fields,
		StartMarker: TagNibble(uint8(Ch1)),
	}
}

// Mixed is the 16-byte hybrid frame: tagged CH1 (temperature sensor voltage),
// tagged CH2 (pressure sensor voltage), the AF..FA digital sensor sub-frame in
// bytes 4..9 and tagged CH6..CH8 which are validated only.
func Mixed(vref float64) *Spec {
	ch6 := tagged(Ch6, 10, vref)
	ch6.ValidateOnly = true
	ch7 := tagged(Ch7, 12, vref)
	ch7.ValidateOnly = true
	ch8 := tagged(Ch8, 14, vref)
	ch8.ValidateOnly = true

	return &Spec{
		Name:   VariantMixed,
		Length: 16,
		Fields: []ChannelField{
			tagged(Ch1, 0, vref),
			tagged(Ch2, 2, vref),
			probeSubFrame(4),
			ch6,
			ch7,
			ch8,
		},
		StartMarker: TagNibble(uint8(Ch1)),
	}
}

// SingleChannel is the 3-byte packet: 0xFF followed by a big-endian 12-bit sample.
func SingleChannel(vref float64) *Spec {
	return &Spec{
		Name:   VariantSingleChannel,
		Length: 3,
		Fields: []ChannelField{
			{Channel: Ch1, Kind: Sentinel, Offset: 0, Width: 1, Start: PacketSentinel},
			{Channel: Ch1, Kind: Plain, Offset: 1, Width: 2, Mask: 0x0FFF, Scale: Voltage(FullScale12, vref)},
		},
		StartMarker: SentinelByte(PacketSentinel),
	}
}

// Probe is the 6-byte response of the polled digital pressure/temperature
// sensor: AF, pressure (uint16 kPa), temperature (int16, 0.1 °C), FA.
func Probe() *Spec {
	return &Spec{
		Name:        VariantProbe,
		Length:      6,
		Fields:      []ChannelField{probeSubFrame(0)},
		StartMarker: SentinelByte(SubFrameStart),
	}
}

// ProbeRequest is the command that makes the digital sensor answer with a Probe frame.
func ProbeRequest() []byte {
	return []byte{SubFrameStart, 0x01, SubFrameEnd}
}

func tagged(id ChannelID, offset int, vref float64) ChannelField {
	return ChannelField{
		Channel: id,
		Kind:    Tagged,
		Offset:  offset,
		Width:   2,
		Scale:   Voltage(FullScale12, vref),
	}
}

func probeSubFrame(offset int) ChannelField {
	return ChannelField{
		Channel: Ch3,
		Kind:    SubFrame,
		Offset:  offset,
		Width:   6,
		Start:   SubFrameStart,
		End:     SubFrameEnd,
		Fields: []ChannelField{
			{Channel: Ch3Pressure, Kind: Plain, Offset: 1, Width: 2},
			{Channel: Ch3Temperature, Kind: Plain, Offset: 3, Width: 2, Signed: true, Scale: Divide(10)},
		},
	}
}
