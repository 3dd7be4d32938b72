package frame

import (
	"fmt"
	"strings"
)

// ChannelID identifies one logical sensor reading slot within a frame.
// Values 1..15 are the tag numbers carried in tagged fields.
type ChannelID uint8

const (
	Ch1 ChannelID = iota + 1
	Ch2
	Ch3
	Ch4
	Ch5
	Ch6
	Ch7
	Ch8
	Ch9
	Ch10
	Ch11
	Ch12
	Ch13
	Ch14
	Ch15

	// Fields of the sentinel-delimited sub-frame nested in the mixed frame.
	Ch3Pressure    ChannelID = 0x31
	Ch3Temperature ChannelID = 0x32
)

// MaxTag is the largest channel number a 4-bit tag can carry.
const MaxTag = 15

// Valid reports whether id belongs to the closed set of channel identities.
func (id ChannelID) Valid() bool {
	return (id >= Ch1 && id <= Ch15) || id == Ch3Pressure || id == Ch3Temperature
}

// Tag returns the 4-bit tag for tagged channels and 0 for sub-frame fields.
func (id ChannelID) Tag() uint8 {
	if id >= Ch1 && id <= Ch15 {
		return uint8(id)
	}
	return 0
}

func (id ChannelID) String() string {
	switch {
	case id == Ch3Pressure:
		return "ch3_pressure"
	case id == Ch3Temperature:
		return "ch3_temperature"
	case id >= Ch1 && id <= Ch15:
		return fmt.Sprintf("ch%d", uint8(id))
	default:
		return fmt.Sprintf("channel(0x%02x)", uint8(id))
	}
}

// ParseChannelID parses the name produced by String.
func ParseChannelID(name string) (ChannelID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "ch3_pressure":
		return Ch3Pressure, nil
	case "ch3_temperature":
		return Ch3Temperature, nil
	}

	var n int
	if _, err := fmt.Sscanf(name, "ch%d", &n); err != nil || fmt.Sprintf("ch%d", n) != name {
		return 0, fmt.Errorf("unknown channel %q", name)
	}
	if n < 1 || n > MaxTag {
		return 0, fmt.Errorf("channel number out of range: %d (1..%d)", n, MaxTag)
	}
	return ChannelID(n), nil
}

// MarshalText implements encoding.TextMarshaler so channels read naturally in config files.
func (id ChannelID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid channel id 0x%02x", uint8(id))
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ChannelID) UnmarshalText(text []byte) error {
	parsed, err := ParseChannelID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
