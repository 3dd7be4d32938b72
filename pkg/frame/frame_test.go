package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mixedFrame returns a valid mixed frame with CH1 = 0x001 and CH2 = 0x002.
func mixedFrame() []byte {
	return []byte{
		0x10, 0x01, // CH1
		0x20, 0x02, // CH2
		0xAF, 0x01, 0xF4, 0xFF, 0x9C, 0xFA, // sub-frame: 500 kPa, -10.0 °C
		0x60, 0x00, 0x70, 0x00, 0x80, 0x00, // CH6..CH8
	}
}

func TestValidate_MixedFrame(t *testing.T) {
	spec := Mixed(3.0)
	f, err := Validate(spec, mixedFrame())
	require.NoError(t, err)

	ch1, ok := f.Sample(Ch1)
	require.True(t, ok)
	assert.Equal(t, int32(0x001), ch1.Raw)
	assert.InDelta(t, 1.0/4095.0*3.0, ch1.Value, 1e-12)

	ch2, ok := f.Sample(Ch2)
	require.True(t, ok)
	assert.Equal(t, int32(0x002), ch2.Raw)

	p, ok := f.Sample(Ch3Pressure)
	require.True(t, ok)
	assert.Equal(t, int32(500), p.Raw)
	assert.Equal(t, 500.0, p.Value)

	temp, ok := f.Sample(Ch3Temperature)
	require.True(t, ok)
	assert.Equal(t, int32(-100), temp.Raw)
	assert.InDelta(t, -10.0, temp.Value, 1e-12)

	// CH6..CH8 are validated but not decoded.
	_, ok = f.Sample(Ch6)
	assert.False(t, ok)
	assert.Equal(t, 4, f.Len())
	assert.Equal(t, VariantMixed, f.Spec())
	assert.Equal(t, "10 01 20 02 AF 01 F4 FF 9C FA 60 00 70 00 80 00", f.Hex())
}

func TestValidate_SingleChannelFullScale(t *testing.T) {
	f, err := Validate(SingleChannel(SingleChannelVRef), []byte{0xFF, 0x0F, 0xFF})
	require.NoError(t, err)

	s, ok := f.Sample(Ch1)
	require.True(t, ok)
	assert.Equal(t, int32(4095), s.Raw)
	assert.InDelta(t, 2.998, s.Value, 1e-12)
}

func TestValidate_EightChannel(t *testing.T) {
	b := make([]byte, 16)
	for i := 0; i < 8; i++ {
		word := uint16(i+1)<<12 | uint16(i*500)
		b[i*2] = byte(word >> 8)
		b[i*2+1] = byte(word)
	}

	f, err := Validate(EightChannel(3.0), b)
	require.NoError(t, err)
	require.Equal(t, 8, f.Len())
	for i, s := range f.Samples() {
		assert.Equal(t, ChannelID(i+1), s.Channel)
		assert.Equal(t, int32(i*500), s.Raw)
		assert.InDelta(t, float64(i*500)/4095.0*3.0, s.Value, 1e-12)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b []byte) []byte
		target error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "CH1 tag wrong",
			mutate: func(b []byte) []byte { b[0] = 0x30; return b },
			target: ErrTagMismatch,
			check: func(t *testing.T, err error) {
				var tm *TagMismatchError
				require.True(t, errors.As(err, &tm))
				assert.Equal(t, Ch1, tm.Channel)
				assert.Equal(t, uint8(1), tm.Expected)
				assert.Equal(t, uint8(3), tm.Found)
				assert.Equal(t, 0, tm.Offset)
			},
		},
		{
			name:   "CH7 tag wrong",
			mutate: func(b []byte) []byte { b[12] = 0x10; return b },
			target: ErrTagMismatch,
			check: func(t *testing.T, err error) {
				var tm *TagMismatchError
				require.True(t, errors.As(err, &tm))
				assert.Equal(t, Ch7, tm.Channel)
				assert.Equal(t, 12, tm.Offset)
			},
		},
		{
			name:   "sub-frame start sentinel",
			mutate: func(b []byte) []byte { b[4] = 0x00; return b },
			target: ErrFramingMismatch,
			check: func(t *testing.T, err error) {
				var fm *FramingMismatchError
				require.True(t, errors.As(err, &fm))
				assert.Equal(t, 4, fm.Offset)
				assert.Equal(t, SubFrameStart, fm.Expected)
			},
		},
		{
			name:   "sub-frame end sentinel",
			mutate: func(b []byte) []byte { b[9] = 0xFB; return b },
			target: ErrFramingMismatch,
			check: func(t *testing.T, err error) {
				var fm *FramingMismatchError
				require.True(t, errors.As(err, &fm))
				assert.Equal(t, 9, fm.Offset)
				assert.Equal(t, byte(0xFB), fm.Found)
			},
		},
		{
			name:   "short input",
			mutate: func(b []byte) []byte { return b[:15] },
			target: ErrFrameLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Validate(Mixed(3.0), tt.mutate(mixedFrame()))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, 0, f.Len(), "failed decode must not expose samples")
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestValidate_StopsAtFirstFailure(t *testing.T) {
	b := mixedFrame()
	b[2] = 0x90 // CH2 wrong
	b[4] = 0x00 // sub-frame wrong too

	_, err := Validate(Mixed(3.0), b)
	assert.ErrorIs(t, err, ErrTagMismatch)
	assert.NotErrorIs(t, err, ErrFramingMismatch)
}

func TestValidate_Pure(t *testing.T) {
	b := mixedFrame()
	orig := append([]byte(nil), b...)
	spec := Mixed(3.0)

	f1, err1 := Validate(spec, b)
	f2, err2 := Validate(spec, b)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, f1, f2)
	assert.Equal(t, orig, b)

	// The frame keeps its own copy of the bytes.
	b[1] = 0xEE
	assert.Equal(t, orig, f1.Raw())
}

func TestValidate_Probe(t *testing.T) {
	f, err := Probe().Validate([]byte{0xAF, 0x03, 0xE8, 0x00, 0xFB, 0xFA})
	require.NoError(t, err)

	p, _ := f.Sample(Ch3Pressure)
	temp, _ := f.Sample(Ch3Temperature)
	assert.Equal(t, 1000.0, p.Value)
	assert.InDelta(t, 25.1, temp.Value, 1e-12)
}

func TestScale_Apply(t *testing.T) {
	tests := []struct {
		name  string
		scale Scale
		raw   int32
		want  float64
	}{
		{"identity", Scale{}, 42, 42},
		{"one decimal", Divide(10), -123, -12.3},
		{"full scale voltage", Voltage(FullScale12, 3.0), 4095, 3.0},
		{"zero voltage", Voltage(FullScale12, 3.0), 0, 0},
		{"half scale", Voltage(FullScale12, 3.3), 2047, 2047.0 / 4095.0 * 3.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.scale.Apply(tt.raw), 1e-12)
		})
	}
}

func TestStartMarkers(t *testing.T) {
	tag := TagNibble(1)
	assert.True(t, tag([]byte{0x10, 0x00}))
	assert.True(t, tag([]byte{0x1F, 0xFF}))
	assert.False(t, tag([]byte{0x20, 0x00}))
	assert.False(t, tag(nil))

	sentinel := SentinelByte(0xFF)
	assert.True(t, sentinel([]byte{0xFF, 0x0F}))
	assert.False(t, sentinel([]byte{0xFE, 0x0F}))
}

func TestFormatHex(t *testing.T) {
	assert.Equal(t, "", FormatHex(nil))
	assert.Equal(t, "FF 0F FF", FormatHex([]byte{0xFF, 0x0F, 0xFF}))
}

func TestParseHex(t *testing.T) {
	b, err := ParseHex("FF 0F FF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x0F, 0xFF}, b)

	b, err = ParseHex(" af01fa\n")
	require.NoError(t, err)
	assert.Equal(t, ProbeRequest(), b)

	b, err = ParseHex(FormatHex([]byte{0x10, 0x01, 0x20, 0x02}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x01, 0x20, 0x02}, b)

	_, err = ParseHex("AF 0")
	assert.Error(t, err)
	_, err = ParseHex("zz")
	assert.Error(t, err)
}
