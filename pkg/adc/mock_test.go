package adc

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/frame"
)

func cleanMockConfig() *config.MockConfig {
	return &config.MockConfig{
		SampleRate: time.Millisecond,
		NoiseLevel: 0.01,
		MaxChunk:   5,
		Seed:       7,
	}
}

func TestNewMock(t *testing.T) {
	cfg := cleanMockConfig()
	spec := frame.EightChannel(3.0)

	dev := NewMock(cfg, spec)
	assert.NotNil(t, dev)
	assert.Equal(t, cfg, dev.cfg)
	assert.Equal(t, spec, dev.spec)
	assert.NotNil(t, dev.chunks)
	assert.False(t, dev.IsConnected())
	assert.Equal(t, "mock(eight_channel)", dev.String())
}

func TestNewMock_NilConfig(t *testing.T) {
	dev := NewMock(nil, nil)
	assert.NotNil(t, dev)
	assert.NotNil(t, dev.cfg)
	assert.Equal(t, 20*time.Millisecond, dev.cfg.SampleRate)
	assert.Equal(t, 24, dev.cfg.MaxChunk)
	assert.Equal(t, frame.VariantMixed, dev.spec.Name)
}

// collect reads chunks until n bytes have arrived.
func collect(t *testing.T, dev *Mock, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	timeout := time.After(5 * time.Second)
	for buf.Len() < n {
		select {
		case c, ok := <-dev.Chunks():
			require.True(t, ok, "chunks channel closed early")
			require.NotEmpty(t, c.Data)
			assert.LessOrEqual(t, len(c.Data), dev.cfg.MaxChunk)
			assert.False(t, c.Timestamp.IsZero())
			buf.Write(c.Data)
		case <-timeout:
			t.Fatalf("received %d of %d bytes", buf.Len(), n)
		}
	}
	return buf.Bytes()
}

func TestMock_CleanStreamDecodes(t *testing.T) {
	for _, name := range frame.Variants() {
		t.Run(name, func(t *testing.T) {
			spec, err := frame.Variant(name, 0)
			require.NoError(t, err)

			dev := NewMock(cleanMockConfig(), spec)
			require.NoError(t, dev.Connect())
			defer dev.Close()

			const frames = 10
			data := collect(t, dev, frames*spec.Length)

			// Without impairments the stream is frame aligned from byte 0.
			for i := 0; i < frames; i++ {
				f, err := spec.Validate(data[i*spec.Length : (i+1)*spec.Length])
				require.NoError(t, err, "frame %d", i)
				assert.NotZero(t, f.Len())
			}
		})
	}
}

func TestMock_Impairments(t *testing.T) {
	cfg := cleanMockConfig()
	cfg.GarbageEvery = 2
	cfg.CorruptEvery = 3

	spec := frame.EightChannel(3.0)
	dev := NewMock(cfg, spec)
	require.NoError(t, dev.Connect())
	require.NoError(t, dev.Close())
	dev.frames = 0

	now := dev.startTime
	for i := 1; i <= 6; i++ {
		b, err := dev.nextBytes(now)
		require.NoError(t, err)

		want := spec.Length
		if i%2 == 0 {
			want++
		}
		assert.Len(t, b, want, "frame %d", i)

		body := b[len(b)-spec.Length:]
		_, err = spec.Validate(body)
		if i%3 == 0 {
			assert.ErrorIs(t, err, frame.ErrTagMismatch, "frame %d", i)
		} else {
			assert.NoError(t, err, "frame %d", i)
		}
	}
}

func TestMock_Split(t *testing.T) {
	dev := NewMock(cleanMockConfig(), nil)
	require.NoError(t, dev.Connect())
	require.NoError(t, dev.Close())

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	parts := dev.split(data)
	var joined []byte
	for _, p := range parts {
		assert.NotEmpty(t, p)
		assert.LessOrEqual(t, len(p), 5)
		joined = append(joined, p...)
	}
	assert.Equal(t, data, joined)
}

func TestMock_Send(t *testing.T) {
	dev := NewMock(cleanMockConfig(), frame.Probe())

	err := dev.Send(frame.ProbeRequest())
	assert.True(t, errors.Is(err, ErrNotConnected))

	require.NoError(t, dev.Connect())
	defer dev.Close()

	require.NoError(t, dev.Send(frame.ProbeRequest()))
	assert.Equal(t, [][]byte{{0xAF, 0x01, 0xFA}}, dev.Sent())
}

func TestMock_ConnectTwice(t *testing.T) {
	dev := NewMock(cleanMockConfig(), nil)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	assert.ErrorIs(t, dev.Connect(), ErrAlreadyConnected)
}

func TestMock_Reconnect(t *testing.T) {
	dev := NewMock(cleanMockConfig(), frame.SingleChannel(frame.SingleChannelVRef))
	require.NoError(t, dev.Connect())
	first := collect(t, dev, 6)
	require.NoError(t, dev.Close())

	require.NoError(t, dev.Connect())
	defer dev.Close()
	second := collect(t, dev, 6)

	// Same seed, same simulated start: the first packet header repeats.
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, frame.PacketSentinel, second[0])
}
