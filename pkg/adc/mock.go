package adc

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/frame"
	"github.com/HuiFDU/adcsync/pkg/logging"
)

// Mock simulates an ADC board: it encodes frames of a spec at a fixed rate,
// optionally inserts garbage bytes and corrupts frames, and delivers the
// result in randomly sized chunks the way a serial port would.
type Mock struct {
	cfg  *config.MockConfig
	spec *frame.Spec

	chunks    chan Chunk
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool

	sent [][]byte

	// Simulation state, owned by the generator goroutine.
	rng       *rand.Rand
	startTime time.Time
	frames    int
}

// NewMock creates a new mocked device producing frames of spec.
func NewMock(cfg *config.MockConfig, spec *frame.Spec) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			NoiseLevel: 0.01,
			MaxChunk:   24,
			SampleRate: 20 * time.Millisecond,
			Seed:       1,
		}
	}
	if spec == nil {
		spec = frame.Mixed(frame.DefaultVRef)
	}

	return &Mock{
		cfg:    cfg,
		spec:   spec,
		chunks: make(chan Chunk, DefaultBufferSize),
	}
}

// Connect starts generating chunks.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	seed := uint64(m.cfg.Seed)
	m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	m.startTime = time.Now()
	m.frames = 0
	m.cancel = cancel
	m.chunks = make(chan Chunk, DefaultBufferSize)
	m.connected = true

	m.wg.Add(1)
	go m.generate(ctx, m.chunks)

	logging.Info("Mock device connected",
		zap.String("variant", m.spec.Name),
		zap.Duration("sample_rate", m.cfg.SampleRate),
		zap.Int("garbage_every", m.cfg.GarbageEvery),
		zap.Int("corrupt_every", m.cfg.CorruptEvery),
	)
	return nil
}

// Close stops the generator and closes the chunks channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// Chunks returns the channel of simulated reads.
func (m *Mock) Chunks() <-chan Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chunks
}

// Send records cmd (simulated).
func (m *Mock) Send(cmd []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.sent = append(m.sent, append([]byte(nil), cmd...))
	return nil
}

// Sent returns the commands received by Send.
func (m *Mock) Sent() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Mock) generate(ctx context.Context, out chan<- Chunk) {
	defer m.wg.Done()
	defer close(out)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b, err := m.nextBytes(now)
			if err != nil {
				logging.Error("Mock failed to encode frame", zap.Error(err))
				return
			}
			for _, part := range m.split(b) {
				select {
				case out <- Chunk{Timestamp: now, Data: part}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// nextBytes encodes the next frame and applies the configured impairments.
func (m *Mock) nextBytes(now time.Time) ([]byte, error) {
	m.frames++
	b, err := frame.Encode(m.spec, m.values(now.Sub(m.startTime)))
	if err != nil {
		return nil, err
	}

	if n := m.cfg.CorruptEvery; n > 0 && m.frames%n == 0 {
		b[0] ^= 0x80
	}
	if n := m.cfg.GarbageEvery; n > 0 && m.frames%n == 0 {
		b = append([]byte{byte(m.rng.IntN(256))}, b...)
	}
	return b, nil
}

// split cuts b into chunks of 1..MaxChunk bytes.
func (m *Mock) split(b []byte) [][]byte {
	maxChunk := m.cfg.MaxChunk
	if maxChunk <= 0 {
		return [][]byte{b}
	}

	var parts [][]byte
	for len(b) > 0 {
		n := 1 + m.rng.IntN(maxChunk)
		if n > len(b) {
			n = len(b)
		}
		parts = append(parts, b[:n:n])
		b = b[n:]
	}
	return parts
}

// values produces raw codes for every field of the spec. Voltage channels
// drift sinusoidally around mid-range; the digital sensor reports a slowly
// varying pressure and temperature.
func (m *Mock) values(elapsed time.Duration) map[frame.ChannelID]int32 {
	t := elapsed.Seconds()
	values := make(map[frame.ChannelID]int32)

	var visit func(fields []frame.ChannelField)
	visit = func(fields []frame.ChannelField) {
		for _, f := range fields {
			switch f.Kind {
			case frame.SubFrame:
				visit(f.Fields)
			case frame.Tagged, frame.Plain:
				values[f.Channel] = m.value(f, t)
			}
		}
	}
	visit(m.spec.Fields)
	return values
}

func (m *Mock) value(f frame.ChannelField, t float64) int32 {
	phase := float64(f.Channel)
	noise := (m.rng.Float64()*2 - 1) * m.cfg.NoiseLevel

	switch {
	case f.Scale.FullScale != 0:
		v := 0.75*f.Scale.VRef + 0.2*f.Scale.VRef*math.Sin(2*math.Pi*t/10+phase) + noise
		return int32(frame.VoltageToCode(v, f.Scale.VRef))
	case f.Signed:
		temp := 25 + 5*math.Sin(2*math.Pi*t/30) + noise
		d := f.Scale.Divisor
		if d == 0 {
			d = 1
		}
		return int32(math.Round(temp * d))
	default:
		kPa := 500 + 100*math.Sin(2*math.Pi*t/20) + noise
		return int32(math.Max(0, math.Round(kPa)))
	}
}

// String describes the simulated device.
func (m *Mock) String() string {
	return fmt.Sprintf("mock(%s)", m.spec.Name)
}
