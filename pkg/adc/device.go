package adc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/HuiFDU/adcsync/pkg/config"
	"github.com/HuiFDU/adcsync/pkg/logging"
)

const (
	// DefaultBaudRate is the UART speed of the ADC boards.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the chunks channel buffer.
	DefaultBufferSize = 100
	// DefaultReadTimeout bounds a single port read so cancellation is noticed.
	DefaultReadTimeout = 100 * time.Millisecond

	readSize = 256
)

var (
	ErrNotConnected     = errors.New("adc: not connected")
	ErrAlreadyConnected = errors.New("adc: already connected")
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads raw bytes from a serial-connected ADC board.
type Serial struct {
	port        string
	baudRate    int
	bufSize     int
	readTimeout time.Duration

	pollCmd      []byte
	pollInterval time.Duration

	conn      serial.Port
	chunks    chan Chunk
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
}

// New creates a new Serial instance with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	return &Serial{
		port:        port,
		baudRate:    baudRate,
		bufSize:     bufSize,
		readTimeout: DefaultReadTimeout,
		chunks:      make(chan Chunk, bufSize),
	}
}

// NewFromConfig creates a Serial from the serial section of the configuration.
func NewFromConfig(cfg config.SerialConfig) (*Serial, error) {
	d := New(cfg.Port, cfg.BaudRate, cfg.BufferSize)
	if cfg.ReadTimeout > 0 {
		d.readTimeout = cfg.ReadTimeout
	}
	if cfg.PollInterval > 0 {
		cmd, err := cfg.PollBytes()
		if err != nil {
			return nil, err
		}
		d.pollCmd = cmd
		d.pollInterval = cfg.PollInterval
	}
	return d, nil
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(details))
	for _, p := range details {
		desc := p.Name
		if p.IsUSB {
			desc = fmt.Sprintf("%s [%s:%s]", p.Product, p.VID, p.PID)
			if p.SerialNumber != "" {
				desc += " " + p.SerialNumber
			}
		}
		result = append(result, Port{Name: p.Name, Description: desc})
	}

	return result, nil
}

// Connect opens the port 8N1 and starts reading chunks.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := port.SetReadTimeout(d.readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", d.port, err)
	}

	d.start(port)

	logging.Info("Serial port opened",
		zap.String("port", d.port),
		zap.Int("baud_rate", d.baudRate),
		zap.Duration("poll_interval", d.pollInterval),
	)
	return nil
}

// start begins reading from an open port. d.mu must be held.
func (d *Serial) start(port serial.Port) {
	ctx, cancel := context.WithCancel(context.Background())
	d.conn = port
	d.cancel = cancel
	d.chunks = make(chan Chunk, d.bufSize)
	d.connected = true

	d.wg.Add(1)
	go d.readChunks(ctx, port, d.chunks)

	if d.pollInterval > 0 && len(d.pollCmd) > 0 {
		d.wg.Add(1)
		go d.poll(ctx, port)
	}
}

// disconnected drops a connection whose port failed, so Connect can be
// called again without a Close.
func (d *Serial) disconnected(conn serial.Port) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != conn {
		return
	}
	d.cancel()
	d.conn = nil
	d.connected = false
	if err := conn.Close(); err != nil {
		logging.Debug("Closing failed serial port", zap.String("port", d.port), zap.Error(err))
	}
}

// Close stops reading and closes the port. The chunks channel is closed once
// the reader has exited.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	conn := d.conn
	d.conn = nil
	d.connected = false
	d.mu.Unlock()

	err := conn.Close()
	d.wg.Wait()

	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", d.port, err)
	}
	logging.Info("Serial port closed", zap.String("port", d.port))
	return nil
}

// Chunks returns the channel of raw reads for the current connection.
func (d *Serial) Chunks() <-chan Chunk {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chunks
}

// Send writes cmd to the device.
func (d *Serial) Send(cmd []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}
	return write(d.conn, cmd)
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func write(conn serial.Port, cmd []byte) error {
	if _, err := conn.Write(cmd); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	logging.LogRawBytes("Serial tx", cmd)
	return nil
}

// readChunks forwards every read to out until ctx is cancelled or the port fails.
// Sends block: a slow consumer stalls the reader instead of losing bytes.
func (d *Serial) readChunks(ctx context.Context, conn serial.Port, out chan<- Chunk) {
	defer d.wg.Done()
	defer close(out)

	buf := make([]byte, readSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				logging.Error("Error reading from serial port", zap.String("port", d.port), zap.Error(err))
				d.disconnected(conn)
			}
			return
		}
		if n == 0 {
			// Read timeout
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		logging.LogRawBytes("Serial rx", data)

		select {
		case out <- Chunk{Timestamp: time.Now(), Data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// poll writes the poll command every pollInterval for request/response sensors.
func (d *Serial) poll(ctx context.Context, conn serial.Port) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(conn, d.pollCmd); err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.Warn("Poll failed", zap.String("port", d.port), zap.Error(err))
			}
		}
	}
}
