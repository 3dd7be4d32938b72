package adc

import "time"

// Chunk is one read from the device: whatever bytes arrived, with no framing.
type Chunk struct {
	Timestamp time.Time
	Data      []byte
}

// Device defines the interface for ADC byte sources (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Chunks() <-chan Chunk
	Send(cmd []byte) error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
