package adc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestMock_GracefulShutdown tests that Mock device closes the chunks channel
// when Close() is called.
func TestMock_GracefulShutdown(t *testing.T) {
	mock := NewMock(cleanMockConfig(), nil)
	err := mock.Connect()
	assert.NoError(t, err)

	chunks := mock.Chunks()

	// Read a few chunks
	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range chunks {
			received++
			if received == 3 {
				// Got enough chunks, now close device
				go mock.Close()
			}
		}
	}()

	// Wait for chunks and channel closure
	select {
	case <-done:
		// Channel closed successfully
	case <-time.After(5 * time.Second):
		t.Fatal("Chunks channel did not close within timeout")
	}

	// Should have received at least a few chunks
	assert.GreaterOrEqual(t, received, 3, "Should receive chunks before channel closes")

	// Verify channel is closed
	_, ok := <-chunks
	assert.False(t, ok, "Channel should be closed")
	assert.False(t, mock.IsConnected())
}

// TestMock_CloseWithoutReader tests that Close does not hang when nobody
// drains the chunks channel.
func TestMock_CloseWithoutReader(t *testing.T) {
	mock := NewMock(cleanMockConfig(), nil)
	assert.NoError(t, mock.Connect())

	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = mock.Close()
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on a full chunks channel")
	}
}
