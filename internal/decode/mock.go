package decode

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDecoder is a test implementation of the Decoder interface.
// It returns whatever payload it was last given.
type MockDecoder struct {
	mu      sync.Mutex
	payload string
	err     error
	calls   int
}

// NewMockDecoder creates a MockDecoder that finds nothing.
func NewMockDecoder() *MockDecoder {
	return &MockDecoder{}
}

// SetPayload sets the payload returned by Decode. An empty payload means no match.
func (m *MockDecoder) SetPayload(payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = payload
}

// SetError sets the error returned by Decode.
func (m *MockDecoder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Decode was called.
func (m *MockDecoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Decode returns the configured payload or error.
func (m *MockDecoder) Decode(gray gocv.Mat) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	return m.payload, m.payload != "", nil
}

// Close is a no-op for the mock decoder.
func (m *MockDecoder) Close() error {
	return nil
}
