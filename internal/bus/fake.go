package bus

import (
	"sync"
	"time"
)

// FakeSource delivers injected messages for tests.
type FakeSource struct {
	mu      sync.Mutex
	topics  []string
	handler Handler

	// Connected controls the return value of IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates a FakeSource for testing.
func NewFakeSource() *FakeSource {
	return &FakeSource{Connected: true}
}

// Subscribe records the handler.
func (f *FakeSource) Subscribe(topics []string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = topics
	f.handler = h
	return nil
}

// Inject delivers a raw message to the registered handler, as if it
// arrived from the broker.
func (f *FakeSource) Inject(topic string, payload []byte, at time.Time) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(topic, payload, at)
	}
}

// Topics returns the filters passed to Subscribe.
func (f *FakeSource) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topics
}

// IsConnected reports the fake connection state.
func (f *FakeSource) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
