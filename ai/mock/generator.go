package mock

import (
	"context"
	"regexp"
	"sync"

	"github.com/poiesic/carebuddy/ai"
)

// DefaultReply is returned by MockGenerator when the prompt carries no sources.
const DefaultReply = "I could not find any information about that in your care documents."

var excerptLine = regexp.MustCompile(`(?m)^\[\d+\]\s*(.+)$`)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) (string, error)

	mu        sync.Mutex
	callCount int
	last      []ai.Message
	lastOpts  ai.GenerateOptions
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) Generate(ctx context.Context, messages []ai.Message, opts ...ai.GenerateOption) (string, error) {
	var options ai.GenerateOptions
	for _, opt := range opts {
		opt(&options)
	}

	m.mu.Lock()
	m.callCount++
	m.last = append([]ai.Message(nil), messages...)
	m.lastOpts = options
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, options)
	}
	for _, msg := range messages {
		if match := excerptLine.FindStringSubmatch(msg.Content); match != nil {
			return "According to your care team's documents: " + match[1], nil
		}
	}
	return DefaultReply, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastMessages returns the messages of the most recent call.
func (m *MockGenerator) LastMessages() []ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// LastOptions returns the options of the most recent call.
func (m *MockGenerator) LastOptions() ai.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.last = nil
	m.GenerateFunc = nil
}
