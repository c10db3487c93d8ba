package mailer

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider keeps sent messages in memory. It backs tests and dry runs.
type MemoryProvider struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Name returns the provider name.
func (p *MemoryProvider) Name() string {
	return "memory"
}

// Send records msg, or returns Err when set.
func (p *MemoryProvider) Send(_ context.Context, msg Message) (SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return SendResult{}, p.Err
	}
	p.sent = append(p.sent, msg)
	return SendResult{ProviderMessageID: fmt.Sprintf("memory-%d", len(p.sent))}, nil
}

// Sent returns a copy of the recorded messages.
func (p *MemoryProvider) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.sent...)
}
