// Package memory contains an in-memory publisher used in tests and when no
// external broker is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Notification captures one run-completion publish.
type Notification struct {
	Topic   string
	Payload any
}

// Publisher records run-completion notifications instead of sending them.
type Publisher struct {
	mu   sync.RWMutex
	sent []Notification
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a sequential pseudo id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, Notification{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.sent)), nil
}

// Notifications returns a copy of everything published so far.
func (p *Publisher) Notifications() []Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Notification, len(p.sent))
	copy(out, p.sent)
	return out
}

// ForTopic returns the notifications published to topic, in publish order.
func (p *Publisher) ForTopic(topic string) []Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Notification
	for _, n := range p.sent {
		if n.Topic == topic {
			out = append(out, n)
		}
	}
	return out
}
