// Package memory records crawl events in process for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call. Data is the JSON body the
// Pub/Sub publisher would have sent.
type PublishedMessage struct {
	Topic   string
	Event   string
	Payload any
	Data    []byte
}

type eventNamer interface {
	EventName() string
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes the payload like the Pub/Sub publisher does, records it and
// returns a pseudo ID. Unencodable payloads fail the same way they would in
// production.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := PublishedMessage{Topic: topic, Payload: payload, Data: data}
	if named, ok := payload.(eventNamer); ok {
		msg.Event = named.EventName()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Count returns how many messages carried the given event name.
func (p *Publisher) Count(event string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, msg := range p.messages {
		if msg.Event == event {
			n++
		}
	}
	return n
}
