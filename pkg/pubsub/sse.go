package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/node-composer/pkg/logging"
)

var ErrClosed = errors.New("pubsub: publisher is closed")

// TopicConfig configures buffering behavior for a topic.
type TopicConfig struct {
	BufferSize int  // Number of events to buffer (0 = no buffering)
	ReplayAll  bool // If true, replay all buffered events; if false, only replay last event
}

// DefaultTopics is the buffering used by the editor: new scene subscribers
// get the latest full scene, new notice subscribers get recent notices.
var DefaultTopics = map[string]TopicConfig{
	TopicScene:   {BufferSize: 1, ReplayAll: false},
	TopicNotices: {BufferSize: 20, ReplayAll: true},
}

// SSEPublisher implements Publisher using Server-Sent Events.
type SSEPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*sseSubscription]bool // topic -> set of subscriptions
	version       map[string]int                       // topic -> version counter
	eventBuffer   map[string][]Event                   // topic -> ring buffer of events
	topicConfig   map[string]TopicConfig               // topic -> configuration
	closed        bool
}

// NewSSEPublisher creates a new SSE-based publisher with DefaultTopics applied.
func NewSSEPublisher() *SSEPublisher {
	p := &SSEPublisher{
		subscriptions: make(map[string]map[*sseSubscription]bool),
		version:       make(map[string]int),
		eventBuffer:   make(map[string][]Event),
		topicConfig:   make(map[string]TopicConfig),
	}
	for topic, cfg := range DefaultTopics {
		p.topicConfig[topic] = cfg
	}
	return p
}

// ConfigureTopic sets buffering configuration for a topic.
func (p *SSEPublisher) ConfigureTopic(topic string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topicConfig[topic] = config
}

// Subscribe creates a new subscription to a topic.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	sub := &sseSubscription{
		topic:     topic,
		events:    make(chan Event, 100), // Buffered to prevent blocking publishers
		publisher: p,
	}

	if p.subscriptions[topic] == nil {
		p.subscriptions[topic] = make(map[*sseSubscription]bool)
	}
	p.subscriptions[topic][sub] = true

	// Replay while still holding the lock so no live event can overtake it
	config := p.topicConfig[topic]
	replay := p.eventBuffer[topic]
	if !config.ReplayAll && len(replay) > 0 {
		replay = replay[len(replay)-1:]
	}
	for _, event := range replay {
		select {
		case sub.events <- event:
		default:
			logging.Warn("Could not replay event to new subscriber", "topic", topic, "version", event.Version)
		}
	}
	p.mu.Unlock()

	if len(replay) > 0 {
		logging.Debug("Replayed events to new subscriber", "topic", topic, "count", len(replay))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish sends an event to all subscribers of a topic.
func (p *SSEPublisher) Publish(topic string, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event, err := p.newEvent(topic, eventType, data)
	if err != nil {
		return err
	}
	p.buffer(event)
	p.broadcast(event)
	return nil
}

// PublishWithSnapshot broadcasts eventType/data but buffers snapshotType/snapshot
// under the same version. A late subscriber replays the snapshot and then
// receives the increments that follow it.
func (p *SSEPublisher) PublishWithSnapshot(topic, eventType string, data any, snapshotType string, snapshot any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event, err := p.newEvent(topic, eventType, data)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	p.buffer(Event{Topic: topic, Type: snapshotType, Data: raw, Version: event.Version})
	p.broadcast(event)
	return nil
}

// newEvent must be called with p.mu held.
func (p *SSEPublisher) newEvent(topic, eventType string, data any) (Event, error) {
	if p.closed {
		return Event{}, ErrClosed
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.version[topic]++
	return Event{
		Topic:   topic,
		Type:    eventType,
		Data:    jsonData,
		Version: p.version[topic],
	}, nil
}

// buffer must be called with p.mu held.
func (p *SSEPublisher) buffer(event Event) {
	config := p.topicConfig[event.Topic]
	if config.BufferSize <= 0 {
		return
	}

	buffer := append(p.eventBuffer[event.Topic], event)
	if len(buffer) > config.BufferSize {
		buffer = buffer[len(buffer)-config.BufferSize:]
	}
	p.eventBuffer[event.Topic] = buffer
}

// broadcast must be called with p.mu held.
func (p *SSEPublisher) broadcast(event Event) {
	for sub := range p.subscriptions[event.Topic] {
		select {
		case sub.events <- event:
		default:
			logging.Warn("Subscription channel full, dropping event", "topic", event.Topic, "version", event.Version)
		}
	}
}

// Close shuts down the publisher and all subscriptions.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, subs := range p.subscriptions {
		for sub := range subs {
			close(sub.events)
		}
	}
	p.subscriptions = make(map[string]map[*sseSubscription]bool)

	return nil
}

// Subscribers returns the number of live subscriptions on a topic.
func (p *SSEPublisher) Subscribers(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions[topic])
}

// unsubscribe removes a subscription (called by subscription.Close()).
func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if subs := p.subscriptions[sub.topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(p.subscriptions, sub.topic)
		}
	}
}

// sseSubscription implements Subscription.
type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	closed    bool
	mu        sync.Mutex
}

// Topic returns the subscription topic.
func (s *sseSubscription) Topic() string {
	return s.topic
}

// Events returns a channel for receiving events.
func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

// Close closes the subscription.
func (s *sseSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.publisher.unsubscribe(s)

	return nil
}

// WriteSSE writes an event to an SSE response writer.
// Format: "id: <version>\ndata: {json}\n\n".
func WriteSSE(w io.Writer, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", event.Version, jsonData)
	return err
}
