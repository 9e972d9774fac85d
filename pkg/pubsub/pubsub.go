package pubsub

import (
	"context"
	"encoding/json"
)

// Topics carried to the browser.
const (
	TopicScene   = "scene"   // Render model: a full scene, then diffs
	TopicNotices = "notices" // User notices and dismissals
)

// Event types.
const (
	EventSceneFull     = "full"
	EventSceneDiff     = "diff"
	EventNotice        = "notice"
	EventNoticeDismiss = "dismissed"
)

// Event represents a pub/sub event.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // Per-topic, for ordering and resync
}

// Subscription represents a client subscription to a topic.
type Subscription interface {
	// Topic returns the subscription topic.
	Topic() string

	// Events returns a channel for receiving events.
	Events() <-chan Event

	// Close closes the subscription.
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing.
type Publisher interface {
	// Subscribe creates a new subscription to a topic.
	// Context cancellation will close the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic.
	Publish(topic string, eventType string, data any) error

	// PublishWithSnapshot sends an incremental event to current subscribers
	// while buffering a self-contained snapshot for later ones.
	PublishWithSnapshot(topic, eventType string, data any, snapshotType string, snapshot any) error

	// Close shuts down the publisher and all subscriptions.
	Close() error
}

// NoticeDismissal is the payload of EventNoticeDismiss.
type NoticeDismissal struct {
	ID string `json:"id"`
}
