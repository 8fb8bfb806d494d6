package messaging

import (
	"context"
)

// ReportChannel carries one message per completed fan-out.
const ReportChannel = "push.dispatched"

// Message types published on ReportChannel.
const (
	TypeDispatchReport = "dispatch.report"
	TypeTestPush       = "dispatch.test"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NopPublisher drops every message. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

func (NopPublisher) Close() error { return nil }
