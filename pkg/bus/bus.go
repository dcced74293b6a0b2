// Package bus is the publish/subscribe substrate Inputs and Outputs talk
// over. Implementations only move opaque payloads between subscribers of
// the same topic; matching, presence and correlation live above.
package bus

import (
	"context"
	"errors"
)

var (
	ErrClosed = errors.New("bus: closed")
)

// Message is what subscribers receive.
type Message struct {
	Topic   string
	Payload []byte
}

// PubSub delivers every payload published on a topic to every current
// subscriber of that topic, publisher included. Delivery order from a single
// publisher on a single topic is preserved.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns a channel of messages for topic and a function that
	// cancels the subscription and closes the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
