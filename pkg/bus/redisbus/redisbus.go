// Package redisbus is a bus.PubSub over Redis PUBLISH/SUBSCRIBE, for
// deployments that already run a Redis server.
package redisbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/raskyld/tvio/pkg/bus"
	backend "github.com/redis/go-redis/v9"
)

// Bus implements bus.PubSub using Redis channels.
type Bus struct {
	client *backend.Client
	prefix string

	// owned is true when Close must close the client.
	owned bool

	mu     sync.Mutex
	closed bool
	subs   map[*backend.PubSub]struct{}
	wg     sync.WaitGroup
}

var _ bus.PubSub = (*Bus)(nil)

type Option func(*Bus)

// WithPrefix namespaces the Redis channels, so several deployments can
// share a server.
func WithPrefix(prefix string) Option {
	return func(b *Bus) {
		b.prefix = prefix
	}
}

// New creates a Redis bus with its own client.
func New(address, password string, db int, opts ...Option) *Bus {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	b := NewFromClient(rdb, opts...)
	b.owned = true
	return b
}

// NewFromClient creates a Redis bus from an existing client. Close leaves
// the client open.
func NewFromClient(client *backend.Client, opts ...Option) *Bus {
	b := &Bus{
		client: client,
		subs:   make(map[*backend.PubSub]struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *Bus) channel(topic string) string {
	return b.prefix + topic
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.isClosed() {
		return bus.ErrClosed
	}
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscribe returns once Redis confirmed the subscription, so nothing
// published afterwards is missed.
func (b *Bus) Subscribe(topic string) (<-chan bus.Message, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, bus.ErrClosed
	}

	ctx := context.Background()
	ps := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	b.subs[ps] = struct{}{}

	out := make(chan bus.Message)
	done := make(chan struct{})
	in := ps.Channel()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- bus.Message{Topic: topic, Payload: []byte(msg.Payload)}:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs, ps)
			b.mu.Unlock()
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close ends every subscription. The underlying client is closed only if
// the bus created it.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for ps := range b.subs {
		_ = ps.Close()
	}
	clear(b.subs)
	b.mu.Unlock()

	b.wg.Wait()
	if b.owned {
		return b.client.Close()
	}
	return nil
}
