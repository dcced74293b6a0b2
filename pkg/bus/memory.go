package bus

import (
	"context"
	"sync"

	"github.com/raskyld/tvio/internal/fifo"
)

var _ PubSub = (*Memory)(nil)

// Memory is a process-local PubSub. Each subscriber owns an unbounded queue
// drained into its channel by a dedicated goroutine, so a slow subscriber
// never stalls publishers and never loses messages.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*memorySub
	closed bool
}

type memorySub struct {
	queue  *fifo.Queue[Message]
	out    chan Message
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]*memorySub)}
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for _, sub := range m.subs[topic] {
		sub.queue.Push(Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	}
	return nil
}

func (m *Memory) Subscribe(topic string) (<-chan Message, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}

	if _, ok := m.subs[topic]; !ok {
		m.subs[topic] = make(map[int]*memorySub)
	}
	id := m.nextID
	m.nextID++

	ctx, cancel := context.WithCancel(context.Background())
	sub := &memorySub{
		queue:  fifo.NewQueue[Message](),
		out:    make(chan Message),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.subs[topic][id] = sub
	go sub.pump(ctx)

	unsubscribe := func() {
		m.mu.Lock()
		if subsByTopic, ok := m.subs[topic]; ok {
			delete(subsByTopic, id)
			if len(subsByTopic) == 0 {
				delete(m.subs, topic)
			}
		}
		m.mu.Unlock()
		sub.stop()
	}
	return sub.out, unsubscribe, nil
}

// Close cancels every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, byTopic := range subs {
		for _, sub := range byTopic {
			sub.stop()
		}
	}
	return nil
}

func (s *memorySub) pump(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	for {
		msg, err := s.queue.Pop(ctx)
		if err != nil {
			return
		}
		select {
		case s.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// stop is idempotent: cancelling twice and closing a closed queue are both
// no-ops.
func (s *memorySub) stop() {
	s.cancel()
	s.queue.Close()
	<-s.done
}
