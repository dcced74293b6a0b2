// Package gossipbus carries bus messages as Serf user events, so processes
// find each other through gossip instead of a broker.
//
// Delivery is best effort: a message is gossiped to every member of the
// cluster, members joining later do not see it, and two messages from the
// same sender may arrive out of order under churn.
package gossipbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/serf/serf"
	"github.com/raskyld/tvio/pkg/bus"
)

// MaxPayload is the hard limit Serf puts on a user event.
const MaxPayload = 9 * 1024

var (
	ErrInvalidCfg   = errors.New("gossipbus: invalid options")
	ErrJoinCluster  = errors.New("gossipbus: failed to join cluster")
	ErrTooLarge     = errors.New("gossipbus: message too large")
	ErrNoNeighbours = errors.New("gossipbus: no neighbours to join")
)

// Bus is a bus.PubSub over a Serf cluster.
type Bus struct {
	config config
	logger *slog.Logger

	serf    *serf.Serf
	eventCh chan serf.Event

	// local fans the events out to the subscribers of this process.
	local *bus.Memory

	lk       sync.Mutex
	shutdown bool
	dropCh   chan struct{}
	wg       sync.WaitGroup
}

var _ bus.PubSub = (*Bus)(nil)

// Create starts a gossip node. Call Join to reach the rest of the cluster.
func Create(opts ...Option) (*Bus, error) {
	b := &Bus{
		eventCh: make(chan serf.Event, 512),
		local:   bus.NewMemory(),
		dropCh:  make(chan struct{}),
	}

	b.config.serfCfg = serf.DefaultConfig()
	b.config.serfCfg.LogOutput = nil
	b.config.serfCfg.MemberlistConfig.ProbeTimeout = 2 * time.Second
	b.config.serfCfg.QueueDepthWarning = 512
	// No routing decision is made on latency.
	b.config.serfCfg.DisableCoordinates = true
	b.config.serfCfg.ValidateNodeNames = true
	b.config.serfCfg.UserEventSizeLimit = MaxPayload
	b.config.serfCfg.EventCh = b.eventCh

	for _, opt := range opts {
		err := opt(&b.config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	// Logging implementations.
	if b.config.logHandler != nil {
		b.logger = slog.New(b.config.logHandler)
	} else {
		b.logger = slog.Default()
	}
	b.config.serfCfg.Logger = slog.NewLogLogger(b.logger.Handler(), slog.LevelDebug)
	b.config.serfCfg.MemberlistConfig.Logger = b.config.serfCfg.Logger
	b.config.serfCfg.MemberlistConfig.LogOutput = nil

	s, err := serf.Create(b.config.serfCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	b.serf = s

	b.wg.Add(1)
	go b.handleEvents()

	b.logger.Info("gossip node started",
		LabelNodeName.L(s.LocalMember().Name),
		LabelNodeAddr.L(fmt.Sprintf("%s:%d", s.LocalMember().Addr, s.LocalMember().Port)),
	)
	return b, nil
}

// Join contacts the neighbours given with WithNeighbours. Reaching one of
// them is enough.
func (b *Bus) Join() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	if b.shutdown {
		return bus.ErrClosed
	}
	if len(b.config.neighbours) == 0 {
		return ErrNoNeighbours
	}

	// Old events are none of our business: handles re-announce themselves.
	joined, err := b.serf.Join(b.config.neighbours, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJoinCluster, err)
	}
	b.logger.Info("cluster joined")
	if len(b.config.neighbours) != joined {
		b.logger.Warn(
			"not all neighbours are reachable",
			"joined", joined,
			"expected", len(b.config.neighbours),
		)
	}
	return nil
}

// Members returns the cluster as this node sees it.
func (b *Bus) Members() []serf.Member {
	return b.serf.Members()
}

// Publish gossips payload on topic. It is delivered to the local
// subscribers too.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.lk.Lock()
	closed := b.shutdown
	b.lk.Unlock()
	if closed {
		return bus.ErrClosed
	}

	if len(topic)+len(payload) > b.config.serfCfg.UserEventSizeLimit {
		return fmt.Errorf("%w: %d bytes on %s", ErrTooLarge, len(payload), topic)
	}
	return b.serf.UserEvent(topic, payload, false)
}

func (b *Bus) Subscribe(topic string) (<-chan bus.Message, func(), error) {
	return b.local.Subscribe(topic)
}

// Close leaves the cluster gracefully then frees every resource.
func (b *Bus) Close() error {
	b.lk.Lock()
	if b.shutdown {
		b.lk.Unlock()
		return nil
	}
	b.shutdown = true
	b.lk.Unlock()

	start := time.Now()
	b.logger.Info("shutdown: leave cluster")
	if err := b.serf.Leave(); err != nil {
		b.logger.Warn("failed to leave gracefully", LabelError.L(err))
	}

	close(b.dropCh)
	b.logger.Info("shutdown: release gossip resources")
	err := b.serf.Shutdown()
	b.wg.Wait()
	<-b.serf.ShutdownCh()
	_ = b.local.Close()

	b.logger.Info("shutdown: completed", LabelDuration.L(time.Since(start)))
	return err
}

func (b *Bus) handleEvents() {
	defer b.wg.Done()
	for {
		var event serf.Event
		select {
		case event = <-b.eventCh:
		case <-b.dropCh:
			return
		}

		switch event := event.(type) {
		case serf.MemberEvent:
			logMemberEvent(b.logger, event)
		case serf.UserEvent:
			err := b.local.Publish(context.Background(), event.Name, event.Payload)
			if err != nil && !errors.Is(err, bus.ErrClosed) {
				b.logger.Error("failed to dispatch an event", LabelTopic.L(event.Name), LabelError.L(err))
			}
		case *serf.Query:
			b.logger.Debug("ignoring query", "query_name", event.Name)
		}
	}
}
