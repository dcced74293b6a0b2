package tvio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/tvio/internal/fifo"
	"github.com/raskyld/tvio/pkg/bus"
	"github.com/raskyld/tvio/pkg/descriptor"
	"github.com/raskyld/tvio/pkg/wire"
)

// endpoint is what Inputs and Outputs have in common: a UUID, the topics
// of their interface, a presence protocol to know who they are connected to
// and an outbox so that publishing never blocks the caller.
type endpoint struct {
	id     string
	handle int
	role   wire.Role
	iface  *descriptor.Interface
	topics []string

	cfg    *config
	ps     bus.PubSub
	logger *slog.Logger
	msink  metrics.MetricSink
	labels []metrics.Label

	dir    *peerDirectory
	rr     atomic.Uint64
	outbox *fifo.Queue[outbound]
	signal *fifo.Signal

	// set by the owning Input or Output before start.
	deliver func(topic string, env *wire.Envelope)
	joined  func(topic, peer string)

	cancels []func()
	closeCh chan struct{}
	wg      sync.WaitGroup
}

type outbound struct {
	topic string
	env   *wire.Envelope
}

func newEndpoint(rt *Runtime, handle int, role wire.Role, iface *descriptor.Interface) *endpoint {
	id := rt.config.ids.Generate()
	return &endpoint{
		id:     id,
		handle: handle,
		role:   role,
		iface:  iface,
		topics: iface.Topics(),
		cfg:    &rt.config,
		ps:     rt.ps,
		logger: rt.logger.With(
			LabelHandle.L(handle),
			LabelUUID.L(id),
			LabelRole.L(role.String()),
		),
		msink:   rt.config.msink,
		labels:  slices.Concat(rt.config.metricLabels, []metrics.Label{LabelRole.M(role.String())}),
		dir:     newPeerDirectory(),
		outbox:  fifo.NewQueue[outbound](),
		signal:  fifo.NewSignal(),
		closeCh: make(chan struct{}),
	}
}

// UUID identifies the handle on the bus.
func (ep *endpoint) UUID() string {
	return ep.id
}

// Interface returns the canonical descriptor of the handle.
func (ep *endpoint) Interface() string {
	return ep.iface.String()
}

// Connected reports whether at least one compatible peer is currently
// alive. It is eventually consistent with the rest of the bus.
func (ep *endpoint) Connected() bool {
	return ep.dir.count() > 0
}

// Changed returns a channel closed the next time the state of the handle
// changes: something arrived, a peer came or left, or the handle was
// removed. Poll again after it fires.
func (ep *endpoint) Changed() <-chan struct{} {
	select {
	case <-ep.closeCh:
		return ep.closeCh
	default:
		return ep.signal.C()
	}
}

func (ep *endpoint) start() error {
	for _, topic := range ep.topics {
		ch, cancel, err := ep.ps.Subscribe(topic)
		if err != nil {
			for _, cancel := range ep.cancels {
				cancel()
			}
			ep.cancels = nil
			return fmt.Errorf("%w: subscribe to %s: %w", ErrNetwork, topic, err)
		}
		ep.cancels = append(ep.cancels, cancel)

		ep.wg.Add(1)
		go ep.read(topic, ch)
	}

	ep.wg.Add(2)
	go ep.send()
	go ep.heartbeat()

	for _, topic := range ep.topics {
		ep.publish(topic, &wire.Envelope{Kind: wire.KindAnnounce, Hello: true})
	}
	ep.logger.Debug("endpoint started", "topics", len(ep.topics))
	return nil
}

// close withdraws the endpoint from the bus and waits for every goroutine
// it owns to stop. Once it returns nothing will be delivered anymore.
func (ep *endpoint) close() {
	for _, topic := range ep.topics {
		ep.publish(topic, &wire.Envelope{Kind: wire.KindWithdraw})
	}
	close(ep.closeCh)
	ep.outbox.Close()
	for _, cancel := range ep.cancels {
		cancel()
	}
	ep.wg.Wait()
	ep.signal.Notify()
	ep.logger.Debug("endpoint closed")
}

// publish hands env to the outbox. Envelopes published after close are
// dropped.
func (ep *endpoint) publish(topic string, env *wire.Envelope) {
	env.Sender = ep.id
	env.Role = ep.role
	if !ep.outbox.Push(outbound{topic: topic, env: env}) {
		ep.msink.IncrCounterWithLabels(MetricTvioMessageDropCount, 1, ep.labels)
	}
}

// target picks the next live peer of topic, round robin. It returns "" when
// nobody is there.
func (ep *endpoint) target(topic string) string {
	peers := ep.dir.onTopic(topic)
	if len(peers) == 0 {
		return ""
	}
	return peers[ep.rr.Add(1)%uint64(len(peers))]
}

func (ep *endpoint) read(topic string, ch <-chan bus.Message) {
	defer ep.wg.Done()
	for {
		var msg bus.Message
		var ok bool
		select {
		case <-ep.closeCh:
			return
		case msg, ok = <-ch:
			if !ok {
				return
			}
		}

		env, err := wire.Unmarshal(msg.Payload)
		if err != nil {
			ep.logger.Debug("dropping malformed envelope", LabelTopic.L(topic), LabelError.L(err))
			ep.msink.IncrCounterWithLabels(MetricTvioMessageDropCount, 1, ep.labels)
			continue
		}
		if env.Sender == ep.id {
			continue
		}
		if env.Target != "" && env.Target != ep.id {
			continue
		}
		// Peers of our own role are not our business.
		if env.Role != ep.role.Opposite() {
			continue
		}

		ep.msink.IncrCounterWithLabels(
			MetricTvioMessageInCount, 1,
			append(slices.Clip(ep.labels), LabelKind.M(env.Kind.String())),
		)

		switch env.Kind {
		case wire.KindAnnounce:
			ep.handleAnnounce(topic, env)
		case wire.KindWithdraw:
			ep.handleWithdraw(topic, env)
		default:
			ep.deliver(topic, env)
		}
	}
}

func (ep *endpoint) handleAnnounce(topic string, env *wire.Envelope) {
	fresh, joined := ep.dir.record(topic, env.Sender, time.Now())
	if env.Hello {
		ep.publish(topic, &wire.Envelope{Kind: wire.KindAnnounce})
	}
	if joined {
		ep.logger.Info("peer connected", LabelPeer.L(env.Sender))
		ep.msink.IncrCounterWithLabels(MetricTvioPeerJoinCount, 1, ep.labels)
	}
	if fresh {
		if ep.joined != nil {
			ep.joined(topic, env.Sender)
		}
		ep.signal.Notify()
	}
}

func (ep *endpoint) handleWithdraw(topic string, env *wire.Envelope) {
	removed, left := ep.dir.forget(topic, env.Sender)
	if left {
		ep.logger.Info("peer disconnected", LabelPeer.L(env.Sender))
		ep.msink.IncrCounterWithLabels(MetricTvioPeerLeaveCount, 1, ep.labels)
	}
	if removed {
		ep.signal.Notify()
	}
}

func (ep *endpoint) send() {
	defer ep.wg.Done()
	for {
		out, err := ep.outbox.Pop(context.Background())
		if err != nil {
			return
		}

		payload := out.env.Marshal(nil)
		ctx, cancel := context.WithTimeout(context.Background(), ep.cfg.publishTimeout)
		err = ep.ps.Publish(ctx, out.topic, payload)
		cancel()
		if err != nil {
			ep.logger.Warn(
				"failed to publish",
				LabelTopic.L(out.topic),
				LabelKind.L(out.env.Kind.String()),
				LabelError.L(err),
			)
			ep.msink.IncrCounterWithLabels(MetricTvioPublishErrorCount, 1, ep.labels)
			continue
		}
		ep.msink.IncrCounterWithLabels(MetricTvioMessageOutCount, 1, ep.labels)
		ep.msink.IncrCounterWithLabels(MetricTvioMessageOutBytes, float32(len(payload)), ep.labels)
	}
}

func (ep *endpoint) heartbeat() {
	defer ep.wg.Done()
	ticker := time.NewTicker(ep.cfg.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ep.closeCh:
			return
		case now := <-ticker.C:
			for _, topic := range ep.topics {
				ep.publish(topic, &wire.Envelope{Kind: wire.KindAnnounce})
			}
			left := ep.dir.expire(now.Add(-ep.cfg.peerTimeout))
			for _, peer := range left {
				ep.logger.Info("peer expired", LabelPeer.L(peer))
				ep.msink.IncrCounterWithLabels(MetricTvioPeerLeaveCount, 1, ep.labels)
			}
			if len(left) > 0 {
				ep.signal.Notify()
			}
		}
	}
}
