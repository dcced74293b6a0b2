package tvio

import (
	"fmt"
	"sync"

	"github.com/raskyld/tvio/internal/fifo"
	"github.com/raskyld/tvio/pkg/descriptor"
	"github.com/raskyld/tvio/pkg/wire"
)

// Input invokes the functions and reads the properties of the Outputs it
// is connected to.
//
// Every method is non-blocking and safe for concurrent use. Results are
// buffered until the caller polls and consumes them. Once the Input is
// removed every method fails with ErrInvalidInput.
type Input struct {
	*endpoint

	lk     sync.Mutex
	closed bool

	results map[string]*callResult
	gathers map[string]*gather

	// requests published while no Output was there to take them.
	parked []parked

	listening map[string]struct{}
	listen    fifo.Slot[ListenResult]

	props     map[string]*propertyState
	observing map[string]struct{}
	changes   fifo.Slot[PropertyChange]
}

type parked struct {
	topic string
	env   *wire.Envelope
	// broadcast envelopes are not addressed to a single Output on flush.
	broadcast bool
}

func newInput(rt *Runtime, handle int, iface *descriptor.Interface) *Input {
	in := &Input{
		endpoint:  newEndpoint(rt, handle, wire.RoleInput, iface),
		results:   make(map[string]*callResult),
		gathers:   make(map[string]*gather),
		listening: make(map[string]struct{}),
		props:     make(map[string]*propertyState),
		observing: make(map[string]struct{}),
	}
	in.deliver = in.handleEnvelope
	in.joined = in.flush
	return in
}

func (in *Input) close() error {
	in.lk.Lock()
	if in.closed {
		in.lk.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidInput, in.handle)
	}
	in.closed = true
	in.lk.Unlock()

	in.endpoint.close()

	in.lk.Lock()
	defer in.lk.Unlock()
	clear(in.results)
	clear(in.gathers)
	clear(in.parked)
	in.parked = nil
	in.listen.Reset()
	clear(in.props)
	in.changes.Reset()
	return nil
}

// guard locks the Input and fails if it was removed. Callers MUST unlock
// only when it returns nil.
func (in *Input) guard() error {
	in.lk.Lock()
	if in.closed {
		in.lk.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidInput, in.handle)
	}
	return nil
}

// dispatch sends a request to the Outputs of topic. Single-target requests
// go to one live Output; when there is none, the request waits for the
// first Output announcing itself on topic.
func (in *Input) dispatch(topic string, env *wire.Envelope, broadcast bool) {
	peer := in.target(topic)
	if peer == "" {
		in.parked = append(in.parked, parked{topic: topic, env: env, broadcast: broadcast})
		in.logger.Debug(
			"no output yet, request parked",
			LabelTopic.L(topic),
			LabelKind.L(env.Kind.String()),
			LabelRequest.L(env.ID),
		)
		return
	}
	if !broadcast {
		env.Target = peer
	}
	in.publish(topic, env)
}

// flush publishes the requests parked on topic now that peer is there,
// and asks it for the property updates still outstanding.
func (in *Input) flush(topic, peer string) {
	in.lk.Lock()
	defer in.lk.Unlock()
	if in.closed {
		return
	}
	in.resendUpdates(topic, peer)
	if len(in.parked) == 0 {
		return
	}

	kept := in.parked[:0]
	for _, p := range in.parked {
		if p.topic != topic {
			kept = append(kept, p)
			continue
		}
		if !p.broadcast {
			p.env.Target = peer
		}
		in.publish(p.topic, p.env)
	}
	clear(in.parked[len(kept):])
	in.parked = kept
}

func (in *Input) handleEnvelope(topic string, env *wire.Envelope) {
	in.lk.Lock()
	defer in.lk.Unlock()
	if in.closed {
		return
	}

	var changed bool
	switch env.Kind {
	case wire.KindResult:
		changed = in.handleResult(env)
	case wire.KindPropertyValue:
		changed = in.handlePropertyValue(env)
	case wire.KindPropertyChange:
		changed = in.handlePropertyChange(env)
	default:
		in.logger.Debug("unexpected envelope", LabelTopic.L(topic), LabelKind.L(env.Kind.String()))
	}

	if changed {
		in.signal.Notify()
	} else {
		in.msink.IncrCounterWithLabels(MetricTvioMessageDropCount, 1, in.labels)
	}
}

func (in *Input) handleResult(env *wire.Envelope) bool {
	switch env.CallType {
	case wire.CallTypeCall:
		res, ok := in.results[env.ID]
		if !ok || res.arrived || env.Target != in.id {
			return false
		}
		res.arrived = true
		res.params = env.Result
		return true

	case wire.CallTypeCallAll:
		g, ok := in.gathers[env.ID]
		if !ok || env.Target != in.id {
			return false
		}
		if _, dup := g.responders[env.Sender]; dup {
			return false
		}
		g.responders[env.Sender] = struct{}{}
		g.results.Push(env.Result)
		return true

	case wire.CallTypeTrigger, wire.CallTypeTriggerAll, wire.CallTypeEmit:
		if _, ok := in.listening[env.Function]; !ok {
			return false
		}
		in.listen.Push(ListenResult{
			ID:            env.ID,
			Function:      env.Function,
			RequestParams: env.Params,
			Params:        env.Result,
		})
		return true
	}
	return false
}
