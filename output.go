package tvio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/raskyld/tvio/pkg/descriptor"
	"github.com/raskyld/tvio/pkg/wire"
)

// Output serves the requests of the Inputs connected to it and owns the
// values of its properties.
//
// Requests queue up until the caller takes them with NextRequestID. A
// request stays addressable by id until it is replied to.
type Output struct {
	*endpoint

	lk     sync.Mutex
	closed bool

	// ids of requests not taken yet, oldest first.
	queue    []string
	requests map[string]*request
	// ids already replied to, kept for the life of the Output so that a
	// redelivered request is neither served nor answered twice.
	replied  map[string]struct{}

	values  map[string][]byte
	waiting map[string][]updateWaiter
}

type request struct {
	function string
	params   []byte
	callType wire.CallType
	origin   string
}

// updateWaiter is an Input that asked for a property we had no value for.
type updateWaiter struct {
	input string
	id    string
}

func newOutput(rt *Runtime, handle int, iface *descriptor.Interface) *Output {
	out := &Output{
		endpoint: newEndpoint(rt, handle, wire.RoleOutput, iface),
		requests: make(map[string]*request),
		replied:  make(map[string]struct{}),
		values:   make(map[string][]byte),
		waiting:  make(map[string][]updateWaiter),
	}
	out.deliver = out.handleEnvelope
	return out
}

func (out *Output) close() error {
	out.lk.Lock()
	if out.closed {
		out.lk.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidOutput, out.handle)
	}
	out.closed = true
	out.lk.Unlock()

	out.endpoint.close()

	out.lk.Lock()
	defer out.lk.Unlock()
	out.queue = nil
	clear(out.requests)
	clear(out.replied)
	clear(out.values)
	clear(out.waiting)
	return nil
}

func (out *Output) guard() error {
	out.lk.Lock()
	if out.closed {
		out.lk.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidOutput, out.handle)
	}
	return nil
}

// RequestAvailable reports whether a request is waiting to be taken.
func (out *Output) RequestAvailable() (bool, error) {
	if err := out.guard(); err != nil {
		return false, err
	}
	defer out.lk.Unlock()
	return len(out.queue) > 0, nil
}

// NextRequestID takes the oldest waiting request.
func (out *Output) NextRequestID() (string, error) {
	if err := out.guard(); err != nil {
		return "", err
	}
	defer out.lk.Unlock()

	if len(out.queue) == 0 {
		return "", ErrNoRequestAvailable
	}
	id := out.queue[0]
	out.queue[0] = ""
	out.queue = out.queue[1:]
	return id, nil
}

// WaitRequest blocks until a request is waiting, then takes it.
func (out *Output) WaitRequest(ctx context.Context) (string, error) {
	for {
		changed := out.Changed()
		id, err := out.NextRequestID()
		if !errors.Is(err, ErrNoRequestAvailable) {
			return id, err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-changed:
		}
	}
}

func (out *Output) request(id string) (*request, error) {
	req, ok := out.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequestID, id)
	}
	return req, nil
}

func (out *Output) RequestFunction(id string) (string, error) {
	if err := out.guard(); err != nil {
		return "", err
	}
	defer out.lk.Unlock()

	req, err := out.request(id)
	if err != nil {
		return "", err
	}
	return req.function, nil
}

func (out *Output) RequestParams(id string) ([]byte, error) {
	if err := out.guard(); err != nil {
		return nil, err
	}
	defer out.lk.Unlock()

	req, err := out.request(id)
	if err != nil {
		return nil, err
	}
	return req.params, nil
}

// RequestKind tells how the request was issued, which decides who gets
// the reply.
func (out *Output) RequestKind(id string) (wire.CallType, error) {
	if err := out.guard(); err != nil {
		return wire.CallTypeUnspecified, err
	}
	defer out.lk.Unlock()

	req, err := out.request(id)
	if err != nil {
		return wire.CallTypeUnspecified, err
	}
	return req.callType, nil
}

// Reply answers the request id with params. Calls are answered to their
// caller, triggers to the Inputs listening to the function. A request is
// replied to once.
func (out *Output) Reply(id string, params []byte) error {
	if err := out.guard(); err != nil {
		return err
	}
	defer out.lk.Unlock()

	req, err := out.request(id)
	if err != nil {
		return err
	}
	delete(out.requests, id)
	out.replied[id] = struct{}{}
	if idx := slices.Index(out.queue, id); idx >= 0 {
		out.queue = slices.Delete(out.queue, idx, idx+1)
	}

	topic, _ := out.iface.FunctionTopic(req.function)
	env := &wire.Envelope{
		Kind:     wire.KindResult,
		ID:       id,
		CallType: req.callType,
		Function: req.function,
		Params:   req.params,
		Result:   slices.Clone(params),
	}
	if req.callType.Addressed() {
		env.Target = req.origin
	}
	out.publish(topic, env)

	out.msink.IncrCounterWithLabels(
		MetricTvioReplyCount, 1,
		append(slices.Clip(out.labels), LabelCallType.M(req.callType.String())),
	)
	return nil
}

// Emit publishes a result of function nobody asked for, to the Inputs
// listening to it.
func (out *Output) Emit(function string, in, params []byte) error {
	if err := out.guard(); err != nil {
		return err
	}
	defer out.lk.Unlock()

	topic, ok := out.iface.FunctionTopic(function)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidFunction, function)
	}
	out.publish(topic, &wire.Envelope{
		Kind:     wire.KindResult,
		ID:       out.cfg.ids.Generate(),
		CallType: wire.CallTypeEmit,
		Function: function,
		Params:   slices.Clone(in),
		Result:   slices.Clone(params),
	})
	return nil
}

// SetProperty stores value, notifies observers and answers the Inputs
// waiting for a first value.
func (out *Output) SetProperty(property string, value []byte) error {
	if err := out.guard(); err != nil {
		return err
	}
	defer out.lk.Unlock()

	topic, ok := out.iface.PropertyTopic(property)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidProperty, property)
	}
	value = slices.Clone(value)
	out.values[property] = value

	out.publish(topic, &wire.Envelope{
		Kind:     wire.KindPropertyChange,
		Property: property,
		Value:    value,
	})
	for _, w := range out.waiting[property] {
		out.publish(topic, &wire.Envelope{
			Kind:     wire.KindPropertyValue,
			Target:   w.input,
			ID:       w.id,
			Property: property,
			Value:    value,
		})
	}
	delete(out.waiting, property)
	return nil
}

// Property returns the local value of property.
func (out *Output) Property(property string) ([]byte, error) {
	if err := out.guard(); err != nil {
		return nil, err
	}
	defer out.lk.Unlock()

	if _, ok := out.iface.Property(property); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProperty, property)
	}
	value, ok := out.values[property]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoUpdate, property)
	}
	return value, nil
}

func (out *Output) handleEnvelope(topic string, env *wire.Envelope) {
	out.lk.Lock()
	defer out.lk.Unlock()
	if out.closed {
		return
	}

	switch env.Kind {
	case wire.KindRequest:
		if _, dup := out.requests[env.ID]; dup || env.ID == "" {
			return
		}
		if _, done := out.replied[env.ID]; done {
			out.logger.Debug("request already replied to", LabelRequest.L(env.ID))
			return
		}
		if _, ok := out.iface.Function(env.Function); !ok {
			out.logger.Debug("request for an unknown function", LabelFunction.L(env.Function))
			return
		}
		out.requests[env.ID] = &request{
			function: env.Function,
			params:   env.Params,
			callType: env.CallType,
			origin:   env.Sender,
		}
		out.queue = append(out.queue, env.ID)
		out.signal.Notify()

	case wire.KindPropertyRequest:
		value, ok := out.values[env.Property]
		if !ok {
			if slices.ContainsFunc(out.waiting[env.Property], func(w updateWaiter) bool { return w.id == env.ID }) {
				return
			}
			out.waiting[env.Property] = append(out.waiting[env.Property], updateWaiter{
				input: env.Sender,
				id:    env.ID,
			})
			return
		}
		out.publish(topic, &wire.Envelope{
			Kind:     wire.KindPropertyValue,
			Target:   env.Sender,
			ID:       env.ID,
			Property: env.Property,
			Value:    value,
		})

	default:
		out.logger.Debug("unexpected envelope", LabelTopic.L(topic), LabelKind.L(env.Kind.String()))
	}
}
