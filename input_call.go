package tvio

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/raskyld/tvio/internal/fifo"
	"github.com/raskyld/tvio/pkg/wire"
)

type callResult struct {
	arrived bool
	params  []byte
}

// gather collects the results of a CallAll, one per responding Output.
type gather struct {
	responders map[string]struct{}
	results    fifo.Slot[[]byte]
}

// Call asks one connected Output to run function with params. The returned
// id is used to poll the result. When no Output is connected yet the call
// is held back and sent to the first one that shows up.
//
// A request the bus refuses, for instance one above the size limit of
// gossipbus, is only logged and counted: its result never arrives.
func (in *Input) Call(function string, params []byte) (string, error) {
	return in.request(function, params, wire.CallTypeCall)
}

// CallAll asks every connected Output to run function with params. Each
// Output answers at most once; answers are read with NextResultParams.
func (in *Input) CallAll(function string, params []byte) (string, error) {
	return in.request(function, params, wire.CallTypeCallAll)
}

// Trigger asks one connected Output to run function with params. Its
// result goes to the Inputs listening to function, not back to us.
func (in *Input) Trigger(function string, params []byte) error {
	_, err := in.request(function, params, wire.CallTypeTrigger)
	return err
}

// TriggerAll is Trigger served by every connected Output.
func (in *Input) TriggerAll(function string, params []byte) error {
	_, err := in.request(function, params, wire.CallTypeTriggerAll)
	return err
}

func (in *Input) request(function string, params []byte, callType wire.CallType) (string, error) {
	if err := in.guard(); err != nil {
		return "", err
	}
	defer in.lk.Unlock()

	topic, ok := in.iface.FunctionTopic(function)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidFunction, function)
	}

	id := in.cfg.ids.Generate()
	switch callType {
	case wire.CallTypeCall:
		in.results[id] = &callResult{}
	case wire.CallTypeCallAll:
		in.gathers[id] = &gather{responders: make(map[string]struct{})}
	}

	in.dispatch(topic, &wire.Envelope{
		Kind:     wire.KindRequest,
		ID:       id,
		CallType: callType,
		Function: function,
		Params:   slices.Clone(params),
	}, callType.Broadcast())

	in.msink.IncrCounterWithLabels(
		MetricTvioRequestCount, 1,
		append(slices.Clip(in.labels), LabelCallType.M(callType.String())),
	)
	return id, nil
}

// ResultAvailable reports whether the result of the Call id has arrived.
func (in *Input) ResultAvailable(id string) (bool, error) {
	if err := in.guard(); err != nil {
		return false, err
	}
	defer in.lk.Unlock()

	res, ok := in.results[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrInvalidResultID, id)
	}
	return res.arrived, nil
}

// ResultParams consumes the result of the Call id. A second retrieval fails
// with ErrInvalidResultID.
func (in *Input) ResultParams(id string) ([]byte, error) {
	if err := in.guard(); err != nil {
		return nil, err
	}
	defer in.lk.Unlock()

	res, ok := in.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResultID, id)
	}
	if !res.arrived {
		return nil, fmt.Errorf("%w: %s", ErrResultNotArrived, id)
	}
	delete(in.results, id)
	return res.params, nil
}

// WaitResult blocks until the result of the Call id arrives, then consumes
// it.
func (in *Input) WaitResult(ctx context.Context, id string) ([]byte, error) {
	for {
		changed := in.Changed()
		params, err := in.ResultParams(id)
		if !errors.Is(err, ErrResultNotArrived) {
			return params, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

func (in *Input) gatherOf(id string) (*gather, error) {
	g, ok := in.gathers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResultID, id)
	}
	return g, nil
}

// NextResultAvailable reports whether an answer to the CallAll id is
// waiting.
func (in *Input) NextResultAvailable(id string) (bool, error) {
	if err := in.guard(); err != nil {
		return false, err
	}
	defer in.lk.Unlock()

	g, err := in.gatherOf(id)
	if err != nil {
		return false, err
	}
	return g.results.Available(), nil
}

// NextResultParams returns the oldest unread answer to the CallAll id,
// without consuming it.
func (in *Input) NextResultParams(id string) ([]byte, error) {
	if err := in.guard(); err != nil {
		return nil, err
	}
	defer in.lk.Unlock()

	g, err := in.gatherOf(id)
	if err != nil {
		return nil, err
	}
	params, ok := g.results.Peek()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoResultAvailable, id)
	}
	return params, nil
}

// ClearNextResult consumes the oldest unread answer to the CallAll id.
func (in *Input) ClearNextResult(id string) error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	g, err := in.gatherOf(id)
	if err != nil {
		return err
	}
	g.results.Clear()
	return nil
}

// ClearRequest forgets the CallAll id. Answers arriving later are dropped.
func (in *Input) ClearRequest(id string) error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	if _, err := in.gatherOf(id); err != nil {
		return err
	}
	delete(in.gathers, id)
	return nil
}
