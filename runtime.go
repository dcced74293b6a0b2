package tvio

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/tvio/pkg/bus"
	"github.com/raskyld/tvio/pkg/descriptor"
)

// Runtime is the registry of the Inputs and Outputs of a process. Handles
// are small integers, unique among live handles of the same kind.
type Runtime struct {
	config config
	logger *slog.Logger
	ps     bus.PubSub

	inputs  *handleTable[*Input]
	outputs *handleTable[*Output]

	// Creations hold the read side so they run concurrently, Shutdown holds
	// the write side so no handle is created behind its back.
	lk       sync.RWMutex
	shutdown bool
}

// New creates a Runtime on top of ps. The Runtime does not own ps: close it
// after Shutdown.
func New(ps bus.PubSub, opts ...Option) (*Runtime, error) {
	if ps == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrInvalidCfg)
	}

	rt := &Runtime{
		config:  defaultConfig(),
		ps:      ps,
		inputs:  newHandleTable[*Input](),
		outputs: newHandleTable[*Output](),
	}

	for _, opt := range opts {
		err := opt(&rt.config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	if rt.config.peerTimeout <= rt.config.heartbeat {
		return nil, fmt.Errorf("%w: peer timeout %s must exceed heartbeat %s",
			ErrInvalidCfg, rt.config.peerTimeout, rt.config.heartbeat)
	}

	// Logging implementations.
	if rt.config.logHandler != nil {
		rt.logger = slog.New(rt.config.logHandler)
	} else {
		rt.logger = slog.Default()
	}

	// Metrics implementations.
	if rt.config.msink == nil {
		rt.config.msink = metrics.Default()
	}

	if rt.config.ids == nil {
		rt.config.ids = UUIDv7Generator{}
	}

	return rt, nil
}

// CheckDescriptor reports whether desc would be accepted by NewInput and
// NewOutput.
func CheckDescriptor(desc string) error {
	if err := descriptor.Check(desc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	return nil
}

// NewInput parses desc, subscribes to the topics of its interface and
// returns the handle of the new Input.
func (rt *Runtime) NewInput(desc string) (int, error) {
	rt.lk.RLock()
	defer rt.lk.RUnlock()
	if rt.shutdown {
		return -1, fmt.Errorf("%w: runtime is shut down", ErrNetwork)
	}

	iface, err := descriptor.Parse(desc)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}

	h := rt.inputs.reserve()
	in := newInput(rt, h, iface)
	if err := in.start(); err != nil {
		rt.inputs.release(h)
		return -1, err
	}
	rt.inputs.store(h, in)
	rt.gauge()

	in.logger.Info("input created")
	return h, nil
}

// NewOutput parses desc, subscribes to the topics of its interface and
// returns the handle of the new Output.
func (rt *Runtime) NewOutput(desc string) (int, error) {
	rt.lk.RLock()
	defer rt.lk.RUnlock()
	if rt.shutdown {
		return -1, fmt.Errorf("%w: runtime is shut down", ErrNetwork)
	}

	iface, err := descriptor.Parse(desc)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}

	h := rt.outputs.reserve()
	out := newOutput(rt, h, iface)
	if err := out.start(); err != nil {
		rt.outputs.release(h)
		return -1, err
	}
	rt.outputs.store(h, out)
	rt.gauge()

	out.logger.Info("output created")
	return h, nil
}

// Input returns the Input behind h.
func (rt *Runtime) Input(h int) (*Input, error) {
	in, ok := rt.inputs.get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInput, h)
	}
	return in, nil
}

// Output returns the Output behind h.
func (rt *Runtime) Output(h int) (*Output, error) {
	out, ok := rt.outputs.get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOutput, h)
	}
	return out, nil
}

// RemoveInput withdraws the Input from the bus and drops everything it
// buffered. The handle number is reused only once this returns.
func (rt *Runtime) RemoveInput(h int) error {
	in, ok := rt.inputs.get(h)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidInput, h)
	}
	if err := in.close(); err != nil {
		return err
	}
	rt.inputs.release(h)
	rt.gauge()
	in.logger.Info("input removed")
	return nil
}

// RemoveOutput withdraws the Output from the bus and drops every pending
// request. The handle number is reused only once this returns.
func (rt *Runtime) RemoveOutput(h int) error {
	out, ok := rt.outputs.get(h)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidOutput, h)
	}
	if err := out.close(); err != nil {
		return err
	}
	rt.outputs.release(h)
	rt.gauge()
	out.logger.Info("output removed")
	return nil
}

// Shutdown removes every handle. Further creations fail.
func (rt *Runtime) Shutdown() error {
	rt.lk.Lock()
	defer rt.lk.Unlock()
	if rt.shutdown {
		return nil
	}
	rt.shutdown = true

	start := time.Now()
	rt.logger.Info("shutting down...")

	var errs []error
	for _, h := range rt.inputs.handles() {
		if err := rt.RemoveInput(h); err != nil && !errors.Is(err, ErrInvalidInput) {
			errs = append(errs, err)
		}
	}
	for _, h := range rt.outputs.handles() {
		if err := rt.RemoveOutput(h); err != nil && !errors.Is(err, ErrInvalidOutput) {
			errs = append(errs, err)
		}
	}

	rt.logger.Info("shutdown: completed", LabelDuration.L(time.Since(start)))
	return errors.Join(errs...)
}

func (rt *Runtime) gauge() {
	rt.config.msink.SetGaugeWithLabels(
		MetricTvioHandleCount,
		float32(rt.inputs.len()),
		slices.Concat(rt.config.metricLabels, []metrics.Label{LabelRole.M("input")}),
	)
	rt.config.msink.SetGaugeWithLabels(
		MetricTvioHandleCount,
		float32(rt.outputs.len()),
		slices.Concat(rt.config.metricLabels, []metrics.Label{LabelRole.M("output")}),
	)
}
