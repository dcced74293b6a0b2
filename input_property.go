package tvio

import (
	"fmt"

	"github.com/raskyld/tvio/internal/fifo"
	"github.com/raskyld/tvio/pkg/wire"
)

// PropertyChange is a new property value pushed by an Output.
type PropertyChange struct {
	Property string
	Value    []byte
}

// propertyState goes unknown -> fetching -> known. pending holds the id of
// the outstanding update request, updates the fetched values not read yet.
type propertyState struct {
	known   bool
	value   []byte
	pending string
	updates fifo.Slot[[]byte]
}

func (in *Input) propertyState(property string) (*propertyState, error) {
	if _, ok := in.iface.Property(property); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProperty, property)
	}
	st, ok := in.props[property]
	if !ok {
		st = &propertyState{}
		in.props[property] = st
	}
	return st, nil
}

// UpdateProperty asks the connected Outputs for the current value of
// property. It does nothing while a previous update is outstanding.
func (in *Input) UpdateProperty(property string) error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	st, err := in.propertyState(property)
	if err != nil {
		return err
	}
	if st.pending != "" {
		return nil
	}

	topic, _ := in.iface.PropertyTopic(property)
	st.pending = in.cfg.ids.Generate()
	// Outputs showing up later are asked by resendUpdates.
	if in.target(topic) != "" {
		in.publish(topic, &wire.Envelope{
			Kind:     wire.KindPropertyRequest,
			ID:       st.pending,
			Property: property,
		})
	}
	return nil
}

// resendUpdates asks peer, new on topic, for every update of the property
// of topic still outstanding. The Output that was asked first may be gone
// or have no value yet: whichever answers first wins.
func (in *Input) resendUpdates(topic, peer string) {
	for property, st := range in.props {
		if st.pending == "" {
			continue
		}
		if propTopic, _ := in.iface.PropertyTopic(property); propTopic != topic {
			continue
		}
		in.publish(topic, &wire.Envelope{
			Kind:     wire.KindPropertyRequest,
			Target:   peer,
			ID:       st.pending,
			Property: property,
		})
	}
}

// PropertyUpdateAvailable reports whether a fetched value of property is
// waiting to be read.
func (in *Input) PropertyUpdateAvailable(property string) (bool, error) {
	if err := in.guard(); err != nil {
		return false, err
	}
	defer in.lk.Unlock()

	st, err := in.propertyState(property)
	if err != nil {
		return false, err
	}
	return st.updates.Available(), nil
}

// PropertyUpdate consumes the fetched value of property.
func (in *Input) PropertyUpdate(property string) ([]byte, error) {
	if err := in.guard(); err != nil {
		return nil, err
	}
	defer in.lk.Unlock()

	st, err := in.propertyState(property)
	if err != nil {
		return nil, err
	}
	value, ok := st.updates.Take()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoUpdate, property)
	}
	return value, nil
}

// Property returns the last value of property that reached the Input,
// through an update or an observed change. It never touches the bus.
func (in *Input) Property(property string) ([]byte, error) {
	if err := in.guard(); err != nil {
		return nil, err
	}
	defer in.lk.Unlock()

	st, err := in.propertyState(property)
	if err != nil {
		return nil, err
	}
	if !st.known {
		return nil, fmt.Errorf("%w: %s was never fetched", ErrInvalidProperty, property)
	}
	return st.value, nil
}

// StartObservation subscribes the Input to the changes of property.
func (in *Input) StartObservation(property string) error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	if _, ok := in.iface.Property(property); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidProperty, property)
	}
	in.observing[property] = struct{}{}
	return nil
}

func (in *Input) StopObservation(property string) error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	if _, ok := in.iface.Property(property); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidProperty, property)
	}
	delete(in.observing, property)
	return nil
}

func (in *Input) ChangeAvailable() (bool, error) {
	if err := in.guard(); err != nil {
		return false, err
	}
	defer in.lk.Unlock()
	return in.changes.Available(), nil
}

// Change returns the oldest uncleared change without consuming it.
func (in *Input) Change() (PropertyChange, error) {
	if err := in.guard(); err != nil {
		return PropertyChange{}, err
	}
	defer in.lk.Unlock()

	change, ok := in.changes.Peek()
	if !ok {
		return PropertyChange{}, ErrNoUpdate
	}
	return change, nil
}

func (in *Input) ChangeProperty() (string, error) {
	change, err := in.Change()
	return change.Property, err
}

func (in *Input) ChangeValue() ([]byte, error) {
	change, err := in.Change()
	return change.Value, err
}

// ClearChange consumes the visible change and exposes the next one.
func (in *Input) ClearChange() error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	in.changes.Clear()
	return nil
}

func (in *Input) handlePropertyValue(env *wire.Envelope) bool {
	st, ok := in.props[env.Property]
	if !ok || st.pending == "" || st.pending != env.ID {
		return false
	}
	st.pending = ""
	st.known = true
	st.value = env.Value
	st.updates.Push(env.Value)
	return true
}

func (in *Input) handlePropertyChange(env *wire.Envelope) bool {
	if _, ok := in.observing[env.Property]; !ok {
		return false
	}
	in.changes.Push(PropertyChange{Property: env.Property, Value: env.Value})

	if st, err := in.propertyState(env.Property); err == nil {
		st.known = true
		st.value = env.Value
	}
	return true
}
