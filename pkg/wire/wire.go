// Package wire defines the envelope exchanged by Inputs and Outputs on the
// bus. Envelopes are encoded with the protobuf wire format so unknown fields
// from newer peers are skipped instead of rejected.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrInvalidFrame = errors.New("wire: invalid frame")
)

// Kind says what an envelope carries.
type Kind uint8

const (
	KindUnspecified Kind = iota
	// KindAnnounce advertises a live handle on a topic.
	KindAnnounce
	// KindWithdraw tells peers a handle is gone.
	KindWithdraw
	// KindRequest carries a call or trigger from an Input.
	KindRequest
	// KindResult carries a reply or an emitted result from an Output.
	KindResult
	// KindPropertyRequest asks Outputs for the current value of a property.
	KindPropertyRequest
	// KindPropertyValue answers a KindPropertyRequest.
	KindPropertyValue
	// KindPropertyChange notifies observers of a new property value.
	KindPropertyChange
)

func (k Kind) String() string {
	switch k {
	case KindAnnounce:
		return "announce"
	case KindWithdraw:
		return "withdraw"
	case KindRequest:
		return "request"
	case KindResult:
		return "result"
	case KindPropertyRequest:
		return "property_request"
	case KindPropertyValue:
		return "property_value"
	case KindPropertyChange:
		return "property_change"
	default:
		return "unspecified"
	}
}

type Role uint8

const (
	RoleUnspecified Role = iota
	RoleInput
	RoleOutput
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	default:
		return "unspecified"
	}
}

// Opposite returns the role a handle of role r talks to.
func (r Role) Opposite() Role {
	switch r {
	case RoleInput:
		return RoleOutput
	case RoleOutput:
		return RoleInput
	default:
		return RoleUnspecified
	}
}

// CallType tells how a request is routed and how its result is delivered.
type CallType uint8

const (
	CallTypeUnspecified CallType = iota
	// CallTypeCall is served by one Output and answered to the caller.
	CallTypeCall
	// CallTypeCallAll is served by every Output and answered to the caller.
	CallTypeCallAll
	// CallTypeTrigger is served by one Output and answered to listeners.
	CallTypeTrigger
	// CallTypeTriggerAll is served by every Output and answered to listeners.
	CallTypeTriggerAll
	// CallTypeEmit is a result published by an Output on its own.
	CallTypeEmit
)

func (c CallType) String() string {
	switch c {
	case CallTypeCall:
		return "call"
	case CallTypeCallAll:
		return "call_all"
	case CallTypeTrigger:
		return "trigger"
	case CallTypeTriggerAll:
		return "trigger_all"
	case CallTypeEmit:
		return "emit"
	default:
		return "unspecified"
	}
}

// Addressed reports whether results of this call type go back to the
// caller only.
func (c CallType) Addressed() bool {
	return c == CallTypeCall || c == CallTypeCallAll
}

// Broadcast reports whether requests of this call type are served by every
// Output rather than one.
func (c CallType) Broadcast() bool {
	return c == CallTypeCallAll || c == CallTypeTriggerAll
}

// Envelope is one message on the bus.
type Envelope struct {
	Kind   Kind
	Sender string
	Role   Role
	// Target is the UUID of the only handle that should process the
	// envelope. Empty means every subscriber of the topic.
	Target string
	// ID correlates requests, results and property exchanges.
	ID       string
	CallType CallType
	Function string
	Params   []byte
	Result   []byte
	Property string
	Value    []byte
	// Hello asks peers to announce themselves back.
	Hello bool
}

const (
	fieldKind protowire.Number = iota + 1
	fieldSender
	fieldRole
	fieldTarget
	fieldID
	fieldCallType
	fieldFunction
	fieldParams
	fieldResult
	fieldProperty
	fieldValue
	fieldHello
)

// Marshal appends the encoded envelope to b.
func (e *Envelope) Marshal(b []byte) []byte {
	b = appendVarint(b, fieldKind, uint64(e.Kind))
	b = appendString(b, fieldSender, e.Sender)
	b = appendVarint(b, fieldRole, uint64(e.Role))
	b = appendString(b, fieldTarget, e.Target)
	b = appendString(b, fieldID, e.ID)
	b = appendVarint(b, fieldCallType, uint64(e.CallType))
	b = appendString(b, fieldFunction, e.Function)
	b = appendBytes(b, fieldParams, e.Params)
	b = appendBytes(b, fieldResult, e.Result)
	b = appendString(b, fieldProperty, e.Property)
	b = appendBytes(b, fieldValue, e.Value)
	if e.Hello {
		b = appendVarint(b, fieldHello, 1)
	}
	return b
}

// Unmarshal decodes buf into a fresh Envelope. Byte fields are copied so the
// envelope does not alias buf.
func Unmarshal(buf []byte) (*Envelope, error) {
	e := &Envelope{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case typ == protowire.VarintType && isVarintField(num):
			v, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(m))
			}
			e.setVarint(num, v)
			n = m
		case typ == protowire.BytesType && isBytesField(num):
			v, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(m))
			}
			e.setBytes(num, v)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
			}
		}
		buf = buf[n:]
	}

	if e.Kind == KindUnspecified || e.Sender == "" {
		return nil, fmt.Errorf("%w: missing kind or sender", ErrInvalidFrame)
	}
	return e, nil
}

func isVarintField(num protowire.Number) bool {
	switch num {
	case fieldKind, fieldRole, fieldCallType, fieldHello:
		return true
	}
	return false
}

func isBytesField(num protowire.Number) bool {
	switch num {
	case fieldSender, fieldTarget, fieldID, fieldFunction, fieldParams, fieldResult, fieldProperty, fieldValue:
		return true
	}
	return false
}

func (e *Envelope) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldKind:
		e.Kind = Kind(v)
	case fieldRole:
		e.Role = Role(v)
	case fieldCallType:
		e.CallType = CallType(v)
	case fieldHello:
		e.Hello = v != 0
	}
}

func (e *Envelope) setBytes(num protowire.Number, v []byte) {
	switch num {
	case fieldSender:
		e.Sender = string(v)
	case fieldTarget:
		e.Target = string(v)
	case fieldID:
		e.ID = string(v)
	case fieldFunction:
		e.Function = string(v)
	case fieldParams:
		e.Params = clone(v)
	case fieldResult:
		e.Result = clone(v)
	case fieldProperty:
		e.Property = string(v)
	case fieldValue:
		e.Value = clone(v)
	}
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendBytes keeps empty-but-present payloads distinguishable from absent
// ones: a nil slice is skipped, an empty one is encoded.
func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
