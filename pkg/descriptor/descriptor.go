// Package descriptor models the interface a handle declares and parses the
// descriptor text it is declared with:
//
//	# comments and blank lines are ignored
//	func SayHello(Greeting string) (Answer string)
//	property Mood: string
//	tag t1
//
// "function" is accepted as an alias of "func". Parameter names are kept for
// documentation only: two declarations match when names of the members and
// the types of their parameters agree.
package descriptor

import (
	"slices"
	"strings"
)

// TopicPrefix starts every topic derived from an Interface.
const TopicPrefix = "tvio"

type Param struct {
	Name string
	Type string
}

type Function struct {
	Name    string
	Params  []Param
	Returns []Param
}

// Signature identifies the function regardless of its parameter names.
func (f Function) Signature() string {
	return f.Name + "(" + joinTypes(f.Params) + ")(" + joinTypes(f.Returns) + ")"
}

func (f Function) String() string {
	var b strings.Builder
	b.WriteString("func ")
	b.WriteString(f.Name)
	b.WriteString("(")
	b.WriteString(joinParams(f.Params))
	b.WriteString(")")
	if len(f.Returns) > 0 {
		b.WriteString(" (")
		b.WriteString(joinParams(f.Returns))
		b.WriteString(")")
	}
	return b.String()
}

type Property struct {
	Name string
	Type string
}

func (p Property) Signature() string {
	return p.Name + ":" + p.Type
}

func (p Property) String() string {
	return "property " + p.Name + ": " + p.Type
}

// Interface is the parsed form of a descriptor. It is immutable once
// returned by Parse.
type Interface struct {
	Functions  []Function
	Properties []Property
	Tag        string
}

func (i *Interface) Function(name string) (Function, bool) {
	for _, f := range i.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

func (i *Interface) Property(name string) (Property, bool) {
	for _, p := range i.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// FunctionTopic returns the bus topic carrying traffic for the function
// called name.
func (i *Interface) FunctionTopic(name string) (string, bool) {
	f, ok := i.Function(name)
	if !ok {
		return "", false
	}
	return i.topic("func", f.Signature()), true
}

// PropertyTopic returns the bus topic carrying traffic for the property
// called name.
func (i *Interface) PropertyTopic(name string) (string, bool) {
	p, ok := i.Property(name)
	if !ok {
		return "", false
	}
	return i.topic("prop", p.Signature()), true
}

// Topics lists the topic of every member, functions first, in declaration
// order.
func (i *Interface) Topics() []string {
	topics := make([]string, 0, len(i.Functions)+len(i.Properties))
	for _, f := range i.Functions {
		topics = append(topics, i.topic("func", f.Signature()))
	}
	for _, p := range i.Properties {
		topics = append(topics, i.topic("prop", p.Signature()))
	}
	return topics
}

func (i *Interface) topic(kind, signature string) string {
	tag := i.Tag
	if tag == "" {
		tag = "-"
	}
	return TopicPrefix + "/" + tag + "/" + kind + "/" + signature
}

// Compatible reports whether handles of both interfaces connect: they
// share at least one topic, so the same tag and one function or property
// with the same signature. The bus only ever compares topics; this is the
// same rule stated on interfaces.
func (i *Interface) Compatible(other *Interface) bool {
	if other == nil {
		return false
	}
	theirs := other.Topics()
	for _, topic := range i.Topics() {
		if slices.Contains(theirs, topic) {
			return true
		}
	}
	return false
}

// String renders the canonical descriptor text. Parsing it yields an equal
// Interface.
func (i *Interface) String() string {
	lines := make([]string, 0, len(i.Functions)+len(i.Properties)+1)
	for _, f := range i.Functions {
		lines = append(lines, f.String())
	}
	for _, p := range i.Properties {
		lines = append(lines, p.String())
	}
	if i.Tag != "" {
		lines = append(lines, "tag "+i.Tag)
	}
	return strings.Join(lines, "\n")
}

// Equal compares two interfaces member by member, parameter names included.
func (i *Interface) Equal(other *Interface) bool {
	if other == nil {
		return false
	}
	return i.Tag == other.Tag &&
		slices.EqualFunc(i.Functions, other.Functions, func(a, b Function) bool {
			return a.Name == b.Name && slices.Equal(a.Params, b.Params) && slices.Equal(a.Returns, b.Returns)
		}) &&
		slices.Equal(i.Properties, other.Properties)
}

func joinTypes(params []Param) string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return strings.Join(types, ",")
}

func joinParams(params []Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Name + " " + p.Type
	}
	return strings.Join(parts, ", ")
}
