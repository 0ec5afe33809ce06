package hl7

import (
	"fmt"
	"strings"
)

// Node is one element of a parsed tree: either a Leaf or one of the
// container types (*File, *Batch, *Message, *Segment, *Field, *Repetition,
// *Component).
type Node interface {
	String() string
	Clone() Node
	isNode()
}

// Leaf is an uninterpreted string value at the bottom of the tree. Values
// are stored exactly as they appear on the wire, escape sequences included.
type Leaf string

func (l Leaf) String() string { return string(l) }
func (l Leaf) Clone() Node    { return l }
func (Leaf) isNode()          {}

// Env is the context every container carries: the separator table it joins
// with, the factory it grows children through, and where unescape
// diagnostics go.
type Env struct {
	Delimiters  Delimiters
	Factory     Factory
	Diagnostics DiagnosticSink
}

// DefaultEnv returns an Env with the default delimiters and factory.
func DefaultEnv() Env {
	return Env{Delimiters: DefaultDelimiters(), Factory: DefaultFactory{}}
}

func (e Env) factory() Factory {
	if e.Factory == nil {
		return DefaultFactory{}
	}
	return e.Factory
}

func (e Env) withDefaults() Env {
	if e.Factory == nil {
		e.Factory = DefaultFactory{}
	}
	if e.Delimiters == (Delimiters{}) {
		e.Delimiters = DefaultDelimiters()
	}
	return e
}

// Container holds the ordered children shared by every non-leaf node.
// Index arguments are 1-based, matching HL7 numbering; Segment overrides
// this so that field 0 is the segment identifier.
type Container struct {
	children []Node
	level    Level
	env      Env
}

func newContainer(level Level, env Env, children []Node) Container {
	env = env.withDefaults()
	return Container{children: children, level: level, env: env}
}

func (*Container) isNode() {}

// Level reports the depth of the container.
func (c *Container) Level() Level { return c.level }

// Env returns the context the container was built with.
func (c *Container) Env() Env { return c.env }

// Delimiters returns the separator table of the container.
func (c *Container) Delimiters() Delimiters { return c.env.Delimiters }

// Separator returns the byte joining this container's children.
func (c *Container) Separator() byte { return c.env.Delimiters.Separator(c.level) }

// Len returns the number of children.
func (c *Container) Len() int { return len(c.children) }

// Children returns the underlying child slice. Mutating it mutates the tree.
func (c *Container) Children() []Node { return c.children }

// At returns the i-th child counting from 1, or nil when out of range.
func (c *Container) At(i int) Node {
	return c.index(i - 1)
}

// SetAt replaces the i-th child counting from 1.
func (c *Container) SetAt(i int, n Node) error {
	return c.replace(i-1, n)
}

// Append adds children at the end.
func (c *Container) Append(nodes ...Node) {
	c.children = append(c.children, nodes...)
}

func (c *Container) index(idx int) Node {
	if idx < 0 || idx >= len(c.children) {
		return nil
	}
	return c.children[idx]
}

func (c *Container) replace(idx int, n Node) error {
	if idx < 0 || idx >= len(c.children) {
		return fmt.Errorf("%w: %s has %d children", ErrIndexOutOfRange, c.level, len(c.children))
	}
	c.children[idx] = n
	return nil
}

func (c *Container) String() string {
	return joinNodes(c.children, c.Separator())
}

// cloneChildren deep copies the children. Clone methods hand the copy to
// the env's factory so that custom container types survive a clone.
func (c *Container) cloneChildren() []Node {
	children := make([]Node, len(c.children))
	for i, child := range c.children {
		children[i] = child.Clone()
	}
	return children
}

func joinNodes(nodes []Node, sep byte) string {
	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(n.String())
	}
	return b.String()
}

// Field is one field of a segment. Its children are repetitions, or a
// single Leaf when the field held no repetition-level separators.
type Field struct{ Container }

func (f *Field) Clone() Node { return f.env.factory().NewField(f.env, f.cloneChildren()) }

// Repetition is one occurrence of a repeating field.
type Repetition struct{ Container }

func (r *Repetition) Clone() Node {
	return r.env.factory().NewRepetition(r.env, r.cloneChildren())
}

// Component is one component of a repetition. Its children are leaves,
// one per subcomponent.
type Component struct{ Container }

func (c *Component) Clone() Node {
	return c.env.factory().NewComponent(c.env, c.cloneChildren())
}
