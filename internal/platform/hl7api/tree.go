package hl7api

import (
	"github.com/ehr/hl7/pkg/hl7"
)

// Tree is the JSON and YAML view of a parsed node. A container holding a
// single leaf collapses to its Value.
type Tree struct {
	Kind     string `json:"kind" yaml:"kind"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	Header   *Tree  `json:"header,omitempty" yaml:"header,omitempty"`
	Trailer  *Tree  `json:"trailer,omitempty" yaml:"trailer,omitempty"`
	Children []Tree `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewTree converts n into a Tree.
func NewTree(n hl7.Node) Tree {
	switch v := n.(type) {
	case *hl7.File:
		t := Tree{Kind: "file", Header: segmentTree(v.Header()), Trailer: segmentTree(v.Trailer())}
		for _, b := range v.Batches() {
			t.Children = append(t.Children, NewTree(b))
		}
		return t
	case *hl7.Batch:
		t := Tree{Kind: "batch", Header: segmentTree(v.Header()), Trailer: segmentTree(v.Trailer())}
		for _, m := range v.Messages() {
			t.Children = append(t.Children, NewTree(m))
		}
		return t
	case *hl7.Message:
		return containerTree("message", v.Children())
	case *hl7.Segment:
		t := Tree{Kind: "segment", ID: v.ID()}
		children := v.Children()
		if len(children) > 1 {
			t.Children = childTrees(children[1:])
		}
		return t
	case *hl7.Field:
		return containerTree("field", v.Children())
	case *hl7.Repetition:
		return containerTree("repetition", v.Children())
	case *hl7.Component:
		return containerTree("component", v.Children())
	case hl7.Leaf:
		return Tree{Kind: "leaf", Value: string(v)}
	}
	return Tree{Kind: "unknown", Value: n.String()}
}

func segmentTree(s *hl7.Segment) *Tree {
	if s == nil {
		return nil
	}
	t := NewTree(s)
	return &t
}

func containerTree(kind string, children []hl7.Node) Tree {
	if len(children) == 1 {
		if leaf, ok := children[0].(hl7.Leaf); ok {
			return Tree{Kind: kind, Value: string(leaf)}
		}
	}
	return Tree{Kind: kind, Children: childTrees(children)}
}

func childTrees(nodes []hl7.Node) []Tree {
	out := make([]Tree, len(nodes))
	for i, n := range nodes {
		out[i] = NewTree(n)
	}
	return out
}
