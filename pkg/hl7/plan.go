package hl7

import "strings"

// Plan describes one level of the recursive split: the separator used at
// this depth and the container type built from the parts. Next descends a
// level; the plan is exhausted after the component level.
type Plan struct {
	env   Env
	level Level
}

// NewPlan derives the separator table from the header segment at the start
// of text and returns the plan for splitting a message.
func NewPlan(text string, opts ...Option) (Plan, error) {
	o := newOptions(opts)
	d, err := DetectDelimiters(text)
	if err != nil {
		return Plan{}, err
	}
	return Plan{env: o.env(d), level: LevelMessage}, nil
}

func planAt(env Env, level Level) Plan {
	return Plan{env: env.withDefaults(), level: level}
}

// Level is the depth of the containers this plan builds.
func (p Plan) Level() Level { return p.level }

// Env carries the delimiters, factory and diagnostics sink of the plan.
func (p Plan) Env() Env { return p.env }

// Separator is the byte parts are split on at this level.
func (p Plan) Separator() byte { return p.env.Delimiters.Separator(p.level) }

// Next returns the plan one level deeper, or false once the component
// level has been reached.
func (p Plan) Next() (Plan, bool) {
	if p.level >= LevelComponent {
		return Plan{}, false
	}
	p.level++
	return p, true
}

// Applies reports whether text contains the separator of this level or of
// any deeper level. When it does not, text is kept whole as a leaf.
func (p Plan) Applies(text string) bool {
	d := p.env.Delimiters
	for l := p.level; l <= LevelComponent; l++ {
		if strings.IndexByte(text, d.Separator(l)) >= 0 {
			return true
		}
	}
	return false
}

func (p Plan) container(children []Node) Node {
	f := p.env.factory()
	switch p.level {
	case LevelMessage:
		return f.NewMessage(p.env, children)
	case LevelSegment:
		return f.NewSegment(p.env, children)
	case LevelField:
		return f.NewField(p.env, children)
	case LevelRepetition:
		return f.NewRepetition(p.env, children)
	case LevelComponent:
		return f.NewComponent(p.env, children)
	}
	return f.NewMessage(p.env, children)
}
