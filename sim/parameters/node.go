// Package parameters implements the time-indexed legislative parameter tree.
//
// A Tree is built once (usually from a directory of YAML files) and never
// mutated: reforms call Update, which returns a modified copy. Formulas read
// parameters through a View pinned to one instant.
package parameters

import (
	"errors"
	"fmt"
	"sort"

	"github.com/legisim/legisim/sim/periods"
)

var (
	// ErrParameterNotFound is returned for a path that names no node.
	ErrParameterNotFound = errors.New("parameter not found")
	// ErrParameterNotActive is returned when reading a leaf that has no value
	// at the requested instant, or whose value was stopped.
	ErrParameterNotActive = errors.New("parameter not active")
)

// NotFoundError names the missing path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrParameterNotFound, e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrParameterNotFound }

// NotActiveError names the leaf and the instant it was read at.
type NotActiveError struct {
	Path    string
	Instant periods.Instant
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("%s: %q has no value on %s", ErrParameterNotActive, e.Path, e.Instant)
}

func (e *NotActiveError) Unwrap() error { return ErrParameterNotActive }

// Node is a Group, a Parameter or a Scale.
type Node interface {
	Name() string
	Description() string
	clone() Node
}

// Step is one entry of a leaf's timeline. A nil Value stops the parameter.
type Step struct {
	Instant periods.Instant
	Value   any
}

// Parameter is a leaf: an ordered timeline of steps.
type Parameter struct {
	name        string
	description string
	Unit        string
	steps       []Step // ascending by instant
	defaultVal  any
}

// NewParameter builds a leaf from steps in any order.
func NewParameter(name, description string, steps ...Step) *Parameter {
	p := &Parameter{name: name, description: description, steps: append([]Step(nil), steps...)}
	p.sortSteps()
	return p
}

// WithDefault sets the value returned before the first step.
func (p *Parameter) WithDefault(v any) *Parameter {
	p.defaultVal = v
	return p
}

func (p *Parameter) Name() string        { return p.name }
func (p *Parameter) Description() string { return p.description }

// Steps returns the timeline in ascending order.
func (p *Parameter) Steps() []Step { return append([]Step(nil), p.steps...) }

func (p *Parameter) sortSteps() {
	sort.SliceStable(p.steps, func(i, j int) bool { return p.steps[i].Instant.Before(p.steps[j].Instant) })
}

func (p *Parameter) clone() Node {
	c := *p
	c.steps = append([]Step(nil), p.steps...)
	return &c
}

// At returns the value of the greatest step not after instant. Before the
// first step the declared default applies; a stopped leaf or a leaf with no
// default fails with ErrParameterNotActive.
func (p *Parameter) At(instant periods.Instant) (any, error) {
	idx := sort.Search(len(p.steps), func(i int) bool { return p.steps[i].Instant.After(instant) }) - 1
	if idx < 0 {
		if p.defaultVal == nil {
			return nil, &NotActiveError{Path: p.name, Instant: instant}
		}
		return p.defaultVal, nil
	}
	if p.steps[idx].Value == nil {
		return nil, &NotActiveError{Path: p.name, Instant: instant}
	}
	return p.steps[idx].Value, nil
}

// update replaces the values in [start, stop] by value. A nil stop means the
// new value applies indefinitely. The value in force after stop is preserved.
func (p *Parameter) update(start periods.Instant, stop *periods.Instant, value any) {
	var (
		next      periods.Instant
		nextValue any
		keepNext  bool
	)
	if stop != nil {
		next = stop.Offset(1, periods.Day)
		if v, err := p.At(next); err == nil {
			nextValue = v
		}
		keepNext = true
	}
	kept := p.steps[:0:0]
	for _, s := range p.steps {
		if s.Instant.Before(start) {
			kept = append(kept, s)
			continue
		}
		if keepNext && !s.Instant.Before(next) {
			kept = append(kept, s)
			if s.Instant == next {
				keepNext = false
			}
		}
	}
	kept = append(kept, Step{Instant: start, Value: value})
	if keepNext {
		kept = append(kept, Step{Instant: next, Value: nextValue})
	}
	p.steps = kept
	p.sortSteps()
}

// Group is an interior node; children keep their declaration order.
type Group struct {
	name        string
	description string
	order       []string
	children    map[string]Node
}

// NewGroup builds an empty interior node.
func NewGroup(name, description string) *Group {
	return &Group{name: name, description: description, children: make(map[string]Node)}
}

func (g *Group) Name() string        { return g.name }
func (g *Group) Description() string { return g.description }

// Add appends a child node, replacing any child with the same key.
func (g *Group) Add(key string, child Node) *Group {
	if _, exists := g.children[key]; !exists {
		g.order = append(g.order, key)
	}
	g.children[key] = child
	return g
}

// Child returns a direct child.
func (g *Group) Child(key string) (Node, bool) {
	n, ok := g.children[key]
	return n, ok
}

// Keys returns the child keys in declaration order.
func (g *Group) Keys() []string { return append([]string(nil), g.order...) }

func (g *Group) clone() Node {
	c := &Group{name: g.name, description: g.description, order: append([]string(nil), g.order...),
		children: make(map[string]Node, len(g.children))}
	for k, child := range g.children {
		c.children[k] = child.clone()
	}
	return c
}
