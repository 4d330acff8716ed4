package parameters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/legisim/legisim/sim/periods"
)

// Tree is an immutable parameter hierarchy.
type Tree struct {
	root *Group
}

// NewTree wraps a root group.
func NewTree(root *Group) *Tree {
	if root == nil {
		root = NewGroup("", "")
	}
	return &Tree{root: root}
}

// Root returns the root group.
func (t *Tree) Root() *Group { return t.root }

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree { return &Tree{root: t.root.clone().(*Group)} }

// Get resolves a dotted path. Scale brackets are addressed as
// "path.brackets[i].threshold" (or rate, amount).
func (t *Tree) Get(path string) (Node, error) {
	if path == "" {
		return t.root, nil
	}
	var node Node = t.root
	segs := strings.Split(path, ".")
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		switch n := node.(type) {
		case *Group:
			child, ok := n.children[seg]
			if !ok {
				return nil, &NotFoundError{Path: path}
			}
			node = child
		case *Scale:
			idx, ok := bracketIndex(seg)
			if !ok || idx >= len(n.Brackets) || i+1 >= len(segs) {
				return nil, &NotFoundError{Path: path}
			}
			i++
			b := n.Brackets[idx]
			var leaf *Parameter
			switch segs[i] {
			case "threshold":
				leaf = b.Threshold
			case "rate":
				leaf = b.Rate
			case "amount":
				leaf = b.Amount
			}
			if leaf == nil {
				return nil, &NotFoundError{Path: path}
			}
			node = leaf
		default:
			return nil, &NotFoundError{Path: path}
		}
	}
	return node, nil
}

func bracketIndex(seg string) (int, bool) {
	if !strings.HasPrefix(seg, "brackets[") || !strings.HasSuffix(seg, "]") {
		return 0, false
	}
	n, err := strconv.Atoi(seg[len("brackets[") : len(seg)-1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Leaf is a parameter or scale with its dotted path.
type Leaf struct {
	Path string
	Node Node
}

// Leaves lists every parameter and scale in declaration order.
func (t *Tree) Leaves() []Leaf {
	var out []Leaf
	var walk func(prefix string, g *Group)
	walk = func(prefix string, g *Group) {
		for _, k := range g.order {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			switch n := g.children[k].(type) {
			case *Group:
				walk(path, n)
			default:
				out = append(out, Leaf{Path: path, Node: n})
			}
		}
	}
	walk("", t.root)
	return out
}

// Update returns a copy of the tree in which the leaf at path takes value
// from start through stop (inclusive). A nil stop leaves the value in force
// indefinitely; a nil value stops the parameter.
func (t *Tree) Update(path string, start periods.Instant, stop *periods.Instant, value any) (*Tree, error) {
	if stop != nil && stop.Before(start) {
		return nil, fmt.Errorf("update %s: stop %s before start %s", path, stop, start)
	}
	out := t.Clone()
	node, err := out.Get(path)
	if err != nil {
		return nil, err
	}
	leaf, ok := node.(*Parameter)
	if !ok {
		return nil, fmt.Errorf("update %s: not a leaf parameter", path)
	}
	if n, isNum := normalizeNumber(value); isNum {
		value = n
	}
	leaf.update(start, stop, value)
	return out, nil
}

// Observer is notified of every leaf read through a View.
type Observer func(path string, instant periods.Instant, value any)

// View is the tree collapsed at one instant.
type View struct {
	tree    *Tree
	instant periods.Instant
	observe Observer
}

// At returns the view of the tree at instant.
func (t *Tree) At(instant periods.Instant) *View {
	return &View{tree: t, instant: instant}
}

// Observe returns a copy of the view reporting reads to o.
func (v *View) Observe(o Observer) *View {
	c := *v
	c.observe = o
	return &c
}

// Instant is the instant the view is pinned to.
func (v *View) Instant() periods.Instant { return v.instant }

// Get returns the value of a leaf, or the Evaluator of a scale.
func (v *View) Get(path string) (any, error) {
	node, err := v.tree.Get(path)
	if err != nil {
		return nil, err
	}
	var value any
	switch n := node.(type) {
	case *Parameter:
		value, err = n.At(v.instant)
		if err != nil {
			return nil, &NotActiveError{Path: path, Instant: v.instant}
		}
	case *Scale:
		value, err = n.At(v.instant)
		if err != nil {
			return nil, fmt.Errorf("scale %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("parameter %s: is a group, not a value", path)
	}
	if v.observe != nil {
		v.observe(path, v.instant, value)
	}
	return value, nil
}

// Float reads a numeric leaf.
func (v *View) Float(path string) (float64, error) {
	value, err := v.Get(path)
	if err != nil {
		return 0, err
	}
	return toFloat(path, value)
}

// Bool reads a boolean leaf.
func (v *View) Bool(path string) (bool, error) {
	value, err := v.Get(path)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q: %T is not a boolean", path, value)
	}
	return b, nil
}

// Text reads a string leaf.
func (v *View) Text(path string) (string, error) {
	value, err := v.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: %T is not a string", path, value)
	}
	return s, nil
}

// Marginal reads a marginal-rate scale.
func (v *View) Marginal(path string) (*MarginalRateScale, error) {
	value, err := v.Get(path)
	if err != nil {
		return nil, err
	}
	s, ok := value.(*MarginalRateScale)
	if !ok {
		return nil, fmt.Errorf("parameter %q: not a marginal-rate scale", path)
	}
	return s, nil
}

// SingleAmount reads a single-amount scale.
func (v *View) SingleAmount(path string) (*SingleAmountScale, error) {
	value, err := v.Get(path)
	if err != nil {
		return nil, err
	}
	s, ok := value.(*SingleAmountScale)
	if !ok {
		return nil, fmt.Errorf("parameter %q: not a single-amount scale", path)
	}
	return s, nil
}
