package builder

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim/vector"
)

// Axis sweeps one variable from Min to Max over Count replicates of the
// situation.
type Axis struct {
	Count  int     `yaml:"count" json:"count" validate:"gte=1"`
	Name   string  `yaml:"name" json:"name" validate:"required"`
	Min    float64 `yaml:"min" json:"min"`
	Max    float64 `yaml:"max" json:"max"`
	Period string  `yaml:"period" json:"period,omitempty"`
	Index  int     `yaml:"index" json:"index,omitempty" validate:"gte=0"`
}

// Values are the Count evenly spaced values of the sweep.
func (a Axis) Values() vector.Floats { return vector.Linspace(a.Min, a.Max, a.Count) }

var axisKeys = map[string]bool{"count": true, "name": true, "min": true, "max": true, "period": true, "index": true}

// axisValidate is the validator instance for axes.
var axisValidate = validator.New()

// axes reads a list of parallel groups. A flat list of axes is one group.
func (p *parser) axes(n *yaml.Node) [][]Axis {
	if n.Kind != yaml.SequenceNode {
		p.errs.Add(axesKey, fmt.Errorf("expected a list of parallel axis groups, got %s", kindName(n)))
		return nil
	}
	var out [][]Axis
	for i, g := range n.Content {
		switch g.Kind {
		case yaml.SequenceNode:
			var group []Axis
			for j, a := range g.Content {
				if axis, ok := p.axis(fmt.Sprintf("%s/%d/%d", axesKey, i, j), a); ok {
					group = append(group, axis)
				}
			}
			out = append(out, group)
		case yaml.MappingNode:
			if axis, ok := p.axis(fmt.Sprintf("%s/%d", axesKey, i), g); ok {
				if len(out) == 0 {
					out = append(out, nil)
				}
				out[0] = append(out[0], axis)
			}
		default:
			p.errs.Add(fmt.Sprintf("%s/%d", axesKey, i), fmt.Errorf("expected an axis or a list of axes, got %s", kindName(g)))
		}
	}
	p.checkParallel(out)
	return out
}

func (p *parser) axis(path string, n *yaml.Node) (Axis, bool) {
	var a Axis
	if n.Kind != yaml.MappingNode {
		p.errs.Add(path, fmt.Errorf("expected an axis mapping, got %s", kindName(n)))
		return a, false
	}
	for _, kv := range pairsOf(n) {
		if !axisKeys[kv.key] {
			p.errs.Add(path+"/"+kv.key, fmt.Errorf("unexpected axis key %q", kv.key))
			return a, false
		}
	}
	if err := n.Decode(&a); err != nil {
		p.errs.Add(path, err)
		return a, false
	}
	if err := axisValidate.Struct(a); err != nil {
		p.errs.Add(path, fmt.Errorf("invalid axis: %w", err))
		return a, false
	}
	if !p.isVariable(a.Name) {
		p.errs.Add(path+"/name", fmt.Errorf("axis on unknown variable %q", a.Name))
		return a, false
	}
	return a, true
}

// checkParallel requires equal counts inside each parallel group.
func (p *parser) checkParallel(groups [][]Axis) {
	for i, g := range groups {
		for _, a := range g {
			if a.Count != g[0].Count {
				p.errs.Add(fmt.Sprintf("%s/%d", axesKey, i), fmt.Errorf("parallel axes must share their count, got %d and %d", g[0].Count, a.Count))
				break
			}
		}
	}
}

// cells is the number of replicates: the product of the group counts.
func cells(groups [][]Axis) int {
	n := 1
	for _, g := range groups {
		if len(g) > 0 {
			n *= g[0].Count
		}
	}
	return n
}

// position returns the index along each group of replicate r. The first
// group varies fastest.
func position(groups [][]Axis, r int) []int {
	out := make([]int, len(groups))
	for i, g := range groups {
		if len(g) == 0 {
			continue
		}
		out[i] = r % g[0].Count
		r /= g[0].Count
	}
	return out
}
