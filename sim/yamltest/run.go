package yamltest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/builder"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// Runner runs tests against a system. Each test gets its own simulation.
type Runner struct {
	System *sim.TaxBenefitSystem
	Config sim.SimulationConfig
	// Parallelism bounds the tests running at once; 0 means GOMAXPROCS.
	Parallelism int
}

// NewRunner returns a runner with the default simulation configuration.
func NewRunner(system *sim.TaxBenefitSystem) *Runner {
	return &Runner{System: system, Config: sim.DefaultSimulationConfig()}
}

// Result is the outcome of one test. Err is set when the test could not
// run; Failures lists the mismatching outputs.
type Result struct {
	Test     *Test
	Err      error
	Failures []string
}

// Passed reports whether the test ran and every output matched.
func (r Result) Passed() bool { return r.Err == nil && len(r.Failures) == 0 }

// Run executes the tests and returns their results in input order. It only
// fails when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, tests []*Test) ([]Result, error) {
	results := make([]Result, len(tests))
	g, ctx := errgroup.WithContext(ctx)
	limit := r.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i, t := range tests {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = r.RunOne(t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	failed := 0
	for _, res := range results {
		if !res.Passed() {
			failed++
		}
	}
	logrus.Infof("ran %d tests, %d failed", len(tests), failed)
	return results, nil
}

// RunOne builds the test's simulation and checks its outputs.
func (r *Runner) RunOne(t *Test) Result {
	res := Result{Test: t}
	system, err := r.System.ApplyReforms(append(append([]string(nil), t.Extensions...), t.Reforms...)...)
	if err != nil {
		res.Err = err
		return res
	}
	b := builder.New(system)
	b.Config = r.Config
	if t.MaxSpiralLoops > 0 {
		b.Config.MaxSpiralLoops = t.MaxSpiralLoops
	}
	b.DefaultPeriod = t.Period
	built, err := builder.FromNode(system, &t.Input)
	if err != nil {
		res.Err = err
		return res
	}
	out, err := b.Build(built)
	if err != nil {
		res.Err = err
		return res
	}
	defer func() {
		if err := out.Simulation.Close(); err != nil {
			logrus.Warnf("closing simulation of %s: %v", t.Label(), err)
		}
	}()

	c := &checker{test: t, result: out, margins: marginsOf(t)}
	if err := c.output(); err != nil {
		res.Err = err
		return res
	}
	res.Failures = c.failures
	logrus.Debugf("%s: %d failures", t.Label(), len(c.failures))
	return res
}

type margins struct {
	absolute float64
	relative float64
}

func marginsOf(t *Test) margins {
	var m margins
	if t.AbsoluteErrorMargin != nil {
		m.absolute = *t.AbsoluteErrorMargin
	}
	if t.RelativeErrorMargin != nil {
		m.relative = *t.RelativeErrorMargin
	}
	return m
}

// near accepts got when it is within either margin of want.
func (m margins) near(want, got float64) bool {
	diff := math.Abs(want - got)
	if diff <= m.absolute {
		return true
	}
	return m.relative > 0 && diff <= m.relative*math.Abs(want)
}

// === Output checking ===

type checker struct {
	test     *Test
	result   *builder.Result
	margins  margins
	failures []string
}

func (c *checker) system() *sim.TaxBenefitSystem { return c.result.Simulation.System }

func (c *checker) output() error {
	n := &c.test.Output
	if n.Kind == 0 {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("output must be a mapping")
	}
	for k := 0; k+1 < len(n.Content); k += 2 {
		key, value := n.Content[k].Value, n.Content[k+1]
		if _, err := c.system().Variable(key); err == nil {
			if err := c.variable(key, value, nil); err != nil {
				return err
			}
			continue
		}
		if e, err := c.system().Entity(key); err == nil && !e.IsPerson {
			if err := c.entity(e, key, value); err != nil {
				return err
			}
			continue
		}
		if e, err := c.system().EntityByPlural(key); err == nil {
			if value.Kind != yaml.MappingNode {
				return fmt.Errorf("output %s: expected a mapping of ids", key)
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				if err := c.entity(e, value.Content[j].Value, value.Content[j+1]); err != nil {
					return err
				}
			}
			continue
		}
		return &sim.VariableNotFoundError{Name: key}
	}
	return nil
}

// entity checks the variables expected for one entity id.
func (c *checker) entity(e *sim.Entity, id string, n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("output %s %q: expected a mapping of variables", e.Key, id)
	}
	indices, ok := c.result.Indices[e.Plural][id]
	if !ok {
		return fmt.Errorf("output: unknown %s %q", e.Key, id)
	}
	for k := 0; k+1 < len(n.Content); k += 2 {
		name := n.Content[k].Value
		v, err := c.system().Variable(name)
		if err != nil {
			return err
		}
		if v.Entity.Key != e.Key {
			return fmt.Errorf("output %s %q: variable %q is defined for %s", e.Key, id, name, v.Entity.Plural)
		}
		if err := c.variable(name, n.Content[k+1], indices); err != nil {
			return err
		}
	}
	return nil
}

// variable checks one expected value, dated or not. indices restricts the
// comparison to some entities; nil compares the whole population.
func (c *checker) variable(name string, n *yaml.Node, indices []int) error {
	if n.Kind != yaml.MappingNode {
		return c.compare(name, c.test.Period, n, indices)
	}
	for k := 0; k+1 < len(n.Content); k += 2 {
		if err := c.compare(name, n.Content[k].Value, n.Content[k+1], indices); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) compare(name, literal string, n *yaml.Node, indices []int) error {
	if literal == "" {
		return fmt.Errorf("output %s: no period given and the test declares none", name)
	}
	period, err := periods.Parse(literal)
	if err != nil {
		return fmt.Errorf("output %s: %w", name, err)
	}
	got, err := c.result.Simulation.Calculate(name, period)
	if err != nil {
		return err
	}
	if indices == nil {
		indices = make([]int, got.Len())
		for i := range indices {
			indices[i] = i
		}
	}
	want, err := expected(n, len(indices))
	if err != nil {
		return fmt.Errorf("output %s@%s: %w", name, literal, err)
	}
	for k, i := range indices {
		if !c.equal(got, i, want[k]) {
			c.failures = append(c.failures, fmt.Sprintf("%s@%s[%d]: expected %v, got %v", name, literal, i, want[k], got.Value(i)))
		}
	}
	return nil
}

// expected reads a scalar or a vector of n scalars.
func expected(n *yaml.Node, count int) ([]any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		v, err := decode(n)
		if err != nil {
			return nil, err
		}
		out := make([]any, count)
		for i := range out {
			out[i] = v
		}
		return out, nil
	case yaml.SequenceNode:
		if len(n.Content) != count {
			return nil, &vector.LengthError{Expected: count, Got: len(n.Content)}
		}
		out := make([]any, count)
		for i, c := range n.Content {
			v, err := decode(c)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a value or a list of values")
}

func decode(n *yaml.Node) (any, error) {
	switch n.Tag {
	case "!!int", "!!float":
		return strconv.ParseFloat(n.Value, 64)
	case "!!bool":
		var b bool
		err := n.Decode(&b)
		return b, err
	}
	return n.Value, nil
}

func (c *checker) equal(got vector.Array, i int, want any) bool {
	switch arr := got.(type) {
	case vector.Floats:
		w, ok := want.(float64)
		return ok && c.margins.near(w, arr[i])
	case vector.Ints:
		w, ok := want.(float64)
		return ok && c.margins.near(w, float64(arr[i]))
	case vector.Dates:
		w, ok := want.(string)
		if !ok {
			return false
		}
		inst, err := periods.ParseInstant(w)
		return err == nil && inst == arr[i]
	}
	return fmt.Sprint(got.Value(i)) == fmt.Sprint(want)
}
