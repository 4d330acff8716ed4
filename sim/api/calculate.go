package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/builder"
	"github.com/legisim/legisim/sim/trace"
	"github.com/legisim/legisim/sim/vector"
)

func (s *Server) handleCalculate(c *gin.Context) {
	root, res, err := s.simulate(c, s.cfg.Simulation)
	if err != nil {
		abort(c, err)
		return
	}
	defer res.Simulation.Close()
	if err := s.answer(res); err != nil {
		abort(c, err)
		return
	}
	var out any
	if err := root.Decode(&out); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleTrace(c *gin.Context) {
	cfg := s.cfg.Simulation
	cfg.Trace = string(trace.LevelFull)
	_, res, err := s.simulate(c, cfg)
	if err != nil {
		abort(c, err)
		return
	}
	defer res.Simulation.Close()
	if err := s.answer(res); err != nil {
		abort(c, err)
		return
	}
	entities := make(map[string][]string)
	for _, pop := range res.Simulation.Populations() {
		entities[pop.Entity.Plural] = pop.IDs
	}
	requested := make([]string, 0, len(res.Requests))
	for _, r := range res.Requests {
		requested = append(requested, trace.Key(r.Variable, r.Period))
	}
	c.JSON(http.StatusOK, gin.H{
		"trace":                 res.Simulation.Tracer.FlatTrace(),
		"entitiesDescription":   entities,
		"requestedCalculations": requested,
	})
}

// simulate builds the posted situation. The returned node is the decoded
// body the requests point into.
func (s *Server) simulate(c *gin.Context, cfg sim.SimulationConfig) (*yaml.Node, *builder.Result, error) {
	system := s.System()
	var doc yaml.Node
	if err := yaml.NewDecoder(c.Request.Body).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("%w: request body: %v", sim.ErrSituationParse, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil, fmt.Errorf("%w: empty request body", sim.ErrSituationParse)
	}
	root := doc.Content[0]
	sit, err := builder.FromNode(system, root)
	if err != nil {
		return nil, nil, err
	}
	b := builder.New(system)
	b.Config = cfg
	res, err := b.Build(sit)
	if err != nil {
		return nil, nil, err
	}
	return root, res, nil
}

// answer computes every request and writes the value in place of its null:
// a scalar, or a list with one value per axis cell.
func (s *Server) answer(res *builder.Result) error {
	for _, r := range res.Requests {
		arr, err := res.Simulation.Calculate(r.Variable, r.Period)
		s.metrics.calculations.WithLabelValues(r.Variable, status(err)).Inc()
		if err != nil {
			return err
		}
		values := trace.Serialize(vector.Gather(arr, res.Indices[r.Entity][r.ID]))
		var v any = values
		if len(values) == 1 {
			v = values[0]
		}
		if err := r.Node.Encode(v); err != nil {
			return fmt.Errorf("encoding %s: %w", trace.Key(r.Variable, r.Period), err)
		}
	}
	return nil
}
