package sim

import (
	"fmt"

	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
)

// Reform transforms a cloned system. Reforms never touch the system they
// were applied to.
type Reform struct {
	Name        string
	Description string
	Apply       func(s *TaxBenefitSystem) error
}

// TaxBenefitSystem bundles the entities, variables and parameters handed
// to simulations. Treat it as immutable once simulations use it; derive
// variants with Clone or ApplyReform.
type TaxBenefitSystem struct {
	Name           string
	Parameters     *parameters.Tree
	CacheBlacklist map[string]bool
	entities       []*Entity
	person         *Entity
	variables      map[string]*Variable
	order          []string
	reforms        map[string]Reform
	applied        []string
}

// NewTaxBenefitSystem declares a system. Exactly one entity must be the
// person entity.
func NewTaxBenefitSystem(name string, entities ...*Entity) (*TaxBenefitSystem, error) {
	s := &TaxBenefitSystem{
		Name:           name,
		Parameters:     parameters.NewTree(nil),
		CacheBlacklist: make(map[string]bool),
		variables:      make(map[string]*Variable),
		reforms:        make(map[string]Reform),
	}
	seen := make(map[string]bool)
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[e.Key] || seen[e.Plural] {
			return nil, fmt.Errorf("entity %q declared twice", e.Key)
		}
		seen[e.Key], seen[e.Plural] = true, true
		if e.IsPerson {
			if s.person != nil {
				return nil, fmt.Errorf("two person entities: %q and %q", s.person.Key, e.Key)
			}
			s.person = e
		}
		s.entities = append(s.entities, e)
	}
	if s.person == nil {
		return nil, fmt.Errorf("system %q declares no person entity", name)
	}
	return s, nil
}

// AddVariable registers a new variable.
func (s *TaxBenefitSystem) AddVariable(v *Variable) error {
	if _, exists := s.variables[v.Name]; exists {
		return fmt.Errorf("variable %q is already defined", v.Name)
	}
	return s.UpdateVariable(v)
}

// AddVariables registers several variables, stopping at the first error.
func (s *TaxBenefitSystem) AddVariables(vs ...*Variable) error {
	for _, v := range vs {
		if err := s.AddVariable(v); err != nil {
			return err
		}
	}
	return nil
}

// UpdateVariable registers v, replacing any variable of the same name.
func (s *TaxBenefitSystem) UpdateVariable(v *Variable) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if _, err := s.Entity(v.Entity.Key); err != nil {
		return fmt.Errorf("variable %q: %w", v.Name, err)
	}
	if _, exists := s.variables[v.Name]; !exists {
		s.order = append(s.order, v.Name)
	}
	s.variables[v.Name] = v
	return nil
}

// Variable looks a variable up by name.
func (s *TaxBenefitSystem) Variable(name string) (*Variable, error) {
	v, ok := s.variables[name]
	if !ok {
		return nil, &VariableNotFoundError{Name: name}
	}
	return v, nil
}

// Variables lists the variables in registration order.
func (s *TaxBenefitSystem) Variables() []*Variable {
	out := make([]*Variable, len(s.order))
	for i, n := range s.order {
		out[i] = s.variables[n]
	}
	return out
}

// NeutralizeVariable makes a variable always return its default value.
func (s *TaxBenefitSystem) NeutralizeVariable(name string) error {
	v, err := s.Variable(name)
	if err != nil {
		return err
	}
	c := v.clone()
	c.Neutralized = true
	c.formulas = nil
	s.variables[name] = c
	return nil
}

// Entities lists every entity in declaration order.
func (s *TaxBenefitSystem) Entities() []*Entity { return append([]*Entity(nil), s.entities...) }

// PersonEntity returns the person entity.
func (s *TaxBenefitSystem) PersonEntity() *Entity { return s.person }

// GroupEntities lists the non-person entities in declaration order.
func (s *TaxBenefitSystem) GroupEntities() []*Entity {
	var out []*Entity
	for _, e := range s.entities {
		if !e.IsPerson {
			out = append(out, e)
		}
	}
	return out
}

// Entity finds an entity by key.
func (s *TaxBenefitSystem) Entity(key string) (*Entity, error) {
	for _, e := range s.entities {
		if e.Key == key {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown entity %q", key)
}

// EntityByPlural finds an entity by plural key.
func (s *TaxBenefitSystem) EntityByPlural(plural string) (*Entity, error) {
	for _, e := range s.entities {
		if e.Plural == plural {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown entity plural %q", plural)
}

// Clone returns a copy whose variable registry can be modified without
// affecting s. The parameter tree is shared: it is immutable.
func (s *TaxBenefitSystem) Clone() *TaxBenefitSystem {
	c := *s
	c.variables = make(map[string]*Variable, len(s.variables))
	for k, v := range s.variables {
		c.variables[k] = v.clone()
	}
	c.order = append([]string(nil), s.order...)
	c.reforms = make(map[string]Reform, len(s.reforms))
	for k, r := range s.reforms {
		c.reforms[k] = r
	}
	c.CacheBlacklist = make(map[string]bool, len(s.CacheBlacklist))
	for k, b := range s.CacheBlacklist {
		c.CacheBlacklist[k] = b
	}
	c.applied = append([]string(nil), s.applied...)
	return &c
}

// RegisterReform makes a reform available by name, e.g. to YAML tests.
func (s *TaxBenefitSystem) RegisterReform(r Reform) {
	s.reforms[r.Name] = r
}

// Reform looks a registered reform up by name.
func (s *TaxBenefitSystem) Reform(name string) (Reform, bool) {
	r, ok := s.reforms[name]
	return r, ok
}

// ApplyReform returns the reformed copy of s.
func (s *TaxBenefitSystem) ApplyReform(r Reform) (*TaxBenefitSystem, error) {
	c := s.Clone()
	if err := r.Apply(c); err != nil {
		return nil, fmt.Errorf("applying reform %q: %w", r.Name, err)
	}
	c.applied = append(c.applied, r.Name)
	return c, nil
}

// ApplyReforms applies registered reforms in order.
func (s *TaxBenefitSystem) ApplyReforms(names ...string) (*TaxBenefitSystem, error) {
	out := s
	for _, n := range names {
		r, ok := s.reforms[n]
		if !ok {
			return nil, fmt.Errorf("unknown reform %q", n)
		}
		var err error
		if out, err = out.ApplyReform(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AppliedReforms lists the reforms applied to reach this system.
func (s *TaxBenefitSystem) AppliedReforms() []string { return append([]string(nil), s.applied...) }

// ModifyParameters is a reform helper replacing the parameter tree.
func (s *TaxBenefitSystem) ModifyParameters(fn func(*parameters.Tree) (*parameters.Tree, error)) error {
	tree, err := fn(s.Parameters)
	if err != nil {
		return err
	}
	s.Parameters = tree
	return nil
}

// UpdateParameter is a reform helper for a single leaf change.
func (s *TaxBenefitSystem) UpdateParameter(path string, start periods.Instant, stop *periods.Instant, value any) error {
	return s.ModifyParameters(func(t *parameters.Tree) (*parameters.Tree, error) {
		return t.Update(path, start, stop, value)
	})
}
