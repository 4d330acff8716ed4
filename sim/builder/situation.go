// Package builder turns situation descriptions (YAML or JSON) into
// simulations: it detects the shape of the description, lays persons out in
// groups, replicates the situation along axes and feeds inputs to holders.
package builder

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim"
)

// Situation is a parsed situation description, one of
// *FullySpecifiedEntities, *ImplicitGroupEntities, *PersonsShortForm or
// *Variables.
type Situation interface {
	situation()
}

// Value is a variable input: a PureValue or a DatedValue.
type Value interface {
	value()
}

// PureValue is a scalar, a vector of scalars, or null (a request to compute).
type PureValue struct {
	Scalars []any
	Vector  bool
	Null    bool
	// Node is the decoded input, so callers can answer requests in place.
	Node *yaml.Node
}

// DatedEntry is one period of a dated value.
type DatedEntry struct {
	Period string
	Value  PureValue
}

// DatedValue maps period literals to values, in input order.
type DatedValue struct {
	Entries []DatedEntry
}

func (PureValue) value()  {}
func (DatedValue) value() {}

// VariableEntry is one variable input of an entity.
type VariableEntry struct {
	Name  string
	Value Value
}

// RoleEntry lists the persons of a group bearing a role, in input order.
type RoleEntry struct {
	Role    string
	Persons []string
}

// EntityEntry is one entity instance: its id, variables and, for groups,
// its roles.
type EntityEntry struct {
	ID        string
	Variables []VariableEntry
	Roles     []RoleEntry
}

// GroupEntities lists the instances of one group entity kind.
type GroupEntities struct {
	Plural   string
	Entities []EntityEntry
}

// ImplicitGroup is a single group given under the entity singular.
type ImplicitGroup struct {
	Key   string
	Entry EntityEntry
}

// FullySpecifiedEntities is {persons: {...}, <group_plural>: {id: {...}}}.
type FullySpecifiedEntities struct {
	Persons []EntityEntry
	Groups  []GroupEntities
	Axes    [][]Axis
}

// ImplicitGroupEntities is {persons: {...}, <group_singular>: {roles...}}.
type ImplicitGroupEntities struct {
	Persons []EntityEntry
	Groups  []ImplicitGroup
	Axes    [][]Axis
}

// PersonsShortForm is {person_id: {var: value}}.
type PersonsShortForm struct {
	Persons []EntityEntry
	Axes    [][]Axis
}

// Variables is {var: value}: one instance of every entity kind.
type Variables struct {
	Entries []VariableEntry
	Axes    [][]Axis
}

func (*FullySpecifiedEntities) situation() {}
func (*ImplicitGroupEntities) situation()  {}
func (*PersonsShortForm) situation()       {}
func (*Variables) situation()              {}

const axesKey = "axes"

// Parse reads a situation description. JSON is accepted since it is YAML.
func Parse(system *sim.TaxBenefitSystem, data []byte) (Situation, error) {
	var doc yaml.Node
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", sim.ErrSituationParse, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty situation", sim.ErrSituationParse)
	}
	return FromNode(system, doc.Content[0])
}

// FromNode detects the shape of a decoded situation and parses it.
func FromNode(system *sim.TaxBenefitSystem, root *yaml.Node) (Situation, error) {
	errs := sim.NewSituationError()
	if root.Kind != yaml.MappingNode {
		errs.Add("", fmt.Errorf("a situation must be a mapping, got %s", kindName(root)))
		return nil, errs.Err()
	}
	p := &parser{system: system, errs: errs}
	sit := p.situation(root)
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return sit, nil
}

type parser struct {
	system *sim.TaxBenefitSystem
	errs   *sim.SituationError
}

// shape classifies the top-level keys.
func (p *parser) shape(pairs []pair) string {
	person := p.system.PersonEntity()
	var plurals, singulars, variables, others int
	for _, kv := range pairs {
		k := kv.key
		if k == axesKey {
			continue
		}
		switch {
		case k == person.Plural:
			plurals++
		case p.isGroupPlural(k):
			plurals++
		case p.isGroupSingular(k):
			singulars++
		case p.isVariable(k):
			variables++
		default:
			others++
		}
	}
	switch {
	case singulars > 0:
		return "implicit"
	case plurals > 0:
		return "specified"
	case variables > 0 && others == 0:
		return "variables"
	}
	return "short"
}

func (p *parser) situation(root *yaml.Node) Situation {
	pairs := pairsOf(root)
	var axes [][]Axis
	if n := lookup(pairs, axesKey); n != nil {
		axes = p.axes(n)
	}
	person := p.system.PersonEntity()
	switch p.shape(pairs) {
	case "variables":
		out := &Variables{Axes: axes}
		for _, kv := range pairs {
			if kv.key != axesKey {
				out.Entries = append(out.Entries, VariableEntry{Name: kv.key, Value: p.value(kv.key, kv.value)})
			}
		}
		return out
	case "short":
		out := &PersonsShortForm{Axes: axes}
		for _, kv := range pairs {
			if kv.key != axesKey {
				out.Persons = append(out.Persons, p.entity(kv.key, person, kv.key, kv.value))
			}
		}
		return out
	case "implicit":
		out := &ImplicitGroupEntities{Axes: axes}
		for _, kv := range pairs {
			switch {
			case kv.key == axesKey:
			case kv.key == person.Plural:
				out.Persons = p.entities(person, kv.key, kv.value)
			case p.isGroupSingular(kv.key):
				e, _ := p.system.Entity(kv.key)
				out.Groups = append(out.Groups, ImplicitGroup{Key: kv.key, Entry: p.entity(kv.key, e, kv.key, kv.value)})
			default:
				p.errs.Add(kv.key, fmt.Errorf("unexpected key %q next to %s and group entities", kv.key, person.Plural))
			}
		}
		return out
	}
	out := &FullySpecifiedEntities{Axes: axes}
	for _, kv := range pairs {
		switch {
		case kv.key == axesKey:
		case kv.key == person.Plural:
			out.Persons = p.entities(person, kv.key, kv.value)
		case p.isGroupPlural(kv.key):
			e, _ := p.system.EntityByPlural(kv.key)
			out.Groups = append(out.Groups, GroupEntities{Plural: kv.key, Entities: p.entities(e, kv.key, kv.value)})
		default:
			p.errs.Add(kv.key, fmt.Errorf("unexpected key %q: expected one of the entity plurals or %q", kv.key, axesKey))
		}
	}
	return out
}

func (p *parser) entities(e *sim.Entity, path string, n *yaml.Node) []EntityEntry {
	if n.Kind != yaml.MappingNode {
		p.errs.Add(path, fmt.Errorf("expected a mapping of %s ids, got %s", e.Plural, kindName(n)))
		return nil
	}
	var out []EntityEntry
	for _, kv := range pairsOf(n) {
		out = append(out, p.entity(kv.key, e, path+"/"+kv.key, kv.value))
	}
	return out
}

func (p *parser) entity(id string, e *sim.Entity, path string, n *yaml.Node) EntityEntry {
	entry := EntityEntry{ID: id}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return entry
	}
	if n.Kind != yaml.MappingNode {
		p.errs.Add(path, fmt.Errorf("expected a mapping of variables, got %s", kindName(n)))
		return entry
	}
	for _, kv := range pairsOf(n) {
		at := path + "/" + kv.key
		if !e.IsPerson {
			if _, err := e.Role(kv.key); err == nil {
				entry.Roles = append(entry.Roles, RoleEntry{Role: kv.key, Persons: p.personList(at, kv.value)})
				continue
			}
		}
		v, err := p.system.Variable(kv.key)
		if err != nil {
			if !e.IsPerson && looksLikePersons(kv.value) {
				err = &sim.InvalidRoleError{Key: kv.key, Entity: e.Key}
			}
			p.errs.Add(at, err)
			continue
		}
		if v.Entity.Key != e.Key {
			p.errs.Add(at, fmt.Errorf("variable %q is defined for %s, not %s", kv.key, v.Entity.Plural, e.Plural))
			continue
		}
		entry.Variables = append(entry.Variables, VariableEntry{Name: kv.key, Value: p.value(at, kv.value)})
	}
	return entry
}

func (p *parser) personList(path string, n *yaml.Node) []string {
	switch n.Kind {
	case yaml.ScalarNode:
		return []string{n.Value}
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				p.errs.Add(path, fmt.Errorf("expected person ids, got %s", kindName(c)))
				return nil
			}
			out = append(out, c.Value)
		}
		return out
	}
	p.errs.Add(path, fmt.Errorf("expected a person id or a list of person ids, got %s", kindName(n)))
	return nil
}

// value reads a pure value or, for a mapping, a dated value.
func (p *parser) value(path string, n *yaml.Node) Value {
	if n.Kind != yaml.MappingNode {
		return p.pure(path, n)
	}
	var out DatedValue
	for _, kv := range pairsOf(n) {
		out.Entries = append(out.Entries, DatedEntry{Period: kv.key, Value: p.pure(path+"/"+kv.key, kv.value)})
	}
	return out
}

func (p *parser) pure(path string, n *yaml.Node) PureValue {
	switch n.Kind {
	case yaml.ScalarNode:
		v, err := scalar(n)
		if err != nil {
			p.errs.Add(path, err)
		}
		return PureValue{Scalars: []any{v}, Null: v == nil, Node: n}
	case yaml.SequenceNode:
		out := PureValue{Vector: true, Node: n}
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				p.errs.Add(path, fmt.Errorf("vectors hold scalars, got %s", kindName(c)))
				continue
			}
			v, err := scalar(c)
			if err != nil {
				p.errs.Add(path, err)
			}
			out.Scalars = append(out.Scalars, v)
		}
		return out
	}
	p.errs.Add(path, fmt.Errorf("expected a value, got %s", kindName(n)))
	return PureValue{}
}

// scalar decodes a scalar node. Dates stay strings; numbers become int64 or
// float64.
func scalar(n *yaml.Node) (any, error) {
	switch n.Tag {
	case "!!null":
		return nil, nil
	case "!!bool":
		return strconv.ParseBool(n.Value)
	case "!!int":
		var v int64
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case "!!float":
		var v float64
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return n.Value, nil
}

func looksLikePersons(n *yaml.Node) bool {
	if n.Kind == yaml.SequenceNode {
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode || c.Tag != "!!str" {
				return false
			}
		}
		return true
	}
	return n.Kind == yaml.ScalarNode && n.Tag == "!!str"
}

func (p *parser) isGroupPlural(k string) bool {
	e, err := p.system.EntityByPlural(k)
	return err == nil && !e.IsPerson
}

func (p *parser) isGroupSingular(k string) bool {
	e, err := p.system.Entity(k)
	return err == nil && !e.IsPerson
}

func (p *parser) isVariable(k string) bool {
	_, err := p.system.Variable(k)
	return err == nil
}

type pair struct {
	key   string
	value *yaml.Node
}

func pairsOf(n *yaml.Node) []pair {
	out := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, pair{key: n.Content[i].Value, value: n.Content[i+1]})
	}
	return out
}

func lookup(pairs []pair, key string) *yaml.Node {
	for _, kv := range pairs {
		if kv.key == key {
			return kv.value
		}
	}
	return nil
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a list"
	case yaml.ScalarNode:
		return fmt.Sprintf("%q", n.Value)
	}
	return "an alias"
}
