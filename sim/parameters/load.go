package parameters

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim/periods"
)

// Keys that describe a node rather than name a child.
var metadataKeys = map[string]bool{
	"description":   true,
	"metadata":      true,
	"documentation": true,
	"reference":     true,
	"unit":          true,
}

// LoadDir loads a parameter directory from disk.
func LoadDir(dir string) (*Tree, error) {
	return LoadFS(os.DirFS(dir), ".")
}

// LoadFS loads the parameter directory dir of fsys. Subdirectories become
// groups, each "<key>.yaml" file becomes the child <key>, and "index.yaml"
// describes the enclosing group.
func LoadFS(fsys fs.FS, dir string) (*Tree, error) {
	root, err := loadGroup(fsys, dir, "")
	if err != nil {
		return nil, err
	}
	return NewTree(root), nil
}

func loadGroup(fsys fs.FS, dir, name string) (*Group, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading parameter directory %s: %w", dir, err)
	}
	g := NewGroup(name, "")
	for _, e := range entries {
		file := path.Join(dir, e.Name())
		if e.IsDir() {
			child, err := loadGroup(fsys, file, join(name, e.Name()))
			if err != nil {
				return nil, err
			}
			g.Add(e.Name(), child)
			continue
		}
		ext := path.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ext)
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("reading parameter file %s: %w", file, err)
		}
		if key == "index" {
			var meta struct {
				Description string `yaml:"description"`
			}
			if err := yaml.Unmarshal(data, &meta); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", file, err)
			}
			g.description = meta.Description
			continue
		}
		child, err := Parse(join(name, key), data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		g.Add(key, child)
	}
	return g, nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Parse reads one YAML document describing a group, a parameter (a mapping
// with "values") or a scale (a mapping with "brackets").
func Parse(name string, data []byte) (Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return NewGroup(name, ""), nil
	}
	return parseNode(name, doc.Content[0])
}

// ParseTree reads a whole tree from a single YAML document.
func ParseTree(data []byte) (*Tree, error) {
	node, err := Parse("", data)
	if err != nil {
		return nil, err
	}
	g, ok := node.(*Group)
	if !ok {
		return nil, fmt.Errorf("parameter tree root must be a group, got %T", node)
	}
	return NewTree(g), nil
}

func mappingPairs(name string, n *yaml.Node) ([][2]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s (line %d): expected a mapping", name, n.Line)
	}
	pairs := make([][2]*yaml.Node, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, [2]*yaml.Node{n.Content[i], n.Content[i+1]})
	}
	return pairs, nil
}

func lookup(pairs [][2]*yaml.Node, key string) *yaml.Node {
	for _, p := range pairs {
		if p[0].Value == key {
			return p[1]
		}
	}
	return nil
}

func parseNode(name string, n *yaml.Node) (Node, error) {
	pairs, err := mappingPairs(name, n)
	if err != nil {
		return nil, err
	}
	description := ""
	if d := lookup(pairs, "description"); d != nil {
		description = d.Value
	}
	if values := lookup(pairs, "values"); values != nil {
		p, err := parseTimeline(name, description, values)
		if err != nil {
			return nil, err
		}
		p.Unit = unitOf(pairs)
		if d := lookup(pairs, "default"); d != nil {
			if p.defaultVal, err = decodeScalar(name, d); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	if brackets := lookup(pairs, "brackets"); brackets != nil {
		return parseScale(name, description, pairs, brackets)
	}
	g := NewGroup(name, description)
	for _, p := range pairs {
		key := p[0].Value
		if metadataKeys[key] {
			continue
		}
		child, err := parseNode(join(name, key), p[1])
		if err != nil {
			return nil, err
		}
		g.Add(key, child)
	}
	return g, nil
}

func unitOf(pairs [][2]*yaml.Node) string {
	if u := lookup(pairs, "unit"); u != nil {
		return u.Value
	}
	if meta := lookup(pairs, "metadata"); meta != nil && meta.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(meta.Content); i += 2 {
			if meta.Content[i].Value == "unit" {
				return meta.Content[i+1].Value
			}
		}
	}
	return ""
}

// parseTimeline reads a mapping of date → value or date → {value: ...}.
func parseTimeline(name, description string, n *yaml.Node) (*Parameter, error) {
	pairs, err := mappingPairs(name, n)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(pairs))
	for _, p := range pairs {
		instant, err := periods.ParseInstant(p[0].Value)
		if err != nil {
			return nil, fmt.Errorf("%s (line %d): %w", name, p[0].Line, err)
		}
		valueNode := p[1]
		if valueNode.Kind == yaml.MappingNode {
			inner, _ := mappingPairs(name, valueNode)
			if valueNode = lookup(inner, "value"); valueNode == nil {
				return nil, fmt.Errorf("%s (line %d): missing \"value\" for %s", name, p[1].Line, p[0].Value)
			}
		}
		v, err := decodeScalar(name, valueNode)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Instant: instant, Value: v})
	}
	return NewParameter(name, description, steps...), nil
}

func decodeScalar(name string, n *yaml.Node) (any, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("%s (line %d): expected a scalar value", name, n.Line)
	}
	if n.Tag == "!!null" {
		return nil, nil
	}
	if n.Tag == "!!timestamp" {
		return n.Value, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s (line %d): %w", name, n.Line, err)
	}
	if f, ok := normalizeNumber(v); ok {
		return f, nil
	}
	return v, nil
}

// normalizeNumber stores every number as float64.
func normalizeNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func parseScale(name, description string, pairs [][2]*yaml.Node, brackets *yaml.Node) (*Scale, error) {
	if brackets.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%s (line %d): brackets must be a list", name, brackets.Line)
	}
	typ := MarginalRate
	if t := lookup(pairs, "type"); t != nil {
		typ = ScaleType(t.Value)
	}
	if meta := lookup(pairs, "metadata"); meta != nil && meta.Kind == yaml.MappingNode {
		if t := lookup(mustPairs(meta), "type"); t != nil {
			typ = ScaleType(t.Value)
		}
	}
	s := NewScale(name, description, typ)
	for i, b := range brackets.Content {
		bname := fmt.Sprintf("%s.brackets[%d]", name, i)
		bpairs, err := mappingPairs(bname, b)
		if err != nil {
			return nil, err
		}
		bracket := &Bracket{}
		for _, p := range bpairs {
			field := p[0].Value
			leaf, err := parseTimeline(bname+"."+field, "", p[1])
			if err != nil {
				return nil, err
			}
			switch field {
			case "threshold":
				bracket.Threshold = leaf
			case "rate":
				bracket.Rate = leaf
			case "amount":
				bracket.Amount = leaf
			default:
				return nil, fmt.Errorf("%s (line %d): unknown bracket key %q", bname, p[0].Line, field)
			}
		}
		if bracket.Amount != nil && lookup(pairs, "type") == nil {
			s.Type = SingleAmount
		}
		s.Brackets = append(s.Brackets, bracket)
	}
	switch s.Type {
	case MarginalRate, SingleAmount:
	default:
		return nil, fmt.Errorf("%s: unknown scale type %q", name, s.Type)
	}
	return s, nil
}

func mustPairs(n *yaml.Node) [][2]*yaml.Node {
	pairs, _ := mappingPairs("", n)
	return pairs
}
