// Package yamltest loads legislation test cases written in YAML and runs
// them against a tax-benefit system.
//
// A file holds one test or a list of tests:
//
//	name: Basic income
//	period: 2017-12
//	input:
//	  salary: 0
//	output:
//	  basic_income: 600
//
// Outputs mirror situations: a variable at the top level is compared on the
// whole population, an entity key scopes it to one implicit group, and an
// entity plural scopes it per id.
package yamltest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnexpectedTestKey reports a key a test does not recognize.
var ErrUnexpectedTestKey = errors.New("unexpected test key")

// UnexpectedTestKeyError names the offending key and where it was found.
type UnexpectedTestKeyError struct {
	Key  string
	File string
	Test string
}

func (e *UnexpectedTestKeyError) Error() string {
	return fmt.Sprintf("%s: test %q: unexpected key %q", e.File, e.Test, e.Key)
}

func (e *UnexpectedTestKeyError) Unwrap() error { return ErrUnexpectedTestKey }

// validTestKeys maps the keys a test may declare.
var validTestKeys = map[string]bool{
	"name":                  true,
	"description":           true,
	"keywords":              true,
	"period":                true,
	"reforms":               true,
	"extensions":            true,
	"input":                 true,
	"output":                true,
	"absolute_error_margin": true,
	"relative_error_margin": true,
	"max_spiral_loops":      true,
}

// Test is one test case.
type Test struct {
	Name                string    `yaml:"name"`
	Description         string    `yaml:"description"`
	Keywords            []string  `yaml:"keywords"`
	Period              string    `yaml:"period"`
	Reforms             []string  `yaml:"reforms"`
	Extensions          []string  `yaml:"extensions"`
	Input               yaml.Node `yaml:"input"`
	Output              yaml.Node `yaml:"output"`
	AbsoluteErrorMargin *float64  `yaml:"absolute_error_margin"`
	RelativeErrorMargin *float64  `yaml:"relative_error_margin"`
	MaxSpiralLoops      int       `yaml:"max_spiral_loops"`

	// File is the path the test was read from.
	File string `yaml:"-"`
}

// Label identifies the test in reports.
func (t *Test) Label() string {
	if t.Name != "" {
		return t.File + ": " + t.Name
	}
	return t.File
}

// HasKeyword reports whether the test is tagged with keyword.
func (t *Test) HasKeyword(keyword string) bool {
	for _, k := range t.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// Load reads the tests of a file, or of every .yaml/.yml file under a
// directory in lexical order.
func Load(path string) ([]*Test, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loading tests: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path)
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(p); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading tests from %s: %w", path, err)
	}
	sort.Strings(files)
	var out []*Test
	for _, f := range files {
		tests, err := loadFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, tests...)
	}
	return out, nil
}

func loadFile(path string) ([]*Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test file: %w", err)
	}
	return Parse(path, data)
}

// Parse reads the tests of one document. file is used in messages.
func Parse(file string, data []byte) ([]*Test, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	var nodes []*yaml.Node
	switch root.Kind {
	case yaml.MappingNode:
		nodes = []*yaml.Node{root}
	case yaml.SequenceNode:
		nodes = root.Content
	default:
		return nil, fmt.Errorf("%s: expected a test or a list of tests", file)
	}
	out := make([]*Test, 0, len(nodes))
	for i, n := range nodes {
		t, err := parseTest(file, i, n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseTest(file string, i int, n *yaml.Node) (*Test, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: test #%d (line %d) is not a mapping", file, i, n.Line)
	}
	name := fmt.Sprintf("#%d", i)
	for k := 0; k+1 < len(n.Content); k += 2 {
		if n.Content[k].Value == "name" {
			name = n.Content[k+1].Value
		}
	}
	for k := 0; k+1 < len(n.Content); k += 2 {
		if key := n.Content[k].Value; !validTestKeys[key] {
			return nil, &UnexpectedTestKeyError{Key: key, File: file, Test: name}
		}
	}
	t := &Test{File: file}
	if err := n.Decode(t); err != nil {
		return nil, fmt.Errorf("%s: test %q: %w", file, name, err)
	}
	if t.AbsoluteErrorMargin != nil && *t.AbsoluteErrorMargin < 0 {
		return nil, fmt.Errorf("%s: test %q: absolute_error_margin must be >= 0", file, name)
	}
	if t.RelativeErrorMargin != nil && *t.RelativeErrorMargin < 0 {
		return nil, fmt.Errorf("%s: test %q: relative_error_margin must be >= 0", file, name)
	}
	if t.Input.Kind == 0 {
		return nil, fmt.Errorf("%s: test %q: missing input", file, name)
	}
	return t, nil
}

// Select keeps the tests whose name contains name (when not empty) and
// that carry every keyword.
func Select(tests []*Test, name string, keywords ...string) []*Test {
	var out []*Test
	for _, t := range tests {
		if name != "" && !strings.Contains(t.Name, name) {
			continue
		}
		keep := true
		for _, k := range keywords {
			if !t.HasKeyword(k) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, t)
		}
	}
	return out
}
