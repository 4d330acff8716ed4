package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/legisim/legisim/sim"
	"github.com/legisim/legisim/sim/parameters"
	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/trace"
)

// === Parameters ===

func (s *Server) handleParameters(c *gin.Context) {
	out := make(map[string]gin.H)
	for _, leaf := range s.System().Parameters.Leaves() {
		out[leaf.Path] = gin.H{
			"description": leaf.Node.Description(),
			"href":        "/parameter/" + strings.ReplaceAll(leaf.Path, ".", "/"),
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleParameter(c *gin.Context) {
	path := strings.ReplaceAll(strings.Trim(c.Param("path"), "/"), "/", ".")
	node, err := s.System().Parameters.Get(path)
	if err != nil {
		abort(c, err)
		return
	}
	out := gin.H{"id": path, "description": node.Description()}
	switch n := node.(type) {
	case *parameters.Parameter:
		out["values"] = timeline(n)
		if n.Unit != "" {
			out["unit"] = n.Unit
		}
	case *parameters.Scale:
		out["type"] = n.Type
		out["brackets"] = brackets(n)
	case *parameters.Group:
		out["subparams"] = n.Keys()
	}
	c.JSON(http.StatusOK, out)
}

// timeline maps each step date to its value; null marks a stop.
func timeline(p *parameters.Parameter) map[string]any {
	out := make(map[string]any)
	for _, step := range p.Steps() {
		out[step.Instant.String()] = step.Value
	}
	return out
}

// brackets maps every instant at which a bracket changes to the
// threshold → rate (or amount) table in force from then on.
func brackets(s *parameters.Scale) map[string]map[string]any {
	seen := make(map[periods.Instant]bool)
	for _, b := range s.Brackets {
		for _, leaf := range []*parameters.Parameter{b.Threshold, b.Rate, b.Amount} {
			if leaf == nil {
				continue
			}
			for _, step := range leaf.Steps() {
				seen[step.Instant] = true
			}
		}
	}
	out := make(map[string]map[string]any, len(seen))
	for instant := range seen {
		table := make(map[string]any)
		for _, b := range s.Brackets {
			value := b.Rate
			if value == nil {
				value = b.Amount
			}
			if b.Threshold == nil || value == nil {
				continue
			}
			threshold, err := b.Threshold.At(instant)
			if err != nil {
				continue
			}
			v, err := value.At(instant)
			if err != nil {
				continue
			}
			table[formatThreshold(threshold)] = v
		}
		out[instant.String()] = table
	}
	return out
}

func formatThreshold(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// === Variables ===

func (s *Server) handleVariables(c *gin.Context) {
	out := make(map[string]gin.H)
	for _, v := range s.System().Variables() {
		out[v.Name] = gin.H{"description": v.Label, "href": "/variable/" + v.Name}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleVariable(c *gin.Context) {
	v, err := s.System().Variable(c.Param("name"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, describeVariable(v))
}

func describeVariable(v *sim.Variable) gin.H {
	out := gin.H{
		"id":               v.Name,
		"description":      v.Label,
		"valueType":        v.ValueType,
		"entity":           v.Entity.Key,
		"definitionPeriod": v.DefinitionPeriod,
		"defaultValue":     trace.Serialize(v.DefaultArray(1))[0],
		"isNeutralized":    v.Neutralized,
	}
	if v.Unit != "" {
		out["unit"] = v.Unit
	}
	if len(v.Reference) > 0 {
		out["references"] = v.Reference
	}
	if v.Enum != nil {
		out["possibleValues"] = v.Enum.Items()
	}
	if !v.EndDate.IsZero() {
		out["endDate"] = v.EndDate.String()
	}
	if v.SetInput != "" {
		out["setInput"] = v.SetInput
	}
	if formulas := v.Formulas(); len(formulas) > 0 {
		byStart := make(map[string]gin.H, len(formulas))
		for _, f := range formulas {
			start := "0001-01-01"
			if !f.Start.IsZero() {
				start = f.Start.String()
			}
			byStart[start] = gin.H{"source": f.Source}
		}
		out["formulas"] = byStart
	}
	return out
}

// === Entities ===

func (s *Server) handleEntities(c *gin.Context) {
	out := make(map[string]gin.H)
	for _, e := range s.System().Entities() {
		entry := gin.H{
			"plural":        e.Plural,
			"description":   e.Label,
			"documentation": e.Doc,
			"isPerson":      e.IsPerson,
		}
		if !e.IsPerson {
			roles := make(map[string]gin.H, len(e.Roles))
			for _, r := range e.Roles {
				role := gin.H{"plural": r.Plural, "description": r.Label, "documentation": r.Doc}
				if r.Max > 0 {
					role["max"] = r.Max
				}
				if len(r.Subroles) > 0 {
					subs := make([]string, len(r.Subroles))
					for i, sub := range r.Subroles {
						subs[i] = sub.Key
					}
					role["subroles"] = subs
				}
				roles[r.Key] = role
			}
			entry["roles"] = roles
		}
		out[e.Key] = entry
	}
	c.JSON(http.StatusOK, out)
}
