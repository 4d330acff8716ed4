package trace

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/legisim/legisim/sim/periods"
	"github.com/legisim/legisim/sim/vector"
)

// VariableStats aggregates the frames of one variable.
type VariableStats struct {
	Requests int
	Failures int
	Duration time.Duration // cumulative, children included
}

// Summary aggregates statistics from a Tracer.
type Summary struct {
	TotalFrames  int
	FailedFrames int
	MaxDepth     int
	ByVariable   map[string]VariableStats
}

// Summarize computes aggregate statistics over the kept frames.
// Safe for nil or empty tracers (returns zero-value fields).
func Summarize(t *Tracer) *Summary {
	summary := &Summary{ByVariable: make(map[string]VariableStats)}
	if t == nil {
		return summary
	}
	t.Walk(func(f *Frame, depth int) {
		summary.TotalFrames++
		stats := summary.ByVariable[f.Variable]
		stats.Requests++
		stats.Duration += f.Duration
		if f.Failed() {
			stats.Failures++
			summary.FailedFrames++
		}
		summary.ByVariable[f.Variable] = stats
		if depth+1 > summary.MaxDepth {
			summary.MaxDepth = depth + 1
		}
	})
	return summary
}

// FlatEntry is one node of the flat trace.
type FlatEntry struct {
	Value           []any          `json:"value"`
	Dependencies    []string       `json:"dependencies"`
	Parameters      map[string]any `json:"parameters"`
	CalculationTime float64        `json:"calculation_time"`
	Error           string         `json:"error,omitempty"`
}

// FlatTrace maps "variable<period>" to its entry. When a key was requested
// several times, the first frame that recorded dependencies wins.
func (t *Tracer) FlatTrace() map[string]FlatEntry {
	out := make(map[string]FlatEntry)
	t.Walk(func(f *Frame, _ int) {
		key := f.Key()
		if prev, ok := out[key]; ok && (len(prev.Dependencies) > 0 || len(f.Children) == 0) {
			return
		}
		entry := FlatEntry{
			Value:           Serialize(f.Value),
			Dependencies:    make([]string, 0, len(f.Children)),
			Parameters:      make(map[string]any, len(f.Parameters)),
			CalculationTime: f.Duration.Seconds(),
		}
		for _, c := range f.Children {
			entry.Dependencies = append(entry.Dependencies, c.Key())
		}
		for _, p := range f.Parameters {
			entry.Parameters[p.Key()] = p.Value
		}
		if f.Err != nil {
			entry.Error = f.Err.Error()
		}
		out[key] = entry
	})
	return out
}

// Serialize converts an array to JSON-friendly values: enums by name, dates
// as ISO literals.
func Serialize(arr vector.Array) []any {
	if arr == nil {
		return nil
	}
	out := vector.Values(arr)
	for i, v := range out {
		if d, ok := v.(periods.Instant); ok {
			out[i] = d.String()
		}
	}
	return out
}

// ComputationLog renders the kept frames as an indented list. With aggregate
// set, numeric values are summarized as avg/max/min. Frames deeper than
// maxDepth are omitted when maxDepth > 0.
func (t *Tracer) ComputationLog(aggregate bool, maxDepth int) []string {
	var lines []string
	t.Walk(func(f *Frame, depth int) {
		if maxDepth > 0 && depth >= maxDepth {
			return
		}
		var value string
		switch {
		case f.Err != nil:
			value = "error: " + f.Err.Error()
		case aggregate:
			value = aggregateValue(f.Value)
		default:
			value = vector.Format(f.Value, 10)
		}
		lines = append(lines, fmt.Sprintf("%s%s >> %s", strings.Repeat("  ", depth), f.Key(), value))
	})
	return lines
}

func aggregateValue(arr vector.Array) string {
	fs, err := vector.ToFloats(arr)
	if err != nil || len(fs) == 0 {
		return vector.Format(arr, 10)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range fs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return fmt.Sprintf("{avg: %g, max: %g, min: %g}", fs.Sum()/float64(len(fs)), hi, lo)
}

// SortedVariables lists the summary's variables by descending cumulative
// duration, then name.
func (s *Summary) SortedVariables() []string {
	names := make([]string, 0, len(s.ByVariable))
	for n := range s.ByVariable {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		di, dj := s.ByVariable[names[i]].Duration, s.ByVariable[names[j]].Duration
		if di != dj {
			return di > dj
		}
		return names[i] < names[j]
	})
	return names
}
